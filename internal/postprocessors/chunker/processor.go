// Package chunker splits report bodies into overlapping, paragraph-aligned chunks.
package chunker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1200

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 120

// chunkNamespace scopes chunk ids so they never collide with other UUIDv5 ids.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("insight-rag.chunk"))

// ChunkID returns the deterministic id of the chunk at position in a document.
func ChunkID(docID string, position int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(docID+"#"+strconv.Itoa(position))).String()
}

// Segment is a chunk of text with its character offsets in the body.
type Segment struct {
	Text  string
	Start int
	End   int
}

// Processor splits document bodies into chunks under a character budget.
// It implements the PostProcessor interface.
//
// Sizes are counted in characters (Unicode code points). Every chunk is an
// exact substring of the body, so the chunks minus their overlapping
// prefixes reproduce the body.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
// The overlap is clamped to half the chunk size so every step makes progress.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.overlap > p.chunkSize/2 {
		p.overlap = p.chunkSize / 2
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// ChunkSize returns the configured chunk size.
func (p *Processor) ChunkSize() int { return p.chunkSize }

// Overlap returns the effective overlap after clamping.
func (p *Processor) Overlap() int { return p.overlap }

// Chunk splits body into chunk texts in reading order.
func (p *Processor) Chunk(body string) []string {
	segs := p.Split(body)
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.Text
	}
	return out
}

// Split splits body into segments in reading order.
//
// Paragraphs (separated by blank lines) are accumulated while they fit.
// On overflow the buffer is flushed and the next buffer starts with the
// trailing overlap characters of the flushed chunk, shortened when needed
// so the next paragraph stays whole. Only a paragraph longer than the chunk
// size is cut at character boundaries.
// Empty or whitespace-only input yields no segments.
func (p *Processor) Split(body string) []Segment {
	if strings.TrimSpace(body) == "" {
		return nil
	}

	runes := []rune(body)
	var segs []Segment
	lastStart, lastEnd := 0, 0
	emit := func(s, e int) {
		segs = append(segs, Segment{Text: string(runes[s:e]), Start: s, End: e})
		lastStart, lastEnd = s, e
	}

	bufStart, bufEnd := 0, 0
	for _, span := range paragraphSpans(runes) {
		spanStart, end := span[0], span[1]
		if end-bufStart <= p.chunkSize {
			bufEnd = end
			continue
		}
		if bufEnd > lastEnd {
			emit(bufStart, bufEnd)
			bufStart = max(bufEnd-p.overlap, lastStart)
		}
		if end-spanStart <= p.chunkSize {
			// bufStart stays at or before spanStart, so nothing is skipped.
			bufStart = max(bufStart, end-p.chunkSize)
		} else {
			for end-bufStart > p.chunkSize {
				emit(bufStart, bufStart+p.chunkSize)
				bufStart += p.chunkSize - p.overlap
			}
		}
		bufEnd = end
	}
	if bufEnd > lastEnd {
		emit(bufStart, bufEnd)
	}

	return segs
}

// Process splits the document body into chunks with positions and ids.
func (p *Processor) Process(_ context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", domain.ErrInvalidInput)
	}

	segs := p.Split(doc.Body)
	if len(segs) == 0 {
		// Empty body produces no chunks
		return nil, nil
	}

	chunks := make([]domain.Chunk, len(segs))
	for i, s := range segs {
		chunks[i] = domain.Chunk{
			ID:         ChunkID(doc.ID, i),
			DocumentID: doc.ID,
			Position:   i,
			Content:    s.Text,
			Start:      s.Start,
			End:        s.End,
		}
	}

	return chunks, nil
}

// paragraphSpans partitions r into paragraphs. Each span includes the
// blank-line separator that follows it, so the spans cover r exactly.
func paragraphSpans(r []rune) [][2]int {
	var spans [][2]int
	start := 0
	for i := 0; i < len(r); {
		if r[i] != '\n' {
			i++
			continue
		}
		end := blankRunEnd(r, i)
		if end == i+1 {
			i++
			continue
		}
		spans = append(spans, [2]int{start, end})
		start = end
		i = end
	}
	if start < len(r) {
		spans = append(spans, [2]int{start, len(r)})
	}
	return spans
}

// blankRunEnd returns the end of the blank lines following the newline at i,
// or i+1 when the next line is not blank.
func blankRunEnd(r []rune, i int) int {
	end := i + 1
	for j := end; ; {
		k := j
		for k < len(r) && (r[k] == ' ' || r[k] == '\t' || r[k] == '\r') {
			k++
		}
		if k >= len(r) || r[k] != '\n' {
			return end
		}
		end = k + 1
		j = end
	}
}
