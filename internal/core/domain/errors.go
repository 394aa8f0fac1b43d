package domain

import (
	"context"
	"errors"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates an unknown provider or storage backend.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Retrieval degrades to context without past excerpts.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// dimension of the stored embeddings.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyText indicates an embedding was requested for empty text.
	ErrEmptyText = errors.New("empty text")

	// Provider Errors.

	// ErrAuthInvalid indicates the provider rejected the credentials.
	ErrAuthInvalid = errors.New("authentication invalid")

	// ErrQuotaExceeded indicates the provider account has no remaining quota.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// Store Errors.

	// ErrInconsistentStore indicates chunks without a parent document or
	// a non-contiguous ordinal sequence.
	ErrInconsistentStore = errors.New("inconsistent store")
)

// ErrorKind classifies a failure by how callers should react to it.
type ErrorKind int

// Available error kinds.
const (
	// KindValidation is a bad request. Fix the input; never retry as-is.
	KindValidation ErrorKind = iota + 1

	// KindTransient is a timeout, network failure or rate limit. Retryable.
	KindTransient

	// KindFatal is an authentication, quota or configuration failure.
	KindFatal

	// KindConsistency is a detected store invariant violation.
	KindConsistency
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	case KindConsistency:
		return "consistency"
	default:
		return "unknown"
	}
}

// Error is a classified failure.
// Op names the operation that failed, e.g. "embed" or "replace_chunks".
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError classifies err as a validation failure.
func NewValidationError(op string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// NewTransientError classifies err as a retryable failure.
func NewTransientError(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// NewFatalError classifies err as a non-retryable failure.
func NewFatalError(op string, err error) error {
	return &Error{Kind: KindFatal, Op: op, Err: err}
}

// NewConsistencyError classifies err as a store invariant violation.
func NewConsistencyError(op string, err error) error {
	return &Error{Kind: KindConsistency, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
// An unclassified deadline is transient. Anything else unclassified is zero.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return 0
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// IsFatal reports whether err is a non-retryable provider or configuration failure.
func IsFatal(err error) bool { return KindOf(err) == KindFatal }

// IsConsistency reports whether err is a store invariant violation.
func IsConsistency(err error) bool { return KindOf(err) == KindConsistency }
