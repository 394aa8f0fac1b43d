package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

func TestCreateEmbeddingService(t *testing.T) {
	tests := []struct {
		name        string
		settings    *domain.EmbeddingSettings
		wantErr     error
		wantModel   string
		wantDims    int
		errContains string
	}{
		{
			name:     "nil settings",
			settings: nil,
			wantErr:  domain.ErrInvalidInput,
		},
		{
			name:     "unknown provider",
			settings: &domain.EmbeddingSettings{Provider: "anthropic", APIKey: "k"},
			wantErr:  domain.ErrUnsupportedType,
		},
		{
			name:        "openai without key",
			settings:    &domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI},
			wantErr:     domain.ErrInvalidInput,
			errContains: "requires an API key",
		},
		{
			name: "ollama provider creates service",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOllama,
				BaseURL:  "http://localhost:11434",
				Model:    "nomic-embed-text",
			},
			wantModel: "nomic-embed-text",
			wantDims:  768,
		},
		{
			name: "openai provider creates service",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOpenAI,
				APIKey:   "test-key",
				Model:    "text-embedding-3-small",
			},
			wantModel: "text-embedding-3-small",
			wantDims:  1536,
		},
		{
			name: "explicit dimensions win",
			settings: &domain.EmbeddingSettings{
				Provider:   domain.AIProviderOpenAI,
				APIKey:     "test-key",
				Model:      "text-embedding-3-large",
				Dimensions: 256,
			},
			wantModel: "text-embedding-3-large",
			wantDims:  256,
		},
		{
			name: "gemini provider creates service",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderGemini,
				APIKey:   "test-key",
				Model:    "text-embedding-004",
			},
			wantModel: "text-embedding-004",
			wantDims:  768,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateEmbeddingService(context.Background(), tt.settings)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q should contain %q", err.Error(), tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer svc.Close()

			if svc.ModelName() != tt.wantModel {
				t.Errorf("ModelName() = %q, want %q", svc.ModelName(), tt.wantModel)
			}
			if svc.Dimensions() != tt.wantDims {
				t.Errorf("Dimensions() = %d, want %d", svc.Dimensions(), tt.wantDims)
			}
		})
	}
}

func TestCreateAndValidateEmbeddingService(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		svc, err := CreateAndValidateEmbeddingService(context.Background(), &domain.EmbeddingSettings{
			Provider: domain.AIProviderOllama,
			BaseURL:  server.URL,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		svc.Close()
	})

	t.Run("unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		_, err := CreateAndValidateEmbeddingService(context.Background(), &domain.EmbeddingSettings{
			Provider: domain.AIProviderOllama,
			BaseURL:  url,
		})
		if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
			t.Errorf("error = %v, want ErrEmbeddingUnavailable", err)
		}
	})
}
