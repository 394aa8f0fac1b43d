// Package embedding holds helpers shared by the embedding provider adapters.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/insightpocket/insight-rag/internal/core/domain"
)

// StatusError classifies a non-2xx provider response.
// code is the provider's machine-readable error code or type, if any.
func StatusError(op string, status int, code, message string) error {
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = http.StatusText(status)
	}
	detail := fmt.Errorf("status %d: %s", status, msg)

	switch {
	case code == "insufficient_quota":
		return domain.NewFatalError(op, fmt.Errorf("%w: %w", domain.ErrQuotaExceeded, detail))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewFatalError(op, fmt.Errorf("%w: %w", domain.ErrAuthInvalid, detail))
	case status == http.StatusTooManyRequests:
		return domain.NewTransientError(op, fmt.Errorf("%w: %w", domain.ErrRateLimited, detail))
	case status == http.StatusRequestTimeout || status >= 500:
		return domain.NewTransientError(op, detail)
	default:
		return domain.NewFatalError(op, detail)
	}
}

// TransportError classifies a request that produced no response.
// Cancellation by the caller is passed through unclassified.
func TransportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return domain.NewTransientError(op, err)
}
