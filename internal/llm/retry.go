package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"clarify-backend/internal/shared/telemetry"
)

const retryBaseDelay = 300 * time.Millisecond

type retryingGenerator struct {
	base       Generator
	attempts   int
	analysisID string
}

// NewRetrying wraps a Generator with transient-failure retries. Schema
// mismatches are not retried here; they carry repair semantics handled by the
// caller.
func NewRetrying(base Generator, attempts int, analysisID string) Generator {
	if base == nil {
		return nil
	}
	if attempts < 0 {
		attempts = 0
	}
	return retryingGenerator{base: base, attempts: attempts, analysisID: analysisID}
}

func (r retryingGenerator) Generate(ctx context.Context, input GenerateInput) (json.RawMessage, error) {
	resp, err := r.base.Generate(ctx, input)
	for attempt := 1; err != nil && attempt <= r.attempts && shouldRetry(err); attempt++ {
		telemetry.Warn("llm retry", map[string]any{
			"attempt":     attempt,
			"analysis_id": r.analysisID,
			"schema":      input.SchemaName,
			"error":       err.Error(),
		})
		select {
		case <-time.After(retryBaseDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		resp, err = r.base.Generate(ctx, input)
	}
	return resp, err
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if IsSchemaError(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "server_error") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "status 429") {
		return true
	}
	if strings.Contains(msg, "timeout") && (strings.Contains(msg, "openai") || strings.Contains(msg, "llm") || strings.Contains(msg, "client.timeout")) {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}

	return false
}
