package queue

import (
	"context"

	"clarify-backend/internal/shared/telemetry"
)

// Handler processes one queue message.
type Handler func(ctx context.Context, msg Message) error

// MemoryClient runs the handler in a goroutine instead of going through a
// broker. Used for local development and tests.
type MemoryClient struct {
	handler Handler
}

// NewMemoryClient constructs an in-process queue client.
func NewMemoryClient(handler Handler) *MemoryClient {
	return &MemoryClient{handler: handler}
}

// Send dispatches the message to the handler asynchronously, matching the
// decoupled semantics of a real queue.
func (m *MemoryClient) Send(ctx context.Context, msg Message) error {
	if m.handler == nil {
		return nil
	}
	go func() {
		// detach from the request context; the pipeline outlives the request
		if err := m.handler(context.Background(), msg); err != nil {
			telemetry.Error("memory queue handler failed", map[string]any{
				"analysis_id": msg.AnalysisID,
				"signal":      msg.Signal,
				"error":       err.Error(),
			})
		}
	}()
	return nil
}

var _ Client = (*MemoryClient)(nil)
