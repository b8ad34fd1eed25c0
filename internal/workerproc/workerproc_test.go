package workerproc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"clarify-backend/internal/queue"
)

type stubProcessor struct {
	runs []string
	err  error
}

func (p *stubProcessor) Run(ctx context.Context, analysisID string) error {
	p.runs = append(p.runs, analysisID)
	return p.err
}

func validBody(t *testing.T) string {
	t.Helper()
	body, err := json.Marshal(queue.Message{
		AnalysisID: "an-1",
		Signal:     queue.SignalStart,
		RequestID:  "req-1",
		Version:    1,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(body)
}

func TestHandleMessageRunsPipeline(t *testing.T) {
	p := &stubProcessor{}
	if err := HandleMessage(context.Background(), p, validBody(t)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(p.runs) != 1 || p.runs[0] != "an-1" {
		t.Fatalf("runs = %v", p.runs)
	}
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	p := &stubProcessor{}

	err := HandleMessage(context.Background(), p, "")
	var empty ErrEmptyBody
	if !errors.As(err, &empty) {
		t.Fatalf("err = %v, want ErrEmptyBody", err)
	}

	err = HandleMessage(context.Background(), p, "{not json")
	var decode ErrDecode
	if !errors.As(err, &decode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}

	err = HandleMessage(context.Background(), p, `{"signal":"start"}`)
	var missing ErrMissingAnalysisID
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want ErrMissingAnalysisID", err)
	}

	if len(p.runs) != 0 {
		t.Fatalf("pipeline ran for invalid payloads: %v", p.runs)
	}
}

func TestHandleMessageWrapsProcessFailure(t *testing.T) {
	cause := errors.New("stage blew up")
	p := &stubProcessor{err: cause}

	err := HandleMessage(context.Background(), p, validBody(t))
	var proc ErrProcess
	if !errors.As(err, &proc) {
		t.Fatalf("err = %v, want ErrProcess", err)
	}
	if proc.AnalysisID != "an-1" || proc.RequestID != "req-1" {
		t.Fatalf("proc = %+v", proc)
	}
	if !errors.Is(err, cause) {
		t.Fatal("ErrProcess must unwrap to the cause")
	}
}

func TestComputeMeta(t *testing.T) {
	meta := ComputeMeta("hello")
	if meta.BodyLen != 5 || meta.BodySHA == "" {
		t.Fatalf("meta = %+v", meta)
	}
	if (ComputeMeta("") != MessageMeta{}) {
		t.Fatal("empty body should produce zero meta")
	}
}
