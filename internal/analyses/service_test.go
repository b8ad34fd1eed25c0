package analyses

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"clarify-backend/internal/chunks"
	"clarify-backend/internal/documents"
	"clarify-backend/internal/domains"
	"clarify-backend/internal/queue"
)

type memoryObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{objects: make(map[string][]byte)}
}

func (s *memoryObjectStore) Save(ctx context.Context, analysisID, fileName string, r io.Reader) (string, int64, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, "", err
	}
	key := analysisID + "/" + fileName
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return key, int64(len(data)), "application/pdf", nil
}

func (s *memoryObjectStore) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	s.mu.Lock()
	data, ok := s.objects[storageKey]
	s.mu.Unlock()
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

type recordingQueue struct {
	mu       sync.Mutex
	messages []queue.Message
}

func (q *recordingQueue) Send(ctx context.Context, msg queue.Message) error {
	q.mu.Lock()
	q.messages = append(q.messages, msg)
	q.mu.Unlock()
	return nil
}

func (q *recordingQueue) sent() []queue.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Message(nil), q.messages...)
}

func newTestService() (*Service, *recordingQueue) {
	q := &recordingQueue{}
	return &Service{
		Repo:      NewMemoryRepo(),
		Docs:      documents.NewMemoryRepo(),
		ChunkRepo: chunks.NewMemoryRepo(),
		Store:     newMemoryObjectStore(),
		Queue:     q,
	}, q
}

func TestSubmitCreatesPendingAnalysisAndEnqueuesStart(t *testing.T) {
	svc, q := newTestService()

	files := []UploadFile{
		{FileName: "lease.pdf", Reader: strings.NewReader("%PDF-1.4 lease")},
		{FileName: "addendum.pdf", Reader: strings.NewReader("%PDF-1.4 addendum")},
	}
	analysis, err := svc.Submit(context.Background(), files, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if analysis.CurrentStep != StepPending {
		t.Fatalf("step = %s, want pending", analysis.CurrentStep)
	}
	if analysis.Language != "en" {
		t.Fatalf("language = %q, want en", analysis.Language)
	}

	docs, err := svc.Docs.ListByAnalysis(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("ListByAnalysis: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("documents = %d, want 2", len(docs))
	}
	if docs[0].FileName != "lease.pdf" || docs[0].Position != 0 {
		t.Fatalf("first document = %+v", docs[0])
	}

	msgs := q.sent()
	if len(msgs) != 1 || msgs[0].Signal != queue.SignalStart || msgs[0].AnalysisID != analysis.ID {
		t.Fatalf("queue messages = %+v", msgs)
	}
	if _, err := time.Parse(time.RFC3339, msgs[0].EnqueuedAt); err != nil {
		t.Fatalf("enqueuedAt %q is not RFC3339: %v", msgs[0].EnqueuedAt, err)
	}
}

func TestSubmitRejectsNonPDF(t *testing.T) {
	svc, q := newTestService()

	_, err := svc.Submit(context.Background(), []UploadFile{
		{FileName: "resume.docx", Reader: strings.NewReader("docx")},
	}, "en")
	if !errors.Is(err, ErrUnsupportedFileType) {
		t.Fatalf("err = %v, want ErrUnsupportedFileType", err)
	}
	if len(q.sent()) != 0 {
		t.Fatal("nothing should be enqueued on validation failure")
	}
}

func TestSubmitRejectsEmptyAndTooMany(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.Submit(context.Background(), nil, ""); !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("err = %v, want ErrNoDocuments", err)
	}

	files := make([]UploadFile, maxDocumentsPerAnalysis+1)
	for i := range files {
		files[i] = UploadFile{FileName: "a.pdf", Reader: strings.NewReader("%PDF")}
	}
	if _, err := svc.Submit(context.Background(), files, ""); !errors.Is(err, ErrTooManyDocuments) {
		t.Fatalf("err = %v, want ErrTooManyDocuments", err)
	}
}

func TestSubmitWithoutQueueFails(t *testing.T) {
	svc, _ := newTestService()
	svc.Queue = nil

	_, err := svc.Submit(context.Background(), []UploadFile{
		{FileName: "lease.pdf", Reader: strings.NewReader("%PDF")},
	}, "")
	if !errors.Is(err, ErrJobQueueNotConfigured) {
		t.Fatalf("err = %v, want ErrJobQueueNotConfigured", err)
	}
}

func pauseAtIntent(t *testing.T, svc *Service, domain string) Analysis {
	t.Helper()
	analysis, err := svc.Submit(context.Background(), []UploadFile{
		{FileName: "doc.pdf", Reader: strings.NewReader("%PDF")},
	}, "en")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	analysis.Domain = domain
	analysis.DomainConfidence = 0.9
	analysis.CurrentStep = StepAwaitingIntent
	if err := svc.Repo.Save(context.Background(), analysis); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return analysis
}

func TestIntentOptionsForSupportedDomain(t *testing.T) {
	svc, _ := newTestService()
	analysis := pauseAtIntent(t, svc, "rental")

	choices, err := svc.IntentOptions(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("IntentOptions: %v", err)
	}
	if !choices.Supported || choices.Domain != "rental" {
		t.Fatalf("choices = %+v", choices)
	}
	var hasTenant, hasOther bool
	for _, opt := range choices.Intents {
		if opt.ID == "tenant" {
			hasTenant = true
		}
		if opt.ID == domains.IntentOther {
			hasOther = true
		}
	}
	if !hasTenant || !hasOther {
		t.Fatalf("intents = %+v", choices.Intents)
	}
}

func TestIntentOptionsForUnsupportedDomainListsTaxonomy(t *testing.T) {
	svc, _ := newTestService()
	analysis := pauseAtIntent(t, svc, domains.Unsupported)

	choices, err := svc.IntentOptions(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("IntentOptions: %v", err)
	}
	if choices.Supported {
		t.Fatal("unsupported detection must not report supported")
	}
	if len(choices.Domains) == 0 {
		t.Fatal("expected full domain list for manual selection")
	}
}

func TestIntentOptionsRequiresPause(t *testing.T) {
	svc, _ := newTestService()
	analysis, err := svc.Submit(context.Background(), []UploadFile{
		{FileName: "doc.pdf", Reader: strings.NewReader("%PDF")},
	}, "en")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.IntentOptions(context.Background(), analysis.ID); !errors.Is(err, ErrNotAwaitingIntent) {
		t.Fatalf("err = %v, want ErrNotAwaitingIntent", err)
	}
}

func TestSubmitIntentResumesPipeline(t *testing.T) {
	svc, q := newTestService()
	analysis := pauseAtIntent(t, svc, "rental")

	updated, err := svc.SubmitIntent(context.Background(), analysis.ID, "", "tenant", "")
	if err != nil {
		t.Fatalf("SubmitIntent: %v", err)
	}
	if updated.CurrentStep != StepAnalyzing || updated.SelectedIntent != "tenant" {
		t.Fatalf("updated = %+v", updated)
	}

	msgs := q.sent()
	last := msgs[len(msgs)-1]
	if last.Signal != queue.SignalResume || last.AnalysisID != analysis.ID {
		t.Fatalf("last message = %+v", last)
	}
}

func TestSubmitIntentTwiceConflictsInsteadOfOverwriting(t *testing.T) {
	svc, q := newTestService()
	analysis := pauseAtIntent(t, svc, "rental")

	if _, err := svc.SubmitIntent(context.Background(), analysis.ID, "", "tenant", ""); err != nil {
		t.Fatalf("first SubmitIntent: %v", err)
	}
	if _, err := svc.SubmitIntent(context.Background(), analysis.ID, "", "landlord", ""); !errors.Is(err, ErrNotAwaitingIntent) {
		t.Fatalf("second SubmitIntent err = %v, want ErrNotAwaitingIntent", err)
	}

	current, err := svc.Get(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if current.SelectedIntent != "tenant" {
		t.Fatalf("selected intent = %q, first selection must win", current.SelectedIntent)
	}
	var resumes int
	for _, msg := range q.sent() {
		if msg.Signal == queue.SignalResume {
			resumes++
		}
	}
	if resumes != 1 {
		t.Fatalf("resume signals = %d, want exactly 1", resumes)
	}
}

func TestSubmitIntentInvalidLeavesStateUnchanged(t *testing.T) {
	svc, _ := newTestService()
	analysis := pauseAtIntent(t, svc, "rental")

	if _, err := svc.SubmitIntent(context.Background(), analysis.ID, "", "landowner", ""); !errors.Is(err, domains.ErrInvalidIntent) {
		t.Fatalf("err = %v, want ErrInvalidIntent", err)
	}
	if _, err := svc.SubmitIntent(context.Background(), analysis.ID, "", domains.IntentOther, ""); !errors.Is(err, domains.ErrMissingCustomIntent) {
		t.Fatalf("err = %v, want ErrMissingCustomIntent", err)
	}

	current, err := svc.Get(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if current.CurrentStep != StepAwaitingIntent {
		t.Fatalf("step = %s, want awaiting_intent after rejected intent", current.CurrentStep)
	}
}

func TestSubmitIntentSelectsDomainForUnsupported(t *testing.T) {
	svc, _ := newTestService()
	analysis := pauseAtIntent(t, svc, domains.Unsupported)

	updated, err := svc.SubmitIntent(context.Background(), analysis.ID, "employment", "employee", "")
	if err != nil {
		t.Fatalf("SubmitIntent: %v", err)
	}
	if updated.Domain != "employment" || updated.SelectedIntent != "employee" {
		t.Fatalf("updated = %+v", updated)
	}
}

func TestCancelWhilePausedGoesStraightToCancelled(t *testing.T) {
	svc, _ := newTestService()
	analysis := pauseAtIntent(t, svc, "rental")

	cancelled, err := svc.Cancel(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.CurrentStep != StepCancelled {
		t.Fatalf("step = %s, want cancelled", cancelled.CurrentStep)
	}
	if _, err := svc.Cancel(context.Background(), analysis.ID); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("second cancel err = %v, want ErrAlreadyTerminal", err)
	}
}

func TestCancelDuringProcessingOnlySetsFlag(t *testing.T) {
	svc, _ := newTestService()
	analysis, err := svc.Submit(context.Background(), []UploadFile{
		{FileName: "doc.pdf", Reader: strings.NewReader("%PDF")},
	}, "en")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	analysis.CurrentStep = StepIndexing
	if err := svc.Repo.Save(context.Background(), analysis); err != nil {
		t.Fatalf("Save: %v", err)
	}

	updated, err := svc.Cancel(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if updated.CurrentStep != StepIndexing {
		t.Fatalf("step = %s, want indexing until the worker observes the flag", updated.CurrentStep)
	}
	if !updated.CancelRequested {
		t.Fatal("cancel_requested must be set")
	}
}

func TestFindingLookup(t *testing.T) {
	svc, _ := newTestService()
	analysis := pauseAtIntent(t, svc, "rental")
	analysis.RedFlags = []RedFlag{{ID: "rf_1", Title: "Unlimited late fees", Severity: "high"}}
	analysis.CurrentStep = StepComplete
	if err := svc.Repo.Save(context.Background(), analysis); err != nil {
		t.Fatalf("Save: %v", err)
	}

	flag, err := svc.Finding(context.Background(), analysis.ID, "rf_1")
	if err != nil {
		t.Fatalf("Finding: %v", err)
	}
	if flag.Title != "Unlimited late fees" {
		t.Fatalf("flag = %+v", flag)
	}
	if _, err := svc.Finding(context.Background(), analysis.ID, "rf_404"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteRemovesDerivedData(t *testing.T) {
	svc, _ := newTestService()
	analysis := pauseAtIntent(t, svc, "rental")

	if err := svc.ChunkRepo.Insert(context.Background(), []chunks.Chunk{{
		ID: "c1", AnalysisID: analysis.ID, DocumentName: "doc.pdf", Content: "clause",
	}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := svc.Delete(context.Background(), analysis.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), analysis.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	docs, err := svc.Docs.ListByAnalysis(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("ListByAnalysis: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("documents remain after delete: %+v", docs)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	svc, _ := newTestService()
	first := pauseAtIntent(t, svc, "rental")
	second := pauseAtIntent(t, svc, "employment")

	list, err := svc.History(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	// Both may share a creation timestamp in-memory; accept either order but
	// both must be present.
	ids := map[string]bool{list[0].ID: true, list[1].ID: true}
	if !ids[first.ID] || !ids[second.ID] {
		t.Fatalf("history = %+v", list)
	}
}
