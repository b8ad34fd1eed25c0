package analyses

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoCreate(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO analyses").
		WithArgs("an-1", []byte(`["lease.pdf"]`), "en", "pending", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := &PGRepo{DB: db}
	analysis := Analysis{
		ID:            "an-1",
		DocumentNames: []string{"lease.pdf"},
		Language:      "en",
		CurrentStep:   StepPending,
	}
	if err := repo.Create(context.Background(), analysis); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoGetByID(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	createdAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "document_names", "language", "domain", "domain_confidence", "domain_reasoning",
		"selected_intent", "custom_intent", "current_step", "overall_score", "score_components",
		"document_summary", "executive_summary", "overall_assessment",
		"key_terms", "main_obligations", "red_flags", "positive_notes", "warnings",
		"cancel_requested", "error_message", "created_at", "updated_at", "completed_at",
	}).AddRow(
		"an-1", []byte(`["lease.pdf"]`), "en", "rental", 0.92, "mentions landlord and tenant",
		"tenant", "", "complete", 74, []byte(`{"red_flag":70,"completeness":80,"clarity":80,"fairness":64}`),
		"A residential lease.", "Overall a standard lease.", "Mostly fair terms.",
		[]byte(`[{"term":"Security deposit","explanation":"Money held by the landlord"}]`),
		[]byte(`["Pay rent by the 1st"]`), []byte(`[]`), []byte(`["Standard notice period"]`), []byte(`[]`),
		false, nil, createdAt, createdAt, createdAt,
	)
	mock.ExpectQuery("SELECT(.|\n)+FROM analyses WHERE id").
		WithArgs("an-1").
		WillReturnRows(rows)

	repo := &PGRepo{DB: db}
	analysis, err := repo.GetByID(context.Background(), "an-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if analysis.Domain != "rental" || analysis.CurrentStep != StepComplete {
		t.Fatalf("unexpected analysis: %+v", analysis)
	}
	if analysis.OverallScore == nil || *analysis.OverallScore != 74 {
		t.Fatalf("overall score = %v, want 74", analysis.OverallScore)
	}
	if analysis.ScoreComponents == nil || analysis.ScoreComponents.Fairness != 64 {
		t.Fatalf("score components = %+v", analysis.ScoreComponents)
	}
	if len(analysis.KeyTerms) != 1 || analysis.KeyTerms[0].Term != "Security deposit" {
		t.Fatalf("key terms = %+v", analysis.KeyTerms)
	}
	if analysis.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT(.|\n)+FROM analyses WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := &PGRepo{DB: db}
	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPGRepoSaveMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE analyses SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := &PGRepo{DB: db}
	if err := repo.Save(context.Background(), Analysis{ID: "missing", CurrentStep: StepScoring}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPGRepoBeginAnalysisConditional(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE analyses SET(.|\n)+current_step = \\$7").
		WithArgs("an-1", "rental", "tenant", "", "analyzing", sqlmock.AnyArg(), "awaiting_intent").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE analyses SET(.|\n)+current_step = \\$7").
		WithArgs("an-1", "rental", "landlord", "", "analyzing", sqlmock.AnyArg(), "awaiting_intent").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := &PGRepo{DB: db}
	if err := repo.BeginAnalysis(context.Background(), "an-1", "rental", "tenant", ""); err != nil {
		t.Fatalf("BeginAnalysis: %v", err)
	}
	// The row already moved on; the second submission loses the race.
	if err := repo.BeginAnalysis(context.Background(), "an-1", "rental", "landlord", ""); !errors.Is(err, ErrNotAwaitingIntent) {
		t.Fatalf("err = %v, want ErrNotAwaitingIntent", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoRequestCancel(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE analyses SET cancel_requested = TRUE").
		WithArgs("an-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := &PGRepo{DB: db}
	if err := repo.RequestCancel(context.Background(), "an-1"); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
