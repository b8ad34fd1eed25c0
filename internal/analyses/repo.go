package analyses

import "context"

// Repo defines persistence operations for analyses. The persisted record is
// the single source of truth for pipeline progress; Save writes the whole
// pipeline-owned snapshot atomically.
type Repo interface {
	Create(ctx context.Context, analysis Analysis) error
	GetByID(ctx context.Context, analysisID string) (Analysis, error)
	Save(ctx context.Context, analysis Analysis) error
	// BeginAnalysis records the user's goal and moves the analysis from
	// awaiting_intent to analyzing in one conditional write. It returns
	// ErrNotAwaitingIntent when the analysis is no longer paused, so a
	// concurrent intent submission surfaces as a conflict instead of
	// overwriting the first selection.
	BeginAnalysis(ctx context.Context, analysisID, domain, intent, customIntent string) error
	List(ctx context.Context, limit, offset int) ([]Analysis, error)
	Delete(ctx context.Context, analysisID string) error
	RequestCancel(ctx context.Context, analysisID string) error
}
