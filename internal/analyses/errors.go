package analyses

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrNotAwaitingIntent     = errors.New("analysis is not awaiting intent selection")
	ErrJobQueueNotConfigured = errors.New("job queue not configured")
	ErrAlreadyTerminal       = errors.New("analysis already finished")

	ErrNoDocuments         = errors.New("at least one document is required")
	ErrTooManyDocuments    = errors.New("too many documents")
	ErrUnsupportedFileType = errors.New("unsupported file type")
)

const (
	ErrorCodeValidation        = "VALIDATION_ERROR"
	ErrorCodeUnsupportedDomain = "UNSUPPORTED_DOMAIN"
	ErrorCodeExtraction        = "EXTRACTION_ERROR"
	ErrorCodeLLMTimeout        = "LLM_TIMEOUT"
	ErrorCodeLLMSchemaMismatch = "LLM_SCHEMA_MISMATCH"
	ErrorCodeStorage           = "STORAGE_ERROR"
	ErrorCodeInternal          = "INTERNAL_ERROR"
)
