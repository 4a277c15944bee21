package services

import "errors"

// Suggestion pipeline errors. Steps wrap these so callers can use errors.Is.
var (
	// ErrRateLimited is a deferral, not a failure: the caller should retry after the wait time
	ErrRateLimited = errors.New("suggestion generation rate limited")

	ErrRetrievalFailed       = errors.New("context retrieval failed")
	ErrGenerationFailed      = errors.New("candidate generation failed")
	ErrScoringFailed         = errors.New("utility scoring failed")
	ErrPersistenceFailed     = errors.New("suggestion persistence failed")
	ErrMalformedModelOutput  = errors.New("malformed model output")
	ErrPropositionNotFound   = errors.New("proposition not found")
	ErrEngineStopped         = errors.New("suggestion engine is not running")
	ErrNoBundles             = errors.New("no fact has related inferences to bundle")
	ErrCompletionUnavailable = errors.New("completion service unavailable")
)
