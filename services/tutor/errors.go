package tutor

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrEmptyTranscript = errors.New("conversation has no history to evaluate")
	ErrUpstreamModel   = errors.New("language model call failed")
	ErrParseFailure    = errors.New("evaluation text does not match the rubric format")
	ErrInvalidSession  = errors.New("invalid session options")
	ErrStaleSnapshot   = errors.New("snapshot is older than the stored revision")
)
