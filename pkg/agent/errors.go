package agent

import "errors"

// Structural ingestion failures. These abort exactly one message's task and
// surface through RUN_ENDED{error}; they never crash the host process.
var (
	ErrSelfMessage = errors.New("message is from the agent itself")
	ErrMissingID   = errors.New("message lacks a platform message id")
)
