package command

import (
	"errors"
	"fmt"
)

// ErrUnknownCommandType means no executor is registered for the envelope's type
var ErrUnknownCommandType = errors.New("unknown command type")

// ValidationError reports a structurally or semantically invalid command.
// It is recoverable: the caller fixes the command and resubmits.
type ValidationError struct {
	Command string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid command %s: %s", e.Command, e.Reason)
}

// DuplicateCommandError reports an idempotency hit: events already exist for
// the (correlation key, application key) pair. It carries the original
// aggregate key so the caller can treat the resubmission as a safe no-op.
type DuplicateCommandError struct {
	CorrelationKey string
	ApplicationKey string
	AggregateKey   string
}

func (e *DuplicateCommandError) Error() string {
	return fmt.Sprintf("duplicate command: correlation %s already processed for aggregate %s", e.CorrelationKey, e.AggregateKey)
}

// ExecutionError wraps an unexpected domain failure while executing a command.
// The pipeline does not retry it.
type ExecutionError struct {
	Command string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("command %s execution failed: %v", e.Command, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
