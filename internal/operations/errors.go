package operations

import (
	"errors"
	"fmt"
	"time"

	apperrors "ineqmx/internal/errors"
)

// ErrorKind classifies why a step or operation did not complete.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindDependency   ErrorKind = "dependency"
	KindFailed       ErrorKind = "failed"
	KindTimeout      ErrorKind = "timeout"
	KindCancelled    ErrorKind = "cancelled"
	KindNotFound     ErrorKind = "not_found"
	KindInvalidState ErrorKind = "invalid_state"
)

// StepError is the error a pipeline step ends with. Step is empty for
// errors about the operation as a whole.
type StepError struct {
	Kind      ErrorKind
	Step      string
	Message   string
	DependsOn string
	Cause     error
	Retryable bool
}

func (e *StepError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Step == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("step %s %s: %s", e.Step, e.Kind, msg)
}

func (e *StepError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinels below by kind and message.
func (e *StepError) Is(target error) bool {
	t, ok := target.(*StepError)
	return ok && e.Kind == t.Kind && e.Message == t.Message
}

var (
	ErrOperationNotFound   = &StepError{Kind: KindNotFound, Message: "operation not found"}
	ErrOperationNotRunning = &StepError{Kind: KindInvalidState, Message: "operation is not running"}
	ErrStepStateMissing    = &StepError{Kind: KindInvalidState, Message: "step state not found"}
)

// NewValidationError reports a request or context value a step cannot use.
func NewValidationError(step, message string) *StepError {
	return &StepError{Kind: KindValidation, Step: step, Message: message}
}

// NewDependencyError reports a step whose upstream step or input data is
// missing. dependsOn is empty when only manifest data is missing.
func NewDependencyError(step, dependsOn, message string) *StepError {
	return &StepError{Kind: KindDependency, Step: step, DependsOn: dependsOn, Message: message}
}

// NewTimeoutError reports a step that outlived its configured timeout.
// Timeouts are retried on the next run.
func NewTimeoutError(step string, timeout time.Duration) *StepError {
	return &StepError{
		Kind:      KindTimeout,
		Step:      step,
		Message:   fmt.Sprintf("exceeded timeout of %s", timeout),
		Retryable: true,
	}
}

// NewCancellationError reports a step stopped by the caller.
func NewCancellationError(step string) *StepError {
	return &StepError{Kind: KindCancelled, Step: step, Message: "operation was cancelled"}
}

// NewStepFailure attributes err to step. Errors that already name a step are
// returned as they are.
func NewStepFailure(step string, err error) error {
	if err == nil {
		return nil
	}
	var se *StepError
	if errors.As(err, &se) && se.Step != "" {
		return err
	}
	return &StepError{Kind: KindFailed, Step: step, Message: "step execution failed", Cause: err}
}

// IsRetryable reports whether a failed step is worth another attempt:
// timeouts and network failures from the download and indicators clients.
// Parsing and validation failures are deterministic.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StepError
	if errors.As(err, &se) && se.Retryable {
		return true
	}
	return apperrors.TypeOf(err) == apperrors.ErrTypeNetwork
}

// KindOf returns the kind of the first StepError in err's chain. Other
// errors are KindFailed.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindFailed
}
