package remote

import (
	"errors"
	"fmt"
)

// ErrorKind classifies remote-execution failures. Transport and container
// failures are retryable with backoff; script execution and result parsing
// are fatal for the batch.
type ErrorKind string

const (
	KindTransport       ErrorKind = "transport"
	KindContainer       ErrorKind = "container"
	KindConsoleNotReady ErrorKind = "console_not_ready"
	KindScriptExecution ErrorKind = "script_execution"
	KindResultParse     ErrorKind = "result_parse"
	KindTimeout         ErrorKind = "timeout"
)

// Error represents a failure in the remote-execution stack.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
	Context string // command, path, or raw console excerpt
}

func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("remote error (%s) for %s: %s", e.Kind, e.Context, e.Message)
	}
	return fmt.Sprintf("remote error (%s): %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the remote error in err's chain, or "" when
// there is none.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// IsRetryable reports whether the orchestrator may retry the batch with
// backoff after this error.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindContainer, KindTimeout:
		return true
	}
	return false
}
