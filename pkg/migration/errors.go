package migration

import (
	"errors"
	"fmt"
)

// ComponentError reports a failure inside one component, carrying the batch
// index when the failure is batch-scoped.
type ComponentError struct {
	Component string
	Batch     int
	Message   string
	Err       error
}

func (e *ComponentError) Error() string {
	if e.Batch >= 0 {
		return fmt.Sprintf("component %s batch %d: %s", e.Component, e.Batch, e.Message)
	}
	return fmt.Sprintf("component %s: %s", e.Component, e.Message)
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}

// ErrMappingMissing signals that a transformation component cannot run
// because the work-package mapping file does not exist yet.
var ErrMappingMissing = errors.New("work package mapping missing, run work_packages_skeleton first")
