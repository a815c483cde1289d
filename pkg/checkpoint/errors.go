package checkpoint

import "fmt"

// StoreError reports a checkpoint persistence failure.
type StoreError struct {
	Op        string
	Component string
	Path      string
	Err       error
}

func (e *StoreError) Error() string {
	switch {
	case e.Component != "":
		return fmt.Sprintf("checkpoint %s error for %s: %v", e.Op, e.Component, e.Err)
	case e.Path != "":
		return fmt.Sprintf("checkpoint %s error at %s: %v", e.Op, e.Path, e.Err)
	default:
		return fmt.Sprintf("checkpoint %s error: %v", e.Op, e.Err)
	}
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
