package provenance

import (
	"errors"
	"fmt"
)

// StoreError reports a provenance operation failure.
type StoreError struct {
	Op      string
	Message string
	Err     error
	Context string
}

func (e *StoreError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("provenance %s error: %s (%s)", e.Op, e.Message, e.Context)
	}
	return fmt.Sprintf("provenance %s error: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err is a StoreError.
func IsStoreError(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr)
}
