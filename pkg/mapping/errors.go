package mapping

import (
	"errors"
	"fmt"
)

// MappingError reports a record that cannot be transformed, naming the
// offending attribute.
type MappingError struct {
	Entity  string
	Key     string
	Message string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping error for %s.%s: %s", e.Entity, e.Key, e.Message)
}

// IsMappingError reports whether err is a MappingError.
func IsMappingError(err error) bool {
	var mappingErr *MappingError
	return errors.As(err, &mappingErr)
}
