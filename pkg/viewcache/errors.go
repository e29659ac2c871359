package viewcache

import (
	"fmt"

	"github.com/illmade-knight/go-usercache/pkg/docstore"
)

// ErrNotFound is re-exported from docstore so callers of the read path only
// need to check one sentinel. A missing record is a normal outcome.
var ErrNotFound = docstore.ErrNotFound

// ValidationError reports a malformed caller input, such as a non-positive
// page number. It is surfaced to the caller and never retried.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
