// internal/app/system/savewriter/errors.go
package savewriter

import "fmt"

// RemoteIOError reports a failed read, write or subscription against the
// remote document store.
type RemoteIOError struct {
	Op         string // read, write, subscribe
	Collection string
	DocumentID string
	Err        error
}

func (e *RemoteIOError) Error() string {
	return fmt.Sprintf("remote %s %s/%s: %v", e.Op, e.Collection, e.DocumentID, e.Err)
}

func (e *RemoteIOError) Unwrap() error { return e.Err }
