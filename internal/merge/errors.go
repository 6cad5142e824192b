// Package merge combines catalog, user-supplied and remotely downloaded
// sequences into one working set for a pipeline run.
package merge

import (
	"fmt"
	"strings"
)

// IdentityCollisionError lists ids that appear in more than one source.
type IdentityCollisionError struct {
	IDs []string
}

func (e *IdentityCollisionError) Error() string {
	return fmt.Sprintf("%d sequence id(s) occur in more than one input source: %s",
		len(e.IDs), strings.Join(e.IDs, ", "))
}

// IdentityError reports records whose ids cannot be used and were not renamed.
type IdentityError struct {
	Paths   []string
	Message string
}

func (e *IdentityError) Error() string {
	if len(e.Paths) == 0 {
		return "invalid sequence ids: " + e.Message
	}
	return fmt.Sprintf("invalid sequence ids in %s: %s", strings.Join(e.Paths, ", "), e.Message)
}

// FileError reports a user file that cannot be read or written.
type FileError struct {
	Path    string
	Message string
	Cause   error
}

func (e *FileError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("user file %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("user file %s: %s", e.Path, e.Message)
}

func (e *FileError) Unwrap() error {
	return e.Cause
}
