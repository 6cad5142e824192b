package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/saccharis/SACCHARIS-2/internal/catalog"
	"github.com/saccharis/SACCHARIS-2/internal/fetch"
	"github.com/saccharis/SACCHARIS-2/internal/merge"
	"github.com/saccharis/SACCHARIS-2/internal/ncbi"
)

// InsufficientDataError reports a stage that left too few records to build a tree.
type InsufficientDataError struct {
	Group   string
	Stage   string
	Records int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: only %d sequence(s) left after %s, at least 2 are needed to build a tree",
		e.Group, e.Records, e.Stage)
}

// ToolError reports an external program that failed.
type ToolError struct {
	Stage    string
	Command  string
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %s failed", e.Stage, e.Command)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" with exit code %d", e.ExitCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if tail := strings.TrimSpace(e.Stderr); tail != "" {
		msg += "\n" + tail
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

// StageError attributes a failure to a stage of a group.
type StageError struct {
	Group string
	Stage string
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s stage failed: %v", e.Group, e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// Hint returns a corrective action for err, or "" when there is none.
func Hint(err error) string {
	var (
		transport    *fetch.TransportError
		service      *fetch.ServiceError
		format       *catalog.FormatError
		family       *catalog.FamilyError
		batch        *ncbi.BatchError
		collision    *merge.IdentityCollisionError
		identity     *merge.IdentityError
		insufficient *InsufficientDataError
		tool         *ToolError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return "the run was interrupted; rerun the same command to resume from the last finished stage"
	case errors.As(err, &transport):
		return "check your network connection and DNS configuration"
	case errors.As(err, &service):
		return "the remote site may be down or overloaded; try again later"
	case errors.As(err, &format):
		return "the catalog layout may have changed or a cached file is damaged; rerun with --fresh and report the problem if it persists"
	case errors.As(err, &family):
		return "run 'saccharis families' to list valid family names"
	case errors.As(err, &batch):
		return "NCBI is not responding reliably; reduce query_size or retry later"
	case errors.As(err, &collision):
		return "the same id came from two sources; rename or remove the listed records in your files, or drop the genome or gene that repeats them"
	case errors.As(err, &identity):
		return "rerun with --auto-rename to give user sequences local ids"
	case errors.As(err, &insufficient):
		return "widen the domain filter, use a broader mode such as ALL_CAZYMES, or add user sequences"
	case errors.As(err, &tool):
		return "check that the tool is installed and on PATH, or fix its template in the settings file"
	}
	return ""
}
