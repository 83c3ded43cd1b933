package navigation

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAMountPoint is returned when an element lacks the mount declaration.
	ErrNotAMountPoint = errors.New("element is not a context navigation mount point")
	// ErrInvalidMount is returned when a mount declaration is malformed.
	ErrInvalidMount = errors.New("invalid mount declaration")
	// ErrMissingIdentity signals a node fragment without a document id.
	ErrMissingIdentity = errors.New("node fragment has no document id")
	// ErrMissingContextItem signals a node fragment without its context list item.
	ErrMissingContextItem = errors.New("node fragment has no context list item")
	// ErrFetch wraps transport and decode failures of a context request.
	ErrFetch = errors.New("context request failed")
	// ErrUnexpectedStatus is wrapped by ErrFetch for non-200 responses.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

// IntegrityError reports which element of a response batch is malformed.
type IntegrityError struct {
	Index int
	Err   error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("response batch element %d: %v", e.Index, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

func invalidMount(field string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidMount, field, fmt.Sprintf(format, args...))
}
