// Package apperr defines the error taxonomy shared by the group session
// components. Callers classify failures with errors.As / errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the addressed group, resource, event or session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the requester may not perform the operation on this item.
	ErrForbidden = errors.New("operation not permitted")

	// ErrNotMember means the requester is not a member of the group.
	ErrNotMember = errors.New("not a member of this group")

	// ErrConflict means a read-modify-write lost every compare-and-swap
	// attempt against concurrent writers.
	ErrConflict = errors.New("concurrent modification, retries exhausted")
)

// ValidationError is returned before any remote call when an input is
// rejected (oversized attachment, empty required field, malformed date).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// RemoteError wraps a failure of the document store or blob store.
// These are terminal for the attempt; nothing retries them.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Remote wraps err as a RemoteError unless it is nil or already
// classified.
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	var re *RemoteError
	switch {
	case errors.As(err, &ve), errors.As(err, &re),
		errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden), errors.Is(err, ErrNotMember), errors.Is(err, ErrConflict):
		return err
	}
	return &RemoteError{Op: op, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsRemote reports whether err is a RemoteError.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
