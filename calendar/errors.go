package calendar

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies adapter failures for the HTTP boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindStoreOperation
	KindCalendarNotFound
	KindPermissionDenied
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindStoreOperation:
		return "store_operation_failed"
	case KindCalendarNotFound:
		return "calendar_not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is the error type returned by every Calendar operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind carried by err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func validationError(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// storeError keeps the store's own message so callers see what the store said.
func storeError(err error) error {
	return &Error{Kind: KindStoreOperation, Message: err.Error(), Err: err}
}

// MissingParameter reports an absent required request parameter.
func MissingParameter(names ...string) error {
	if len(names) == 1 {
		return validationError("Missing required parameter: %s", names[0])
	}
	return validationError("Missing required parameters: %s", strings.Join(names, ", "))
}

// MissingField reports absent required body fields.
func MissingField(names ...string) error {
	if len(names) == 1 {
		return validationError("Missing required field: %s", names[0])
	}
	return validationError("Missing required fields: %s", strings.Join(names, ", "))
}

// Invalid reports a malformed request value.
func Invalid(format string, args ...any) error {
	return validationError(format, args...)
}
