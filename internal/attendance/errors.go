package attendance

import (
	"errors"
	"fmt"
)

var (
	ErrMissingParam      = errors.New("missing required parameter")
	ErrInvalidRegType    = errors.New("invalid registration type")
	ErrUnknownDevice     = errors.New("RFID not mapped")
	ErrUnknownStudent    = errors.New("student not found")
	ErrEventNotFound     = errors.New("event not found")
	ErrAlreadyRegistered = errors.New("already registered")

	// ErrDataIntegrity marks faults caused by rows that reference missing or duplicated
	// entities. It is joined with the user-facing error, never returned alone to callers
	// that need a not-found signal.
	ErrDataIntegrity = errors.New("data integrity fault")
)

// AlreadyRegisteredError carries the category of the existing registration.
type AlreadyRegisteredError struct {
	Existing Registration
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("already registered as %s", e.Existing.Type)
}

func (e *AlreadyRegisteredError) Is(target error) bool {
	return target == ErrAlreadyRegistered
}

func integrityFault(visible error, format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", visible, ErrDataIntegrity, fmt.Sprintf(format, args...))
}
