package bookings

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"courierdesk/access"
)

var (
	// ErrNotFound covers both missing bookings and bookings the caller may not see.
	ErrNotFound  = errors.New("booking not found")
	ErrForbidden = access.ErrForbidden
	// ErrConflict means concurrent writers kept winning the compare-and-swap.
	ErrConflict = errors.New("booking was modified concurrently, try again")
	// ErrPersistence wraps storage failures. Callers may retry.
	ErrPersistence = errors.New("booking storage unavailable")
)

func persistenceErr(err error) error {
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

// ValidationError lists problems with caller input, keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) add(field, problem string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = problem
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " " + e.Fields[k]
	}
	return "invalid booking: " + strings.Join(parts, "; ")
}

// TransitionError is returned for a status change outside the transition table.
type TransitionError struct {
	BookingID string
	From, To  string
}

func (e *TransitionError) Error() string {
	if IsTerminal(e.From) {
		return fmt.Sprintf("booking %s is %s and can no longer change", e.BookingID, e.From)
	}
	return fmt.Sprintf("booking %s: invalid transition from %s to %s", e.BookingID, e.From, e.To)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsTransition(err error) bool {
	var t *TransitionError
	return errors.As(err, &t)
}
