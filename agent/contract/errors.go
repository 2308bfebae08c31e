package contract

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrValidation      = errors.New("validation failed")
	ErrToolNotFound    = errors.New("tool not found")
	ErrContactNotFound = errors.New("contact not found")
)

// ConflictError is the scheduling backend's answer when the requested slot
// is taken. It is a branch in the booking flow, not a failure: the caller
// surfaces the alternatives and may reissue with Force set.
type ConflictError struct {
	Date         string `json:"date"`
	Time         string `json:"time"`
	Alternatives []Slot `json:"alternatives,omitempty"`
}

func (e *ConflictError) Error() string {
	if len(e.Alternatives) == 0 {
		return fmt.Sprintf("slot %s %s is already booked", e.Date, e.Time)
	}
	alts := make([]string, 0, len(e.Alternatives))
	for _, s := range e.Alternatives {
		alts = append(alts, s.Date+" "+s.Time)
	}
	return fmt.Sprintf("slot %s %s is already booked; nearest: %s", e.Date, e.Time, strings.Join(alts, ", "))
}

// AsConflict unwraps a ConflictError from an error chain.
func AsConflict(err error) (*ConflictError, bool) {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}
