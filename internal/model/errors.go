package model

import (
	"errors"
	"fmt"
)

// ValidationError is a user-correctable failure: a missing or malformed
// field, a schedule conflict, an ineligible tariff. Public operations
// return it as a value; it never aborts the process.
type ValidationError struct {
	Field      string
	Message    string
	BlockIndex *int // set by batch operations to point at the failing block
}

func (e *ValidationError) Error() string {
	if e.BlockIndex != nil {
		return fmt.Sprintf("%s (block %d): %s", e.Field, *e.BlockIndex, e.Message)
	}
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NewValidation builds a ValidationError for a field.
func NewValidation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// AtBlock returns a copy annotated with the failing batch block index.
func (e *ValidationError) AtBlock(i int) *ValidationError {
	return &ValidationError{Field: e.Field, Message: e.Message, BlockIndex: &i}
}

// AsValidation unwraps err into a ValidationError if it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// NotFoundError marks a referenced entity id that does not exist.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// NewNotFound builds a NotFoundError.
func NewNotFound(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// AsNotFound unwraps err into a NotFoundError if it is one.
func AsNotFound(err error) (*NotFoundError, bool) {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf, true
	}
	return nil, false
}

// InvariantViolation signals corrupted state that validated writes should
// have made impossible: negative balances, stored interval overlaps and
// the like. Callers are expected to fail loudly on it.
type InvariantViolation struct {
	Msg string
}

func (e *InvariantViolation) Error() string { return "invariant violation: " + e.Msg }

// Invariant builds an InvariantViolation.
func Invariant(format string, args ...any) *InvariantViolation {
	return &InvariantViolation{Msg: fmt.Sprintf(format, args...)}
}
