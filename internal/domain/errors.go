package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports caller input the cart refuses to apply.
// State is never changed when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ArithmeticError is returned when a monetary amount cannot be represented.
type ArithmeticError struct {
	Op     string
	Reason string
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("arithmetic %s: %s", e.Op, e.Reason)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsArithmetic(err error) bool {
	var a *ArithmeticError
	return errors.As(err, &a)
}
