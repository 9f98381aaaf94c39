package expr

import "errors"

var (
	// ErrCannotAddToNestedField is returned when ADD targets a nested
	// document path; DynamoDB only supports ADD on top-level attributes.
	ErrCannotAddToNestedField = errors.New("expr: ADD only works on top-level attributes")

	// ErrCannotDeleteFromNestedField is the DELETE counterpart.
	ErrCannotDeleteFromNestedField = errors.New("expr: DELETE only works on top-level attributes")

	// ErrInvalidOperandCount is returned when IN is given no values or
	// more than the 100 DynamoDB allows.
	ErrInvalidOperandCount = errors.New("expr: IN requires between 1 and 100 operands")

	errEmptySubstring = errors.New("expr: begins_with substring may not be empty")
)
