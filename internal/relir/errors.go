package relir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes plan construction errors.
type ErrorCode string

const (
	// CodeInvalidJoinPredicate: a non-equality operator used as or within a
	// join condition, or an operand that does not bind to exactly one side.
	CodeInvalidJoinPredicate ErrorCode = "INVALID_JOIN_PREDICATE"

	// CodeAmbiguousColumn: a reference matching more than one live column.
	CodeAmbiguousColumn ErrorCode = "AMBIGUOUS_COLUMN_REFERENCE"

	// CodeUndefinedDuplicateColumn: two distinct columns would be emitted
	// under the same name.
	CodeUndefinedDuplicateColumn ErrorCode = "UNDEFINED_DUPLICATE_COLUMN"

	// CodeUnresolvableReference: a reference matching no column.
	CodeUnresolvableReference ErrorCode = "UNRESOLVABLE_REFERENCE"

	// CodeTypeMismatch: an expression whose operand types do not fit.
	CodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// CodeInvalidPlan: a structurally invalid node (nil input, bad option).
	CodeInvalidPlan ErrorCode = "INVALID_PLAN"
)

// Sentinels for errors.Is. A *PlanError matches the sentinel of its code.
var (
	ErrInvalidJoinPredicate     = errors.New("invalid join predicate")
	ErrAmbiguousColumn          = errors.New("ambiguous column reference")
	ErrUndefinedDuplicateColumn = errors.New("undefined duplicate column")
	ErrUnresolvableReference    = errors.New("unresolvable column reference")
	ErrTypeMismatch             = errors.New("type mismatch")
	ErrInvalidPlan              = errors.New("invalid plan")
)

var sentinels = map[ErrorCode]error{
	CodeInvalidJoinPredicate:     ErrInvalidJoinPredicate,
	CodeAmbiguousColumn:          ErrAmbiguousColumn,
	CodeUndefinedDuplicateColumn: ErrUndefinedDuplicateColumn,
	CodeUnresolvableReference:    ErrUnresolvableReference,
	CodeTypeMismatch:             ErrTypeMismatch,
	CodeInvalidPlan:              ErrInvalidPlan,
}

// PlanError is returned by every relir constructor and by Validate.
// All plan errors surface at construction time, before any engine call.
type PlanError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op is the operation being built ("join", "select", "filter", ...).
	Op string

	// Column is the offending column or expression, when there is one.
	Column string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *PlanError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s: %s: %s (%s)", e.Code, e.Op, e.Message, e.Column)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Message)
}

// Is matches the sentinel error for e.Code.
func (e *PlanError) Is(target error) bool {
	return sentinels[e.Code] == target
}

func planErrorf(code ErrorCode, op, column, format string, args ...any) *PlanError {
	return &PlanError{
		Code:    code,
		Op:      op,
		Column:  column,
		Message: fmt.Sprintf(format, args...),
	}
}

// CodeOf extracts the code of a *PlanError anywhere in err's chain.
// Returns "" when err is not a plan error.
func CodeOf(err error) ErrorCode {
	var pe *PlanError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// withOp returns err with its Op replaced, leaving non-plan errors alone.
func withOp(err error, op string) error {
	var pe *PlanError
	if errors.As(err, &pe) {
		cp := *pe
		cp.Op = op
		return &cp
	}
	return err
}
