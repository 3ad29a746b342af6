package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"

	"github.com/roach88/relplan/internal/querydef"
	"github.com/roach88/relplan/internal/relir"
)

// LoadError represents an error that occurred while loading or building a
// document.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDocument reads and builds the document at path.
func LoadDocument(path string) (*querydef.Built, int, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, 0, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("document not found: %s", path)}
	}

	doc, err := querydef.LoadFile(path)
	if err != nil {
		var le *querydef.LoadError
		if errors.As(err, &le) {
			return nil, 0, &LoadError{Code: ErrCodeLoadFailed, Message: le.Message, Pos: le.Pos}
		}
		return nil, 0, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	}

	built, err := querydef.Build(doc)
	if err != nil {
		return nil, 0, convertBuildError(err)
	}
	return built, len(doc.Steps), nil
}

// convertBuildError maps plan errors to their codes and everything else
// to ErrCodeBuildFailed.
func convertBuildError(err error) *LoadError {
	if code := relir.CodeOf(err); code != "" {
		return &LoadError{Code: MapPlanErrorCode(code), Message: err.Error()}
	}
	return &LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeLoadFailed  = "E004" // Document decode failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // Document structure invalid
	ErrCodeWriteFailed = "E007" // File write error

	// Plan errors
	ErrCodeInvalidJoinPredicate = "E201"
	ErrCodeAmbiguousColumn      = "E202"
	ErrCodeDuplicateColumn      = "E203"
	ErrCodeUnresolvable         = "E204"
	ErrCodeTypeMismatch         = "E205"
	ErrCodeInvalidPlan          = "E206"

	// Execution errors
	ErrCodeExecFailed = "E301"
)

// MapPlanErrorCode maps a plan error code to a CLI error code.
func MapPlanErrorCode(code relir.ErrorCode) string {
	switch code {
	case relir.CodeInvalidJoinPredicate:
		return ErrCodeInvalidJoinPredicate
	case relir.CodeAmbiguousColumn:
		return ErrCodeAmbiguousColumn
	case relir.CodeUndefinedDuplicateColumn:
		return ErrCodeDuplicateColumn
	case relir.CodeUnresolvableReference:
		return ErrCodeUnresolvable
	case relir.CodeTypeMismatch:
		return ErrCodeTypeMismatch
	case relir.CodeInvalidPlan:
		return ErrCodeInvalidPlan
	default:
		return ErrCodeGeneric
	}
}

// loadErrorParts splits err into code and message for output.
func loadErrorParts(err error) (string, string) {
	var le *LoadError
	if errors.As(err, &le) {
		if le.Pos.IsValid() {
			return le.Code, fmt.Sprintf("%s:%d:%d: %s", le.Pos.Filename(), le.Pos.Line(), le.Pos.Column(), le.Message)
		}
		return le.Code, le.Message
	}
	return ErrCodeGeneric, err.Error()
}
