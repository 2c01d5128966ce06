package cbct

import (
	"errors"
	"fmt"
)

// ErrorCode classifies analysis failures
type ErrorCode string

const (
	// ErrorLocalization means the phantom, or a module's sub-feature, was not
	// found or did not have the expected size or shape
	ErrorLocalization ErrorCode = "LOCALIZATION_FAILED"

	// ErrorExtent means a slice index fell outside the usable stack range, or
	// no reference slice candidate was found
	ErrorExtent ErrorCode = "EXTENT_EXCEEDED"

	// ErrorPeakCount means the line-pair profile did not yield the required
	// number of peaks
	ErrorPeakCount ErrorCode = "PEAK_COUNT_MISMATCH"

	// ErrorInvalidInput means the stack or configuration cannot be analyzed
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
)

// WarningAmbiguousRoll is recorded when the roll markers are not exactly two
const WarningAmbiguousRoll = "AMBIGUOUS_ROLL"

// AnalysisError is a structured analysis failure
type AnalysisError struct {
	Code    ErrorCode
	Module  string
	Slice   int
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *AnalysisError) Error() string {
	where := ""
	if e.Module != "" {
		where = fmt.Sprintf(" [%s]", e.Module)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s%s: %s (caused by: %v)", e.Code, where, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s%s: %s", e.Code, where, e.Message)
}

func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

// Factory functions for the error taxonomy

func NewLocalizationError(slice int, message string) *AnalysisError {
	return &AnalysisError{
		Code:    ErrorLocalization,
		Slice:   slice,
		Message: message,
		Details: map[string]interface{}{
			"slice": slice,
		},
	}
}

func NewExtentError(slice, numSlices int, message string) *AnalysisError {
	return &AnalysisError{
		Code:    ErrorExtent,
		Slice:   slice,
		Message: message,
		Details: map[string]interface{}{
			"slice":      slice,
			"num_slices": numSlices,
		},
	}
}

func NewPeakCountError(found, expected int) *AnalysisError {
	return &AnalysisError{
		Code:    ErrorPeakCount,
		Slice:   -1,
		Message: fmt.Sprintf("found %d line-pair peaks, expected %d", found, expected),
		Details: map[string]interface{}{
			"found":    found,
			"expected": expected,
		},
	}
}

func NewInvalidInputError(message string, cause error) *AnalysisError {
	return &AnalysisError{
		Code:    ErrorInvalidInput,
		Slice:   -1,
		Message: message,
		Cause:   cause,
	}
}

// inModule tags err with the module it came from, if it is an AnalysisError.
func inModule(err error, module string) error {
	var ae *AnalysisError
	if errors.As(err, &ae) && ae.Module == "" {
		ae.Module = module
	}
	return err
}

// IsCode reports whether err is, or wraps, an AnalysisError with code.
func IsCode(err error, code ErrorCode) bool {
	var ae *AnalysisError
	return errors.As(err, &ae) && ae.Code == code
}

// Warning is a non-fatal condition recorded during analysis
type Warning struct {
	Code    string `yaml:"code"`
	Message string `yaml:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}
