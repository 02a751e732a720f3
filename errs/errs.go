// Package errs defines the three kinds of failures the envelope solver
// reports: configuration errors, resource errors and numerical errors.
package errs

import (
	"errors"
	"fmt"
)

// ConfigurationError reports invalid parameters, such as a bad tile or
// overlap, a shape that is not 7-dimensional, or an unknown normalization
// mode. It is always returned immediately and never recovered internally.
type ConfigurationError struct {
	Param  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Param == "" {
		return "configuration error: " + e.Reason
	}

	return fmt.Sprintf("configuration error: %s: %s", e.Param, e.Reason)
}

// Configf creates a ConfigurationError for the given parameter.
func Configf(param, format string, args ...any) error {
	return &ConfigurationError{
		Param:  param,
		Reason: fmt.Sprintf(format, args...),
	}
}

// ResourceError reports that memory is unavailable or insufficient. It carries
// the amount requested, the amount available and the shape of the array that
// triggered the failure.
type ResourceError struct {
	Op             string
	RequiredBytes  uint64
	AvailableBytes uint64
	Shape          []int
	Err            error
}

func (e *ResourceError) Error() string {
	msg := fmt.Sprintf("resource error: %s", e.Op)

	if e.RequiredBytes > 0 || e.AvailableBytes > 0 {
		msg += fmt.Sprintf(": required %d bytes, available %d bytes",
			e.RequiredBytes, e.AvailableBytes)
	}

	if len(e.Shape) > 0 {
		msg += fmt.Sprintf(", shape %v", e.Shape)
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// NumericalError reports an irrecoverable numerical failure, for example a
// tile whose direct solve and relaxation fallback both produce non-finite
// values.
type NumericalError struct {
	Op     string
	Reason string
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("numerical error: %s: %s", e.Op, e.Reason)
}

// IsConfiguration tells if err is, or wraps, a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsResource tells if err is, or wraps, a ResourceError.
func IsResource(err error) bool {
	var target *ResourceError
	return errors.As(err, &target)
}

// IsNumerical tells if err is, or wraps, a NumericalError.
func IsNumerical(err error) bool {
	var target *NumericalError
	return errors.As(err, &target)
}

// AsResource extracts the ResourceError from err.
func AsResource(err error) (*ResourceError, bool) {
	var target *ResourceError
	ok := errors.As(err, &target)

	return target, ok
}
