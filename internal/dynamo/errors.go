package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation runs.
var (
	// ErrConfiguration indicates contradictory or invalid parameters detected before a run.
	ErrConfiguration = errors.New("dynamo: invalid configuration")

	// ErrNumericDivergence indicates a state value became NaN or Inf during a run.
	ErrNumericDivergence = errors.New("dynamo: numeric divergence (NaN or Inf detected)")
)

// ConfigurationError names the offending field of a rejected configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func NewConfigurationError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrConfiguration, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// DivergenceError aborts a run at the first fine step whose results are not finite.
type DivergenceError struct {
	Step      int
	Time      float64
	Component string
	State     State
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("step %d (t=%.6f): %s: %v", e.Step, e.Time, e.Component, ErrNumericDivergence)
}

func (e *DivergenceError) Unwrap() error {
	return ErrNumericDivergence
}
