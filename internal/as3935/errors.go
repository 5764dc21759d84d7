package as3935

import "fmt"

// ConfigError reports a value outside a field's legal domain. It is
// returned before any register is written.
type ConfigError struct {
	Field   string
	Value   any
	Allowed string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %v: must be %s", e.Field, e.Value, e.Allowed)
}

// CalibrationError reports that a calibration step did not complete. The
// chip is left in an indeterminate state; the whole sequence must be run
// again.
type CalibrationError struct {
	Step int
	Name string
	Err  error
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("calibration step %d (%s): %v", e.Step, e.Name, e.Err)
}

func (e *CalibrationError) Unwrap() error {
	return e.Err
}
