package framework

import (
	"errors"
	"fmt"
)

// UsageError means that a test used the harness incorrectly: serving twice, sending a request
// before serving, or disabling every protocol. It is never retried, and the harness reports it
// separately from ordinary assertion failures.
type UsageError struct {
	Op  string
	Msg string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func usageErrorf(op, format string, args ...interface{}) *UsageError {
	return &UsageError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsUsageError reports whether err is, or wraps, a *UsageError.
func IsUsageError(err error) bool {
	var uerr *UsageError
	return errors.As(err, &uerr)
}

// ConfigError is a problem with a test's specification that was found before the test ran.
type ConfigError struct {
	Spec string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Spec == "" {
		return fmt.Sprintf("invalid test specification: %s", e.Err)
	}
	return fmt.Sprintf("invalid test specification %q: %s", e.Spec, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
