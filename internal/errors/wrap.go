package errors

import "fmt"

// Wrap adds context to err. It returns nil when err is nil so it can be used inline:
//
//	return errors.Wrap(store.Close(), "failed to close trend store")
//
// The original chain is preserved for errors.Is checks.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
