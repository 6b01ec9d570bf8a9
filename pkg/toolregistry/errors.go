package toolregistry

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateRegistration is returned when a tool name is already registered.
	// It is a startup-time programming error.
	ErrDuplicateRegistration = errors.New("duplicate tool registration")

	// ErrInvalidArguments marks errors caused by caller-supplied arguments.
	// Handlers wrap it (see InvalidArgumentf) to report bad input.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrInvalidDefinition is returned when a tool declaration is incomplete or inconsistent
	ErrInvalidDefinition = errors.New("invalid tool definition")
)

// InvalidArgumentf returns an error wrapping ErrInvalidArguments
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArguments, fmt.Sprintf(format, args...))
}
