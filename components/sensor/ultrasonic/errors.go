package ultrasonic

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoResponse means the echo line never rose after a trigger pulse. The sensor is dead or
	// miswired; a free field reads as out of range, not as this error.
	ErrNoResponse = errors.New("sensor did not respond to the trigger pulse")

	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("sensor is closed")
)

// A GPIOError is a failure to acquire or drive one of the sensor's lines.
type GPIOError struct {
	Op  string
	Pin uint8
	Err error
}

func (e *GPIOError) Error() string {
	return fmt.Sprintf("gpio error: cannot %s (pin %d): %v", e.Op, e.Pin, e.Err)
}

// Unwrap returns the error reported by the board.
func (e *GPIOError) Unwrap() error {
	return e.Err
}

// IsGPIOError reports whether err is or wraps a GPIOError.
func IsGPIOError(err error) bool {
	var gpioErr *GPIOError
	return errors.As(err, &gpioErr)
}
