//go:build linux

package genericlinux

import (
	"context"
	"sync"

	"github.com/mkch/gpio"
	"github.com/pkg/errors"
)

type outputPin struct {
	b   *Board
	pin uint8

	mu   sync.Mutex
	line *gpio.Line
}

// Set drives the line high or low.
func (pin *outputPin) Set(ctx context.Context, isHigh bool) error {
	pin.mu.Lock()
	defer pin.mu.Unlock()
	if pin.line == nil {
		return errors.Errorf("line %d is closed", pin.pin)
	}

	var value byte
	if isHigh {
		value = 1
	}
	return pin.line.SetValue(value)
}

// Close drives the line low and gives it back to the kernel.
func (pin *outputPin) Close() error {
	pin.mu.Lock()
	defer pin.mu.Unlock()
	if pin.line == nil {
		return nil
	}

	// Leave the trigger low so the sensor does not see a spurious pulse when the line floats.
	setErr := pin.line.SetValue(0)
	err := pin.line.Close()
	pin.line = nil
	pin.b.release(pin.pin)
	if err != nil {
		return err
	}
	return setErr
}
