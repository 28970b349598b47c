// Package board defines the GPIO capabilities consumed by the sensor drivers and a registry of
// board backends that provide them.
package board

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// ErrPinInUse is returned when a pin is requested while another handle still owns it.
var ErrPinInUse = errors.New("pin already in use")

// A Board hands out exclusive handles to its GPIO lines, addressed by line number.
type Board interface {
	// OutputPin requests the line as an output, driven low.
	OutputPin(ctx context.Context, pin uint8) (OutputPin, error)

	// InputPin requests the line as an input with edge detection on both edges.
	InputPin(ctx context.Context, pin uint8) (InputPin, error)

	// Close releases every line still held by the board.
	Close() error
}

// PinSet tracks which lines of a board are currently owned. The zero value is ready to use.
type PinSet struct {
	mu    sync.Mutex
	owned map[uint8]string
}

// Claim marks the pin as owned for the given role ("trigger", "echo", ...). It fails with
// ErrPinInUse if the pin is already owned.
func (s *PinSet) Claim(pin uint8, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owned == nil {
		s.owned = map[uint8]string{}
	}
	if owner, ok := s.owned[pin]; ok {
		return errors.Wrapf(ErrPinInUse, "pin %d is held as %s", pin, owner)
	}
	s.owned[pin] = role
	return nil
}

// Release gives the pin back. Releasing a pin that is not owned is a no-op.
func (s *PinSet) Release(pin uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.owned, pin)
}

// Owned returns the owned pins in ascending order.
func (s *PinSet) Owned() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	pins := make([]uint8, 0, len(s.owned))
	for pin := range s.owned {
		pins = append(pins, pin)
	}
	sort.Slice(pins, func(i, j int) bool { return pins[i] < pins[j] })
	return pins
}

func (s *PinSet) String() string {
	return fmt.Sprintf("%v", s.Owned())
}
