// Package periph is a board backend built on periph.io. It covers hosts where periph's drivers
// (bcm283x, allwinner, sysfs) are a better fit than the gpiochip character device.
package periph

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"go.viam.com/hcsr04/components/board"
	"go.viam.com/hcsr04/logging"
)

// ModelName is the name this backend is registered under.
const ModelName = "periph"

// waitSlice bounds a single blocking call into periph so cancellation is noticed.
const waitSlice = 50 * time.Millisecond

// maxDiscard bounds how many queued edges DiscardEdges drops.
const maxDiscard = 16

func init() {
	board.Register(ModelName, func(ctx context.Context, conf board.Config, logger logging.Logger) (board.Board, error) {
		return NewBoard(logger)
	})
}

// Board resolves pins through periph's global registry.
type Board struct {
	logger logging.Logger
	pins   board.PinSet
	byName func(name string) gpio.PinIO

	mu   sync.Mutex
	held map[uint8]gpio.PinIO
}

// NewBoard initializes periph's host drivers.
func NewBoard(logger logging.Logger) (*Board, error) {
	state, err := host.Init()
	if err != nil {
		return nil, errors.Wrap(err, "cannot initialize periph host drivers")
	}
	for _, failure := range state.Failed {
		logger.Debugw("periph driver failed to load", "driver", failure.D.String(), "error", failure.Err)
	}
	return newBoard(gpioreg.ByName, logger), nil
}

func newBoard(byName func(name string) gpio.PinIO, logger logging.Logger) *Board {
	return &Board{logger: logger, byName: byName, held: map[uint8]gpio.PinIO{}}
}

func (b *Board) lookup(pin uint8, role string) (gpio.PinIO, error) {
	if err := b.pins.Claim(pin, role); err != nil {
		return nil, err
	}
	// gpioreg resolves a bare number as the GPIO number, like "GPIO<n>" on a Raspberry Pi.
	p := b.byName(strconv.Itoa(int(pin)))
	if p == nil {
		b.pins.Release(pin)
		return nil, errors.Errorf("no gpio pin found for %d", pin)
	}
	return p, nil
}

// OutputPin configures the pin as an output driven low.
func (b *Board) OutputPin(ctx context.Context, pin uint8) (board.OutputPin, error) {
	p, err := b.lookup(pin, "output")
	if err != nil {
		return nil, err
	}
	if err := p.Out(gpio.Low); err != nil {
		b.pins.Release(pin)
		return nil, errors.Wrapf(err, "cannot set %s as output", p)
	}
	b.hold(pin, p)
	return &outputPin{b: b, pin: pin, p: p}, nil
}

// InputPin configures the pin as a pulled-down input with edge detection on both edges.
func (b *Board) InputPin(ctx context.Context, pin uint8) (board.InputPin, error) {
	p, err := b.lookup(pin, "input")
	if err != nil {
		return nil, err
	}
	if err := p.In(gpio.PullDown, gpio.BothEdges); err != nil {
		b.pins.Release(pin)
		return nil, errors.Wrapf(err, "cannot set %s as input", p)
	}
	b.hold(pin, p)
	return &inputPin{b: b, pin: pin, p: p}, nil
}

// Close halts every pin still held.
func (b *Board) Close() error {
	b.mu.Lock()
	held := make(map[uint8]gpio.PinIO, len(b.held))
	for pin, p := range b.held {
		held[pin] = p
	}
	b.mu.Unlock()

	var err error
	for pin, p := range held {
		err = multierr.Combine(err, b.halt(pin, p))
	}
	return err
}

func (b *Board) hold(pin uint8, p gpio.PinIO) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.held[pin] = p
}

// halt stops any edge detection on the pin and releases it. Halting twice is harmless.
func (b *Board) halt(pin uint8, p gpio.PinIO) error {
	b.mu.Lock()
	_, ok := b.held[pin]
	delete(b.held, pin)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	b.pins.Release(pin)
	return p.Halt()
}

type outputPin struct {
	b   *Board
	pin uint8
	p   gpio.PinIO
}

func (o *outputPin) Set(ctx context.Context, high bool) error {
	l := gpio.Low
	if high {
		l = gpio.High
	}
	return o.p.Out(l)
}

func (o *outputPin) Close() error {
	return multierr.Combine(o.p.Out(gpio.Low), o.b.halt(o.pin, o.p))
}

type inputPin struct {
	b   *Board
	pin uint8
	p   gpio.PinIO
}

func (i *inputPin) Get(ctx context.Context) (bool, error) {
	return i.p.Read() == gpio.High, nil
}

// WaitForEdge waits in slices of at most waitSlice, since periph's WaitForEdge cannot be
// interrupted. periph reports edges without their direction, so the level is read right after.
func (i *inputPin) WaitForEdge(ctx context.Context, edge board.Edge, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return board.ErrEdgeTimeout
		}
		if remaining > waitSlice {
			remaining = waitSlice
		}
		if !i.p.WaitForEdge(remaining) {
			continue
		}
		if (i.p.Read() == gpio.High) == edge.High() {
			return nil
		}
	}
}

func (i *inputPin) DiscardEdges() {
	for n := 0; n < maxDiscard && i.p.WaitForEdge(0); n++ {
	}
}

func (i *inputPin) Close() error {
	return i.b.halt(i.pin, i.p)
}
