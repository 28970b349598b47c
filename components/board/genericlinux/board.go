//go:build linux

package genericlinux

import (
	"context"
	"io"
	"sync"

	"github.com/mkch/gpio"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/hcsr04/components/board"
	"go.viam.com/hcsr04/logging"
)

func init() {
	board.Register(ModelName, func(ctx context.Context, conf board.Config, logger logging.Logger) (board.Board, error) {
		return NewBoard(conf.GPIOChipOrDefault(), logger)
	})
}

// Board hands out lines of a single gpiochip device.
type Board struct {
	devicePath string
	logger     logging.Logger

	pins board.PinSet

	mu      sync.Mutex
	holders map[uint8]io.Closer
}

// NewBoard checks that the chip device can be opened and returns a board for it.
func NewBoard(devicePath string, logger logging.Logger) (*Board, error) {
	chip, err := gpio.OpenChip(devicePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open gpio chip %q", devicePath)
	}
	utils.UncheckedErrorFunc(chip.Close)
	logger.Debugw("opened gpio chip", "path", devicePath)

	return &Board{
		devicePath: devicePath,
		logger:     logger,
		holders:    map[uint8]io.Closer{},
	}, nil
}

// OutputPin requests the line as an output, initially low.
func (b *Board) OutputPin(ctx context.Context, pin uint8) (board.OutputPin, error) {
	if err := b.pins.Claim(pin, "output"); err != nil {
		return nil, err
	}
	var line *gpio.Line
	err := b.withChip(func(chip *gpio.Chip) (err error) {
		// The 0 is the initial value: the line comes up low.
		line, err = chip.OpenLine(uint32(pin), 0, gpio.Output, consumer)
		return err
	})
	if err != nil {
		b.pins.Release(pin)
		return nil, errors.Wrapf(err, "cannot request line %d as output", pin)
	}
	out := &outputPin{b: b, pin: pin, line: line}
	b.hold(pin, out)
	return out, nil
}

// InputPin requests the line as an input reporting both edges.
func (b *Board) InputPin(ctx context.Context, pin uint8) (board.InputPin, error) {
	if err := b.pins.Claim(pin, "input"); err != nil {
		return nil, err
	}
	var line *gpio.LineWithEvent
	err := b.withChip(func(chip *gpio.Chip) (err error) {
		line, err = chip.OpenLineWithEvents(uint32(pin), gpio.Input, gpio.BothEdges, consumer)
		return err
	})
	if err != nil {
		b.pins.Release(pin)
		return nil, errors.Wrapf(err, "cannot request line %d as input", pin)
	}
	in := &inputPin{b: b, pin: pin, line: line}
	b.hold(pin, in)
	return in, nil
}

// Close releases every line that is still held.
func (b *Board) Close() error {
	b.mu.Lock()
	holders := make([]io.Closer, 0, len(b.holders))
	for _, h := range b.holders {
		holders = append(holders, h)
	}
	b.mu.Unlock()

	var err error
	for _, h := range holders {
		err = multierr.Combine(err, h.Close())
	}
	return err
}

// withChip opens the chip only for the duration of the line request; the line keeps its own fd.
func (b *Board) withChip(open func(chip *gpio.Chip) error) error {
	chip, err := gpio.OpenChip(b.devicePath)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(chip.Close)
	return open(chip)
}

func (b *Board) hold(pin uint8, h io.Closer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holders[pin] = h
}

func (b *Board) release(pin uint8) {
	b.mu.Lock()
	delete(b.holders, pin)
	b.mu.Unlock()
	b.pins.Release(pin)
}
