// Package fake implements a fake board with a simulated HC-SR04 wired to it.
//
// Any output pin acts as the trigger line and any input pin as the echo line. After a trigger
// pulse (a high to low transition) the echo line rises once ResponseDelay has passed and stays
// high for the programmed echo width. Time is taken from an injectable clock and sleep function,
// so tests can run the whole measurement protocol against a mock clock.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/hcsr04/components/board"
	"go.viam.com/hcsr04/logging"
)

// ModelName is the name this backend is registered under.
const ModelName = "fake"

const (
	// DefaultResponseDelay is the time between the end of the trigger pulse and the rising echo:
	// the sensor first sends its 8 cycle 40kHz burst.
	DefaultResponseDelay = 200 * time.Microsecond
	// NoObstacleEchoWidth is the echo the sensor reports when nothing reflects the burst.
	NoObstacleEchoWidth = 38 * time.Millisecond
)

func init() {
	board.Register(ModelName, func(ctx context.Context, conf board.Config, logger logging.Logger) (board.Board, error) {
		return NewBoard(logger), nil
	})
}

// Board is a fake board. Its zero value is not usable; use NewBoard or NewBoardWithClock.
type Board struct {
	clock  clock.Clock
	sleep  func(time.Duration)
	logger logging.Logger
	pins   board.PinSet

	mu            sync.Mutex
	responseDelay time.Duration
	echoWidth     time.Duration
	unresponsive  bool
	triggered     bool
	echoHigh      bool
	triggers      int
	lastTrigger   time.Time
	outputs       map[uint8]*GPIOPin
	inputs        map[uint8]*EchoPin
}

// NewBoard returns a fake board running on the wall clock, with nothing in front of the sensor.
func NewBoard(logger logging.Logger) *Board {
	clk := clock.New()
	return NewBoardWithClock(clk, clk.Sleep, logger)
}

// NewBoardWithClock returns a fake board that reads time from clk and waits with sleep. With a
// mock clock, passing the mock's Add as sleep makes every simulated wait advance the clock.
func NewBoardWithClock(clk clock.Clock, sleep func(time.Duration), logger logging.Logger) *Board {
	return &Board{
		clock:         clk,
		sleep:         sleep,
		logger:        logger,
		responseDelay: DefaultResponseDelay,
		echoWidth:     NoObstacleEchoWidth,
		outputs:       map[uint8]*GPIOPin{},
		inputs:        map[uint8]*EchoPin{},
	}
}

// SetEchoWidth sets the width of the echo pulse the simulated sensor answers with.
func (b *Board) SetEchoWidth(width time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.echoWidth = width
}

// SetResponseDelay sets the time between a trigger pulse and the rising echo.
func (b *Board) SetResponseDelay(delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responseDelay = delay
}

// SetUnresponsive makes the simulated sensor ignore trigger pulses, as a miswired or dead sensor
// would.
func (b *Board) SetUnresponsive(unresponsive bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unresponsive = unresponsive
}

// Triggers returns the number of trigger pulses seen so far.
func (b *Board) Triggers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.triggers
}

// LastTrigger returns when the last trigger pulse ended, by the board's clock.
func (b *Board) LastTrigger() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastTrigger
}

// OutputPin returns a fake output line, initially low.
func (b *Board) OutputPin(ctx context.Context, pin uint8) (board.OutputPin, error) {
	if err := b.pins.Claim(pin, "output"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	gp := &GPIOPin{b: b, pin: pin}
	b.outputs[pin] = gp
	return gp, nil
}

// InputPin returns a fake echo line.
func (b *Board) InputPin(ctx context.Context, pin uint8) (board.InputPin, error) {
	if err := b.pins.Claim(pin, "input"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ep := &EchoPin{b: b, pin: pin}
	b.inputs[pin] = ep
	return ep, nil
}

// Close releases every pin still held.
func (b *Board) Close() error {
	b.mu.Lock()
	closers := make([]func() error, 0, len(b.outputs)+len(b.inputs))
	for _, gp := range b.outputs {
		closers = append(closers, gp.Close)
	}
	for _, ep := range b.inputs {
		closers = append(closers, ep.Close)
	}
	b.mu.Unlock()

	var err error
	for _, c := range closers {
		err = multierr.Combine(err, c())
	}
	return err
}

// Owned returns the pins currently held.
func (b *Board) Owned() []uint8 {
	return b.pins.Owned()
}

// GPIOPin is a fake output line.
type GPIOPin struct {
	b      *Board
	pin    uint8
	high   bool
	closed bool
}

// Set sets the pin to either low or high. A high to low transition fires the simulated sensor.
func (gp *GPIOPin) Set(ctx context.Context, high bool) error {
	gp.b.mu.Lock()
	defer gp.b.mu.Unlock()
	if gp.closed {
		return errors.Errorf("pin %d is closed", gp.pin)
	}

	if gp.high && !high {
		gp.b.triggered = true
		gp.b.triggers++
		gp.b.lastTrigger = gp.b.clock.Now()
	}
	gp.high = high
	return nil
}

// High returns the current level of the line.
func (gp *GPIOPin) High() bool {
	gp.b.mu.Lock()
	defer gp.b.mu.Unlock()
	return gp.high
}

// Close releases the pin.
func (gp *GPIOPin) Close() error {
	gp.b.mu.Lock()
	if gp.closed {
		gp.b.mu.Unlock()
		return nil
	}
	gp.closed = true
	gp.high = false
	delete(gp.b.outputs, gp.pin)
	gp.b.mu.Unlock()
	gp.b.pins.Release(gp.pin)
	return nil
}

// EchoPin is a fake input line driven by the simulated sensor.
type EchoPin struct {
	b      *Board
	pin    uint8
	closed bool
}

// Get returns the current echo level.
func (ep *EchoPin) Get(ctx context.Context) (bool, error) {
	ep.b.mu.Lock()
	defer ep.b.mu.Unlock()
	if ep.closed {
		return false, errors.Errorf("pin %d is closed", ep.pin)
	}
	return ep.b.echoHigh, nil
}

// WaitForEdge plays the simulated sensor forward until the requested edge or the timeout.
func (ep *EchoPin) WaitForEdge(ctx context.Context, edge board.Edge, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	wait, err := ep.nextEdge(edge, timeout)
	ep.b.sleep(wait)
	return err
}

// nextEdge updates the simulated echo state and returns how long the caller has to wait for it.
func (ep *EchoPin) nextEdge(edge board.Edge, timeout time.Duration) (time.Duration, error) {
	b := ep.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if ep.closed {
		return 0, errors.Errorf("pin %d is closed", ep.pin)
	}

	switch edge {
	case board.RisingEdge:
		if !b.triggered || b.unresponsive || b.echoHigh || b.responseDelay > timeout {
			return timeout, board.ErrEdgeTimeout
		}
		b.triggered = false
		b.echoHigh = true
		return b.responseDelay, nil
	case board.FallingEdge:
		if !b.echoHigh {
			return timeout, board.ErrEdgeTimeout
		}
		// The pulse is cut short when the caller gives up on it, so the next trigger starts
		// from a low echo line.
		b.echoHigh = false
		if b.echoWidth > timeout {
			return timeout, board.ErrEdgeTimeout
		}
		return b.echoWidth, nil
	default:
		return 0, errors.Errorf("unknown edge %v", edge)
	}
}

// Close releases the pin.
func (ep *EchoPin) Close() error {
	ep.b.mu.Lock()
	if ep.closed {
		ep.b.mu.Unlock()
		return nil
	}
	ep.closed = true
	delete(ep.b.inputs, ep.pin)
	ep.b.mu.Unlock()
	ep.b.pins.Release(ep.pin)
	return nil
}
