//go:build linux

package genericlinux

import (
	"context"
	"sync"
	"time"

	"github.com/mkch/gpio"
	"github.com/pkg/errors"

	"go.viam.com/hcsr04/components/board"
)

var _ board.EdgeTimer = (*inputPin)(nil)

// inputPin is a line requested with edge events. The kernel timestamps every edge; mkch's package
// only keeps the latest unread event in the channel.
type inputPin struct {
	b   *Board
	pin uint8

	mu   sync.Mutex
	line *gpio.LineWithEvent
}

func (pin *inputPin) events() (<-chan *gpio.Event, error) {
	pin.mu.Lock()
	defer pin.mu.Unlock()
	if pin.line == nil {
		return nil, errors.Errorf("line %d is closed", pin.pin)
	}
	return pin.line.Events(), nil
}

// Get reads the current level of the line.
func (pin *inputPin) Get(ctx context.Context) (bool, error) {
	pin.mu.Lock()
	defer pin.mu.Unlock()
	if pin.line == nil {
		return false, errors.Errorf("line %d is closed", pin.pin)
	}

	value, err := pin.line.Value()
	if err != nil {
		return false, err
	}
	// We'd expect value to be either 0 or 1, but any non-zero value should be considered high.
	return value != 0, nil
}

// WaitForEdge blocks until an event of the requested direction arrives.
func (pin *inputPin) WaitForEdge(ctx context.Context, edge board.Edge, timeout time.Duration) error {
	_, err := pin.WaitForEdgeTime(ctx, edge, timeout)
	return err
}

// WaitForEdgeTime is WaitForEdge returning the kernel's timestamp of the edge.
func (pin *inputPin) WaitForEdgeTime(ctx context.Context, edge board.Edge, timeout time.Duration) (time.Time, error) {
	events, err := pin.events()
	if err != nil {
		return time.Time{}, err
	}
	return waitForEdge(ctx, events, edge, timeout)
}

// DiscardEdges drops an event left over from before the caller's next action.
func (pin *inputPin) DiscardEdges() {
	events, err := pin.events()
	if err != nil {
		return
	}
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}

// Close stops edge detection and gives the line back to the kernel.
func (pin *inputPin) Close() error {
	pin.mu.Lock()
	defer pin.mu.Unlock()
	if pin.line == nil {
		return nil
	}

	err := pin.line.Close()
	pin.line = nil
	pin.b.release(pin.pin)
	return err
}

func waitForEdge(
	ctx context.Context, events <-chan *gpio.Event, edge board.Edge, timeout time.Duration,
) (time.Time, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		case <-timer.C:
			return time.Time{}, board.ErrEdgeTimeout
		case event, ok := <-events:
			if !ok {
				return time.Time{}, errors.New("line closed while waiting for edge")
			}
			if event == nil {
				continue
			}
			if event.RisingEdge == edge.High() {
				return event.Time, nil
			}
		}
	}
}
