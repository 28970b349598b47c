package ultrasonic

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/hcsr04/components/board"
)

// measureRaw runs one trigger/echo cycle and returns the width of the echo pulse. An echo that
// outlasts the echo timeout is reported as exactly that long; the caller classifies it as out of
// range.
func (s *Sensor) measureRaw(ctx context.Context) (time.Duration, error) {
	// Drop edges left over from a previous cycle, so that only the response to this trigger counts.
	if d, ok := s.echo.(board.EdgeDiscarder); ok {
		d.DiscardEdges()
	}

	// Hold the trigger low first so the pulse starts on a clean rising edge.
	if err := s.setTrigger(ctx, false); err != nil {
		return 0, err
	}
	s.sleep(s.profile.SettleTime)
	if err := s.setTrigger(ctx, true); err != nil {
		return 0, err
	}
	s.sleep(s.profile.TriggerPulse)
	if err := s.setTrigger(ctx, false); err != nil {
		return 0, err
	}

	start, err := s.waitForEcho(ctx, board.RisingEdge, s.profile.NoResponseTimeout)
	if err != nil {
		if errors.Is(err, board.ErrEdgeTimeout) {
			return 0, ErrNoResponse
		}
		return 0, s.pinError("wait for echo start", s.echoPin, err)
	}

	_, speedOfSound := s.calibration()
	timeout := s.profile.EchoTimeout(speedOfSound)
	end, err := s.waitForEcho(ctx, board.FallingEdge, timeout)
	if err != nil {
		if errors.Is(err, board.ErrEdgeTimeout) {
			return timeout, nil
		}
		return 0, s.pinError("wait for echo end", s.echoPin, err)
	}
	return end.Sub(start), nil
}

// waitForEcho waits for an edge on the echo line and returns when it happened. Backends that
// timestamp edges themselves are trusted over the sensor clock, which also counts the time taken
// to deliver the edge.
func (s *Sensor) waitForEcho(ctx context.Context, edge board.Edge, timeout time.Duration) (time.Time, error) {
	if timer, ok := s.echo.(board.EdgeTimer); ok {
		return timer.WaitForEdgeTime(ctx, edge, timeout)
	}
	if err := s.echo.WaitForEdge(ctx, edge, timeout); err != nil {
		return time.Time{}, err
	}
	return s.clock.Now(), nil
}

func (s *Sensor) setTrigger(ctx context.Context, high bool) error {
	if err := s.trigger.Set(ctx, high); err != nil {
		op := "set trigger low"
		if high {
			op = "set trigger high"
		}
		return s.pinError(op, s.triggerPin, err)
	}
	return nil
}

// pinError wraps a board failure into a GPIOError. Cancellation is not a pin failure and is
// returned unchanged.
func (s *Sensor) pinError(op string, pin uint8, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &GPIOError{Op: op, Pin: pin, Err: err}
}
