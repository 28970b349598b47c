package board

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrEdgeTimeout is returned by InputPin.WaitForEdge when the requested edge did not occur within
// the timeout.
var ErrEdgeTimeout = errors.New("timed out waiting for edge")

// Edge is a transition of a digital input.
type Edge int

const (
	// RisingEdge is a low to high transition.
	RisingEdge Edge = iota
	// FallingEdge is a high to low transition.
	FallingEdge
)

func (e Edge) String() string {
	switch e {
	case RisingEdge:
		return "rising"
	case FallingEdge:
		return "falling"
	default:
		return "unknown"
	}
}

// High returns the level of the line right after the edge.
func (e Edge) High() bool {
	return e == RisingEdge
}

// An OutputPin is a GPIO line driven by the host.
type OutputPin interface {
	// Set sets the pin to either low or high.
	Set(ctx context.Context, high bool) error

	// Close releases the line so it can be requested again.
	Close() error
}

// An InputPin is a GPIO line read by the host, with edge detection.
type InputPin interface {
	// Get gets the high/low state of the pin.
	Get(ctx context.Context) (bool, error)

	// WaitForEdge blocks until the given edge is seen on the pin or the timeout elapses, in which
	// case it returns ErrEdgeTimeout. Edges in the other direction are skipped.
	WaitForEdge(ctx context.Context, edge Edge, timeout time.Duration) error

	// Close releases the line so it can be requested again.
	Close() error
}

// An EdgeDiscarder is an InputPin that queues edges and can drop the ones already queued. Callers
// that are about to provoke an edge use it so that stale events are not mistaken for the response.
type EdgeDiscarder interface {
	DiscardEdges()
}

// An EdgeTimer is an InputPin whose backend timestamps edges when they occur, as the Linux GPIO
// character device does. WaitForEdgeTime behaves like WaitForEdge and also returns that
// timestamp. Only the difference between two timestamps of the same pin is meaningful.
type EdgeTimer interface {
	WaitForEdgeTime(ctx context.Context, edge Edge, timeout time.Duration) (time.Time, error)
}
