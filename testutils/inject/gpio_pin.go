package inject

import (
	"context"
	"sync"
	"time"

	"go.viam.com/hcsr04/components/board"
)

// OutputPin is an injected output pin.
type OutputPin struct {
	board.OutputPin
	SetFunc   func(ctx context.Context, high bool) error
	CloseFunc func() error

	mu     sync.Mutex
	setCap []interface{}
	levels []bool
}

// Set calls the injected Set or the real version.
func (p *OutputPin) Set(ctx context.Context, high bool) error {
	p.mu.Lock()
	p.setCap = []interface{}{ctx, high}
	p.levels = append(p.levels, high)
	p.mu.Unlock()
	if p.SetFunc == nil {
		return p.OutputPin.Set(ctx, high)
	}
	return p.SetFunc(ctx, high)
}

// SetCap returns the last parameters received by Set, and then clears them.
func (p *OutputPin) SetCap() []interface{} {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() { p.setCap = nil }()
	return p.setCap
}

// Levels returns every level passed to Set, in order.
func (p *OutputPin) Levels() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.levels...)
}

// Close calls the injected Close or the real version.
func (p *OutputPin) Close() error {
	if p.CloseFunc == nil {
		return p.OutputPin.Close()
	}
	return p.CloseFunc()
}

// InputPin is an injected input pin.
type InputPin struct {
	board.InputPin
	GetFunc         func(ctx context.Context) (bool, error)
	WaitForEdgeFunc func(ctx context.Context, edge board.Edge, timeout time.Duration) error
	CloseFunc       func() error

	mu             sync.Mutex
	waitForEdgeCap []interface{}
}

// Get calls the injected Get or the real version.
func (p *InputPin) Get(ctx context.Context) (bool, error) {
	if p.GetFunc == nil {
		return p.InputPin.Get(ctx)
	}
	return p.GetFunc(ctx)
}

// WaitForEdge calls the injected WaitForEdge or the real version.
func (p *InputPin) WaitForEdge(ctx context.Context, edge board.Edge, timeout time.Duration) error {
	p.mu.Lock()
	p.waitForEdgeCap = []interface{}{ctx, edge, timeout}
	p.mu.Unlock()
	if p.WaitForEdgeFunc == nil {
		return p.InputPin.WaitForEdge(ctx, edge, timeout)
	}
	return p.WaitForEdgeFunc(ctx, edge, timeout)
}

// WaitForEdgeCap returns the last parameters received by WaitForEdge, and then clears them.
func (p *InputPin) WaitForEdgeCap() []interface{} {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() { p.waitForEdgeCap = nil }()
	return p.waitForEdgeCap
}

// Close calls the injected Close or the real version.
func (p *InputPin) Close() error {
	if p.CloseFunc == nil {
		return p.InputPin.Close()
	}
	return p.CloseFunc()
}
