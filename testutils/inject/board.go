// Package inject provides injectable fakes of the board capabilities for tests.
package inject

import (
	"context"

	"go.viam.com/hcsr04/components/board"
)

// Board is an injected board.
type Board struct {
	board.Board
	OutputPinFunc func(ctx context.Context, pin uint8) (board.OutputPin, error)
	InputPinFunc  func(ctx context.Context, pin uint8) (board.InputPin, error)
	CloseFunc     func() error
}

// OutputPin calls the injected OutputPin or the real version.
func (b *Board) OutputPin(ctx context.Context, pin uint8) (board.OutputPin, error) {
	if b.OutputPinFunc == nil {
		return b.Board.OutputPin(ctx, pin)
	}
	return b.OutputPinFunc(ctx, pin)
}

// InputPin calls the injected InputPin or the real version.
func (b *Board) InputPin(ctx context.Context, pin uint8) (board.InputPin, error) {
	if b.InputPinFunc == nil {
		return b.Board.InputPin(ctx, pin)
	}
	return b.InputPinFunc(ctx, pin)
}

// Close calls the injected Close or the real version.
func (b *Board) Close() error {
	if b.CloseFunc == nil {
		if b.Board == nil {
			return nil
		}
		return b.Board.Close()
	}
	return b.CloseFunc()
}
