//go:build !linux

package genericlinux

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/hcsr04/components/board"
	"go.viam.com/hcsr04/logging"
)

func init() {
	// Registered everywhere so configs stay portable; building one only works on Linux.
	board.Register(ModelName, func(ctx context.Context, conf board.Config, logger logging.Logger) (board.Board, error) {
		return nil, errors.New("the genericlinux board is only supported on Linux")
	})
}
