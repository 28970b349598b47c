// Package register registers all relevant Boards.
package register

import (
	// for boards.
	_ "go.viam.com/hcsr04/components/board/fake"
	_ "go.viam.com/hcsr04/components/board/genericlinux"
	_ "go.viam.com/hcsr04/components/board/periph"
)
