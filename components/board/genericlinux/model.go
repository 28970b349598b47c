// Package genericlinux is a board backend for Linux hosts that drives GPIO lines through the
// character device interface, indirectly by way of mkch's gpio package.
package genericlinux

// ModelName is the name this backend is registered under.
const ModelName = "genericlinux"

// consumer is the label the kernel shows for lines we hold (see `gpioinfo`).
const consumer = "hcsr04"
