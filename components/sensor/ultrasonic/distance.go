package ultrasonic

import (
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Unit is the measuring unit of a distance. The zero value is Meters.
type Unit int

const (
	// Meters is the SI unit, factor 1.
	Meters Unit = iota
	// Decimeters is a tenth of a meter.
	Decimeters
	// Centimeters is a hundredth of a meter.
	Centimeters
	// Millimeters is a thousandth of a meter.
	Millimeters
)

var units = []struct {
	unit    Unit
	symbol  string
	name    string
	perUnit float64
}{
	{Meters, "m", "meters", 1},
	{Decimeters, "dm", "decimeters", 10},
	{Centimeters, "cm", "centimeters", 100},
	{Millimeters, "mm", "millimeters", 1000},
}

func (u Unit) String() string {
	for _, info := range units {
		if info.unit == u {
			return info.symbol
		}
	}
	return "unknown"
}

// Factor returns how many of u make one meter.
func (u Unit) Factor() float64 {
	for _, info := range units {
		if info.unit == u {
			return info.perUnit
		}
	}
	return math.NaN()
}

// FromMeters converts a distance in meters to u.
func (u Unit) FromMeters(meters float64) float64 {
	return meters * u.Factor()
}

// ParseUnit accepts a unit symbol ("mm") or name ("millimeters", "millimeter"), case-insensitively.
func ParseUnit(s string) (Unit, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, info := range units {
		if s == info.symbol || s == info.name || s == strings.TrimSuffix(info.name, "s") {
			return info.unit, nil
		}
	}
	return Meters, errors.Errorf("unknown unit %q, expected one of m, dm, cm, mm", s)
}

// ToDistance converts an echo width into a one-way distance in unit, using the HC-SR04 range
// limits. It returns false when the distance falls outside the range the sensor can measure.
func ToDistance(elapsed time.Duration, speedOfSound float64, unit Unit) (float64, bool) {
	return HCSR04.ToDistance(elapsed, speedOfSound, unit)
}

// ToDistance converts an echo width into a one-way distance in unit, using the profile's range
// limits. It returns false when the echo is shorter than the round trip at MinRange or longer than
// the one at MaxRange, both as given by EchoWindow.
func (p Profile) ToDistance(elapsed time.Duration, speedOfSound float64, unit Unit) (float64, bool) {
	minTime, maxTime, ok := p.EchoWindow(speedOfSound)
	if !ok || elapsed < minTime || elapsed > maxTime {
		return 0, false
	}
	// The echo covers the distance twice.
	meters := speedOfSound * elapsed.Seconds() / 2
	return unit.FromMeters(math.Min(math.Max(meters, p.MinRange), p.MaxRange)), true
}

// EchoWindow returns the echo widths of an object at MinRange and at MaxRange. It returns false
// when the speed of sound is not a positive finite number.
func (p Profile) EchoWindow(speedOfSound float64) (time.Duration, time.Duration, bool) {
	if speedOfSound <= 0 || math.IsNaN(speedOfSound) || math.IsInf(speedOfSound, 0) {
		return 0, 0, false
	}
	return EchoDuration(p.MinRange, speedOfSound), EchoDuration(p.MaxRange, speedOfSound), true
}

// SpeedOfSound returns the speed of sound in m/s in air at the given temperature, using the
// HC-SR04 coefficients.
func SpeedOfSound(temperatureC float64) float64 {
	return HCSR04.SpeedOfSound(temperatureC)
}

// EchoDuration is the inverse of ToDistance: the echo width for an object at the given distance
// in meters, rounded to the nearest nanosecond.
func EchoDuration(meters, speedOfSound float64) time.Duration {
	return time.Duration(math.Round(2 * meters / speedOfSound * float64(time.Second)))
}
