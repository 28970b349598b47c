// Package ultrasonic implements the HC-SR04 family of ultrasonic distance sensors.
//
// A measurement drives a short pulse on the trigger line, then times the pulse the sensor answers
// with on the echo line. The pulse width is the round trip of a sound burst to the nearest object,
// so the distance follows from the speed of sound, which is calibrated for the air temperature.
package ultrasonic

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/hcsr04/components/board"
	// The default backend used by Open.
	_ "go.viam.com/hcsr04/components/board/genericlinux"
	"go.viam.com/hcsr04/components/sensor"
	"go.viam.com/hcsr04/logging"
)

// DefaultName is the name of a sensor built without WithName.
const DefaultName = "ultrasonic"

var _ sensor.Sensor = (*Sensor)(nil)

// Sensor is an HC-SR04 wired to a trigger and an echo line.
type Sensor struct {
	name       string
	profile    Profile
	trigger    board.OutputPin
	echo       board.InputPin
	triggerPin uint8
	echoPin    uint8
	clock      clock.Clock
	sleep      func(time.Duration)
	logger     logging.Logger

	// ownedBoard is closed with the sensor; set by Open.
	ownedBoard board.Board

	mu     sync.Mutex
	closed bool

	calMu        sync.RWMutex
	temperature  float64
	speedOfSound float64
}

// An Option changes how a Sensor is built.
type Option func(*Sensor)

// WithClock makes the sensor take time from clk. Unless WithSleep is also given, waits use clk.Sleep.
func WithClock(clk clock.Clock) Option {
	return func(s *Sensor) {
		s.clock = clk
	}
}

// WithSleep replaces the function used for the settle and trigger pulse waits.
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *Sensor) {
		s.sleep = sleep
	}
}

// WithName names the sensor in logs and errors.
func WithName(name string) Option {
	return func(s *Sensor) {
		s.name = name
	}
}

// New returns a sensor using the pins of b given by conf. Both lines are held until Close.
func New(b board.Board, conf *Config, logger logging.Logger, opts ...Option) (*Sensor, error) {
	if conf == nil {
		return nil, errors.New("ultrasonic: missing config")
	}
	if err := conf.Validate(DefaultName); err != nil {
		return nil, err
	}
	profile, err := conf.Profile()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Global().Sublogger(DefaultName)
	}

	s := &Sensor{
		name:       DefaultName,
		profile:    profile,
		triggerPin: uint8(*conf.TriggerPin),
		echoPin:    uint8(*conf.EchoPin),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.sleep == nil {
		s.sleep = s.clock.Sleep
	}
	s.logger = s.logger.WithFields("sensor", s.name, "trigger_pin", s.triggerPin, "echo_pin", s.echoPin)

	ctx := context.Background()
	trigger, err := b.OutputPin(ctx, s.triggerPin)
	if err != nil {
		return nil, s.namedError(&GPIOError{Op: "acquire trigger pin", Pin: s.triggerPin, Err: err})
	}
	if err := trigger.Set(ctx, false); err != nil {
		utils.UncheckedErrorFunc(trigger.Close)
		return nil, s.namedError(&GPIOError{Op: "set trigger low", Pin: s.triggerPin, Err: err})
	}
	echo, err := b.InputPin(ctx, s.echoPin)
	if err != nil {
		utils.UncheckedErrorFunc(trigger.Close)
		return nil, s.namedError(&GPIOError{Op: "acquire echo pin", Pin: s.echoPin, Err: err})
	}
	s.trigger = trigger
	s.echo = echo

	temperature := DefaultTemperature
	if conf.TemperatureC != nil {
		temperature = *conf.TemperatureC
	}
	s.setCalibration(temperature)

	s.logger.Debugw("ultrasonic sensor ready", "model", s.profile.Name, "temperature_c", temperature)
	return s, nil
}

// Open returns a sensor on the default Linux GPIO chip, using the global logger. A nil temperature
// means DefaultTemperature.
func Open(triggerPin, echoPin uint8, temperature *float64) (*Sensor, error) {
	conf := &Config{TemperatureC: temperature}
	trig, echo := int(triggerPin), int(echoPin)
	conf.TriggerPin = &trig
	conf.EchoPin = &echo
	return OpenConfig(context.Background(), conf, logging.Global().Sublogger(DefaultName))
}

// OpenConfig opens the board backend named by conf and returns a sensor on it. The board is closed
// with the sensor.
func OpenConfig(ctx context.Context, conf *Config, logger logging.Logger, opts ...Option) (*Sensor, error) {
	if err := conf.Validate(DefaultName); err != nil {
		return nil, err
	}
	b, err := board.New(ctx, conf.BoardConfig(), logger)
	if err != nil {
		return nil, err
	}
	s, err := New(b, conf, logger, opts...)
	if err != nil {
		return nil, multierr.Combine(err, b.Close())
	}
	s.ownedBoard = b
	return s, nil
}

// Name returns the name of the sensor.
func (s *Sensor) Name() string {
	return s.name
}

// Profile returns the timing profile the sensor runs with.
func (s *Sensor) Profile() Profile {
	return s.profile
}

// Calibrate sets the ambient temperature in Celsius. It applies to the next distance conversion,
// including that of a measurement in progress. A non-finite temperature is ignored.
func (s *Sensor) Calibrate(temperature float64) {
	if math.IsNaN(temperature) || math.IsInf(temperature, 0) {
		s.logger.Warnw("ignoring non-finite calibration temperature", "temperature_c", temperature)
		return
	}
	s.setCalibration(temperature)
	s.logger.Debugw("calibrated", "temperature_c", temperature, "speed_of_sound", s.SpeedOfSound())
}

// Temperature returns the calibrated ambient temperature in Celsius.
func (s *Sensor) Temperature() float64 {
	temperature, _ := s.calibration()
	return temperature
}

// SpeedOfSound returns the speed of sound in m/s at the calibrated temperature.
func (s *Sensor) SpeedOfSound() float64 {
	_, speedOfSound := s.calibration()
	return speedOfSound
}

func (s *Sensor) setCalibration(temperature float64) {
	s.calMu.Lock()
	defer s.calMu.Unlock()
	s.temperature = temperature
	s.speedOfSound = s.profile.SpeedOfSound(temperature)
}

func (s *Sensor) calibration() (float64, float64) {
	s.calMu.RLock()
	defer s.calMu.RUnlock()
	return s.temperature, s.speedOfSound
}

// MeasureDistance takes one measurement and returns the distance in unit. When no object is within
// the sensor's range it returns false and no error. Concurrent calls are serialized.
func (s *Sensor) MeasureDistance(ctx context.Context, unit Unit) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false, s.namedError(ErrClosed)
	}

	elapsed, err := s.measureRaw(ctx)
	if err != nil {
		return 0, false, s.namedError(err)
	}
	_, speedOfSound := s.calibration()
	distance, inRange := s.profile.ToDistance(elapsed, speedOfSound, unit)
	s.logger.CDebugw(ctx, "measured",
		"echo", elapsed,
		"speed_of_sound", speedOfSound,
		"distance", distance,
		"unit", unit.String(),
		"in_range", inRange,
	)
	return distance, inRange, nil
}

// Readings takes one measurement and returns it in meters with the calibration it was taken with.
// The distance key is only present when an object was in range.
func (s *Sensor) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	distance, inRange, err := s.MeasureDistance(ctx, Meters)
	if err != nil {
		return nil, err
	}
	temperature, speedOfSound := s.calibration()
	readings := map[string]interface{}{
		"in_range":       inRange,
		"temperature_c":  temperature,
		"speed_of_sound": speedOfSound,
	}
	if inRange {
		readings["distance"] = distance
	}
	return readings, nil
}

// Close releases both lines, and the board if the sensor opened it. Calling Close again is a no-op.
func (s *Sensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := multierr.Combine(s.trigger.Close(), s.echo.Close())
	if s.ownedBoard != nil {
		err = multierr.Combine(err, s.ownedBoard.Close())
	}
	return s.namedError(err)
}

func (s *Sensor) namedError(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "ultrasonic sensor %q", s.name)
}
