package ultrasonic

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/hcsr04/components/board"
	"go.viam.com/hcsr04/components/board/fake"
	"go.viam.com/hcsr04/logging"
	"go.viam.com/hcsr04/testutils/inject"
)

const (
	testSensorName = "ultrasonic1"
	triggerPin     = 24
	echoPin        = 23
	responseDelay  = 200 * time.Microsecond
)

// testRig wires a sensor to injected pins whose edge waits advance a mock clock, the way a real
// echo line would block the caller.
type testRig struct {
	clk     *clock.Mock
	board   *inject.Board
	trigger *inject.OutputPin
	echo    *inject.InputPin
	sleeps  []time.Duration

	mu        sync.Mutex
	echoWidth time.Duration
	silent    bool
	onEcho    func()
}

func newTestRig() *testRig {
	rig := &testRig{clk: clock.NewMock()}
	rig.trigger = &inject.OutputPin{
		SetFunc:   func(ctx context.Context, high bool) error { return nil },
		CloseFunc: func() error { return nil },
	}
	rig.echo = &inject.InputPin{
		WaitForEdgeFunc: rig.waitForEdge,
		CloseFunc:       func() error { return nil },
	}
	rig.board = &inject.Board{
		OutputPinFunc: func(ctx context.Context, pin uint8) (board.OutputPin, error) {
			return rig.trigger, nil
		},
		InputPinFunc: func(ctx context.Context, pin uint8) (board.InputPin, error) {
			return rig.echo, nil
		},
	}
	return rig
}

func (rig *testRig) waitForEdge(ctx context.Context, edge board.Edge, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rig.mu.Lock()
	width, silent, onEcho := rig.echoWidth, rig.silent, rig.onEcho
	rig.mu.Unlock()

	if edge == board.RisingEdge {
		if silent {
			rig.clk.Add(timeout)
			return board.ErrEdgeTimeout
		}
		rig.clk.Add(responseDelay)
		return nil
	}
	if onEcho != nil {
		onEcho()
	}
	if width > timeout {
		rig.clk.Add(timeout)
		return board.ErrEdgeTimeout
	}
	rig.clk.Add(width)
	return nil
}

func (rig *testRig) setEchoWidth(width time.Duration) {
	rig.mu.Lock()
	defer rig.mu.Unlock()
	rig.echoWidth = width
}

func (rig *testRig) sleep(d time.Duration) {
	rig.sleeps = append(rig.sleeps, d)
	rig.clk.Add(d)
}

func (rig *testRig) newSensor(t *testing.T, conf *Config) *Sensor {
	t.Helper()
	if conf == nil {
		conf = &Config{TriggerPin: intPtr(triggerPin), EchoPin: intPtr(echoPin)}
	}
	s, err := New(rig.board, conf, logging.NewTestLogger(t),
		WithClock(rig.clk), WithSleep(rig.sleep), WithName(testSensorName))
	test.That(t, err, test.ShouldBeNil)
	return s
}

func TestNewSensor(t *testing.T) {
	rig := newTestRig()
	var gotTrigger, gotEcho uint8
	rig.board.OutputPinFunc = func(ctx context.Context, pin uint8) (board.OutputPin, error) {
		gotTrigger = pin
		return rig.trigger, nil
	}
	rig.board.InputPinFunc = func(ctx context.Context, pin uint8) (board.InputPin, error) {
		gotEcho = pin
		return rig.echo, nil
	}

	s := rig.newSensor(t, nil)
	test.That(t, gotTrigger, test.ShouldEqual, uint8(triggerPin))
	test.That(t, gotEcho, test.ShouldEqual, uint8(echoPin))
	test.That(t, rig.trigger.Levels(), test.ShouldResemble, []bool{false})
	test.That(t, s.Name(), test.ShouldEqual, testSensorName)
	test.That(t, s.Temperature(), test.ShouldEqual, DefaultTemperature)
	test.That(t, s.SpeedOfSound(), test.ShouldAlmostEqual, 343.42, 1e-9)
	test.That(t, s.Profile(), test.ShouldResemble, HCSR04)

	s = rig.newSensor(t, &Config{TriggerPin: intPtr(triggerPin), EchoPin: intPtr(echoPin), TemperatureC: floatPtr(30)})
	test.That(t, s.SpeedOfSound(), test.ShouldAlmostEqual, 349.48, 1e-9)

	_, err := New(rig.board, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = New(rig.board, &Config{TriggerPin: intPtr(triggerPin)}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestNewSensorReleasesPins(t *testing.T) {
	boom := errors.New("line busy")

	t.Run("echo acquisition fails", func(t *testing.T) {
		rig := newTestRig()
		var triggerClosed bool
		rig.trigger.CloseFunc = func() error {
			triggerClosed = true
			return nil
		}
		rig.board.InputPinFunc = func(ctx context.Context, pin uint8) (board.InputPin, error) {
			return nil, boom
		}
		_, err := New(rig.board, &Config{TriggerPin: intPtr(triggerPin), EchoPin: intPtr(echoPin)}, logging.NewTestLogger(t))
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, errors.Is(err, boom), test.ShouldBeTrue)
		var gpioErr *GPIOError
		test.That(t, errors.As(err, &gpioErr), test.ShouldBeTrue)
		test.That(t, gpioErr.Pin, test.ShouldEqual, uint8(echoPin))
		test.That(t, triggerClosed, test.ShouldBeTrue)
	})

	t.Run("trigger acquisition fails", func(t *testing.T) {
		rig := newTestRig()
		var echoRequested bool
		rig.board.OutputPinFunc = func(ctx context.Context, pin uint8) (board.OutputPin, error) {
			return nil, boom
		}
		rig.board.InputPinFunc = func(ctx context.Context, pin uint8) (board.InputPin, error) {
			echoRequested = true
			return rig.echo, nil
		}
		_, err := New(rig.board, &Config{TriggerPin: intPtr(triggerPin), EchoPin: intPtr(echoPin)}, logging.NewTestLogger(t))
		test.That(t, IsGPIOError(err), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "pin 24")
		test.That(t, echoRequested, test.ShouldBeFalse)
	})

	t.Run("trigger cannot be driven low", func(t *testing.T) {
		rig := newTestRig()
		var triggerClosed bool
		rig.trigger.SetFunc = func(ctx context.Context, high bool) error {
			return boom
		}
		rig.trigger.CloseFunc = func() error {
			triggerClosed = true
			return nil
		}
		_, err := New(rig.board, &Config{TriggerPin: intPtr(triggerPin), EchoPin: intPtr(echoPin)}, logging.NewTestLogger(t))
		test.That(t, IsGPIOError(err), test.ShouldBeTrue)
		test.That(t, triggerClosed, test.ShouldBeTrue)
	})
}

func TestMeasureDistance(t *testing.T) {
	ctx := context.Background()

	t.Run("one meter", func(t *testing.T) {
		rig := newTestRig()
		s := rig.newSensor(t, nil)
		rig.setEchoWidth(5831 * time.Microsecond)

		d, ok, err := s.MeasureDistance(ctx, Meters)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, d, test.ShouldAlmostEqual, 1.0, 0.01)

		// Held low since construction, then low, high, low.
		test.That(t, rig.trigger.Levels(), test.ShouldResemble, []bool{false, false, true, false})
		test.That(t, rig.sleeps, test.ShouldResemble, []time.Duration{2 * time.Microsecond, 10 * time.Microsecond})

		args := rig.echo.WaitForEdgeCap()
		test.That(t, args[1], test.ShouldEqual, board.FallingEdge)
		test.That(t, args[2], test.ShouldEqual, HCSR04.EchoTimeout(SpeedOfSound(DefaultTemperature)))
	})

	t.Run("units", func(t *testing.T) {
		rig := newTestRig()
		s := rig.newSensor(t, nil)
		rig.setEchoWidth(3 * time.Millisecond)

		m, ok, err := s.MeasureDistance(ctx, Meters)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ok, test.ShouldBeTrue)
		mm, ok, err := s.MeasureDistance(ctx, Millimeters)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, mm, test.ShouldEqual, m*1000)
	})

	t.Run("object beyond range", func(t *testing.T) {
		rig := newTestRig()
		s := rig.newSensor(t, nil)
		rig.setEchoWidth(EchoDuration(4.5, SpeedOfSound(DefaultTemperature)))

		d, ok, err := s.MeasureDistance(ctx, Meters)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ok, test.ShouldBeFalse)
		test.That(t, d, test.ShouldEqual, 0.0)
	})

	t.Run("no obstacle echo is cut off", func(t *testing.T) {
		rig := newTestRig()
		s := rig.newSensor(t, nil)
		rig.setEchoWidth(fake.NoObstacleEchoWidth)

		start := rig.clk.Now()
		_, ok, err := s.MeasureDistance(ctx, Centimeters)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ok, test.ShouldBeFalse)
		test.That(t, rig.clk.Since(start), test.ShouldBeLessThan, fake.NoObstacleEchoWidth)
	})

	t.Run("too close", func(t *testing.T) {
		rig := newTestRig()
		s := rig.newSensor(t, nil)
		rig.setEchoWidth(EchoDuration(0.01, SpeedOfSound(DefaultTemperature)))

		_, ok, err := s.MeasureDistance(ctx, Meters)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ok, test.ShouldBeFalse)
	})

	t.Run("no response", func(t *testing.T) {
		rig := newTestRig()
		s := rig.newSensor(t, nil)
		rig.silent = true

		start := rig.clk.Now()
		_, ok, err := s.MeasureDistance(ctx, Meters)
		test.That(t, errors.Is(err, ErrNoResponse), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, testSensorName)
		test.That(t, ok, test.ShouldBeFalse)
		test.That(t, rig.clk.Since(start), test.ShouldBeGreaterThanOrEqualTo, HCSR04.NoResponseTimeout)
	})

	t.Run("trigger failure", func(t *testing.T) {
		rig := newTestRig()
		s := rig.newSensor(t, nil)
		rig.trigger.SetFunc = func(ctx context.Context, high bool) error {
			if high {
				return errors.New("write failed")
			}
			return nil
		}

		_, _, err := s.MeasureDistance(ctx, Meters)
		var gpioErr *GPIOError
		test.That(t, errors.As(err, &gpioErr), test.ShouldBeTrue)
		test.That(t, gpioErr.Op, test.ShouldEqual, "set trigger high")
		test.That(t, gpioErr.Pin, test.ShouldEqual, uint8(triggerPin))
	})

	t.Run("echo failure", func(t *testing.T) {
		rig := newTestRig()
		s := rig.newSensor(t, nil)
		rig.echo.WaitForEdgeFunc = func(ctx context.Context, edge board.Edge, timeout time.Duration) error {
			return errors.New("read failed")
		}

		_, _, err := s.MeasureDistance(ctx, Meters)
		test.That(t, IsGPIOError(err), test.ShouldBeTrue)
		test.That(t, errors.Is(err, ErrNoResponse), test.ShouldBeFalse)
	})

	t.Run("canceled", func(t *testing.T) {
		rig := newTestRig()
		s := rig.newSensor(t, nil)
		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()

		_, _, err := s.MeasureDistance(cancelCtx, Meters)
		test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
		test.That(t, IsGPIOError(err), test.ShouldBeFalse)
	})
}

func TestCalibrate(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()
	logger, logs := logging.NewObservedTestLogger(t)
	s, err := New(rig.board, &Config{TriggerPin: intPtr(triggerPin), EchoPin: intPtr(echoPin)}, logger,
		WithClock(rig.clk), WithSleep(rig.sleep))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Name(), test.ShouldEqual, DefaultName)

	width := 5831 * time.Microsecond
	rig.setEchoWidth(width)
	dOld, ok, err := s.MeasureDistance(ctx, Meters)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)

	s.Calibrate(30)
	test.That(t, s.Temperature(), test.ShouldEqual, 30.0)
	test.That(t, s.SpeedOfSound(), test.ShouldAlmostEqual, 349.48, 1e-9)

	dNew, ok, err := s.MeasureDistance(ctx, Meters)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, dNew/dOld, test.ShouldAlmostEqual, SpeedOfSound(30)/SpeedOfSound(20), 1e-9)

	s.Calibrate(math.NaN())
	s.Calibrate(math.Inf(1))
	test.That(t, s.Temperature(), test.ShouldEqual, 30.0)
	test.That(t, logs.FilterMessage("ignoring non-finite calibration temperature").Len(), test.ShouldEqual, 2)
}

func TestCalibrateDuringMeasurement(t *testing.T) {
	rig := newTestRig()
	s := rig.newSensor(t, nil)
	width := 5831 * time.Microsecond
	rig.setEchoWidth(width)
	rig.onEcho = func() {
		s.Calibrate(30)
	}

	d, ok, err := s.MeasureDistance(context.Background(), Meters)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d, test.ShouldAlmostEqual, SpeedOfSound(30)*width.Seconds()/2, 1e-9)
}

func TestMeasurementsAreSerialized(t *testing.T) {
	rig := newTestRig()
	s := rig.newSensor(t, nil)
	rig.setEchoWidth(2 * time.Millisecond)

	var inFlight, maxInFlight int32
	rig.echo.WaitForEdgeFunc = func(ctx context.Context, edge board.Edge, timeout time.Duration) error {
		if edge == board.RisingEdge {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				m := atomic.LoadInt32(&maxInFlight)
				if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
					break
				}
			}
		} else {
			defer atomic.AddInt32(&inFlight, -1)
		}
		return rig.waitForEdge(ctx, edge, timeout)
	}
	// rig.sleep records into a slice that is not safe for concurrent use.
	s.sleep = rig.clk.Add

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.MeasureDistance(context.Background(), Meters)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		test.That(t, err, test.ShouldBeNil)
	}
	test.That(t, atomic.LoadInt32(&maxInFlight), test.ShouldEqual, int32(1))
}

// timedEchoPin is an echo line whose backend timestamps edges, the way the Linux GPIO character
// device does.
type timedEchoPin struct {
	*inject.InputPin
	waitForEdgeTime func(ctx context.Context, edge board.Edge, timeout time.Duration) (time.Time, error)
}

func (p *timedEchoPin) WaitForEdgeTime(ctx context.Context, edge board.Edge, timeout time.Duration) (time.Time, error) {
	return p.waitForEdgeTime(ctx, edge, timeout)
}

func TestMeasureDistanceEdgeTimestamps(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()
	v := SpeedOfSound(DefaultTemperature)
	width := EchoDuration(1.5, v)
	stretched := false

	rise := time.Unix(0, 1_000_000)
	echo := &timedEchoPin{
		InputPin: rig.echo,
		waitForEdgeTime: func(ctx context.Context, edge board.Edge, timeout time.Duration) (time.Time, error) {
			// Delivering each edge takes a while by the sensor clock. Only the timestamps count.
			rig.clk.Add(3 * time.Millisecond)
			if edge == board.RisingEdge {
				return rise, nil
			}
			if stretched {
				return time.Time{}, board.ErrEdgeTimeout
			}
			return rise.Add(width), nil
		},
	}
	rig.board.InputPinFunc = func(ctx context.Context, pin uint8) (board.InputPin, error) {
		return echo, nil
	}
	s := rig.newSensor(t, nil)

	d, ok, err := s.MeasureDistance(ctx, Meters)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d, test.ShouldAlmostEqual, 1.5, 1e-6)
	test.That(t, rig.echo.WaitForEdgeCap(), test.ShouldBeNil)

	stretched = true
	_, ok, err = s.MeasureDistance(ctx, Meters)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestMeasurementLogging(t *testing.T) {
	rig := newTestRig()
	logger, logs := logging.NewObservedTestLogger(t)
	logger.SetLevel(logging.INFO)
	s, err := New(rig.board, &Config{TriggerPin: intPtr(triggerPin), EchoPin: intPtr(echoPin)}, logger,
		WithClock(rig.clk), WithSleep(rig.sleep), WithName(testSensorName))
	test.That(t, err, test.ShouldBeNil)
	rig.setEchoWidth(EchoDuration(1.5, SpeedOfSound(DefaultTemperature)))

	_, _, err = s.MeasureDistance(context.Background(), Meters)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, logs.FilterMessage("measured").Len(), test.ShouldEqual, 0)

	ctx := logging.EnableDebugMode(context.Background(), "garage")
	_, _, err = s.MeasureDistance(ctx, Meters)
	test.That(t, err, test.ShouldBeNil)
	measured := logs.FilterMessage("measured").All()
	test.That(t, measured, test.ShouldHaveLength, 1)
	fields := measured[0].ContextMap()
	test.That(t, fields["debug_key"], test.ShouldEqual, "garage")
	test.That(t, fields["sensor"], test.ShouldEqual, testSensorName)
	test.That(t, fields["trigger_pin"], test.ShouldEqual, uint8(triggerPin))
	test.That(t, fields["echo_pin"], test.ShouldEqual, uint8(echoPin))
	test.That(t, fields["in_range"], test.ShouldEqual, true)

	s.Calibrate(math.NaN())
	warned := logs.FilterMessage("ignoring non-finite calibration temperature").All()
	test.That(t, warned, test.ShouldHaveLength, 1)
	test.That(t, warned[0].ContextMap()["sensor"], test.ShouldEqual, testSensorName)
}

func TestReadings(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig()
	s := rig.newSensor(t, nil)

	rig.setEchoWidth(EchoDuration(1.5, SpeedOfSound(DefaultTemperature)))
	readings, err := s.Readings(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, readings["in_range"], test.ShouldEqual, true)
	test.That(t, readings["distance"], test.ShouldAlmostEqual, 1.5, 1e-6)
	test.That(t, readings["temperature_c"], test.ShouldEqual, DefaultTemperature)
	test.That(t, readings["speed_of_sound"], test.ShouldAlmostEqual, 343.42, 1e-9)

	rig.setEchoWidth(fake.NoObstacleEchoWidth)
	readings, err = s.Readings(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, readings["in_range"], test.ShouldEqual, false)
	_, ok := readings["distance"]
	test.That(t, ok, test.ShouldBeFalse)

	rig.silent = true
	_, err = s.Readings(ctx, nil)
	test.That(t, errors.Is(err, ErrNoResponse), test.ShouldBeTrue)
}

func TestClose(t *testing.T) {
	rig := newTestRig()
	var closed []string
	rig.trigger.CloseFunc = func() error {
		closed = append(closed, "trigger")
		return errors.New("trigger stuck")
	}
	rig.echo.CloseFunc = func() error {
		closed = append(closed, "echo")
		return nil
	}
	s := rig.newSensor(t, nil)

	err := s.Close()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "trigger stuck")
	test.That(t, closed, test.ShouldResemble, []string{"trigger", "echo"})

	test.That(t, s.Close(), test.ShouldBeNil)
	test.That(t, closed, test.ShouldHaveLength, 2)

	_, _, err = s.MeasureDistance(context.Background(), Meters)
	test.That(t, errors.Is(err, ErrClosed), test.ShouldBeTrue)
	_, err = s.Readings(context.Background(), nil)
	test.That(t, errors.Is(err, ErrClosed), test.ShouldBeTrue)
}

func TestFakeBoard(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	logger := logging.NewTestLogger(t)
	fb := fake.NewBoardWithClock(clk, clk.Add, logger)

	s, err := New(fb, &Config{TriggerPin: intPtr(triggerPin), EchoPin: intPtr(echoPin), TemperatureC: floatPtr(25)},
		logger, WithClock(clk), WithSleep(clk.Add))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fb.Owned(), test.ShouldResemble, []uint8{echoPin, triggerPin})

	fb.SetEchoWidth(EchoDuration(1.5, SpeedOfSound(25)))
	d, ok, err := s.MeasureDistance(ctx, Centimeters)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d, test.ShouldAlmostEqual, 150, 1e-3)
	test.That(t, fb.Triggers(), test.ShouldEqual, 1)

	fb.SetEchoWidth(fake.NoObstacleEchoWidth)
	_, ok, err = s.MeasureDistance(ctx, Centimeters)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeFalse)

	// The sensor recovers once the echo ended, even though it was cut off.
	fb.SetEchoWidth(EchoDuration(0.3, SpeedOfSound(25)))
	d, ok, err = s.MeasureDistance(ctx, Millimeters)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d, test.ShouldAlmostEqual, 300, 1e-3)

	fb.SetUnresponsive(true)
	_, _, err = s.MeasureDistance(ctx, Meters)
	test.That(t, errors.Is(err, ErrNoResponse), test.ShouldBeTrue)

	// A second sensor cannot share the lines.
	_, err = New(fb, &Config{TriggerPin: intPtr(triggerPin), EchoPin: intPtr(echoPin)}, logger)
	test.That(t, errors.Is(err, board.ErrPinInUse), test.ShouldBeTrue)
	test.That(t, fb.Owned(), test.ShouldResemble, []uint8{echoPin, triggerPin})

	test.That(t, s.Close(), test.ShouldBeNil)
	test.That(t, fb.Owned(), test.ShouldBeEmpty)
}
