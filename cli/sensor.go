package cli

import (
	"encoding/json"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/hcsr04/components/board/fake"
	// Register the hardware backends.
	_ "go.viam.com/hcsr04/components/board/register"
	"go.viam.com/hcsr04/components/sensor/ultrasonic"
	"go.viam.com/hcsr04/logging"
)

// session is an open sensor plus wherever its results go besides the terminal.
type session struct {
	sensor    *ultrasonic.Sensor
	publisher publisher
	logger    logging.Logger
	logFile   *logging.FileAppender
}

func newLogger(c *cli.Context) (logging.Logger, *logging.FileAppender) {
	var logger logging.Logger
	if c.Bool(generalFlagDebug) {
		logger = logging.NewDebugLogger("hcsr04")
	} else {
		logger = logging.NewLogger("hcsr04")
	}
	var logFile *logging.FileAppender
	if path := c.String(generalFlagLogFile); path != "" {
		logFile = logging.NewFileAppender(path)
		logger.AddAppender(logFile)
	}
	logging.ReplaceGlobal(logger)
	return logger, logFile
}

// loadConfig reads the attribute file, if any, and applies the flags on top of it. Flags left at
// their defaults only fill attributes the file does not set.
func loadConfig(c *cli.Context) (*ultrasonic.Config, error) {
	conf := &ultrasonic.Config{}
	if path := c.String(generalFlagConfig); path != "" {
		//nolint:gosec
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "cannot read config file")
		}
		var attributes map[string]interface{}
		if err := json.Unmarshal(data, &attributes); err != nil {
			return nil, errors.Wrapf(err, "cannot parse config file %s", path)
		}
		if conf, err = ultrasonic.ConfigFromAttributes(attributes); err != nil {
			return nil, err
		}
	}

	if conf.TriggerPin == nil || c.IsSet(generalFlagTrigger) {
		pin := c.Int(generalFlagTrigger)
		conf.TriggerPin = &pin
	}
	if conf.EchoPin == nil || c.IsSet(generalFlagEcho) {
		pin := c.Int(generalFlagEcho)
		conf.EchoPin = &pin
	}
	if conf.TemperatureC == nil || c.IsSet(generalFlagTemperature) {
		temperature := c.Float64(generalFlagTemperature)
		conf.TemperatureC = &temperature
	}
	if conf.Model == "" || c.IsSet(generalFlagModel) {
		conf.Model = c.String(generalFlagModel)
	}
	if conf.Board == "" || c.IsSet(generalFlagBoard) {
		conf.Board = c.String(generalFlagBoard)
	}
	if conf.GPIOChip == "" || c.IsSet(generalFlagGPIOChip) {
		conf.GPIOChip = c.String(generalFlagGPIOChip)
	}

	if err := conf.Validate(generalFlagConfig); err != nil {
		return nil, err
	}
	return conf, nil
}

func newSession(c *cli.Context) (sess *session, err error) {
	logger, logFile := newLogger(c)
	defer func() {
		if err != nil && logFile != nil {
			err = multierr.Combine(err, logFile.Close())
		}
	}()

	conf, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	var s *ultrasonic.Sensor
	if conf.Board == fake.ModelName {
		s, err = openFakeSensor(c, conf, logger)
	} else {
		s, err = ultrasonic.OpenConfig(c.Context, conf, logger)
	}
	if err != nil {
		return nil, err
	}

	sess = &session{sensor: s, logger: logger, logFile: logFile}
	if broker := c.String(generalFlagMQTTBroker); broker != "" {
		pub, err := newMQTTPublisher(broker, c.String(generalFlagMQTTTopic), logger)
		if err != nil {
			return nil, multierr.Combine(err, s.Close())
		}
		sess.publisher = pub
	}
	return sess, nil
}

// openFakeSensor builds a sensor on the simulated board, programmed from the fake-* flags. The
// board and the sensor share a mock clock, so the measured echo is exactly the simulated one.
// Waits between readings stay on the wall clock.
func openFakeSensor(c *cli.Context, conf *ultrasonic.Config, logger logging.Logger) (*ultrasonic.Sensor, error) {
	profile, err := conf.Profile()
	if err != nil {
		return nil, err
	}
	clk := clock.NewMock()
	clk.Set(time.Now())
	fb := fake.NewBoardWithClock(clk, clk.Add, logger.Sublogger(fake.ModelName))
	fb.SetUnresponsive(c.Bool(generalFlagFakeUnresponsive))
	if distance := c.Float64(generalFlagFakeDistance); distance > 0 {
		fb.SetEchoWidth(ultrasonic.EchoDuration(distance, profile.SpeedOfSound(*conf.TemperatureC)))
	}

	s, err := ultrasonic.New(fb, conf, logger, ultrasonic.WithClock(clk), ultrasonic.WithSleep(clk.Add))
	if err != nil {
		return nil, multierr.Combine(err, fb.Close())
	}
	return s, nil
}

// publish sends payload to the publisher, if there is one. Failures are logged and otherwise
// ignored, so a broker outage does not stop the measurements.
func (sess *session) publish(payload interface{}) {
	if sess.publisher == nil {
		return
	}
	if err := sess.publisher.Publish(payload); err != nil {
		sess.logger.Warnw("cannot publish", "error", err)
	}
}

func (sess *session) Close() error {
	var err error
	if sess.publisher != nil {
		err = sess.publisher.Close()
	}
	err = multierr.Combine(err, sess.sensor.Close(), sess.logger.Sync())
	if sess.logFile != nil {
		err = multierr.Combine(err, sess.logFile.Close())
	}
	return err
}

// reading is the published form of one measurement.
type reading struct {
	Sensor       string    `json:"sensor"`
	Time         time.Time `json:"time"`
	Distance     *float64  `json:"distance,omitempty"`
	Unit         string    `json:"unit"`
	InRange      bool      `json:"in_range"`
	TemperatureC float64   `json:"temperature_c"`
}

// doorEvent is the published form of a door transition.
type doorEvent struct {
	Sensor string    `json:"sensor"`
	Time   time.Time `json:"time"`
	Event  string    `json:"event"`
}
