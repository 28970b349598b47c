// Package cli contains the hcsr04 command line tool.
package cli

import (
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"go.viam.com/hcsr04/components/board"
	"go.viam.com/hcsr04/components/sensor/ultrasonic"
)

const (
	// Flags.
	generalFlagBoard            = "board"
	generalFlagGPIOChip         = "gpio-chip"
	generalFlagTrigger          = "trigger"
	generalFlagEcho             = "echo"
	generalFlagTemperature      = "temperature"
	generalFlagModel            = "model"
	generalFlagConfig           = "config"
	generalFlagDebug            = "debug"
	generalFlagLogFile          = "log-file"
	generalFlagMQTTBroker       = "mqtt-broker"
	generalFlagMQTTTopic        = "mqtt-topic"
	generalFlagFakeDistance     = "fake-distance"
	generalFlagFakeUnresponsive = "fake-unresponsive"

	distanceFlagInterval = "interval"
	distanceFlagUnit     = "unit"
	distanceFlagCount    = "count"

	doorFlagThreshold = "threshold"
	doorFlagPoll      = "poll"
	doorFlagCount     = "count"

	defaultTriggerPin    = 24
	defaultEchoPin       = 23
	defaultDoorThreshold = 1.2
	defaultMQTTTopic     = "hcsr04"
)

var app = &cli.App{
	Name:            "hcsr04",
	Usage:           "measure distances with an HC-SR04 ultrasonic sensor",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  generalFlagBoard,
			Usage: "board backend, one of genericlinux, periph or fake",
		},
		&cli.StringFlag{
			Name:  generalFlagGPIOChip,
			Usage: "GPIO character device used by the genericlinux backend",
			Value: board.DefaultGPIOChip,
		},
		&cli.IntFlag{
			Name:  generalFlagTrigger,
			Usage: "GPIO line wired to the sensor's TRIG pin",
			Value: defaultTriggerPin,
		},
		&cli.IntFlag{
			Name:  generalFlagEcho,
			Usage: "GPIO line wired to the sensor's ECHO pin",
			Value: defaultEchoPin,
		},
		&cli.Float64Flag{
			Name:  generalFlagTemperature,
			Usage: "ambient temperature in Celsius used to calibrate the speed of sound",
			Value: ultrasonic.DefaultTemperature,
		},
		&cli.StringFlag{
			Name:  generalFlagModel,
			Usage: "sensor model, one of hc-sr04 or hc-sr04p",
		},
		&cli.StringFlag{
			Name:    generalFlagConfig,
			Aliases: []string{"c"},
			Usage:   "load sensor attributes from a JSON `FILE`; flags given explicitly take precedence",
		},
		&cli.BoolFlag{
			Name:    generalFlagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
		&cli.StringFlag{
			Name:  generalFlagLogFile,
			Usage: "also write logs to `FILE`, rotated once it grows past 10MB",
		},
		&cli.StringFlag{
			Name:  generalFlagMQTTBroker,
			Usage: "also publish readings to this MQTT broker, e.g. tcp://localhost:1883",
		},
		&cli.StringFlag{
			Name:  generalFlagMQTTTopic,
			Usage: "MQTT topic readings are published on",
			Value: defaultMQTTTopic,
		},
		&cli.Float64Flag{
			Name:  generalFlagFakeDistance,
			Usage: "with the fake board, distance in meters of the simulated obstacle; 0 means none",
		},
		&cli.BoolFlag{
			Name:  generalFlagFakeUnresponsive,
			Usage: "with the fake board, simulate a sensor that never answers",
		},
	},
	Commands: []*cli.Command{
		{
			Name:  "distance",
			Usage: "print the distance to the nearest object at a fixed interval",
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:  distanceFlagInterval,
					Usage: "time between readings",
					Value: time.Second,
				},
				&cli.StringFlag{
					Name:  distanceFlagUnit,
					Usage: "unit of the printed distance: m, dm, cm or mm",
					Value: ultrasonic.Meters.String(),
				},
				&cli.IntFlag{
					Name:  distanceFlagCount,
					Usage: "stop after this many readings; 0 runs until interrupted",
				},
			},
			Action: DistanceAction,
		},
		{
			Name:  "door",
			Usage: "report a door opening or closing in front of the sensor",
			Description: `Place the sensor alongside the wall housing the door, so that an open door
becomes an obstacle closer than the threshold.`,
			Flags: []cli.Flag{
				&cli.Float64Flag{
					Name:  doorFlagThreshold,
					Usage: "distance in meters below which the door is open",
					Value: defaultDoorThreshold,
				},
				&cli.DurationFlag{
					Name:  doorFlagPoll,
					Usage: "time between readings",
					Value: 500 * time.Millisecond,
				},
				&cli.IntFlag{
					Name:  doorFlagCount,
					Usage: "stop after this many readings; 0 runs until interrupted",
				},
			},
			Action: DoorAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
