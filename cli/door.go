package cli

import (
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/hcsr04/components/sensor/ultrasonic"
)

// doorDetector tracks a door from distance readings. An obstacle closer than the threshold is
// the open door; nothing in range counts as not closer.
type doorDetector struct {
	threshold float64
	closed    bool
}

func newDoorDetector(threshold float64) *doorDetector {
	return &doorDetector{threshold: threshold, closed: true}
}

// observe returns whether the reading changed the door state.
func (d *doorDetector) observe(meters float64, inRange bool) bool {
	below := inRange && meters < d.threshold
	if below != d.closed {
		return false
	}
	d.closed = !d.closed
	return true
}

func (d *doorDetector) event() string {
	if d.closed {
		return "closed"
	}
	return "opened"
}

// DoorAction reports door transitions until interrupted.
func DoorAction(c *cli.Context) (err error) {
	threshold := c.Float64(doorFlagThreshold)
	poll := c.Duration(doorFlagPoll)
	count := c.Int(doorFlagCount)

	sess, err := newSession(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, sess.Close())
	}()

	door := newDoorDetector(threshold)
	for i := 0; count <= 0 || i < count; i++ {
		if i > 0 && !utils.SelectContextOrWait(c.Context, poll) {
			return nil
		}
		meters, inRange, err := sess.sensor.MeasureDistance(c.Context, ultrasonic.Meters)
		if err != nil {
			return err
		}
		if !door.observe(meters, inRange) {
			continue
		}

		if door.closed {
			color.New(color.Bold, color.FgGreen).Fprintln(c.App.Writer, "Door closed!")
		} else {
			color.New(color.Bold, color.FgRed).Fprintln(c.App.Writer, "Door opened!")
		}
		sess.publish(doorEvent{Sensor: sess.sensor.Name(), Time: time.Now(), Event: door.event()})
	}
	return nil
}
