package cli

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/hcsr04/components/sensor/ultrasonic"
)

// DistanceAction prints a measurement every interval.
func DistanceAction(c *cli.Context) (err error) {
	unit, err := ultrasonic.ParseUnit(c.String(distanceFlagUnit))
	if err != nil {
		return err
	}
	interval := c.Duration(distanceFlagInterval)
	count := c.Int(distanceFlagCount)

	sess, err := newSession(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, sess.Close())
	}()

	for i := 0; count <= 0 || i < count; i++ {
		if i > 0 && !utils.SelectContextOrWait(c.Context, interval) {
			return nil
		}
		distance, inRange, err := sess.sensor.MeasureDistance(c.Context, unit)
		if err != nil {
			return err
		}

		r := reading{
			Sensor:       sess.sensor.Name(),
			Time:         time.Now(),
			Unit:         unit.String(),
			InRange:      inRange,
			TemperatureC: sess.sensor.Temperature(),
		}
		if inRange {
			r.Distance = &distance
			fmt.Fprintf(c.App.Writer, "Distance: %.2f%s\n", distance, unit)
		} else {
			fmt.Fprintln(c.App.Writer, "Object out of range")
		}
		sess.publish(r)
	}
	return nil
}
