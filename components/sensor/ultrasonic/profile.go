package ultrasonic

import (
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// A Profile pins the timing and range constants of one hardware revision.
type Profile struct {
	Name string

	// SettleTime is how long the trigger is held low before the pulse, for a clean rising edge.
	SettleTime time.Duration
	// TriggerPulse is the width of the trigger pulse.
	TriggerPulse time.Duration
	// NoResponseTimeout bounds the wait for the echo to rise after a trigger.
	NoResponseTimeout time.Duration
	// EchoTimeoutMargin is added on top of the round trip at MaxRange when waiting for the echo
	// to end, as a fraction of it.
	EchoTimeoutMargin float64

	// MinRange and MaxRange are in meters.
	MinRange float64
	MaxRange float64

	// The speed of sound is SpeedOfSoundAt0C + SpeedOfSoundPerDegree*T, in m/s.
	SpeedOfSoundAt0C      float64
	SpeedOfSoundPerDegree float64
}

// DefaultTemperature is the ambient temperature assumed when none is given, in Celsius.
const DefaultTemperature = 20.0

var (
	// HCSR04 is the classic 5V module.
	HCSR04 = Profile{
		Name:                  "hc-sr04",
		SettleTime:            2 * time.Microsecond,
		TriggerPulse:          10 * time.Microsecond,
		NoResponseTimeout:     time.Second,
		EchoTimeoutMargin:     0.1,
		MinRange:              0.02,
		MaxRange:              4.0,
		SpeedOfSoundAt0C:      331.3,
		SpeedOfSoundPerDegree: 0.606,
	}

	// HCSR04P is the 3.3V capable revision. Its datasheet gives a 3cm blind zone.
	HCSR04P = Profile{
		Name:                  "hc-sr04p",
		SettleTime:            2 * time.Microsecond,
		TriggerPulse:          10 * time.Microsecond,
		NoResponseTimeout:     time.Second,
		EchoTimeoutMargin:     0.1,
		MinRange:              0.03,
		MaxRange:              4.0,
		SpeedOfSoundAt0C:      331.3,
		SpeedOfSoundPerDegree: 0.606,
	}

	profiles = map[string]Profile{
		HCSR04.Name:  HCSR04,
		HCSR04P.Name: HCSR04P,
	}
)

// ProfileByName returns the named profile. An empty name is HCSR04.
func ProfileByName(name string) (Profile, error) {
	if name == "" {
		return HCSR04, nil
	}
	p, ok := profiles[name]
	if !ok {
		return Profile{}, errors.Errorf("unknown sensor model %q, expected one of %v", name, ProfileNames())
	}
	return p, nil
}

// ProfileNames returns the known profile names, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SpeedOfSound returns the speed of sound in m/s at the given temperature. Temperatures far
// outside what air can have give meaningless, but finite, values.
func (p Profile) SpeedOfSound(temperatureC float64) float64 {
	return p.SpeedOfSoundAt0C + p.SpeedOfSoundPerDegree*temperatureC
}

// EchoTimeout bounds the wait for the end of the echo: the round trip at MaxRange plus the margin.
// A nonsensical speed of sound falls back to NoResponseTimeout so the wait stays bounded.
func (p Profile) EchoTimeout(speedOfSound float64) time.Duration {
	if speedOfSound <= 0 || math.IsNaN(speedOfSound) || math.IsInf(speedOfSound, 0) {
		return p.NoResponseTimeout
	}
	roundTrip := 2 * p.MaxRange / speedOfSound
	return time.Duration(roundTrip * (1 + p.EchoTimeoutMargin) * float64(time.Second))
}
