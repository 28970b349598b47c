package ultrasonic

import (
	"math"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/hcsr04/components/board"
)

// Upper bounds of the config overrides. Nothing an ultrasonic sensor can do needs more, and the
// derived durations must fit in a time.Duration.
const (
	MaxNoResponseTimeout = time.Minute
	MaxRangeLimit        = 100.0
)

// Config is used for converting config attributes.
type Config struct {
	TriggerPin   *int     `json:"trigger_pin"`
	EchoPin      *int     `json:"echo_pin"`
	TemperatureC *float64 `json:"temperature_c,omitempty"`

	// Model selects the timing profile, see ProfileByName.
	Model string `json:"model,omitempty"`

	NoResponseTimeoutMs uint    `json:"no_response_timeout_ms,omitempty"`
	MinRangeMeters      float64 `json:"min_range_m,omitempty"`
	MaxRangeMeters      float64 `json:"max_range_m,omitempty"`

	// Board and GPIOChip select the board backend when the sensor opens its own board.
	Board    string `json:"board,omitempty"`
	GPIOChip string `json:"gpio_chip,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.TriggerPin == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "trigger_pin")
	}
	if conf.EchoPin == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "echo_pin")
	}
	for _, pin := range []struct {
		field string
		value int
	}{{"trigger_pin", *conf.TriggerPin}, {"echo_pin", *conf.EchoPin}} {
		if pin.value < 0 || pin.value > math.MaxUint8 {
			return utils.NewConfigValidationError(path,
				errors.Errorf("%s %d out of range, must be between 0 and %d", pin.field, pin.value, math.MaxUint8))
		}
	}
	if *conf.TriggerPin == *conf.EchoPin {
		return utils.NewConfigValidationError(path,
			errors.Errorf("trigger_pin and echo_pin must be different lines, both are %d", *conf.TriggerPin))
	}
	if conf.TemperatureC != nil && (math.IsNaN(*conf.TemperatureC) || math.IsInf(*conf.TemperatureC, 0)) {
		return utils.NewConfigValidationError(path, errors.New("temperature_c must be a finite number"))
	}
	if conf.NoResponseTimeoutMs > uint(MaxNoResponseTimeout/time.Millisecond) {
		return utils.NewConfigValidationError(path,
			errors.Errorf("no_response_timeout_ms %d exceeds the maximum of %d",
				conf.NoResponseTimeoutMs, MaxNoResponseTimeout/time.Millisecond))
	}
	if conf.MinRangeMeters < 0 || conf.MaxRangeMeters < 0 {
		return utils.NewConfigValidationError(path, errors.New("min_range_m and max_range_m cannot be negative"))
	}
	if conf.MinRangeMeters > MaxRangeLimit || conf.MaxRangeMeters > MaxRangeLimit ||
		math.IsNaN(conf.MinRangeMeters) || math.IsNaN(conf.MaxRangeMeters) {
		return utils.NewConfigValidationError(path,
			errors.Errorf("min_range_m and max_range_m must be numbers no larger than %gm", MaxRangeLimit))
	}
	p, err := conf.Profile()
	if err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if p.MinRange >= p.MaxRange {
		return utils.NewConfigValidationError(path,
			errors.Errorf("min range %.3fm must be below max range %.3fm", p.MinRange, p.MaxRange))
	}
	return nil
}

// Profile returns the configured model's profile with the overrides of conf applied.
func (conf *Config) Profile() (Profile, error) {
	p, err := ProfileByName(conf.Model)
	if err != nil {
		return Profile{}, err
	}
	if conf.NoResponseTimeoutMs > 0 {
		p.NoResponseTimeout = time.Duration(conf.NoResponseTimeoutMs) * time.Millisecond
	}
	if conf.MinRangeMeters > 0 {
		p.MinRange = conf.MinRangeMeters
	}
	if conf.MaxRangeMeters > 0 {
		p.MaxRange = conf.MaxRangeMeters
	}
	return p, nil
}

// BoardConfig returns the board backend configuration embedded in conf.
func (conf *Config) BoardConfig() board.Config {
	return board.Config{Model: conf.Board, GPIOChip: conf.GPIOChip}
}

// ConfigFromAttributes decodes a loosely typed attribute map, such as one read from a JSON or YAML
// file, into a Config. Unknown attributes are an error.
func ConfigFromAttributes(attributes map[string]interface{}) (*Config, error) {
	var conf Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &conf,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "cannot decode ultrasonic sensor attributes")
	}
	return &conf, nil
}
