package board

import (
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

const (
	// DefaultModel is the backend used when a config does not name one.
	DefaultModel = "genericlinux"
	// DefaultGPIOChip is the character device used by the genericlinux backend.
	DefaultGPIOChip = "/dev/gpiochip0"
)

// A Config selects and configures a board backend.
type Config struct {
	Model    string `json:"model,omitempty"`
	GPIOChip string `json:"gpio_chip,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	model := conf.Model
	if model == "" {
		model = DefaultModel
	}
	if _, ok := lookup(model); !ok {
		return utils.NewConfigValidationError(path,
			errors.Errorf("unknown board model %q, registered models are %v", model, RegisteredModels()))
	}
	return nil
}

// ModelOrDefault returns the configured model, or DefaultModel.
func (conf *Config) ModelOrDefault() string {
	if conf.Model == "" {
		return DefaultModel
	}
	return conf.Model
}

// GPIOChipOrDefault returns the configured chip device, or DefaultGPIOChip.
func (conf *Config) GPIOChipOrDefault() string {
	if conf.GPIOChip == "" {
		return DefaultGPIOChip
	}
	return conf.GPIOChip
}
