package board

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/hcsr04/logging"
)

// A Constructor builds a board backend from its config.
type Constructor func(ctx context.Context, conf Config, logger logging.Logger) (Board, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register makes a backend available under the given model name. It panics if the name is
// already taken, since that can only happen from conflicting init functions.
func Register(model string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[model]; ok {
		panic(errors.Errorf("board model %q already registered", model))
	}
	registry[model] = constructor
}

func lookup(model string) (Constructor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	constructor, ok := registry[model]
	return constructor, ok
}

// RegisteredModels returns the names of all registered backends, sorted.
func RegisteredModels() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	models := make([]string, 0, len(registry))
	for model := range registry {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// New builds the board backend named by the config.
func New(ctx context.Context, conf Config, logger logging.Logger) (Board, error) {
	if err := conf.Validate("board"); err != nil {
		return nil, err
	}
	constructor, _ := lookup(conf.ModelOrDefault())
	b, err := constructor(ctx, conf, logger.Sublogger(conf.ModelOrDefault()))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot build %s board", conf.ModelOrDefault())
	}
	return b, nil
}
