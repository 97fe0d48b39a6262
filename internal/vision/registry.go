package vision

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Constructor builds a configured service.
type Constructor func(ctx context.Context, deps Dependencies, conf ResourceConfig, logger *slog.Logger) (Service, error)

// AttributeValidator checks a configuration and returns the names of
// cameras it implicitly depends on.
type AttributeValidator func(conf ResourceConfig) ([]string, error)

// Registration describes how to build a model.
type Registration struct {
	Constructor        Constructor
	AttributeValidator AttributeValidator
}

type registryKey struct {
	api   API
	model Model
}

var (
	registryMu sync.RWMutex
	registry   = make(map[registryKey]Registration)
)

// Register makes a model available under api. Registering the same pair
// twice panics.
func Register(api API, model Model, reg Registration) {
	if reg.Constructor == nil {
		panic(fmt.Sprintf("vision: nil constructor for %s %s", api, model))
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	key := registryKey{api: api, model: model}
	if _, dup := registry[key]; dup {
		panic(fmt.Sprintf("vision: model %s already registered for %s", model, api))
	}
	registry[key] = reg
}

// Lookup returns the registration for api and model.
func Lookup(api API, model Model) (Registration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[registryKey{api: api, model: model}]
	return reg, ok
}

// RegisteredModels lists every registered model, sorted by name.
func RegisteredModels() []Model {
	registryMu.RLock()
	defer registryMu.RUnlock()
	models := make([]Model, 0, len(registry))
	for k := range registry {
		models = append(models, k.model)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].String() < models[j].String() })
	return models
}

// Build validates conf and constructs the service registered for it.
func Build(ctx context.Context, deps Dependencies, conf ResourceConfig, logger *slog.Logger) (Service, error) {
	api := conf.API
	if api == (API{}) {
		api = APIVision
	}
	reg, ok := Lookup(api, conf.Model)
	if !ok {
		return nil, fmt.Errorf("no registration for model %s under %s", conf.Model, api)
	}
	if reg.AttributeValidator != nil {
		if _, err := reg.AttributeValidator(conf); err != nil {
			return nil, fmt.Errorf("invalid config for %s: %w", conf.Name, err)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return reg.Constructor(ctx, deps, conf, logger.With("resource", conf.Name, "model", conf.Model.String()))
}
