package cli

import (
	"github.com/cloudseed-io/seedctl/internal/logging"
	"github.com/cloudseed-io/seedctl/pkg/deployment"
	"github.com/cloudseed-io/seedctl/pkg/driver"
	"github.com/cloudseed-io/seedctl/pkg/driver/docker"
	"github.com/cloudseed-io/seedctl/pkg/driver/script"
	"github.com/cloudseed-io/seedctl/pkg/driver/static"
	"github.com/cloudseed-io/seedctl/pkg/engine"
	"github.com/cloudseed-io/seedctl/pkg/secrets"
	"github.com/cloudseed-io/seedctl/pkg/state"
)

// defaultParallelism caps concurrent applies within a batch.
const defaultParallelism = 10

// createRegistry builds the driver registry. The docker driver is only
// registered when a Docker daemon is reachable; declarations that never
// use it are unaffected either way.
func createRegistry(dep *deployment.Deployment, simulate bool) *driver.Registry {
	registry := driver.NewRegistry()
	registry.Register(script.New())

	if d, err := docker.New(); err == nil {
		registry.Register(d)
	} else {
		logging.Debug("docker driver unavailable", "error", err.Error())
	}

	// In simulate mode every declared kind converges in memory, which
	// exercises ordering, expressions and records without touching
	// real infrastructure.
	if simulate && dep != nil {
		for _, kind := range dep.Kinds() {
			registry.Register(static.New(kind))
		}
	}

	return registry
}

func createEngine(stateManager state.Manager, registry *driver.Registry) *engine.Engine {
	return engine.New(stateManager, registry, createSecretManager())
}

func createSecretManager() *secrets.Manager {
	return secrets.NewManager()
}
