package cli

import (
	"os"
	"strings"

	"github.com/cloudseed-io/seedctl/pkg/state"
	"github.com/cloudseed-io/seedctl/pkg/state/backend"
)

// Environment variable names for run record backend configuration.
const (
	// EnvStateBackend sets the backend type (local, s3, gcs, azurerm).
	EnvStateBackend = "SEEDCTL_STATE_BACKEND"

	// EnvStatePrefix prefixes backend-specific config environment
	// variables. SEEDCTL_STATE_PATH sets "path" for the local backend,
	// SEEDCTL_STATE_BUCKET sets "bucket" for S3/GCS, and so on.
	EnvStatePrefix = "SEEDCTL_STATE_"
)

// createStateManagerWithConfig creates a state manager with the given
// backend type and config.
//
// Configuration precedence (highest to lowest):
//  1. CLI flags (--backend, --backend-config)
//  2. Environment variables (SEEDCTL_STATE_BACKEND, SEEDCTL_STATE_*)
//  3. Hardcoded defaults (local backend with ~/.seedctl/runs)
func createStateManagerWithConfig(backendType string, backendConfig []string) (state.Manager, error) {
	effectiveBackend := "local"
	effectiveConfig := make(map[string]string)

	if envBackend := os.Getenv(EnvStateBackend); envBackend != "" {
		effectiveBackend = envBackend
	}

	for _, env := range os.Environ() {
		if strings.HasPrefix(env, EnvStatePrefix) && !strings.HasPrefix(env, EnvStateBackend) {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				key := strings.ToLower(strings.TrimPrefix(parts[0], EnvStatePrefix))
				effectiveConfig[key] = parts[1]
			}
		}
	}

	if backendType != "" {
		effectiveBackend = backendType
	}

	for _, c := range backendConfig {
		parts := strings.SplitN(c, "=", 2)
		if len(parts) == 2 {
			effectiveConfig[parts[0]] = parts[1]
		}
	}

	config := backend.Config{
		Type:   effectiveBackend,
		Config: effectiveConfig,
	}

	return state.NewManagerFromConfig(config)
}
