package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/vrischmann/envconfig"
)

// Env is the process-level configuration read from the environment.
type Env struct {
	SyncConfigPath     string `envconfig:"SYNC_CONFIG_PATH,default=configs/sync.yaml"`
	ProviderConfigPath string `envconfig:"DNS_PROVIDER_PATH,default=configs/dns-provider.yaml"`
	MetricsAddr        string `envconfig:"METRICS_BIND_ADDRESS,default=:9090"`
	ProbeAddr          string `envconfig:"HEALTH_PROBE_BIND_ADDRESS,default=:8081"`
}

// LoadEnv loads an optional dotenv file and then reads Env from the
// environment. A missing dotenv file is not an error.
func LoadEnv(dotenvPath string) (*Env, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", dotenvPath, err)
		}
	}

	var env Env
	if err := envconfig.Init(&env); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return &env, nil
}
