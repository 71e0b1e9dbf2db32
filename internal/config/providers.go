package config

import (
	"log"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// ProviderTuning is per-transport tuning. Zero values select adapter
// defaults.
type ProviderTuning struct {
	Enabled            bool `yaml:"enabled"`
	BulkConcurrency    int  `yaml:"bulk_concurrency"`
	SendTimeoutSeconds int  `yaml:"send_timeout_seconds"`
}

// SendTimeout resolves the per-provider timeout, falling back to the engine
// default.
func (t ProviderTuning) SendTimeout(fallback time.Duration) time.Duration {
	if t.SendTimeoutSeconds > 0 {
		return time.Duration(t.SendTimeoutSeconds) * time.Second
	}
	return fallback
}

// ProvidersConfig is the optional YAML tuning file:
//
//	fcm:
//	  enabled: true
//	  bulk_concurrency: 32
//	nats:
//	  enabled: true
//	sns:
//	  enabled: false
type ProvidersConfig struct {
	FCM  ProviderTuning `yaml:"fcm"`
	NATS ProviderTuning `yaml:"nats"`
	SNS  ProviderTuning `yaml:"sns"`
}

// defaultProvidersConfig enables every transport whose credentials are
// present in the environment; the YAML file narrows or tunes that.
func defaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		FCM:  ProviderTuning{Enabled: true},
		NATS: ProviderTuning{Enabled: true},
		SNS:  ProviderTuning{Enabled: true},
	}
}

func loadProvidersConfig(path string) ProvidersConfig {
	cfg := defaultProvidersConfig()
	if path == "" {
		return cfg
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		log.Printf("Failed to read providers config %s: %v, using defaults", path, err)
		return cfg
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		log.Printf("Failed to parse providers config %s: %v, using defaults", path, err)
		return defaultProvidersConfig()
	}
	return cfg
}
