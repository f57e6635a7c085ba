package config

import (
	"fmt"
	"sync"
)

var (
	globalConfig *Config
	configMutex  sync.RWMutex
	initOnce     sync.Once
)

// Initialize loads configuration from path with environment overrides and
// installs it as the process-wide configuration. Only the first call has an
// effect. An empty path installs the defaults plus overrides.
func Initialize(path string) error {
	var initErr error
	initOnce.Do(func() {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err != nil {
			initErr = err
			return
		}
		SetConfig(cfg)
	})
	return initErr
}

// GetConfig returns the process-wide configuration, or nil before Initialize.
// Library packages take an explicit *Config instead.
func GetConfig() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// SetConfig replaces the process-wide configuration. Intended for tests and
// for the CLI after flag overrides.
func SetConfig(cfg *Config) {
	configMutex.Lock()
	globalConfig = cfg
	configMutex.Unlock()
}

// ReloadConfig re-reads path. The current configuration is kept when the new
// one fails to load or validate.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	SetConfig(cfg)
	return nil
}

// MustGetConfig is GetConfig that panics when Initialize has not succeeded.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}
