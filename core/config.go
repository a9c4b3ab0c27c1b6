package core

import (
	"fmt"
	"strings"
	"time"
)

type StateConfig struct {
	Seal bool `koanf:"seal" mapstructure:"seal"`
}

type RemoteConfig struct {
	Timeout string `koanf:"timeout" mapstructure:"timeout"`
}

type SyncConfig struct {
	Disabled bool `koanf:"disabled" mapstructure:"disabled"`
}

type AuditConfig struct {
	Disabled bool `koanf:"disabled" mapstructure:"disabled"`
}

type TokenConfig struct {
	ValidationCacheTTL string `koanf:"validation_cache_ttl" mapstructure:"validation_cache_ttl"`
}

type Config struct {
	ServiceName string       `koanf:"service_name" mapstructure:"service_name"`
	State       StateConfig  `koanf:"state" mapstructure:"state"`
	Remote      RemoteConfig `koanf:"remote" mapstructure:"remote"`
	Sync        SyncConfig   `koanf:"sync" mapstructure:"sync"`
	Audit       AuditConfig  `koanf:"audit" mapstructure:"audit"`
	Token       TokenConfig  `koanf:"token" mapstructure:"token"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "psd2-sca",
		Remote:      RemoteConfig{Timeout: "30s"},
		Token:       TokenConfig{ValidationCacheTTL: "1m"},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if _, err := parseOptionalDuration(c.Remote.Timeout); err != nil {
		return fmt.Errorf("core: invalid remote.timeout: %w", err)
	}
	if _, err := parseOptionalDuration(c.Token.ValidationCacheTTL); err != nil {
		return fmt.Errorf("core: invalid token.validation_cache_ttl: %w", err)
	}
	return nil
}

// RemoteTimeout bounds every AuthClient call. Zero leaves the caller's
// deadline in charge.
func (c Config) RemoteTimeout() time.Duration {
	timeout, _ := parseOptionalDuration(c.Remote.Timeout)
	return timeout
}

func (c Config) TokenValidationCacheTTL() time.Duration {
	ttl, _ := parseOptionalDuration(c.Token.ValidationCacheTTL)
	return ttl
}

func parseOptionalDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if parsed < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", value)
	}
	return parsed, nil
}
