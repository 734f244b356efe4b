package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces ragd environment variables.
const envPrefix = "RAGD_"

// Load builds configuration with the usual precedence, highest first:
//
//  1. Environment variables (RAGD_SERVER_PORT, RAGD_EMBEDDINGS_BASE_URL, ...)
//  2. YAML config file, when configPath names one that exists
//  3. Hardcoded defaults
//
// Environment variables map to config keys by stripping the prefix and
// splitting section from field on the first underscore:
//
//	RAGD_SERVER_PORT            -> server.port
//	RAGD_EMBEDDINGS_BASE_URL    -> embeddings.base_url
//	RAGD_VECTORSTORE_PROVIDER   -> vectorstore.provider
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
			}
		} else if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		// RAGD_SERVER_SHUTDOWN_TIMEOUT -> server.shutdown_timeout:
		// the first underscore separates section from field, the rest
		// stay underscores.
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}
