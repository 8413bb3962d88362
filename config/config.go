// Package config reads pixel source options from a config file and the environment.
package config

import (
	"fmt"
	"os"

	"github.com/iancoleman/strcase"
	"github.com/spf13/viper"

	"github.com/pdok/pixeltiles/pixel"
)

// EnvPrefix is the prefix of environment variables overriding the config file,
// e.g. PIXELTILES_TILE_SIZE=512.
const EnvPrefix = "PIXELTILES"

var keys = []string{"width", "height", "tileSize", "strategy", "url", "cacheSize", "pixelRatio", "grid"}

// EnvVar returns the name of the environment variable for a config key or flag, e.g.
// PIXELTILES_TILE_SIZE for tileSize.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strcase.ToScreamingSnake(key)
}

// Read reads the options from path, the format is derived from its extension (toml, yaml or json).
// Without a path only the environment is read. The options are neither defaulted nor validated,
// so callers can still override them.
func Read(path string) (pixel.Options, error) {
	var opts pixel.Options

	v := viper.New()
	for _, key := range keys {
		if err := v.BindEnv(key, EnvVar(key)); err != nil {
			return opts, err
		}
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return opts, fmt.Errorf("config file %s: %w", path, err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return opts, fmt.Errorf("read config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	if err := v.Unmarshal(&opts); err != nil {
		return opts, fmt.Errorf("decode config: %w", err)
	}
	return opts, nil
}

// Load is Read followed by filling in defaults and validating.
func Load(path string) (pixel.Options, error) {
	opts, err := Read(path)
	if err != nil {
		return opts, err
	}
	if err = opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}
