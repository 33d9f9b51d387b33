package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigName is the conventional file name searched for in the
// working directory and the archive directory.
const DefaultConfigName = "beansync.toml"

// Load builds the configuration in priority order: defaults, then the
// config file, then BEANSYNC_-prefixed environment variables. An empty
// path searches the working directory; a missing file is only an error
// when the path was explicit.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	explicit := path != ""
	if !explicit {
		path = DefaultConfigName
	}

	loaded := false
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		loaded = true
	} else if explicit {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	v.SetEnvPrefix("BEANSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if loaded {
		cfg.configPath = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindEnvKeys registers every known key so AutomaticEnv sees variables
// for keys absent from both defaults and the file.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"remote.api_key",
		"remote.base_url",
		"remote.requests_per_second",
		"remote.timeout_seconds",
		"archive.path",
		"archive.layout",
		"rules.path",
		"sync.concurrency",
		"logging.level",
		"logging.format",
	} {
		// BindEnv only fails on an empty key.
		_ = v.BindEnv(key)
	}
}
