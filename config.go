package ringdb

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the on-disk description of a ring stack, loaded from a config
// file (YAML, TOML or JSON; anything viper reads). Rings are listed bottom
// to top.
type Config struct {
	FlushDebounce time.Duration `mapstructure:"flush_debounce"`
	Rings         []RingConfig  `mapstructure:"rings"`
}

// LoadConfig reads and validates a ring-stack configuration file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("ringdb: reading config %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("ringdb: parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ringdb: config %s: %w", path, err)
	}
	return &cfg, nil
}

func (cfg *Config) Validate() error {
	if len(cfg.Rings) == 0 {
		return fmt.Errorf("no rings configured")
	}
	seen := make(map[string]bool, len(cfg.Rings))
	for i, rc := range cfg.Rings {
		if rc.Name == "" {
			return fmt.Errorf("ring %d has no name", i)
		}
		if seen[rc.Name] {
			return fmt.Errorf("duplicate ring name %q", rc.Name)
		}
		seen[rc.Name] = true
		if rc.StopID != 0 && rc.StopID <= rc.StartID {
			return fmt.Errorf("ring %q: empty id range [%d, %d)", rc.Name, rc.StartID, rc.StopID)
		}
		if rc.Format != "" && rc.Format != "memory" && rc.Path == "" {
			return fmt.Errorf("ring %q: format %q requires a path", rc.Name, rc.Format)
		}
	}
	return nil
}
