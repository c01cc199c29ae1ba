package thresholds

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrConfigInvalid marks a threshold configuration that cannot be used for
// classification. A cycle seeing this aborts before classification.
var ErrConfigInvalid = errors.New("threshold config invalid")

// Bounds holds the three numeric boundaries for one metric. Values are
// compared with >= against each boundary, critical first.
type Bounds struct {
	Critical float64 `yaml:"critical" json:"critical"`
	Warning  float64 `yaml:"warning" json:"warning"`
	OK       float64 `yaml:"ok" json:"ok"`
}

// Config maps metric names to their boundaries. Immutable during a cycle,
// reloadable between cycles.
type Config map[string]Bounds

// Load reads and validates a threshold file. The file is reloaded every cycle
// so operators can tune boundaries without a restart.
func Load(path string) (Config, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no threshold file configured", ErrConfigInvalid)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrConfigInvalid, path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrConfigInvalid, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every metric carries ordered boundaries.
func (c Config) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("%w: no metrics configured", ErrConfigInvalid)
	}
	for name, bounds := range c {
		if name == "" {
			return fmt.Errorf("%w: empty metric name", ErrConfigInvalid)
		}
		if bounds.Critical < bounds.Warning || bounds.Warning < bounds.OK {
			return fmt.Errorf("%w: %s boundaries must satisfy ok <= warning <= critical", ErrConfigInvalid, name)
		}
	}
	return nil
}
