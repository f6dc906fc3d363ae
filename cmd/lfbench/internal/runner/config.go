package runner

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// WorkloadConfig describes one benchmark run, loadable from a YAML
// file via --config so a run can be reproduced without retyping every
// flag.
type WorkloadConfig struct {
	Engine     string        `yaml:"engine"`      // "bwtree" or "skiplist"
	Workers    int           `yaml:"workers"`
	Operations int           `yaml:"operations"`
	KeySpace   int           `yaml:"key_space"`
	UniqueKeys bool          `yaml:"unique_keys"`
	Duration   time.Duration `yaml:"duration"`
}

// DefaultWorkloadConfig mirrors the flag defaults registered on the
// run command.
func DefaultWorkloadConfig() WorkloadConfig {
	return WorkloadConfig{
		Engine:     "bwtree",
		Workers:    8,
		Operations: 100_000,
		KeySpace:   1_000_000,
		Duration:   30 * time.Second,
	}
}

// LoadWorkloadConfig reads and parses a YAML workload file.
func LoadWorkloadConfig(path string) (WorkloadConfig, error) {
	cfg := DefaultWorkloadConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "lfbench: reading config %s", path)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "lfbench: parsing config %s", path)
	}
	return cfg, nil
}
