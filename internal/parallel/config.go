package parallel

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime knobs left to the execution environment and
// overridable by config: thread width, process count, segments per
// thread, and the rank roster. Threads and Addrs are read by the cmd/
// binaries; Processes and SegmentsPerThread are parsed but nothing in this
// module reads them (NewLocalGroup takes its size as an argument, and
// distmap.New always uses concurrent.SegmentsPerThread).
type Config struct {
	Threads           int      `yaml:"threads"`
	Processes         int      `yaml:"processes"`
	SegmentsPerThread int      `yaml:"segments_per_thread"`
	Addrs             []string `yaml:"addrs"`
}

// DefaultConfig returns a Config with Threads detected from the runtime
// environment (runtime.NumCPU) and otherwise-reasonable defaults.
func DefaultConfig() Config {
	return Config{
		Threads:           runtime.NumCPU(),
		Processes:         1,
		SegmentsPerThread: 7,
	}
}

// LoadConfig reads a YAML file at path and overlays it on DefaultConfig,
// leaving any zero-valued field at its default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("parallel: read config %s: %w", path, err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return cfg, fmt.Errorf("parallel: parse config %s: %w", path, err)
	}

	if overlay.Threads > 0 {
		cfg.Threads = overlay.Threads
	}
	if overlay.Processes > 0 {
		cfg.Processes = overlay.Processes
	}
	if overlay.SegmentsPerThread > 0 {
		cfg.SegmentsPerThread = overlay.SegmentsPerThread
	}
	if len(overlay.Addrs) > 0 {
		cfg.Addrs = overlay.Addrs
	}
	return cfg, nil
}
