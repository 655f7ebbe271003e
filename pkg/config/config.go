package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings
// such as "30s" or "10m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// StoreBackend selects the coordination-store implementation
type StoreBackend string

const (
	StoreBackendBolt   StoreBackend = "bolt"
	StoreBackendConsul StoreBackend = "consul"
)

// Config holds the full daemon configuration
type Config struct {
	LogLevel  string             `yaml:"log_level"`
	LogJSON   bool               `yaml:"log_json"`
	DataDir   string             `yaml:"data_dir"`
	HTTPAddr  string             `yaml:"http_addr"` // metrics endpoint
	Store     StoreConfig        `yaml:"store"`
	Mesos     MesosConfig        `yaml:"mesos"`
	LB        LoadBalancerConfig `yaml:"load_balancer"`
	Intervals IntervalConfig     `yaml:"intervals"`
}

// StoreConfig selects and configures the coordination-store backend
type StoreConfig struct {
	Backend      StoreBackend `yaml:"backend"`
	ConsulAddr   string       `yaml:"consul_addr"`
	SlaveRoot    string       `yaml:"slave_root"`
	RackRoot     string       `yaml:"rack_root"`
	MetadataRoot string       `yaml:"metadata_root"`
}

// MesosConfig holds orchestrator integration settings
type MesosConfig struct {
	MasterURI          string `yaml:"master_uri"`
	RackIDAttributeKey string `yaml:"rack_id_attribute_key"`
	DefaultRackID      string `yaml:"default_rack_id"`
}

// LoadBalancerConfig holds the load-balancer collaborator settings
type LoadBalancerConfig struct {
	BaseURI string   `yaml:"base_uri"`
	Timeout Duration `yaml:"timeout"`
}

// IntervalConfig holds the periodic pass intervals
type IntervalConfig struct {
	Resync       Duration `yaml:"resync"`
	UpstreamSync Duration `yaml:"upstream_sync"`
}

// Default returns the configuration defaults applied before file values
func Default() *Config {
	return &Config{
		LogLevel: "info",
		DataDir:  "/var/lib/singularity",
		HTTPAddr: ":9090",
		Store: StoreConfig{
			Backend:      StoreBackendBolt,
			ConsulAddr:   "127.0.0.1:8500",
			SlaveRoot:    "singularity/slaves",
			RackRoot:     "singularity/racks",
			MetadataRoot: "singularity",
		},
		Mesos: MesosConfig{
			RackIDAttributeKey: "rackid",
			DefaultRackID:      "DEFAULT",
		},
		LB: LoadBalancerConfig{
			Timeout: Duration(10 * time.Second),
		},
		Intervals: IntervalConfig{
			Resync:       Duration(10 * time.Minute),
			UpstreamSync: Duration(30 * time.Second),
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case StoreBackendBolt, StoreBackendConsul:
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}

	if c.Intervals.Resync <= 0 || c.Intervals.UpstreamSync <= 0 {
		return fmt.Errorf("intervals must be positive")
	}

	return nil
}
