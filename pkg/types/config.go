package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FlapPolicy controls how the unresponsive-failure latch reacts to a
// successful probe after one or more failed ones
type FlapPolicy string

const (
	// FlapPolicyReset clears the latch entirely on any successful probe
	FlapPolicyReset FlapPolicy = "reset"

	// FlapPolicyCumulative keeps counting: unreachable time accumulates
	// across flaps within the phase and is never forgiven
	FlapPolicyCumulative FlapPolicy = "cumulative"
)

// InstanceConfig identifies one worker to monitor. Image, dataDir, and env
// are only needed when the orchestrator must recreate a removed container.
type InstanceConfig struct {
	Name      string   `yaml:"name"`
	Endpoint  string   `yaml:"endpoint"`  // JSON-RPC URL, e.g. http://localhost:8545
	Container string   `yaml:"container"` // containerd container ID
	Image     string   `yaml:"image,omitempty"`
	DataDir   string   `yaml:"dataDir,omitempty"`
	Env       []string `yaml:"env,omitempty"`
}

// WebhookConfig holds the notification endpoints. Empty URLs disable the
// corresponding notification.
type WebhookConfig struct {
	SuccessURL string `yaml:"successUrl"`
	FailureURL string `yaml:"failureUrl"`
}

// UpdateConfig controls the optional pull-build step before each run
type UpdateConfig struct {
	Enabled      bool     `yaml:"enabled"`
	RepoDir      string   `yaml:"repoDir"`
	Branch       string   `yaml:"branch"`
	BuildCommand []string `yaml:"buildCommand"`
}

// Config is the full, explicit configuration passed into the orchestrator
// at construction time. There is no ambient global configuration.
type Config struct {
	// Polling cadence
	TickInterval   time.Duration `yaml:"tickInterval"`
	StatusInterval time.Duration `yaml:"statusInterval"`

	// Failure thresholds
	SyncTimeout         time.Duration `yaml:"syncTimeout"`
	UnresponsiveTimeout time.Duration `yaml:"unresponsiveTimeout"`
	StallTimeout        time.Duration `yaml:"stallTimeout"`
	ProcessingDuration  time.Duration `yaml:"processingDuration"`
	ProbeTimeout        time.Duration `yaml:"probeTimeout"`
	FlapPolicy          FlapPolicy    `yaml:"flapPolicy"`

	// Log patterns that identify known failure modes when a worker exits
	FailurePatterns []string `yaml:"failurePatterns"`

	// Run cycling
	Loop bool `yaml:"loop"`

	// RestartWorkers restarts every worker container at the start of each
	// run. When false, already-running containers are adopted instead and
	// their start time counts against the sync timeout.
	RestartWorkers bool `yaml:"restartWorkers"`

	// Persistence
	HistoryPath string `yaml:"historyPath"` // append-only run log
	ArchivePath string `yaml:"archivePath"` // bbolt run archive; empty disables
	LogDir      string `yaml:"logDir"`      // per-run container log tails; empty disables

	// Collaborators
	ContainerdSocket string        `yaml:"containerdSocket"`
	Webhook          WebhookConfig `yaml:"webhook"`
	Update           UpdateConfig  `yaml:"update"`

	// Operator surface; empty addresses disable the listeners
	HTTPAddr string `yaml:"httpAddr"`
	GRPCAddr string `yaml:"grpcAddr"`

	Instances []InstanceConfig `yaml:"instances"`
}

// DefaultConfig returns a Config with the stock thresholds
func DefaultConfig() Config {
	return Config{
		TickInterval:        10 * time.Second,
		StatusInterval:      30 * time.Second,
		SyncTimeout:         3 * time.Hour,
		UnresponsiveTimeout: 5 * time.Minute,
		StallTimeout:        10 * time.Minute,
		ProcessingDuration:  30 * time.Minute,
		ProbeTimeout:        5 * time.Second,
		FlapPolicy:          FlapPolicyReset,
		HistoryPath:         "runs.log",
	}
}

// LoadConfig reads a YAML config file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the config for values the monitor cannot run with
func (c *Config) Validate() error {
	if len(c.Instances) == 0 {
		return fmt.Errorf("no instances configured")
	}

	seen := make(map[string]bool)
	for _, inst := range c.Instances {
		if inst.Name == "" {
			return fmt.Errorf("instance with empty name")
		}
		if seen[inst.Name] {
			return fmt.Errorf("duplicate instance name: %s", inst.Name)
		}
		seen[inst.Name] = true

		if inst.Endpoint == "" {
			return fmt.Errorf("instance %s: endpoint is required", inst.Name)
		}
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("tickInterval must be positive")
	}

	switch c.FlapPolicy {
	case FlapPolicyReset, FlapPolicyCumulative:
	default:
		return fmt.Errorf("unknown flapPolicy: %s", c.FlapPolicy)
	}

	if c.Update.Enabled {
		if c.Update.RepoDir == "" {
			return fmt.Errorf("update.repoDir is required when update is enabled")
		}
		if len(c.Update.BuildCommand) == 0 {
			return fmt.Errorf("update.buildCommand is required when update is enabled")
		}
	}

	return nil
}
