// Package envconfig provides configuration structs for constructing
// the Finger environment with default physical parameters and tasks.
// Configurations in this package are YAML serializable so that
// experiments can be driven from files.
package envconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	env "github.com/samuelfneumann/gofinger/environment"
	"github.com/samuelfneumann/gofinger/environment/finger"
	ts "github.com/samuelfneumann/gofinger/timestep"
)

// Default configuration values
const (
	DefaultTask            string  = finger.SpinTaskName
	DefaultFrameSkip       int     = 2
	DefaultMaxEpisodeSteps int     = 1000
	DefaultDiscount        float64 = 1.0
)

// Config describes a specific configuration of the Finger environment
// and one of its tasks
type Config struct {
	// Task selects which task the environment rewards. One of
	// finger.SpinTaskName, finger.TurnEasyTaskName, or
	// finger.TurnHardTaskName.
	Task string `yaml:"task"`

	// FrameSkip is the number of physics frames simulated per
	// environmental step
	FrameSkip int `yaml:"frame_skip"`

	// MaxEpisodeSteps is the number of environmental steps after
	// which episodes are cut off
	MaxEpisodeSteps int `yaml:"max_episode_steps"`

	Seed     uint64  `yaml:"seed"`
	Discount float64 `yaml:"discount"`

	// Diagnostics enables the environment's introspection accessors
	Diagnostics bool `yaml:"diagnostics"`

	// MaxInitAttempts bounds the rejection sampling performed when
	// searching for a contact-free initial state. Zero means the
	// environment default.
	MaxInitAttempts int `yaml:"max_init_attempts,omitempty"`
}

// Default returns the default Finger environment configuration with
// the argument seed
func Default(seed uint64) Config {
	return Config{
		Task:            DefaultTask,
		FrameSkip:       DefaultFrameSkip,
		MaxEpisodeSteps: DefaultMaxEpisodeSteps,
		Seed:            seed,
		Discount:        DefaultDiscount,
		MaxInitAttempts: finger.DefaultMaxInitAttempts,
	}
}

// Load reads a Config from a YAML file. Fields absent from the file
// keep their default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load: could not read config: %v", err)
	}

	config := Default(0)
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("load: could not parse config: %v", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("load: %v", err)
	}
	return config, nil
}

// Validate checks the Config for inconsistent settings
func (c Config) Validate() error {
	if c.FrameSkip <= 0 {
		return fmt.Errorf("validate: frame_skip should be positive "+
			"but got %v", c.FrameSkip)
	}
	if c.MaxEpisodeSteps <= 0 {
		return fmt.Errorf("validate: max_episode_steps should be positive "+
			"but got %v", c.MaxEpisodeSteps)
	}
	if c.MaxInitAttempts < 0 {
		return fmt.Errorf("validate: max_init_attempts should be "+
			"non-negative but got %v", c.MaxInitAttempts)
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("validate: discount should be in [0, 1] "+
			"but got %v", c.Discount)
	}
	return nil
}

// Create returns the Finger environment described by the Config,
// backed by the argument physics engine, as well as the first timestep
// of the environment
func (c Config) Create(e finger.Engine) (env.Environment, ts.TimeStep, error) {
	if err := c.Validate(); err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("create: %v", err)
	}

	task, err := finger.NewTask(c.Task, c.MaxEpisodeSteps)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("create: %w", err)
	}

	environment, step, err := finger.New(e, task, c.FrameSkip, c.Seed,
		c.Discount)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("create: %v", err)
	}

	f := environment.(*finger.Finger)
	if c.Diagnostics {
		f.EnableDiagnostics()
	}
	if c.MaxInitAttempts > 0 {
		f.SetMaxInitAttempts(c.MaxInitAttempts)
	}

	return environment, step, nil
}
