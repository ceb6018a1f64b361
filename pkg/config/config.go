package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/burrow/pkg/rabbitmq"
)

// PassphraseEnv overrides the passphrase from the file when set
const PassphraseEnv = "BURROW_PASSPHRASE"

var validate = validator.New()

// Config is the on-disk configuration of a burrow node
type Config struct {
	// Hostname identifies this node among the head nodes (default: os.Hostname)
	Hostname string `yaml:"hostname" validate:"required,hostname_rfc1123"`

	// HeadNodes lists every head node, this one included, in join order
	HeadNodes []string `yaml:"head_nodes" validate:"required,min=1,dive,hostname_rfc1123"`

	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`

	// StateDir holds the credential database
	StateDir string `yaml:"state_dir" validate:"required"`

	// Passphrase, when set, encrypts stored credentials
	Passphrase string `yaml:"passphrase"`

	// Interval between convergence cycles; zero runs a single cycle
	Interval time.Duration `yaml:"interval" validate:"gte=0"`

	// MetricsAddr serves /metrics when set (e.g. "127.0.0.1:9419")
	MetricsAddr string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`

	Log LogConfig `yaml:"log"`
}

// RabbitMQConfig locates the broker CLI and the managed user
type RabbitMQConfig struct {
	CtlPath        string        `yaml:"ctl_path" validate:"required"`
	PluginsPath    string        `yaml:"plugins_path" validate:"required"`
	User           string        `yaml:"user" validate:"required"`
	CommandTimeout time.Duration `yaml:"command_timeout" validate:"gte=0"`
	Plugins        []string      `yaml:"plugins" validate:"dive,required"`
}

// LogConfig selects log level and format
type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// Default returns a Config with every optional field filled in
func Default() *Config {
	hostname, _ := os.Hostname()
	if i := strings.IndexByte(hostname, '.'); i > 0 {
		hostname = hostname[:i]
	}
	return &Config{
		Hostname: hostname,
		RabbitMQ: RabbitMQConfig{
			CtlPath:        rabbitmq.DefaultCtlPath,
			PluginsPath:    rabbitmq.DefaultPluginsPath,
			User:           "guest",
			CommandTimeout: 2 * time.Minute,
			Plugins:        []string{"rabbitmq_management"},
		},
		StateDir: "/var/lib/burrow",
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if env := os.Getenv(PassphraseEnv); env != "" {
		cfg.Passphrase = env
	}
	return cfg, nil
}

// Validate checks struct constraints and that this node is a head node
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	for _, h := range c.HeadNodes {
		if h == c.Hostname {
			return nil
		}
	}
	return fmt.Errorf("hostname %q is not listed in head_nodes", c.Hostname)
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %s validation", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
