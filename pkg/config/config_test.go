package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "burrow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
hostname: h1
head_nodes: [h1, h2, h3]
state_dir: /tmp/burrow
interval: 30s
metrics_addr: 127.0.0.1:9419
rabbitmq:
  ctl_path: /usr/sbin/rabbitmqctl
  command_timeout: 45s
  plugins: [rabbitmq_management, rabbitmq_shovel]
log:
  level: debug
  json: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "h1", cfg.Hostname)
	assert.Equal(t, []string{"h1", "h2", "h3"}, cfg.HeadNodes)
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, "/usr/sbin/rabbitmqctl", cfg.RabbitMQ.CtlPath)
	assert.Equal(t, 45*time.Second, cfg.RabbitMQ.CommandTimeout)
	assert.Equal(t, []string{"rabbitmq_management", "rabbitmq_shovel"}, cfg.RabbitMQ.Plugins)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)

	// defaults survive a partial rabbitmq section
	assert.Equal(t, "guest", cfg.RabbitMQ.User)
	assert.Equal(t, "/usr/sbin/rabbitmq-plugins", cfg.RabbitMQ.PluginsPath)
}

func TestLoadPassphraseFromEnv(t *testing.T) {
	t.Setenv(PassphraseEnv, "from-env")
	path := writeConfig(t, "passphrase: from-file\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Passphrase)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "head_nodes: [h1\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Hostname = "h1"
		cfg.HeadNodes = []string{"h1", "h2"}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "no head nodes",
			mutate:  func(c *Config) { c.HeadNodes = nil },
			wantErr: "HeadNodes",
		},
		{
			name:    "self not a head node",
			mutate:  func(c *Config) { c.Hostname = "h9" },
			wantErr: "not listed in head_nodes",
		},
		{
			name:    "bad hostname",
			mutate:  func(c *Config) { c.HeadNodes = []string{"h1", "bad host"} },
			wantErr: "hostname_rfc1123",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: "Level",
		},
		{
			name:    "bad metrics address",
			mutate:  func(c *Config) { c.MetricsAddr = "nowhere" },
			wantErr: "MetricsAddr",
		},
		{
			name:    "negative interval",
			mutate:  func(c *Config) { c.Interval = -time.Second },
			wantErr: "Interval",
		},
		{
			name:    "missing user",
			mutate:  func(c *Config) { c.RabbitMQ.User = "" },
			wantErr: "User",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
