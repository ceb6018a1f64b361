package rabbitmq

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/runner"
	"github.com/cuemby/burrow/pkg/types"
)

const (
	// DefaultCtlPath is where the broker packages install rabbitmqctl
	DefaultCtlPath = "rabbitmqctl"

	// DefaultPluginsPath is where the broker packages install rabbitmq-plugins
	DefaultPluginsPath = "/usr/sbin/rabbitmq-plugins"

	// NodePrefix is the Erlang node name prefix of every broker node
	NodePrefix = "rabbit@"
)

var nodeNamePattern = regexp.MustCompile(`rabbit@[A-Za-z0-9][A-Za-z0-9._-]*`)

// NodeName returns the broker node name for a hostname
func NodeName(hostname string) string {
	return NodePrefix + hostname
}

// ParseClusterView extracts broker node names from cluster_status output.
// Both the classic Erlang-term format and the tabular format list members
// as rabbit@<host> tokens.
func ParseClusterView(output string) types.ClusterView {
	view := types.ClusterView{RetrievedAt: time.Now()}
	seen := make(map[string]bool)
	for _, name := range nodeNamePattern.FindAllString(output, -1) {
		name = strings.TrimRight(name, ".")
		if seen[name] {
			continue
		}
		seen[name] = true
		view.Nodes = append(view.Nodes, name)
	}
	return view
}

// Ctl drives the broker through its administrative CLI
type Ctl struct {
	runner      runner.Runner
	ctlPath     string
	pluginsPath string
}

// Option configures a Ctl
type Option func(*Ctl)

// WithCtlPath overrides the rabbitmqctl binary
func WithCtlPath(path string) Option {
	return func(c *Ctl) { c.ctlPath = path }
}

// WithPluginsPath overrides the rabbitmq-plugins binary
func WithPluginsPath(path string) Option {
	return func(c *Ctl) { c.pluginsPath = path }
}

// NewCtl creates a broker CLI client on top of a command runner
func NewCtl(r runner.Runner, opts ...Option) *Ctl {
	c := &Ctl{
		runner:      r,
		ctlPath:     DefaultCtlPath,
		pluginsPath: DefaultPluginsPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClusterStatus reads the live cluster membership
func (c *Ctl) ClusterStatus(ctx context.Context) (types.ClusterView, error) {
	res, err := c.ctl(ctx, "", "cluster_status")
	if err != nil {
		return types.ClusterView{}, err
	}
	return ParseClusterView(res.Stdout), nil
}

// StopApp stops the broker application, leaving the Erlang node running
func (c *Ctl) StopApp(ctx context.Context) error {
	_, err := c.ctl(ctx, "", "stop_app")
	return err
}

// Reset wipes the local broker state
func (c *Ctl) Reset(ctx context.Context) error {
	_, err := c.ctl(ctx, "", "reset")
	return err
}

// JoinCluster joins this node to the cluster of hostname
func (c *Ctl) JoinCluster(ctx context.Context, hostname string) error {
	_, err := c.ctl(ctx, "", "join_cluster", NodeName(hostname))
	return err
}

// StartApp starts the broker application
func (c *Ctl) StartApp(ctx context.Context) error {
	_, err := c.ctl(ctx, "", "start_app")
	return err
}

// SetPolicy upserts a policy by name
func (c *Ctl) SetPolicy(ctx context.Context, name, pattern, definition string) error {
	_, err := c.ctl(ctx, "", "set_policy", name, pattern, definition)
	return err
}

// ChangePassword sets the password of an existing broker user
func (c *Ctl) ChangePassword(ctx context.Context, user, password string) error {
	redacted := runner.Format(c.ctlPath, "change_password", user, log.Redacted)
	_, err := c.ctl(ctx, redacted, "change_password", user, password)
	return err
}

// EnabledPlugins lists explicitly enabled plugins
func (c *Ctl) EnabledPlugins(ctx context.Context) ([]string, error) {
	res, err := c.exec(ctx, "", c.pluginsPath, "list", "-m", "-e")
	if err != nil {
		return nil, err
	}
	var plugins []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			plugins = append(plugins, line)
		}
	}
	return plugins, nil
}

// EnablePlugin enables a plugin unless it is already enabled. It reports
// whether the plugin had to be enabled.
func (c *Ctl) EnablePlugin(ctx context.Context, name string) (bool, error) {
	enabled, err := c.EnabledPlugins(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range enabled {
		if p == name {
			return false, nil
		}
	}
	if _, err := c.exec(ctx, "", c.pluginsPath, "enable", name); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Ctl) ctl(ctx context.Context, display string, args ...string) (runner.Result, error) {
	return c.exec(ctx, display, c.ctlPath, args...)
}

// exec runs a command and turns nonzero exits into CommandError. display,
// when set, replaces the command line in errors.
func (c *Ctl) exec(ctx context.Context, display, name string, args ...string) (runner.Result, error) {
	if display == "" {
		display = runner.Format(name, args...)
	}
	res, err := c.runner.Run(ctx, name, args...)
	log.Logger.Debug().
		Str("command", display).
		Int("exit_code", res.ExitCode).
		Dur("duration", res.Duration).
		Msg("Broker command finished")
	if err != nil {
		return res, &CommandError{Command: display, ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}
	if !res.Success() {
		return res, &CommandError{Command: display, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return res, nil
}
