package converge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/policy"
	"github.com/cuemby/burrow/pkg/rabbitmq"
	"github.com/cuemby/burrow/pkg/registry"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// Broker is the administrative surface of the local broker node
type Broker interface {
	ClusterStatus(ctx context.Context) (types.ClusterView, error)
	StopApp(ctx context.Context) error
	Reset(ctx context.Context) error
	JoinCluster(ctx context.Context, hostname string) error
	StartApp(ctx context.Context) error
	SetPolicy(ctx context.Context, name, pattern, definition string) error
	ChangePassword(ctx context.Context, user, password string) error
	EnablePlugin(ctx context.Context, name string) (bool, error)
}

// joinSequence is the strict order of a cluster join
var joinSequence = []types.Step{types.StepStop, types.StepReset, types.StepJoin, types.StepStart}

// Config wires a Controller to its collaborators
type Config struct {
	Self     string
	Broker   Broker
	Registry registry.Registry
	Store    storage.ConfigStore

	// DefaultUser seeds rabbitmq-user on first run (default: guest)
	DefaultUser string

	// Plugins are enabled before any membership change
	Plugins []string

	// Events receives progress events; nil disables them
	Events *events.Broker
}

// Controller converges the local broker into the cluster of its head nodes
type Controller struct {
	self        types.PeerNode
	broker      Broker
	registry    registry.Registry
	store       storage.ConfigStore
	defaultUser string
	plugins     []string
	events      *events.Broker
	logger      zerolog.Logger
}

// NewController creates a convergence controller
func NewController(cfg *Config) (*Controller, error) {
	if cfg.Self == "" {
		return nil, fmt.Errorf("self hostname is required")
	}
	if cfg.Broker == nil || cfg.Registry == nil || cfg.Store == nil {
		return nil, fmt.Errorf("broker, registry and store are required")
	}
	user := cfg.DefaultUser
	if user == "" {
		user = "guest"
	}
	return &Controller{
		self:        types.PeerNode{Hostname: cfg.Self},
		broker:      cfg.Broker,
		registry:    cfg.Registry,
		store:       cfg.Store,
		defaultUser: user,
		plugins:     append([]string(nil), cfg.Plugins...),
		events:      cfg.Events,
		logger:      log.WithComponent("converge").With().Str("node", cfg.Self).Logger(),
	}, nil
}

// Self returns the identity of the local node
func (c *Controller) Self() types.PeerNode {
	return c.self
}

// Report summarises one convergence cycle
type Report struct {
	RunID          string
	StartedAt      time.Time
	Duration       time.Duration
	Self           types.PeerNode
	Peers          []types.PeerNode
	Outcomes       []types.PeerOutcome
	PluginsEnabled []string
	Policy         *policy.HAPolicy

	// Converged is set once every peer is a cluster member
	Converged bool
	Err       error
}

// Joined returns the peers this cycle actually joined
func (r *Report) Joined() []types.PeerNode {
	var joined []types.PeerNode
	for _, o := range r.Outcomes {
		if o.State == types.JoinStateMember && !o.AlreadyMember {
			joined = append(joined, o.Peer)
		}
	}
	return joined
}

// Run performs one full convergence cycle: credentials, plugins, cluster
// membership, password reset and HA policy. A failed join aborts the cycle;
// password and policy failures are collected and both steps always run.
func (c *Controller) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
		Self:      c.self,
	}
	logger := log.WithRunID(c.logger, report.RunID)
	timer := metrics.NewTimer()

	ctx = context.WithValue(logger.WithContext(ctx), runIDKey{}, report.RunID)
	c.emit(ctx, events.EventCycleStarted, "", "Convergence cycle started", nil)

	err := c.run(ctx, report)

	report.Duration = timer.Duration()
	report.Err = err
	timer.ObserveDuration(metrics.CycleDuration)
	c.recordHealth(report)

	if err != nil {
		metrics.CyclesTotal.WithLabelValues(metrics.ResultFailure).Inc()
		logger.Error().Err(err).Dur("duration", report.Duration).Msg("Convergence cycle failed")
		c.emit(ctx, events.EventCycleFailed, "", err.Error(), nil)
		return report, err
	}

	metrics.CyclesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	metrics.LastSuccess.SetToCurrentTime()
	logger.Info().
		Int("joined", len(report.Joined())).
		Dur("duration", report.Duration).
		Msg("Convergence cycle complete")
	c.emit(ctx, events.EventCycleCompleted, "", "Convergence cycle complete", map[string]string{
		"joined":   fmt.Sprint(len(report.Joined())),
		"duration": report.Duration.String(),
	})
	return report, nil
}

func (c *Controller) run(ctx context.Context, report *Report) error {
	if err := c.InitCredentials(); err != nil {
		return err
	}

	enabled, err := c.EnablePlugins(ctx)
	report.PluginsEnabled = enabled
	if err != nil {
		return err
	}

	peers, err := c.registry.GetHeadNodes(ctx)
	if err != nil {
		return &StepError{Step: types.StepRegistry, Err: err}
	}
	report.Peers = peers
	metrics.HeadNodes.Set(float64(len(peers)))

	outcomes, err := c.ConvergeCluster(ctx, c.self, peers)
	report.Outcomes = outcomes
	if err != nil {
		return err
	}
	report.Converged = true

	pwErr := c.ResetPassword(ctx)

	p, policyErr := c.ApplyHAPolicy(ctx, len(peers))
	if policyErr == nil {
		report.Policy = &p
	}

	return errors.Join(pwErr, policyErr)
}

// InitCredentials generates the broker user, password and Erlang cookie
// the first time they are needed. Existing values are kept.
func (c *Controller) InitCredentials() error {
	generators := []struct {
		key string
		gen storage.Generator
	}{
		{storage.KeyRabbitMQUser, storage.Static(c.defaultUser)},
		{storage.KeyRabbitMQPassword, generatePassword},
		{storage.KeyRabbitMQCookie, generatePassword},
	}
	for _, g := range generators {
		if _, err := c.store.MakeConfig(g.key, g.gen); err != nil {
			return &StepError{Step: types.StepInitCredential, Err: fmt.Errorf("%s: %w", g.key, err)}
		}
	}
	return nil
}

func generatePassword() (string, error) {
	return security.SecurePassword(security.DefaultPasswordLength)
}

// EnablePlugins enables every configured plugin that is not enabled yet and
// returns the ones it had to enable
func (c *Controller) EnablePlugins(ctx context.Context) ([]string, error) {
	var enabled []string
	for _, name := range c.plugins {
		changed, err := c.broker.EnablePlugin(ctx, name)
		if err != nil {
			metrics.StepFailures.WithLabelValues(string(types.StepPlugin)).Inc()
			return enabled, &StepError{Step: types.StepPlugin, Err: fmt.Errorf("%s: %w", name, err)}
		}
		if changed {
			c.loggerFrom(ctx).Info().Str("plugin", name).Msg("Enabled broker plugin")
			c.emit(ctx, events.EventPluginEnabled, "", "Enabled plugin "+name, map[string]string{"plugin": name})
			enabled = append(enabled, name)
		}
	}
	return enabled, nil
}

// ConvergeCluster joins self to the cluster of every other peer, in order.
// Membership is read fresh before each peer and is the only guard; peers
// already in the cluster are skipped. The first failure stops the run.
func (c *Controller) ConvergeCluster(ctx context.Context, self types.PeerNode, peers []types.PeerNode) ([]types.PeerOutcome, error) {
	if err := validatePeers(self, peers); err != nil {
		return nil, err
	}
	logger := c.loggerFrom(ctx)

	outcomes := make([]types.PeerOutcome, 0, len(peers)-1)
	for _, peer := range peers {
		if peer.Hostname == self.Hostname {
			continue
		}
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		outcome, err := c.convergePeer(ctx, log.WithPeer(*logger, peer.Hostname), peer)
		outcomes = append(outcomes, outcome)
		if err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

func (c *Controller) convergePeer(ctx context.Context, logger zerolog.Logger, peer types.PeerNode) (types.PeerOutcome, error) {
	timer := metrics.NewTimer()
	outcome := types.PeerOutcome{Peer: peer, State: types.JoinStateNotMember}
	fail := func(step types.Step, err error) (types.PeerOutcome, error) {
		outcome.State = types.JoinStateFailed
		outcome.FailedStep = step
		outcome.Duration = timer.Duration()
		metrics.StepFailures.WithLabelValues(string(step)).Inc()
		metrics.JoinsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		logger.Error().Err(err).Str("step", string(step)).Msg("Cluster join failed")
		c.emit(ctx, events.EventJoinFailed, peer.Hostname, err.Error(), map[string]string{"step": string(step)})
		return outcome, &JoinError{Peer: peer.Hostname, Step: step, Err: err}
	}

	stepTimer := metrics.NewTimer()
	view, err := c.broker.ClusterStatus(ctx)
	if err != nil {
		return fail(types.StepStatus, err)
	}
	stepTimer.ObserveDurationVec(metrics.CommandDuration, string(types.StepStatus))

	if view.Contains(rabbitmq.NodeName(peer.Hostname)) {
		outcome.State = types.JoinStateMember
		outcome.AlreadyMember = true
		outcome.Duration = timer.Duration()
		metrics.JoinsTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		logger.Debug().Msg("Already a cluster member, skipping join")
		c.emit(ctx, events.EventPeerSkipped, peer.Hostname, "Already a cluster member", nil)
		return outcome, nil
	}

	logger.Info().Strs("members", view.Nodes).Msg("Joining cluster")

	// Once the node is stopped the sequence runs to the end; only the
	// runner's per-command timeout can cut it short.
	seqCtx := context.WithoutCancel(ctx)
	for _, step := range joinSequence {
		outcome.State = types.StepState(step)
		logger.Debug().Str("state", string(outcome.State)).Msg("Join step")

		stepTimer := metrics.NewTimer()
		if err := c.joinStep(seqCtx, step, peer.Hostname); err != nil {
			return fail(step, err)
		}
		stepTimer.ObserveDurationVec(metrics.CommandDuration, string(step))
	}

	outcome.State = types.JoinStateMember
	outcome.Duration = timer.Duration()
	metrics.JoinsTotal.WithLabelValues(metrics.OutcomeJoined).Inc()
	logger.Info().Dur("duration", outcome.Duration).Msg("Joined cluster")
	c.emit(ctx, events.EventPeerJoined, peer.Hostname, "Joined cluster", map[string]string{"duration": outcome.Duration.String()})
	return outcome, nil
}

func (c *Controller) joinStep(ctx context.Context, step types.Step, hostname string) error {
	switch step {
	case types.StepStop:
		return c.broker.StopApp(ctx)
	case types.StepReset:
		return c.broker.Reset(ctx)
	case types.StepJoin:
		return c.broker.JoinCluster(ctx, hostname)
	case types.StepStart:
		return c.broker.StartApp(ctx)
	default:
		return fmt.Errorf("unknown join step %q", step)
	}
}

// ApplyHAPolicy upserts the HA mirroring policy. It runs unconditionally;
// the derived quorum is logged but the policy always mirrors to all nodes.
func (c *Controller) ApplyHAPolicy(ctx context.Context, peerCount int) (policy.HAPolicy, error) {
	p, err := policy.New(peerCount)
	if err != nil {
		metrics.PolicyAppliesTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return policy.HAPolicy{}, &PolicyError{Policy: policy.Name, Err: err}
	}
	metrics.MinQuorum.Set(float64(p.MinQuorum))

	definition, err := p.DefinitionJSON()
	if err != nil {
		metrics.PolicyAppliesTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return p, &PolicyError{Policy: p.Name, Err: err}
	}

	timer := metrics.NewTimer()
	if err := c.broker.SetPolicy(ctx, p.Name, p.Pattern, definition); err != nil {
		metrics.StepFailures.WithLabelValues(string(types.StepPolicy)).Inc()
		metrics.PolicyAppliesTotal.WithLabelValues(metrics.ResultFailure).Inc()
		c.loggerFrom(ctx).Error().Err(err).Str("policy", p.Name).Msg("Failed to apply HA policy")
		c.emit(ctx, events.EventPolicyFailed, "", err.Error(), map[string]string{"policy": p.Name})
		return p, &PolicyError{Policy: p.Name, Err: err}
	}
	timer.ObserveDurationVec(metrics.CommandDuration, string(types.StepPolicy))

	metrics.PolicyAppliesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	c.loggerFrom(ctx).Info().
		Str("policy", p.Name).
		Int("peers", peerCount).
		Int("min_quorum", p.MinQuorum).
		Str("ha_mode", p.Definition.HAMode).
		Msg("Applied HA policy")
	c.emit(ctx, events.EventPolicyApplied, "", "Applied policy "+p.Name, map[string]string{
		"policy":     p.Name,
		"ha_mode":    p.Definition.HAMode,
		"min_quorum": fmt.Sprint(p.MinQuorum),
	})
	return p, nil
}

// ResetPassword sets the broker user's password from the configuration store
func (c *Controller) ResetPassword(ctx context.Context) error {
	user, err := c.store.GetConfig(storage.KeyRabbitMQUser)
	if err != nil {
		return &PasswordError{User: storage.KeyRabbitMQUser, Err: err}
	}
	password, err := c.store.GetConfig(storage.KeyRabbitMQPassword)
	if err != nil {
		return &PasswordError{User: user, Err: err}
	}

	if err := c.broker.ChangePassword(ctx, user, password); err != nil {
		metrics.StepFailures.WithLabelValues(string(types.StepPassword)).Inc()
		c.loggerFrom(ctx).Warn().Err(err).Str("user", user).Msg("Failed to reset broker password")
		return &PasswordError{User: user, Err: err}
	}
	c.loggerFrom(ctx).Debug().Str("user", user).Msg("Reset broker password")
	c.emit(ctx, events.EventPasswordReset, "", "Reset password of "+user, map[string]string{"user": user})
	return nil
}

type runIDKey struct{}

func (c *Controller) emit(ctx context.Context, typ events.EventType, peer, msg string, meta map[string]string) {
	if c.events == nil {
		return
	}
	runID, _ := ctx.Value(runIDKey{}).(string)
	c.events.Publish(&events.Event{
		Type:     typ,
		RunID:    runID,
		Peer:     peer,
		Message:  msg,
		Metadata: meta,
	})
}

// loggerFrom returns the cycle logger carried by ctx, or the controller's
func (c *Controller) loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &c.logger
}

func (c *Controller) recordHealth(report *Report) {
	err := report.Err

	var (
		joinErr     *JoinError
		stepErr     *StepError
		policyErr   *PolicyError
		passwordErr *PasswordError
	)

	brokerOK := true
	if errors.As(err, &joinErr) && joinErr.Step == types.StepStatus {
		brokerOK = false
	}
	if errors.As(err, &stepErr) && stepErr.Step == types.StepPlugin {
		brokerOK = false
	}
	metrics.UpdateComponent(metrics.ComponentBroker, brokerOK, errMessage(brokerOK, err))
	metrics.UpdateComponent(metrics.ComponentCluster, report.Converged, errMessage(report.Converged, err))

	if report.Converged {
		policyOK := !errors.As(err, &policyErr)
		metrics.UpdateComponent(metrics.ComponentPolicy, policyOK, errMessage(policyOK, policyErr))
		passwordOK := !errors.As(err, &passwordErr)
		metrics.UpdateComponent(metrics.ComponentPassword, passwordOK, errMessage(passwordOK, passwordErr))
	}
}

func errMessage(ok bool, err error) string {
	if ok || err == nil {
		return ""
	}
	return err.Error()
}

func validatePeers(self types.PeerNode, peers []types.PeerNode) error {
	if len(peers) == 0 {
		return fmt.Errorf("%w: no head nodes configured", ErrInvalidPeers)
	}
	for _, p := range peers {
		if p.Hostname == self.Hostname {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not a head node", ErrInvalidPeers, self.Hostname)
}
