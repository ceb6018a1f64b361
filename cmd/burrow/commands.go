package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/converge"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/policy"
	"github.com/cuemby/burrow/pkg/rabbitmq"
	"github.com/cuemby/burrow/pkg/reconciler"
	"github.com/cuemby/burrow/pkg/registry"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
)

var convergeCmd = &cobra.Command{
	Use:   "converge",
	Short: "Join this node to the head node cluster and apply the HA policy",
	Long: `Converge initializes the broker credentials, enables plugins, joins
every head node not yet in the local cluster, resets the managed user's
password and applies the HA policy.

With --interval the cycle repeats until the process is stopped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		broker := events.NewBroker()
		printed := printEvents(cmd.OutOrStdout(), broker.Subscribe(0))
		defer func() {
			broker.Close()
			<-printed
		}()

		ctrl, err := newController(cfg, store, broker)
		if err != nil {
			return err
		}

		metrics.SetVersion(Version)
		if cfg.MetricsAddr != "" {
			srv := startMetricsServer(cfg.MetricsAddr)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		if cfg.Interval <= 0 {
			_, err := ctrl.Run(ctx)
			return err
		}

		recon := reconciler.NewReconciler(ctrl, cfg.Interval)
		recon.Start(ctx)
		log.Logger.Info().Dur("interval", cfg.Interval).Msg("Reconciler started")

		<-ctx.Done()
		log.Info("Shutting down")
		recon.Stop()
		return nil
	},
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Apply the HA policy without touching cluster membership",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctrl, err := newController(cfg, storage.NewMemoryStore(), nil)
		if err != nil {
			return err
		}

		p, err := ctrl.ApplyHAPolicy(cmd.Context(), len(cfg.HeadNodes))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Policy %s applied (ha-mode %s, min quorum %d of %d)\n",
			p.Name, p.Definition.HAMode, p.MinQuorum, len(cfg.HeadNodes))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which head nodes are members of the local cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		view, err := newCtl(cfg).ClusterStatus(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-30s %s\n", "NODE", "MEMBER")
		for _, h := range cfg.HeadNodes {
			member := "no"
			if view.Contains(rabbitmq.NodeName(h)) {
				member = "yes"
			}
			fmt.Fprintf(out, "%-30s %s\n", rabbitmq.NodeName(h), member)
		}
		return nil
	},
}

var quorumCmd = &cobra.Command{
	Use:   "quorum N",
	Short: "Print the minimum quorum for N head nodes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid node count %q: must be a positive integer", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), policy.MinQuorum(n))
		return nil
	},
}

func init() {
	addConvergeFlags(convergeCmd.Flags())
}

func addConvergeFlags(fs *pflag.FlagSet) {
	fs.Duration("interval", 0, "Repeat convergence on this interval (0 runs once)")
	fs.String("metrics-addr", "", "Serve metrics and health on this address")
}

// openStore opens the credential database, sealed when a passphrase is set
func openStore(cfg *config.Config) (*storage.BoltStore, error) {
	var opts []storage.BoltOption
	if cfg.Passphrase != "" {
		sealer, err := security.NewSealerFromPassphrase(cfg.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to create sealer: %w", err)
		}
		opts = append(opts, storage.WithSealer(sealer))
	}
	return storage.NewBoltStore(cfg.StateDir, opts...)
}

func newController(cfg *config.Config, store storage.ConfigStore, broker *events.Broker) (*converge.Controller, error) {
	reg, err := registry.NewStatic(cfg.HeadNodes)
	if err != nil {
		return nil, err
	}
	return converge.NewController(&converge.Config{
		Self:        cfg.Hostname,
		Broker:      newCtl(cfg),
		Registry:    reg,
		Store:       store,
		DefaultUser: cfg.RabbitMQ.User,
		Plugins:     cfg.RabbitMQ.Plugins,
		Events:      broker,
	})
}

func startMetricsServer(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.ServeMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	log.Logger.Info().Str("addr", addr).Msg("Metrics server listening")
	return srv
}

// printEvents writes one line per event until sub is closed
func printEvents(w io.Writer, sub events.Subscriber) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range sub {
			fmt.Fprintln(w, formatEvent(e))
		}
	}()
	return done
}

func formatEvent(e *events.Event) string {
	mark := " "
	switch e.Type {
	case events.EventPeerJoined, events.EventPolicyApplied, events.EventCycleCompleted, events.EventPluginEnabled:
		mark = "✓"
	case events.EventJoinFailed, events.EventPolicyFailed, events.EventCycleFailed:
		mark = "✗"
	}
	if e.Peer != "" {
		return fmt.Sprintf("%s %s %s: %s", mark, e.Type, e.Peer, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", mark, e.Type, e.Message)
}
