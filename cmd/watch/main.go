package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"smartclean/internal/infrastructure/coordination"
	"smartclean/internal/infrastructure/distributed"
	"smartclean/pkg/config"
	"smartclean/pkg/logger"

	"github.com/spf13/cobra"
)

type watchOptions struct {
	configPath string
	address    string
	channel    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "smartclean-watch",
		Short: "Follow queue snapshots relayed through Redis",
		Long: `smartclean-watch subscribes to the snapshot channel the controller
publishes to and logs every snapshot it receives.`,
		Example:       "  $ smartclean-watch --redis localhost:6379",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "configs/config.yaml", "config file; missing file means defaults")
	cmd.Flags().StringVar(&opts.address, "redis", "", "Redis address, overrides the config")
	cmd.Flags().StringVar(&opts.channel, "channel", "", "snapshot channel, overrides the config")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level, overrides the config")
	return cmd
}

func runWatch(ctx context.Context, opts *watchOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.address != "" {
		cfg.Redis.Address = opts.address
	}
	if opts.channel != "" {
		cfg.Redis.Channel = opts.channel
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	client, err := coordination.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, 2, log)
	if err != nil {
		return err
	}
	defer client.Close()

	relay := distributed.NewSnapshotRelay(client, "", cfg.Redis.Channel, log)
	log.Infow("Watching snapshots", "channel", cfg.Redis.Channel, "address", cfg.Redis.Address)

	err = relay.Subscribe(ctx, func(msg *distributed.SnapshotMessage) error {
		snap := msg.Snapshot
		log.Infow("snapshot",
			"from", msg.InstanceID,
			"queue_count", snap.QueueCount,
			"current_turn", snap.CurrentTurn,
			"robot_status", snap.RobotStatus,
			"time_remaining", snap.TimeRemaining,
			"queue", snap.Queue,
		)
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
