package main

import (
	"context"
	"fmt"
	"time"

	"peer-match/internal/app"
	"peer-match/internal/config"
	"peer-match/internal/database/migration"
	"peer-match/internal/database/seeder"
	"peer-match/internal/logger"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const appName = "matchctl"

type rootOptions struct {
	cfgFile string
	timeout time.Duration
	json    bool
	debug   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          appName,
		Short:        "matchctl runs peer-match jobs without going through the HTTP triggers",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "optional config file layered under the environment")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "deadline for the whole command")
	cmd.PersistentFlags().BoolVarP(&opts.json, "json", "j", false, "json format for logging")
	cmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "verbose/debug output")

	cmd.AddCommand(
		newRunCmd(opts),
		newSweepCmd(opts),
		newRedeliverCmd(opts),
		newMigrateCmd(opts),
		newSeedCmd(opts),
		newTokenCmd(opts),
	)
	return cmd
}

// withContainer loads config, wires the container and hands it to fn under the command deadline.
func withContainer(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, c *app.Container) error) error {
	cfg, err := config.LoadFile(opts.cfgFile)
	if err != nil {
		return err
	}

	l, err := logger.New(logger.Options{
		JSON:        opts.json || cfg.Log.JSON,
		Debug:       opts.debug || cfg.Log.Debug,
		Service:     appName,
		Environment: cfg.App.Environment,
	})
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	c, err := app.NewContainer(cfg, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			l.Warn("close container", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()
	return fn(ctx, c)
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one matching round",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, opts, func(ctx context.Context, c *app.Container) error {
				res, err := c.MatchRun.Run(ctx)
				if err != nil {
					return err
				}
				c.Logger.Info("matching finished", zap.String("status", string(res.Status)), zap.Int("matched", res.Matched))
				for _, id := range res.MatchIDs {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
}

func newSweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Send due call reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, opts, func(ctx context.Context, c *app.Container) error {
				n, err := c.ReminderSweep.Sweep(ctx, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sent %d\n", n)
				return nil
			})
		},
	}
}

func newRedeliverCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "redeliver",
		Short: "Retry outbox messages that were not delivered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, opts, func(ctx context.Context, c *app.Container) error {
				res, err := c.Redelivery.Redeliver(ctx, limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sent %d failed %d\n", res.Sent, res.Failed)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max messages to retry (0 uses the default batch)")
	return cmd
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, opts, func(ctx context.Context, c *app.Container) error {
				r := migration.Runner{Dir: c.Config.Database.MigrationsDir, Logger: logger.Component(c.Logger, logger.ComponentMigration)}
				return r.Run(ctx, c.DB.SQLDB())
			})
		},
	}
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo members for local runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, opts, func(ctx context.Context, c *app.Container) error {
				r := seeder.Runner{Seeders: seeder.Defaults(), Logger: logger.Component(c.Logger, logger.ComponentSeeder)}
				return r.Run(ctx, c.DB)
			})
		},
	}
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token <member-id>",
		Short: "Issue an access token for a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid member id: %w", err)
			}
			return withContainer(cmd, opts, func(ctx context.Context, c *app.Container) error {
				tok, err := c.Auth.IssueAccessToken(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), tok)
				return nil
			})
		},
	}
}
