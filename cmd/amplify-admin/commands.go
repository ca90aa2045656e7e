package main

import (
	"context"
	"encoding/json"
	"fmt"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/prn-tf/amplify-storage/internal/app"
	"github.com/prn-tf/amplify-storage/internal/config"
	"github.com/prn-tf/amplify-storage/internal/domain"
	"github.com/prn-tf/amplify-storage/internal/service"
)

var errUnhealthy = errors.New("no storage provider is healthy")

type rootOptions struct {
	configPath string
	timeout    time.Duration
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "amplify-admin",
		Short:         "Amplify Storage Admin CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "overall command timeout")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newVersionCmd(),
		newTiersCmd(),
		newUserCmd(opts),
		newUsageCmd(opts),
		newReconcileCmd(opts),
		newCleanupCmd(opts),
		newHealthCmd(opts),
		newCostsCmd(opts),
	)
	return root
}

// withApp loads configuration, wires the services and runs fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	level := zerolog.WarnLevel
	if opts.verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func userArg(args []string) (uuid.UUID, error) {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q: %w", args[0], err)
	}
	return id, nil
}

// =============================================================================
// Commands
// =============================================================================

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Amplify Storage Admin CLI\n")
			fmt.Fprintf(out, "Version: %s\n", Version)
			fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
		},
	}
}

func newTiersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "List storage tiers and their limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), domain.AllTiers())
		},
	}
}

func newUserCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage ledger users",
	}

	var tier string
	create := &cobra.Command{
		Use:   "create [user-id]",
		Short: "Register a user on a storage tier",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, ok := domain.ParseTierName(tier)
			if !ok {
				return fmt.Errorf("unknown tier %q", tier)
			}
			id := uuid.New()
			if len(args) == 1 {
				var err error
				if id, err = userArg(args); err != nil {
					return err
				}
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				user := domain.NewUser(id, name)
				if err := a.Store.Repos.Users.Create(ctx, user); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), user)
			})
		},
	}
	create.Flags().StringVar(&tier, "tier", string(domain.TierFree), "storage tier: free, pro or enterprise")

	quota := &cobra.Command{
		Use:   "quota <user-id>",
		Short: "Show a user's quota position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := userArg(args)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				info, err := a.Storage.GetQuotaInfo(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), info)
			})
		},
	}

	cmd.AddCommand(create, quota)
	return cmd
}

func newUsageCmd(opts *rootOptions) *cobra.Command {
	var byCategory bool
	cmd := &cobra.Command{
		Use:   "usage <user-id>",
		Short: "Show a user's ledger usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := userArg(args)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if byCategory {
					categories, err := a.Storage.GetStorageUsageByCategory(ctx, id)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), categories)
				}
				usage, err := a.Storage.CalculateUserStorageUsage(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), usage)
			})
		},
	}
	cmd.Flags().BoolVar(&byCategory, "by-category", false, "break usage down by content category")
	return cmd
}

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <user-id>",
		Short: "Recompute a user's cached usage from the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := userArg(args)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				usage, err := a.Storage.ReconcileUserUsage(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), usage)
			})
		},
	}
}

func newCleanupCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge soft-deleted records past retention",
	}

	var dryRun bool
	run := &cobra.Command{
		Use:   "run",
		Short: "Run one platform-wide retention pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				cfg := a.Config.Cleanup
				cfg.DryRun = cfg.DryRun || dryRun
				svc := service.NewCleanupService(a.Store.Repos.Records, nil, a.Metrics, a.Logger, cfg, a.Providers()...)
				return printJSON(cmd.OutOrStdout(), svc.RunOnce(ctx))
			})
		},
	}
	run.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be purged without deleting")

	var days int
	user := &cobra.Command{
		Use:   "user <user-id>",
		Short: "Remove a user's old soft-deleted ledger records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := userArg(args)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				res, err := a.Storage.CleanupDeletedFiles(ctx, id, days)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	user.Flags().IntVar(&days, "older-than-days", 30, "minimum age of deleted records in days")

	cmd.AddCommand(run, user)
	return cmd
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe every storage provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				providers := a.Health.GetStorageHealth(ctx)
				status := service.OverallStatus(providers)
				if err := printJSON(cmd.OutOrStdout(), map[string]any{
					"status":    status,
					"providers": providers,
				}); err != nil {
					return err
				}
				if status == service.HealthUnhealthy {
					return errUnhealthy
				}
				return nil
			})
		},
	}
}

func newCostsCmd(opts *rootOptions) *cobra.Command {
	var storedGB float64
	cmd := &cobra.Command{
		Use:   "costs",
		Short: "Report storage costs for current or projected volume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if cmd.Flags().Changed("stored-gb") {
					if storedGB < 0 {
						return fmt.Errorf("stored-gb must not be negative")
					}
					return printJSON(cmd.OutOrStdout(), a.Health.ProjectCosts(int64(storedGB*float64(domain.GB))))
				}
				report, err := a.Health.PlatformCostReport(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().Float64Var(&storedGB, "stored-gb", 0, "project costs for this many GB instead of the ledger total")
	return cmd
}
