package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/park285/skate-duel/internal/app"
	appcfg "github.com/park285/skate-duel/internal/config"
	"github.com/park285/skate-duel/internal/obslog"
	"github.com/park285/skate-duel/pkg/skatedto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// errReported means the failure was already written as JSON.
var errReported = errors.New("reported")

type rootOptions struct {
	envFile string
	timeout time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "skatectl",
		Short:         "Operate SKATE duels from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if opts.envFile != "" {
				files = append(files, opts.envFile)
			}
			if err := appcfg.LoadDotEnv(files...); err != nil {
				return err
			}
			// stdout carries JSON results only
			logOpts := obslog.OptionsFromEnv()
			logOpts.Console = false
			return obslog.Init(logOpts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "env file to load instead of ./.env")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall command timeout")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newMatchCommand(opts))
	cmd.AddCommand(newDisputeCommand(opts))
	cmd.AddCommand(newRemoteCommand(opts))
	cmd.AddCommand(newPlayerCommand(opts))
	return cmd
}

// run wires dependencies for one command, prints its result as JSON and
// renders failures as skatedto.Failure.
func run(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, d *app.Deps) (any, error)) error {
	cfg, err := appcfg.Load()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	d, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	out, runErr := fn(ctx, d)
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	if err := d.Close(closeCtx); err != nil {
		obslog.L().Warn("skatectl_close_error", zap.Error(err))
	}

	if runErr != nil {
		enc := json.NewEncoder(cmd.ErrOrStderr())
		enc.SetIndent("", "  ")
		_ = enc.Encode(skatedto.FailureFrom(runErr))
		if skatedto.FailureFrom(runErr).Error == skatedto.CodeInternal {
			return runErr
		}
		return errReported
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func errRemoteDisabled() error {
	return errors.New("remote engine disabled: REDIS_URL is not set")
}
