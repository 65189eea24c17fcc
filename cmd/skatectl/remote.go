package main

import (
	"context"

	"github.com/park285/skate-duel/internal/app"
	"github.com/park285/skate-duel/internal/pvpremote"
	"github.com/park285/skate-duel/internal/skate"
	"github.com/park285/skate-duel/pkg/skatedto"
	"github.com/spf13/cobra"
)

func newRemoteCommand(opts *rootOptions) *cobra.Command {
	var as, name, media, claim string
	var agree bool

	cmd := &cobra.Command{Use: "remote", Short: "Redis-backed remote matches"}
	cmd.PersistentFlags().StringVar(&as, "as", "", "acting player id")

	remote := func(fn func(ctx context.Context, e *pvpremote.Engine) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, d *app.Deps) (any, error) {
				if d.Remote == nil {
					return nil, errRemoteDisabled()
				}
				return fn(ctx, d.Remote)
			})
		}
	}
	result := func(r pvpremote.Result, err error) (any, error) {
		if err != nil {
			return nil, err
		}
		return skatedto.FromResult(r), nil
	}

	find := &cobra.Command{
		Use:   "find",
		Short: "Join a waiting match or open one",
		Args:  cobra.NoArgs,
	}
	find.Flags().StringVar(&name, "name", "", "display name")
	find.RunE = func(cmd *cobra.Command, args []string) error {
		return remote(func(ctx context.Context, e *pvpremote.Engine) (any, error) {
			res, err := e.FindOrCreate(ctx, skate.Participant{ID: as, Name: name})
			if err != nil {
				return nil, err
			}
			return struct {
				skatedto.OutcomeDTO
				Joined  bool `json:"joined"`
				Created bool `json:"created"`
			}{skatedto.FromResult(res.Result), res.Joined, res.Created}, nil
		})(cmd, args)
	}

	join := &cobra.Command{Use: "join <match-id>", Short: "Join a waiting match", Args: cobra.ExactArgs(1)}
	join.Flags().StringVar(&name, "name", "", "display name")
	join.RunE = func(cmd *cobra.Command, args []string) error {
		return remote(func(ctx context.Context, e *pvpremote.Engine) (any, error) {
			return result(e.Join(ctx, args[0], skate.Participant{ID: as, Name: name}))
		})(cmd, args)
	}

	cancel := &cobra.Command{Use: "cancel <match-id>", Short: "Cancel your waiting match", Args: cobra.ExactArgs(1)}
	cancel.RunE = func(cmd *cobra.Command, args []string) error {
		return remote(func(ctx context.Context, e *pvpremote.Engine) (any, error) {
			return result(e.Cancel(ctx, args[0], as))
		})(cmd, args)
	}

	set := &cobra.Command{Use: "set <match-id> <round-id>", Short: "Offense uploaded the set", Args: cobra.ExactArgs(2)}
	set.Flags().StringVar(&media, "media", "", "clip reference")
	set.RunE = func(cmd *cobra.Command, args []string) error {
		return remote(func(ctx context.Context, e *pvpremote.Engine) (any, error) {
			return result(e.SetComplete(ctx, args[0], args[1], as, media))
		})(cmd, args)
	}

	reply := &cobra.Command{Use: "reply <match-id> <round-id>", Short: "Defense uploaded the reply", Args: cobra.ExactArgs(2)}
	reply.Flags().StringVar(&media, "media", "", "clip reference")
	reply.RunE = func(cmd *cobra.Command, args []string) error {
		return remote(func(ctx context.Context, e *pvpremote.Engine) (any, error) {
			return result(e.ReplyComplete(ctx, args[0], args[1], as, media))
		})(cmd, args)
	}

	resolve := &cobra.Command{Use: "resolve <match-id> <round-id>", Short: "Offense calls the reply", Args: cobra.ExactArgs(2)}
	resolve.Flags().StringVar(&claim, "claim", "", "landed or missed")
	resolve.RunE = func(cmd *cobra.Command, args []string) error {
		return remote(func(ctx context.Context, e *pvpremote.Engine) (any, error) {
			return result(e.Resolve(ctx, args[0], args[1], as, skate.Ruling(claim)))
		})(cmd, args)
	}

	confirm := &cobra.Command{Use: "confirm <match-id> <round-id>", Short: "Defense accepts or contests the call", Args: cobra.ExactArgs(2)}
	confirm.Flags().BoolVar(&agree, "agree", true, "agree with the offense's call")
	confirm.RunE = func(cmd *cobra.Command, args []string) error {
		return remote(func(ctx context.Context, e *pvpremote.Engine) (any, error) {
			return result(e.Confirm(ctx, args[0], args[1], as, agree))
		})(cmd, args)
	}

	show := &cobra.Command{Use: "show <match-id>", Short: "Print a remote match", Args: cobra.ExactArgs(1)}
	show.RunE = func(cmd *cobra.Command, args []string) error {
		return remote(func(ctx context.Context, e *pvpremote.Engine) (any, error) {
			m, err := e.Get(ctx, args[0])
			if err != nil {
				return nil, err
			}
			return skatedto.FromRemote(*m), nil
		})(cmd, args)
	}

	disputed := &cobra.Command{Use: "disputed <match-id>", Short: "List contested rounds", Args: cobra.ExactArgs(1)}
	disputed.RunE = func(cmd *cobra.Command, args []string) error {
		return remote(func(ctx context.Context, e *pvpremote.Engine) (any, error) {
			rounds, err := e.DisputedRounds(ctx, args[0])
			if err != nil {
				return nil, err
			}
			out := make([]skatedto.RoundDTO, 0, len(rounds))
			for _, r := range rounds {
				out = append(out, skatedto.FromRound(r))
			}
			return out, nil
		})(cmd, args)
	}

	cmd.AddCommand(find, join, cancel, set, reply, resolve, confirm, show, disputed)
	return cmd
}
