package main

import (
	"context"
	"fmt"

	"github.com/park285/skate-duel/internal/app"
	"github.com/park285/skate-duel/internal/schedule"
	"github.com/park285/skate-duel/internal/skate"
	"github.com/park285/skate-duel/pkg/skatedto"
	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, d *app.Deps) (any, error) {
				// app.New already migrated; run again to report idempotently
				if err := d.DB.Migrate(ctx); err != nil {
					return nil, err
				}
				return map[string]string{"dialect": string(d.DB.Dialect), "status": "ok"}, nil
			})
		},
	}
}

func newSweepCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "sweep", Short: "Run deadline sweeps once"}
	cmd.AddCommand(&cobra.Command{
		Use:   "forfeit",
		Short: "Forfeit matches whose response deadline passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, d *app.Deps) (any, error) {
				n, err := d.Sweeps().ForfeitExpiredGames(ctx)
				return map[string]int{"forfeited": n}, err
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "warn",
		Short: "Send deadline warnings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, d *app.Deps) (any, error) {
				n, err := d.Sweeps().NotifyDeadlineWarnings(ctx)
				return map[string]int{"warned": n}, err
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Forfeit, then warn",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, d *app.Deps) (any, error) {
				f, w, err := schedule.RunOnce(ctx, d.Sweeps())
				return map[string]int{"forfeited": f, "warned": w}, err
			})
		},
	})
	return cmd
}

func newMatchCommand(opts *rootOptions) *cobra.Command {
	var as, name, targetName, media, ruling, player string
	var limit int

	cmd := &cobra.Command{Use: "match", Short: "Relational matches"}
	cmd.PersistentFlags().StringVar(&as, "as", "", "acting player id")

	challenge := &cobra.Command{
		Use:   "challenge <target-id>",
		Short: "Challenge another player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, d *app.Deps) (any, error) {
				out, err := d.Engine.Challenge(ctx, skate.Participant{ID: as, Name: name}, skate.Participant{ID: args[0], Name: targetName})
				return skatedto.FromOutcome(out), err
			})
		},
	}
	challenge.Flags().StringVar(&name, "name", "", "display name of the challenger")
	challenge.Flags().StringVar(&targetName, "target-name", "", "display name of the target")

	outcome := func(use, short string, fn func(ctx context.Context, d *app.Deps, id string) (skate.Outcome, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <match-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, opts, func(ctx context.Context, d *app.Deps) (any, error) {
					out, err := fn(ctx, d, args[0])
					return skatedto.FromOutcome(out), err
				})
			},
		}
	}

	set := outcome("set", "Submit the set trick", func(ctx context.Context, d *app.Deps, id string) (skate.Outcome, error) {
		return d.Engine.SubmitSet(ctx, id, as, media)
	})
	set.Flags().StringVar(&media, "media", "", "clip reference")
	respond := outcome("respond", "Submit the response", func(ctx context.Context, d *app.Deps, id string) (skate.Outcome, error) {
		return d.Engine.SubmitResponse(ctx, id, as, media)
	})
	respond.Flags().StringVar(&media, "media", "", "clip reference")
	judge := outcome("judge", "Judge the pending response", func(ctx context.Context, d *app.Deps, id string) (skate.Outcome, error) {
		return d.Engine.JudgeResponse(ctx, id, as, skate.Ruling(ruling))
	})
	judge.Flags().StringVar(&ruling, "ruling", "", "landed or missed")

	show := &cobra.Command{
		Use:   "show <match-id>",
		Short: "Print a match and its attempts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, d *app.Deps) (any, error) {
				m, err := d.Engine.Get(ctx, args[0])
				if err != nil {
					return nil, err
				}
				attempts, err := d.Engine.Attempts(ctx, args[0])
				if err != nil {
					return nil, err
				}
				out := struct {
					Match    skatedto.MatchDTO     `json:"match"`
					Attempts []skatedto.AttemptDTO `json:"attempts"`
				}{Match: skatedto.FromMatch(*m), Attempts: make([]skatedto.AttemptDTO, 0, len(attempts))}
				for _, a := range attempts {
					out.Attempts = append(out.Attempts, skatedto.FromAttempt(a))
				}
				return out, nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List matches of a player, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, d *app.Deps) (any, error) {
				ms, err := d.Engine.MatchesOf(ctx, player, limit)
				if err != nil {
					return nil, err
				}
				out := make([]skatedto.MatchDTO, 0, len(ms))
				for _, m := range ms {
					out = append(out, skatedto.FromMatch(m))
				}
				return out, nil
			})
		},
	}
	list.Flags().StringVar(&player, "player", "", "player id")
	list.Flags().IntVar(&limit, "limit", 20, "max matches")

	cmd.AddCommand(challenge,
		outcome("accept", "Accept a challenge", func(ctx context.Context, d *app.Deps, id string) (skate.Outcome, error) {
			return d.Engine.Accept(ctx, id, as)
		}),
		outcome("cancel", "Cancel a waiting challenge", func(ctx context.Context, d *app.Deps, id string) (skate.Outcome, error) {
			return d.Engine.Cancel(ctx, id, as)
		}),
		set, respond,
		outcome("bail", "Setter bails on their own trick", func(ctx context.Context, d *app.Deps, id string) (skate.Outcome, error) {
			return d.Engine.SetterBail(ctx, id, as)
		}),
		judge, show, list,
	)
	return cmd
}

func newDisputeCommand(opts *rootOptions) *cobra.Command {
	var as, attempt, ruling string
	cmd := &cobra.Command{Use: "dispute", Short: "File and resolve disputes"}
	cmd.PersistentFlags().StringVar(&as, "as", "", "acting player id")

	file := &cobra.Command{
		Use:   "file <match-id>",
		Short: "Dispute a missed ruling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, d *app.Deps) (any, error) {
				res, err := d.Arbiter.File(ctx, args[0], as, attempt)
				if err != nil {
					return nil, err
				}
				return struct {
					Dispute       skatedto.DisputeDTO  `json:"dispute"`
					AlreadyExists bool                 `json:"alreadyExists"`
					Intents       []skatedto.IntentDTO `json:"intents,omitempty"`
				}{skatedto.FromDispute(res.Dispute), res.AlreadyExists, skatedto.FromIntents(res.Intents)}, nil
			})
		},
	}
	file.Flags().StringVar(&attempt, "attempt", "", "attempt id")

	resolve := &cobra.Command{
		Use:   "resolve <dispute-id>",
		Short: "Resolve a dispute filed against you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, d *app.Deps) (any, error) {
				res, err := d.Arbiter.Resolve(ctx, args[0], as, skate.Ruling(ruling))
				if err != nil {
					return nil, err
				}
				return struct {
					Dispute       skatedto.DisputeDTO `json:"dispute"`
					Match         skatedto.MatchDTO   `json:"match"`
					PenaltyTarget string              `json:"penaltyTarget,omitempty"`
				}{skatedto.FromDispute(res.Dispute), skatedto.FromMatch(res.Match), res.PenaltyTarget}, nil
			})
		},
	}
	resolve.Flags().StringVar(&ruling, "ruling", "", "landed or missed")

	show := &cobra.Command{
		Use:   "show <dispute-id>",
		Short: "Print a dispute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, d *app.Deps) (any, error) {
				dis, err := d.Arbiter.Dispute(ctx, args[0])
				if err != nil {
					return nil, err
				}
				return skatedto.FromDispute(*dis), nil
			})
		},
	}
	cmd.AddCommand(file, resolve, show)
	return cmd
}

func newPlayerCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "player", Short: "Player directory"}
	cmd.AddCommand(&cobra.Command{
		Use:   "set-name <player-id> <display-name>",
		Short: "Record a display name used in notifications",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, d *app.Deps) (any, error) {
				if err := d.Players.Upsert(ctx, args[0], args[1]); err != nil {
					return nil, err
				}
				name, err := d.Players.DisplayName(ctx, args[0])
				if err != nil {
					return nil, fmt.Errorf("read back: %w", err)
				}
				return map[string]string{"id": args[0], "name": name}, nil
			})
		},
	})
	return cmd
}
