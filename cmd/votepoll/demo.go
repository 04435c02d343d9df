//go:build !wasip1

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/reglet-dev/votepoll/application/engine"
	"github.com/reglet-dev/votepoll/domain/entities"
	"github.com/reglet-dev/votepoll/host"
	"github.com/spf13/cobra"
)

func newDemoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Increment a counter, then register, vote and vote for an unknown option in the guest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withInstance(cmd.Context(), func(inst *host.Instance) error {
				return runDemo(cmd.Context(), inst, cmd.OutOrStdout())
			})
		},
	}
}

func runDemo(ctx context.Context, inst *host.Instance, out io.Writer) error {
	token, err := inst.Init(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "init: %d\n", token)

	counter, err := inst.IncrementVote(ctx, entities.VoteState{Value: 22})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "increment 22: %d\n", counter)

	registered, err := inst.ApplyPollEvent(ctx, entities.VotePollState{
		Tallies: map[string]int32{},
		Event:   entities.NewPoll("kingsgg"),
		Value:   22,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %v\n", registered.Event, registered.Tallies)

	registered.Event = entities.NewVote("kingsgg")
	voted, err := inst.ApplyPollEvent(ctx, registered)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %v\n", voted.Event, voted.Tallies)

	unknown, err := inst.ApplyPollEvent(ctx, entities.VotePollState{
		Tallies: map[string]int32{"a": 5},
		Event:   entities.NewVote("b"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %v\n", unknown.Event, unknown.Tallies)

	if name, count, ok := engine.Winner(voted.Tallies); ok {
		fmt.Fprintf(out, "leader: %s (%d)\n", name, count)
	}
	return nil
}
