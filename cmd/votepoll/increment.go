//go:build !wasip1

package main

import (
	"fmt"

	"github.com/reglet-dev/votepoll/domain/entities"
	"github.com/reglet-dev/votepoll/host"
	"github.com/spf13/cobra"
)

func newIncrementCommand(a *app) *cobra.Command {
	var value int32

	cmd := &cobra.Command{
		Use:   "increment",
		Short: "Increment a standalone vote counter in the guest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withInstance(cmd.Context(), func(inst *host.Instance) error {
				next, err := inst.IncrementVote(cmd.Context(), entities.VoteState{Value: value})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), next)
				return err
			})
		},
	}
	cmd.Flags().Int32Var(&value, "value", 0, "current counter value")
	return cmd
}
