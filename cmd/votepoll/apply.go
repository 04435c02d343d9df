//go:build !wasip1

package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/reglet-dev/votepoll/application/validation"
	"github.com/reglet-dev/votepoll/domain/entities"
	"github.com/reglet-dev/votepoll/host"
	"github.com/reglet-dev/votepoll/infrastructure/parser"
	"github.com/spf13/cobra"
)

func newApplyCommand(a *app) *cobra.Command {
	var (
		statePath string
		eventSpec string
		outPath   string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a poll or vote event to a state document in the guest",
		Long: "Reads a VotePollState document (JSON, or YAML for .yaml/.yml files), " +
			"validates it, replaces its event with --event and prints the resulting state. " +
			"The document needs only \"tallies\"; \"event\" and \"value\" are optional. " +
			"Without --state the poll starts empty.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			event, err := entities.ParseEvent(eventSpec)
			if err != nil {
				return err
			}

			state := entities.VotePollState{Tallies: map[string]int32{}}
			if statePath != "" {
				state, err = readState(statePath)
				if err != nil {
					return err
				}
			}
			state.Event = event

			return a.withInstance(cmd.Context(), func(inst *host.Instance) error {
				next, err := inst.ApplyPollEvent(cmd.Context(), state)
				if err != nil {
					return err
				}
				if outPath == "" {
					return writeJSON(cmd.OutOrStdout(), next)
				}
				var buf bytes.Buffer
				if err := writeJSON(&buf, next); err != nil {
					return err
				}
				return os.WriteFile(outPath, buf.Bytes(), 0o600)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&statePath, "state", "", "state document to read")
	flags.StringVar(&eventSpec, "event", "", "event to apply: poll:NAME or vote:NAME")
	flags.StringVar(&outPath, "out", "", "write the resulting state here instead of stdout")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

// readState loads and validates a state document.
func readState(path string) (entities.VotePollState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return entities.VotePollState{}, fmt.Errorf("read state: %w", err)
	}
	doc, err := parser.ToJSON(data, parser.FormatFromPath(path))
	if err != nil {
		return entities.VotePollState{}, err
	}

	validator, err := validation.NewStateValidator()
	if err != nil {
		return entities.VotePollState{}, err
	}
	return validator.Decode(doc)
}
