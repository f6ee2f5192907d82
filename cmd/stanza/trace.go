package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/longregen/stanza/internal/jsonutil"
	"github.com/longregen/stanza/pkg/engine"
)

// traceCmd inspects a recorded invocation trace
func traceCmd() *cobra.Command {
	var showJSON bool

	cmd := &cobra.Command{
		Use:   "trace <file>",
		Short: "Inspect a recorded invocation trace",
		Long:  `Decode and display an invocation trace written by 'stanza run --trace-out'.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open trace file: %w", err)
			}
			defer f.Close()

			snap, err := engine.ReadSnapshot(f)
			if err != nil {
				return err
			}

			if showJSON {
				fmt.Println(jsonutil.MustMarshalIndent(snap))
				return nil
			}

			fmt.Printf("Invocation: %s\n", snap.ID)
			fmt.Printf("Program:    %s\n", snap.Program)
			fmt.Printf("Started:    %s\n", snap.StartedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("Duration:   %s\n", snap.FinishedAt.Sub(snap.StartedAt))
			fmt.Printf("Messages:   %d\n", len(snap.Conversation))
			fmt.Println()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STEP\tATTEMPT\tOK\tPREDICATE\tERROR")
			fmt.Fprintln(w, "----\t-------\t--\t---------\t-----")
			for _, step := range snap.Steps {
				for _, rec := range step.Records {
					pred := "-"
					if rec.PredicateOK != nil {
						pred = fmt.Sprintf("%v", *rec.PredicateOK)
					}
					errStr := "-"
					if rec.Err != "" {
						errStr = rec.Err
					}
					fmt.Fprintf(w, "%s\t%d\t%v\t%s\t%s\n", step.StepID, rec.Attempt, rec.OK, pred, errStr)
				}
			}
			w.Flush()

			fmt.Println()
			fmt.Printf("Calls: %d  Attempts: %d  Retries: %d  Suggest warnings: %d  Assert failures: %d\n",
				snap.Stats.TotalCalls, snap.Stats.TotalAttempts, snap.Stats.Retries,
				snap.Stats.SuggestWarnings, snap.Stats.AssertFailures)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")

	return cmd
}
