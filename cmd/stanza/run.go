package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/longregen/stanza/internal/jsonutil"
	"github.com/longregen/stanza/pkg/engine"
	"github.com/longregen/stanza/pkg/llm"
	"github.com/longregen/stanza/pkg/program"
)

// runCmd executes a single-step program built from flags
func runCmd() *cobra.Command {
	var (
		promptTmpl string
		argPairs   []string
		policy     string
		limit      int
		minLength  int
		feedback   string
		traceOut   string
		showJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an ad-hoc single-step program",
		Long: `Run a single-step program against the configured provider.

The prompt may contain {{name}} placeholders; bind them with --arg name=value.
With --policy suggest or assert, the built-in predicate accepts a reply of at
least --min-length characters and feeds --feedback back on failure.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if promptTmpl == "" {
				return fmt.Errorf("prompt is required (use --prompt)")
			}

			shutdown, err := initTracing()
			if err != nil {
				return err
			}
			defer shutdown()

			progArgs := make(map[string]string, len(argPairs))
			for _, pair := range argPairs {
				k, v, ok := strings.Cut(pair, "=")
				if !ok {
					return fmt.Errorf("invalid --arg %q, expected name=value", pair)
				}
				progArgs[k] = v
			}
			names := make([]string, 0, len(progArgs))
			for k := range progArgs {
				names = append(names, k)
			}

			prog, err := buildAdhocProgram(promptTmpl, names, policy, limit, minLength, feedback)
			if err != nil {
				return err
			}

			eng, stopMetrics := newEngine()
			defer stopMetrics()
			res, invokeErr := eng.Invoke(ctx, prog, progArgs, engine.WithBudget(program.BudgetConfig{
				MaxRetries:    cfg.Budget.MaxRetries,
				MaxSuggests:   cfg.Budget.MaxSuggests,
				MaxAsserts:    cfg.Budget.MaxAsserts,
				MaxTotalCalls: cfg.Budget.MaxTotalCalls,
			}))

			// A terminated invocation still carries a partial trace.
			if traceOut != "" && res != nil && res.Invocation != nil {
				if err := writeTrace(traceOut, res.Invocation); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Trace written to %s\n", traceOut)
			}

			if invokeErr != nil {
				return fmt.Errorf("invocation failed: %w", invokeErr)
			}

			if showJSON {
				fmt.Println(jsonutil.MustMarshalIndent(res.Invocation.Snapshot()))
				return nil
			}

			fmt.Println(res.Output)
			fmt.Fprintln(os.Stderr)
			printStats(res.Invocation)
			return nil
		},
	}

	cmd.Flags().StringVarP(&promptTmpl, "prompt", "p", "", "Prompt template with {{name}} placeholders (required)")
	cmd.Flags().StringArrayVarP(&argPairs, "arg", "a", nil, "Program argument as name=value (repeatable)")
	cmd.Flags().StringVar(&policy, "policy", "none", "Step policy (none, retry, suggest, assert)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Policy attempt limit (0 uses the configured default)")
	cmd.Flags().IntVar(&minLength, "min-length", 1, "Minimum reply length accepted by suggest/assert")
	cmd.Flags().StringVar(&feedback, "feedback", "", "Feedback message sent after a rejected reply")
	cmd.Flags().StringVar(&traceOut, "trace-out", "", "Write the invocation trace to this file (msgpack)")
	cmd.Flags().BoolVar(&showJSON, "json", false, "Output the full invocation as JSON")

	return cmd
}

func buildAdhocProgram(promptTmpl string, params []string, policy string, limit, minLength int, feedback string) (*program.Program, error) {
	b := program.New("adhoc").Params(params...)

	pred := func(m llm.Message, _ llm.Conversation) bool {
		return len(strings.TrimSpace(m.Content)) >= minLength
	}
	var fb program.FeedbackFunc
	if feedback != "" {
		fb = func(llm.Message) string { return feedback }
	}

	switch policy {
	case "none":
		b.Step("answer", promptTmpl)
	case "retry":
		b.Retry("answer", promptTmpl, limit)
	case "suggest":
		b.Suggest("answer", promptTmpl, pred, fb, limit)
	case "assert":
		b.Assert("answer", promptTmpl, pred, fb, limit)
	default:
		return nil, fmt.Errorf("unknown policy %q (want none, retry, suggest or assert)", policy)
	}

	return b.WithParams(defaultParams()).Build()
}

func writeTrace(path string, inv *engine.Invocation) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace file: %w", err)
	}
	defer f.Close()
	return engine.WriteSnapshot(f, inv)
}

func printStats(inv *engine.Invocation) {
	w := tabwriter.NewWriter(os.Stderr, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Invocation:\t%s\n", inv.ID)
	fmt.Fprintf(w, "Calls:\t%d\n", inv.Stats.TotalCalls)
	fmt.Fprintf(w, "Attempts:\t%d\n", inv.Stats.TotalAttempts)
	fmt.Fprintf(w, "Retries:\t%d\n", inv.Stats.Retries)
	fmt.Fprintf(w, "Suggest warnings:\t%d\n", inv.Stats.SuggestWarnings)
	fmt.Fprintf(w, "Assert failures:\t%d\n", inv.Stats.AssertFailures)
	w.Flush()
}
