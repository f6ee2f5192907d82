package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/longregen/stanza/internal/jsonutil"
	"github.com/longregen/stanza/pkg/optimize"
	"github.com/longregen/stanza/pkg/prompt"
)

// optimizeCmd searches a prompt template against a scored dataset
func optimizeCmd() *cobra.Command {
	var (
		templatePath string
		datasetPath  string
		outputPath   string
		reportPath   string
		fieldNames   []string
		rounds       int
		parallelism  int
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Optimize a prompt template against a dataset",
		Long: `Search prompt-template fields for better-scoring variants.

The template file holds a JSON prompt template; the dataset file holds a JSON
array of {context, question, answer} examples. Each candidate is scored by
whether the expected answer appears in the model output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if templatePath == "" {
				return fmt.Errorf("template file is required (use --template)")
			}
			if datasetPath == "" {
				return fmt.Errorf("dataset file is required (use --dataset)")
			}

			shutdown, err := initTracing()
			if err != nil {
				return err
			}
			defer shutdown()

			baseline, err := loadTemplate(templatePath)
			if err != nil {
				return err
			}
			dataset, err := loadDataset(datasetPath)
			if err != nil {
				return err
			}

			ocfg := optimize.Config{
				Rounds:      cfg.Optimizer.Rounds,
				Parallelism: cfg.Optimizer.Parallelism,
				Exploration: cfg.Optimizer.Exploration,
			}
			if rounds > 0 {
				ocfg.Rounds = rounds
			}
			if parallelism > 0 {
				ocfg.Parallelism = parallelism
			}
			if ocfg.FieldOrder, err = parseFields(fieldNames); err != nil {
				return err
			}

			eng, stopMetrics := newEngine()
			defer stopMetrics()
			opt := optimize.New(eng, provider, optimize.WithConfig(ocfg))

			optimized, reports, err := opt.Optimize(ctx, baseline, dataset, answerMatchScore)
			if err != nil {
				return fmt.Errorf("optimization failed: %w", err)
			}

			printReports(reports)

			if reportPath != "" {
				if err := os.WriteFile(reportPath, []byte(jsonutil.MustMarshalIndent(reports)), 0o644); err != nil {
					return fmt.Errorf("failed to write report: %w", err)
				}
				fmt.Fprintf(os.Stderr, "Report written to %s\n", reportPath)
			}

			rendered := jsonutil.MustMarshalIndent(optimized)
			if outputPath == "" {
				fmt.Println(rendered)
				return nil
			}
			if err := os.WriteFile(outputPath, []byte(rendered), 0o644); err != nil {
				return fmt.Errorf("failed to write template: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Optimized template written to %s\n", outputPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&templatePath, "template", "t", "", "Baseline template file, JSON (required)")
	cmd.Flags().StringVarP(&datasetPath, "dataset", "d", "", "Evaluation dataset file, JSON array (required)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the optimized template here (default stdout)")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write per-field search reports here, JSON")
	cmd.Flags().StringSliceVarP(&fieldNames, "field", "f", nil, "Fields to search, in order (default all)")
	cmd.Flags().IntVarP(&rounds, "rounds", "r", 0, "Evaluation rounds per field (0 uses the configured default)")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "Concurrent evaluations per field (0 uses the configured default)")

	return cmd
}

// answerMatchScore is the built-in scoring signal: 1 when the expected answer
// appears in the output, else 0.
func answerMatchScore(_ context.Context, ex prompt.Example, output string) (float64, error) {
	if strings.Contains(strings.ToLower(output), strings.ToLower(strings.TrimSpace(ex.Answer))) {
		return 1, nil
	}
	return 0, nil
}

func loadTemplate(path string) (*prompt.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	var t prompt.Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return &t, nil
}

func loadDataset(path string) ([]prompt.Example, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	var examples []prompt.Example
	if err := json.Unmarshal(data, &examples); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	if len(examples) == 0 {
		return nil, fmt.Errorf("dataset is empty")
	}
	return examples, nil
}

func parseFields(names []string) ([]prompt.Field, error) {
	if len(names) == 0 {
		return nil, nil
	}
	known := make(map[prompt.Field]bool)
	for _, f := range prompt.Fields() {
		known[f] = true
	}
	fields := make([]prompt.Field, 0, len(names))
	for _, name := range names {
		f := prompt.Field(strings.ToLower(strings.TrimSpace(name)))
		if !known[f] {
			return nil, fmt.Errorf("unknown field %q (want one of %v)", name, prompt.Fields())
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func printReports(reports []optimize.FieldReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tCOMMITTED\tBASELINE\tBEST\tROUNDS\tNODES")
	fmt.Fprintln(w, "-----\t---------\t--------\t----\t------\t-----")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%d\t%d\n",
			r.Field, r.Committed, r.BaselineScore, r.BestScore, r.Rounds, len(r.Nodes))
	}
	w.Flush()
}
