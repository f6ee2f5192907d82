// Package optimize searches over prompt-template structure: a per-field tree
// search whose candidates are scored by running the execution engine over a
// dataset and applying an externally supplied scoring signal.
package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/longregen/stanza/internal/id"
	"github.com/longregen/stanza/internal/jsonutil"
	"github.com/longregen/stanza/pkg/engine"
	"github.com/longregen/stanza/pkg/llm"
	"github.com/longregen/stanza/pkg/program"
	"github.com/longregen/stanza/pkg/prompt"
)

var tracer = otel.GetTracerProvider().Tracer("stanza/optimize")

// ScoreFunc is the external evaluation signal. Higher is better; the
// optimizer never interprets scores beyond that.
type ScoreFunc func(ctx context.Context, ex prompt.Example, output string) (float64, error)

// BuildFunc turns a candidate template into the program evaluated by the
// forward pass. The program must accept "context" and "question" parameters.
type BuildFunc func(t *prompt.Template) (*program.Program, error)

// DefaultBuild compiles the template into a single-step program with context
// and question placeholders enabled.
func DefaultBuild(t *prompt.Template) (*program.Program, error) {
	tt := t.Clone()
	tt.PlaceholderContext = true
	tt.PlaceholderUserQuestion = true
	return program.New("forward").
		Params("context", "question").
		Step("answer", tt.Compile()).
		Build()
}

// Config holds the search parameters.
type Config struct {
	// Rounds is the per-field evaluation budget.
	Rounds int
	// Parallelism bounds concurrent evaluation rounds within one field.
	Parallelism int
	// Exploration is the upper-confidence constant.
	Exploration float64
	// FieldOrder fixes the per-field sequence; nil means prompt.Fields().
	FieldOrder []prompt.Field
}

// DefaultConfig returns the stock search parameters.
func DefaultConfig() Config {
	return Config{Rounds: 8, Parallelism: 2, Exploration: math.Sqrt2}
}

// Optimizer improves one template field at a time. Fields are searched
// strictly sequentially; rounds within a field may run in parallel, and the
// commit for a field happens only after all of its rounds complete.
type Optimizer struct {
	engine *engine.Engine
	gen    *generator
	build  BuildFunc
	cfg    Config
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithConfig replaces the search parameters.
func WithConfig(cfg Config) Option {
	return func(o *Optimizer) { o.cfg = cfg }
}

// WithBuildFunc replaces the forward-pass program builder.
func WithBuildFunc(b BuildFunc) Option {
	return func(o *Optimizer) { o.build = b }
}

// WithFieldOrder fixes which fields are searched, in order.
func WithFieldOrder(fields ...prompt.Field) Option {
	return func(o *Optimizer) { o.cfg.FieldOrder = fields }
}

// New creates an optimizer. The provider is used for candidate generation
// (paraphrases, bootstrapped examples); eng runs the forward passes.
func New(eng *engine.Engine, provider llm.Provider, opts ...Option) *Optimizer {
	o := &Optimizer{
		engine: eng,
		gen:    &generator{provider: provider},
		build:  DefaultBuild,
		cfg:    DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NodeReport is the exportable view of one search-tree node. Score is the
// node's own evaluation result; Visits and AvgScore are the selection
// statistics, which for inner nodes include descendant scores.
type NodeReport struct {
	ID       string  `json:"id"`
	Parent   string  `json:"parent,omitempty"`
	Origin   string  `json:"origin"`
	Score    float64 `json:"score"`
	Visits   int     `json:"visits"`
	AvgScore float64 `json:"avg_score"`
}

// FieldReport records one field's search for inspection.
type FieldReport struct {
	Field         prompt.Field `json:"field"`
	Committed     string       `json:"committed"`
	BestScore     float64      `json:"best_score"`
	BaselineScore float64      `json:"baseline_score"`
	Rounds        int          `json:"rounds"`
	Nodes         []NodeReport `json:"nodes"`
}

// Optimize returns a new template with each searched field replaced by its
// best-scoring candidate, plus one report per field. The baseline value is
// always a candidate, so a field's committed score never ranks below its
// baseline score. A terminal engine failure during evaluation scores the
// affected example as zero rather than aborting the run.
func (o *Optimizer) Optimize(ctx context.Context, baseline *prompt.Template, dataset []prompt.Example, score ScoreFunc) (*prompt.Template, []FieldReport, error) {
	if baseline == nil {
		return nil, nil, fmt.Errorf("baseline template is required")
	}
	if len(dataset) == 0 {
		return nil, nil, fmt.Errorf("dataset is empty")
	}
	if score == nil {
		return nil, nil, fmt.Errorf("score function is required")
	}
	if o.cfg.Rounds < 1 {
		return nil, nil, fmt.Errorf("rounds must be positive, got %d", o.cfg.Rounds)
	}

	runID := id.NewRun()
	working := baseline.Clone()
	order := o.cfg.FieldOrder
	if len(order) == 0 {
		order = prompt.Fields()
	}

	reports := make([]FieldReport, 0, len(order))
	for _, field := range order {
		fieldCtx, span := tracer.Start(ctx, "optimize.field", trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.String("field", string(field)),
			attribute.Int("rounds", o.cfg.Rounds),
		))

		tree, rounds := o.searchField(fieldCtx, field, working, dataset, score)
		best := tree.Best()

		report := buildReport(field, tree, best, rounds)
		reports = append(reports, report)

		if best != nil {
			working = applyCandidate(working, best.Value.(Candidate))
			span.SetAttributes(
				attribute.Float64("score.best", best.Score()),
				attribute.String("committed", best.Value.(Candidate).Origin),
			)
		}
		span.End()

		slog.InfoContext(fieldCtx, "field search complete",
			"run_id", runID, "field", field,
			"committed", report.Committed, "best_score", report.BestScore,
			"baseline_score", report.BaselineScore, "rounds", rounds)
		slog.DebugContext(fieldCtx, "field search tree", "run_id", runID,
			"field", field, "report", jsonutil.MustJSON(report))
	}

	return working, reports, nil
}

// searchField runs the select/expand/evaluate/backpropagate loop for one
// field until its round budget is spent.
func (o *Optimizer) searchField(ctx context.Context, field prompt.Field, working *prompt.Template, dataset []prompt.Example, score ScoreFunc) (*Tree, int) {
	tree := NewTree(baselineCandidate(working, field), o.cfg.Exploration)

	used := 0
	for used < o.cfg.Rounds {
		size := o.cfg.Parallelism
		if size < 1 {
			size = 1
		}
		if remaining := o.cfg.Rounds - used; size > remaining {
			size = remaining
		}

		batch := o.selectBatch(ctx, tree, size)
		if len(batch) == 0 {
			break
		}

		scores := make([]float64, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		for i, node := range batch {
			g.Go(func() error {
				scores[i] = o.evaluate(gctx, node.Value.(Candidate), working, dataset, score)
				return nil
			})
		}
		// Workers never return errors; evaluation failures score zero.
		_ = g.Wait()

		for i, node := range batch {
			node.Record(scores[i])
		}
		used += len(batch)
	}

	return tree, used
}

// selectBatch picks up to size distinct nodes to evaluate this generation,
// expanding a node into fresh candidates when selection lands on one that is
// already visited or already in the batch.
func (o *Optimizer) selectBatch(ctx context.Context, tree *Tree, size int) []*Node {
	picked := make(map[*Node]bool, size)
	var batch []*Node

	for len(batch) < size {
		node := tree.Select()
		if picked[node] || node.Evaluated() {
			node = o.expand(ctx, tree, node, picked)
			if node == nil {
				break
			}
		}
		picked[node] = true
		batch = append(batch, node)
	}
	return batch
}

// expand generates child candidates under node and returns an unevaluated one.
func (o *Optimizer) expand(ctx context.Context, tree *Tree, node *Node, picked map[*Node]bool) *Node {
	for _, c := range node.Children {
		if !c.Evaluated() && !picked[c] {
			return c
		}
	}

	cands, err := o.gen.propose(ctx, node.Value.(Candidate), len(node.Children))
	if err != nil {
		slog.WarnContext(ctx, "candidate generation failed", "node_id", node.ID, "error", err)
		return nil
	}

	var first *Node
	for _, c := range cands {
		child := tree.Add(node, c)
		if first == nil {
			first = child
		}
	}
	return first
}

// evaluate substitutes the candidate into the working template, runs the
// engine forward pass over the dataset and averages the external score.
func (o *Optimizer) evaluate(ctx context.Context, cand Candidate, working *prompt.Template, dataset []prompt.Example, score ScoreFunc) float64 {
	ctx, span := tracer.Start(ctx, "optimize.candidate_evaluation", trace.WithAttributes(
		attribute.String("field", string(cand.Field)),
		attribute.String("origin", cand.Origin),
	))
	defer span.End()

	tpl := applyCandidate(working, cand)
	prog, err := o.build(tpl)
	if err != nil {
		slog.WarnContext(ctx, "candidate produced invalid program", "origin", cand.Origin, "error", err)
		return 0
	}

	total := 0.0
	for _, ex := range dataset {
		res, err := o.engine.Invoke(ctx, prog, map[string]string{
			"context":  ex.Context,
			"question": ex.Question,
		})
		if err != nil {
			// A failed round ranks lowest; the search continues.
			slog.WarnContext(ctx, "forward pass failed", "origin", cand.Origin, "error", err)
			continue
		}
		s, err := score(ctx, ex, res.Output)
		if err != nil {
			slog.WarnContext(ctx, "score function failed", "origin", cand.Origin, "error", err)
			continue
		}
		total += s
	}

	avg := total / float64(len(dataset))
	span.SetAttributes(attribute.Float64("score.avg", avg))
	return avg
}

func buildReport(field prompt.Field, tree *Tree, best *Node, rounds int) FieldReport {
	report := FieldReport{Field: field, Rounds: rounds}
	if tree.Root.Evaluated() {
		report.BaselineScore = tree.Root.Score()
	}
	if best != nil {
		report.BestScore = best.Score()
		report.Committed = best.Value.(Candidate).Describe()
	}
	tree.Walk(func(n *Node) {
		nr := NodeReport{
			ID:       n.ID,
			Origin:   n.Value.(Candidate).Origin,
			Score:    n.Score(),
			Visits:   n.Visits,
			AvgScore: n.AvgScore(),
		}
		if n.Parent != nil {
			nr.Parent = n.Parent.ID
		}
		report.Nodes = append(report.Nodes, nr)
	})
	return report
}
