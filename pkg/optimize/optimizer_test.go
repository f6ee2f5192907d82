package optimize

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longregen/stanza/internal/backoff"
	"github.com/longregen/stanza/pkg/engine"
	"github.com/longregen/stanza/pkg/llm"
	"github.com/longregen/stanza/pkg/prompt"
)

// echoProvider answers with the last user message and tracks concurrency.
type echoProvider struct {
	delay time.Duration
	err   error

	mu       sync.Mutex
	calls    int
	inFlight int
	hiWater  int
}

func (p *echoProvider) Generate(_ context.Context, conv llm.Conversation, _ llm.Params) (llm.Message, error) {
	p.mu.Lock()
	p.calls++
	p.inFlight++
	if p.inFlight > p.hiWater {
		p.hiWater = p.inFlight
	}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}()

	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.err != nil {
		return llm.Message{}, p.err
	}
	last, _ := conv.Last()
	return llm.Message{Role: llm.RoleAssistant, Content: last.Content}, nil
}

func newOptimizer(p llm.Provider, cfg Config) *Optimizer {
	eng := engine.New(p, engine.WithBackoff(backoff.None))
	return New(eng, p, WithConfig(cfg))
}

func scoreContains(needle string) ScoreFunc {
	return func(_ context.Context, _ prompt.Example, output string) (float64, error) {
		if strings.Contains(output, needle) {
			return 1, nil
		}
		return 0, nil
	}
}

var dataset = []prompt.Example{
	{Context: "Paris is the capital of France.", Question: "Capital of France?", Answer: "Paris"},
}

func TestOptimizeCommitsImprovedTask(t *testing.T) {
	provider := &echoProvider{}
	opt := newOptimizer(provider, Config{
		Rounds:      6,
		Parallelism: 2,
		FieldOrder:  []prompt.Field{prompt.FieldTask},
	})

	baseline := &prompt.Template{Task: "Reply tersely."}
	optimized, reports, err := opt.Optimize(context.Background(), baseline, dataset, scoreContains("step by step"))
	require.NoError(t, err)
	require.Len(t, reports, 1)

	// The baseline never mentions stepwise reasoning, so a helpful-phrase
	// candidate must have won the field.
	assert.Contains(t, optimized.Task, "step by step")
	assert.Equal(t, "Reply tersely.", baseline.Task)

	report := reports[0]
	assert.Equal(t, prompt.FieldTask, report.Field)
	assert.InDelta(t, 1.0, report.BestScore, 0.001)
	assert.GreaterOrEqual(t, report.BestScore, report.BaselineScore)
	assert.Equal(t, 6, report.Rounds)
	assert.GreaterOrEqual(t, len(report.Nodes), 3)
}

func TestOptimizeKeepsBaselineOverWeakerCandidates(t *testing.T) {
	provider := &echoProvider{}
	opt := newOptimizer(provider, Config{
		Rounds:      3,
		Parallelism: 1,
		FieldOrder:  []prompt.Field{prompt.FieldTask},
	})

	// The baseline outscores every derived candidate: the paraphrase
	// candidate (whose echoed text carries the rewrite instruction) scores
	// lowest, the helpful-phrase candidate lands in between.
	score := func(_ context.Context, _ prompt.Example, output string) (float64, error) {
		switch {
		case strings.Contains(output, "Rewrite the following"):
			return 0.1, nil
		case strings.Contains(output, "step by step"):
			return 0.8, nil
		default:
			return 0.9, nil
		}
	}

	baseline := &prompt.Template{Task: "Answer from the given context."}
	optimized, reports, err := opt.Optimize(context.Background(), baseline, dataset, score)
	require.NoError(t, err)

	require.Len(t, reports, 1)
	report := reports[0]

	// Descendant scores must not dilute the baseline's own result: the
	// field keeps its original value and the report shows the true numbers.
	assert.Equal(t, baseline.Task, optimized.Task)
	assert.InDelta(t, 0.9, report.BaselineScore, 0.001)
	assert.InDelta(t, 0.9, report.BestScore, 0.001)
	assert.GreaterOrEqual(t, report.BestScore, report.BaselineScore)
}

func TestOptimizeKeepsBaselineOnTie(t *testing.T) {
	provider := &echoProvider{}
	opt := newOptimizer(provider, Config{
		Rounds:      4,
		Parallelism: 2,
		FieldOrder:  []prompt.Field{prompt.FieldTask},
	})

	flat := func(context.Context, prompt.Example, string) (float64, error) { return 0.5, nil }

	baseline := &prompt.Template{Task: "Answer the question."}
	optimized, reports, err := opt.Optimize(context.Background(), baseline, dataset, flat)
	require.NoError(t, err)

	assert.Equal(t, baseline.Task, optimized.Task)
	assert.InDelta(t, 0.5, reports[0].BaselineScore, 0.001)
	assert.InDelta(t, 0.5, reports[0].BestScore, 0.001)
}

func TestOptimizeSurvivesProviderFailure(t *testing.T) {
	provider := &echoProvider{err: errors.New("provider down")}
	opt := newOptimizer(provider, Config{
		Rounds:      4,
		Parallelism: 2,
		FieldOrder:  []prompt.Field{prompt.FieldTask},
	})

	baseline := &prompt.Template{Task: "Answer the question."}
	optimized, reports, err := opt.Optimize(context.Background(), baseline, dataset, scoreContains("anything"))
	require.NoError(t, err)

	// Every round failed, so nothing can beat the baseline.
	assert.Equal(t, baseline.Task, optimized.Task)
	assert.Zero(t, reports[0].BestScore)
}

func TestOptimizeSearchesFieldsSequentially(t *testing.T) {
	provider := &echoProvider{}
	opt := newOptimizer(provider, Config{
		Rounds:      3,
		Parallelism: 1,
		FieldOrder:  []prompt.Field{prompt.FieldTask, prompt.FieldMotivation},
	})

	baseline := &prompt.Template{Task: "Answer the question."}
	_, reports, err := opt.Optimize(context.Background(), baseline, dataset, scoreContains("nope"))
	require.NoError(t, err)

	require.Len(t, reports, 2)
	assert.Equal(t, prompt.FieldTask, reports[0].Field)
	assert.Equal(t, prompt.FieldMotivation, reports[1].Field)
	assert.Equal(t, 3, reports[0].Rounds)
	assert.Equal(t, 3, reports[1].Rounds)
}

func TestOptimizeEvaluatesRoundsInParallel(t *testing.T) {
	provider := &echoProvider{delay: 25 * time.Millisecond}
	opt := newOptimizer(provider, Config{
		Rounds:      4,
		Parallelism: 4,
		FieldOrder:  []prompt.Field{prompt.FieldTask},
	})

	baseline := &prompt.Template{Task: "Answer the question."}
	_, _, err := opt.Optimize(context.Background(), baseline, dataset, scoreContains("nope"))
	require.NoError(t, err)

	provider.mu.Lock()
	hiWater := provider.hiWater
	provider.mu.Unlock()
	assert.GreaterOrEqual(t, hiWater, 2, "evaluation rounds should overlap")
}

func TestOptimizeValidatesInputs(t *testing.T) {
	provider := &echoProvider{}
	opt := newOptimizer(provider, DefaultConfig())

	_, _, err := opt.Optimize(context.Background(), nil, dataset, scoreContains("x"))
	require.Error(t, err)

	_, _, err = opt.Optimize(context.Background(), &prompt.Template{Task: "t"}, nil, scoreContains("x"))
	require.Error(t, err)

	_, _, err = opt.Optimize(context.Background(), &prompt.Template{Task: "t"}, dataset, nil)
	require.Error(t, err)
}

func TestDefaultBuildProducesForwardProgram(t *testing.T) {
	prog, err := DefaultBuild(&prompt.Template{Task: "Answer."})
	require.NoError(t, err)

	assert.Equal(t, []string{"context", "question"}, prog.Params())
	steps := prog.Steps()
	require.Len(t, steps, 1)
	assert.Contains(t, steps[0].Prompt, "{{context}}")
	assert.Contains(t, steps[0].Prompt, "{{question}}")
}

func TestBootstrapExampleGeneration(t *testing.T) {
	provider := &scriptedProvider{content: "Context: Berlin is in Germany.\nQuestion: Where is Berlin?\nAnswer: Germany"}
	g := &generator{provider: provider}

	cur := baselineCandidate(&prompt.Template{Examples: dataset}, prompt.FieldExamples)
	cands, err := g.propose(context.Background(), cur, 0)
	require.NoError(t, err)
	require.Len(t, cands, 1)

	assert.Equal(t, "bootstrap", cands[0].Origin)
	require.Len(t, cands[0].Examples, 2)
	assert.Equal(t, "Where is Berlin?", cands[0].Examples[1].Question)
	assert.Equal(t, "Germany", cands[0].Examples[1].Answer)
}

func TestParseExampleRejectsGarbage(t *testing.T) {
	_, err := parseExample("no labels here at all")
	require.Error(t, err)
}

// scriptedProvider returns a fixed message.
type scriptedProvider struct {
	content string
}

func (p *scriptedProvider) Generate(context.Context, llm.Conversation, llm.Params) (llm.Message, error) {
	return llm.Message{Role: llm.RoleAssistant, Content: p.content}, nil
}
