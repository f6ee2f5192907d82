package optimize

import (
	"context"
	"fmt"
	"strings"

	"github.com/longregen/stanza/pkg/llm"
	"github.com/longregen/stanza/pkg/prompt"
)

// Candidate is one concrete value for the field under search. Exactly one of
// Text, Instructions or Examples is meaningful, depending on Field.
type Candidate struct {
	Field        prompt.Field
	Origin       string // baseline, paraphrase, phrase, bootstrap
	Text         string
	Instructions []string
	Examples     []prompt.Example
}

// Describe returns a short label for reports and logs.
func (c Candidate) Describe() string {
	switch c.Field {
	case prompt.FieldInstructions:
		return fmt.Sprintf("%s (%d instructions)", c.Origin, len(c.Instructions))
	case prompt.FieldExamples:
		return fmt.Sprintf("%s (%d examples)", c.Origin, len(c.Examples))
	default:
		return fmt.Sprintf("%s (%d chars)", c.Origin, len(c.Text))
	}
}

// baselineCandidate captures the template's current value for a field.
func baselineCandidate(t *prompt.Template, field prompt.Field) Candidate {
	c := Candidate{Field: field, Origin: "baseline"}
	switch field {
	case prompt.FieldRole:
		c.Text = t.Role
	case prompt.FieldTask:
		c.Text = t.Task
	case prompt.FieldMotivation:
		c.Text = t.Motivation
	case prompt.FieldInstructions:
		c.Instructions = append([]string(nil), t.Instructions...)
	case prompt.FieldExamples:
		c.Examples = append([]prompt.Example(nil), t.Examples...)
	}
	return c
}

// applyCandidate substitutes only the candidate's field into a fresh copy of
// the template; all other fields hold their current values.
func applyCandidate(t *prompt.Template, c Candidate) *prompt.Template {
	out := t.Clone()
	switch c.Field {
	case prompt.FieldRole:
		out.Role = c.Text
	case prompt.FieldTask:
		out.Task = c.Text
	case prompt.FieldMotivation:
		out.Motivation = c.Text
	case prompt.FieldInstructions:
		out.Instructions = append([]string(nil), c.Instructions...)
	case prompt.FieldExamples:
		out.Examples = append([]prompt.Example(nil), c.Examples...)
	}
	return out
}

// helpfulPhrases are reusable nudges worth trying on any string field.
var helpfulPhrases = []string{
	"Let's think step by step.",
	"Be precise; if you are unsure, say so explicitly.",
	"Answer with only the information asked for, nothing else.",
	"Double-check the answer against the given context before replying.",
}

const paraphrasePrompt = `Rewrite the following prompt text to be clearer and more effective. Keep its meaning. Reply with only the rewritten text.

%s`

const bootstrapPrompt = `Here are examples of a question-answering task:

%s
Write one more example in exactly the same format, on a new topic. Use the labels "Context:", "Question:" and "Answer:".`

// generator derives new candidate values from the current one. Provider
// failures are reported to the caller, which skips the variant.
type generator struct {
	provider llm.Provider
	params   llm.Params
}

// propose derives child candidates. round is the number of children already
// expanded under the parent; it rotates which helpful phrase is tried next.
func (g *generator) propose(ctx context.Context, cur Candidate, round int) ([]Candidate, error) {
	switch cur.Field {
	case prompt.FieldExamples:
		return g.proposeExamples(ctx, cur)
	case prompt.FieldInstructions:
		return g.proposeInstructions(ctx, cur, round)
	default:
		return g.proposeText(ctx, cur, round)
	}
}

func (g *generator) proposeText(ctx context.Context, cur Candidate, round int) ([]Candidate, error) {
	var out []Candidate

	if strings.TrimSpace(cur.Text) != "" {
		text, err := g.paraphrase(ctx, cur.Text)
		if err == nil && strings.TrimSpace(text) != "" {
			out = append(out, Candidate{Field: cur.Field, Origin: "paraphrase", Text: strings.TrimSpace(text)})
		}
	}

	phrase := helpfulPhrases[round%len(helpfulPhrases)]
	withPhrase := phrase
	if strings.TrimSpace(cur.Text) != "" {
		withPhrase = strings.TrimSpace(cur.Text) + " " + phrase
	}
	out = append(out, Candidate{Field: cur.Field, Origin: "phrase", Text: withPhrase})

	if len(out) == 0 {
		return nil, fmt.Errorf("no candidates for field %s", cur.Field)
	}
	return out, nil
}

func (g *generator) proposeInstructions(ctx context.Context, cur Candidate, round int) ([]Candidate, error) {
	var out []Candidate

	if len(cur.Instructions) > 0 {
		text, err := g.paraphrase(ctx, strings.Join(cur.Instructions, "\n"))
		if err == nil {
			var lines []string
			for _, line := range strings.Split(text, "\n") {
				if s := strings.TrimSpace(line); s != "" {
					lines = append(lines, s)
				}
			}
			if len(lines) > 0 {
				out = append(out, Candidate{Field: cur.Field, Origin: "paraphrase", Instructions: lines})
			}
		}
	}

	phrase := helpfulPhrases[round%len(helpfulPhrases)]
	withPhrase := append(append([]string(nil), cur.Instructions...), phrase)
	out = append(out, Candidate{Field: cur.Field, Origin: "phrase", Instructions: withPhrase})

	return out, nil
}

func (g *generator) proposeExamples(ctx context.Context, cur Candidate) ([]Candidate, error) {
	if len(cur.Examples) == 0 {
		return nil, fmt.Errorf("no baseline examples to bootstrap from")
	}

	var sb strings.Builder
	for _, ex := range cur.Examples {
		if ex.Context != "" {
			fmt.Fprintf(&sb, "Context: %s\n", ex.Context)
		}
		fmt.Fprintf(&sb, "Question: %s\nAnswer: %s\n\n", ex.Question, ex.Answer)
	}

	resp, err := g.provider.Generate(ctx, llm.Conversation{}.With(llm.RoleUser, fmt.Sprintf(bootstrapPrompt, sb.String())), g.params)
	if err != nil {
		return nil, fmt.Errorf("bootstrap example: %w", err)
	}
	ex, err := parseExample(resp.Content)
	if err != nil {
		return nil, err
	}

	grown := append(append([]prompt.Example(nil), cur.Examples...), ex)
	return []Candidate{{Field: cur.Field, Origin: "bootstrap", Examples: grown}}, nil
}

func (g *generator) paraphrase(ctx context.Context, text string) (string, error) {
	resp, err := g.provider.Generate(ctx, llm.Conversation{}.With(llm.RoleUser, fmt.Sprintf(paraphrasePrompt, text)), g.params)
	if err != nil {
		return "", fmt.Errorf("paraphrase: %w", err)
	}
	return resp.Content, nil
}

// parseExample extracts a Context/Question/Answer block from provider output.
func parseExample(text string) (prompt.Example, error) {
	var ex prompt.Example
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Context:"):
			ex.Context = strings.TrimSpace(strings.TrimPrefix(line, "Context:"))
		case strings.HasPrefix(line, "Question:"):
			ex.Question = strings.TrimSpace(strings.TrimPrefix(line, "Question:"))
		case strings.HasPrefix(line, "Answer:"):
			ex.Answer = strings.TrimSpace(strings.TrimPrefix(line, "Answer:"))
		}
	}
	if ex.Question == "" || ex.Answer == "" {
		return prompt.Example{}, fmt.Errorf("could not parse example from %.80q", text)
	}
	return ex, nil
}
