// Package prompt provides the structured, field-based prompt representation
// that the optimizer searches over. Compiling a template to final text is a
// pure function of its fields.
package prompt

import (
	"fmt"
	"strings"
)

// Example is one demonstration triple. It doubles as a dataset row for
// optimizer evaluation, where Answer holds the expected output.
type Example struct {
	Context  string `json:"context,omitempty"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Template is a structured prompt. Each field is an independently optimizable
// unit; the optimizer derives candidates per field and never mutates a
// template in place.
type Template struct {
	Role         string    `json:"role,omitempty"`
	Task         string    `json:"task"`
	Instructions []string  `json:"instructions,omitempty"`
	Examples     []Example `json:"examples,omitempty"`
	Motivation   string    `json:"motivation,omitempty"`

	ChainOfThought          bool `json:"chain_of_thought,omitempty"`
	PlaceholderContext      bool `json:"placeholder_context,omitempty"`
	PlaceholderUserQuestion bool `json:"placeholder_user_question,omitempty"`
}

// Field names one optimizable unit of a Template.
type Field string

const (
	FieldRole         Field = "role"
	FieldTask         Field = "task"
	FieldInstructions Field = "instructions"
	FieldExamples     Field = "examples"
	FieldMotivation   Field = "motivation"
)

// Fields returns the default optimization order.
func Fields() []Field {
	return []Field{FieldRole, FieldTask, FieldInstructions, FieldExamples, FieldMotivation}
}

// Clone returns a deep copy of the template.
func (t *Template) Clone() *Template {
	out := *t
	out.Instructions = append([]string(nil), t.Instructions...)
	out.Examples = append([]Example(nil), t.Examples...)
	return &out
}

// Compile renders the template to final prompt text. Placeholder markers for
// injected context and question are emitted where the corresponding flags are
// set; the engine substitutes them at invocation time.
func (t *Template) Compile() string {
	var sb strings.Builder

	if t.Role != "" {
		sb.WriteString(t.Role)
		sb.WriteString("\n\n")
	}
	if t.Motivation != "" {
		sb.WriteString(t.Motivation)
		sb.WriteString("\n\n")
	}
	if t.Task != "" {
		sb.WriteString("Task: ")
		sb.WriteString(t.Task)
		sb.WriteString("\n\n")
	}
	if len(t.Instructions) > 0 {
		sb.WriteString("Instructions:\n")
		for i, ins := range t.Instructions {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, ins))
		}
		sb.WriteString("\n")
	}
	if len(t.Examples) > 0 {
		sb.WriteString("Examples:\n\n")
		for _, ex := range t.Examples {
			if ex.Context != "" {
				sb.WriteString("Context: ")
				sb.WriteString(ex.Context)
				sb.WriteString("\n")
			}
			sb.WriteString("Question: ")
			sb.WriteString(ex.Question)
			sb.WriteString("\nAnswer: ")
			sb.WriteString(ex.Answer)
			sb.WriteString("\n\n")
		}
	}
	if t.ChainOfThought {
		sb.WriteString("Think step by step before giving the final answer.\n\n")
	}
	if t.PlaceholderContext {
		sb.WriteString("Context: {{context}}\n")
	}
	if t.PlaceholderUserQuestion {
		sb.WriteString("Question: {{question}}\n")
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}
