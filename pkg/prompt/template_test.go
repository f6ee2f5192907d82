package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTemplate() *Template {
	return &Template{
		Role:         "You are a careful geography tutor.",
		Task:         "Answer the question using only the given context.",
		Instructions: []string{"Quote the context when possible.", "Say 'unknown' if the context is silent."},
		Examples: []Example{
			{Context: "Paris is the capital of France.", Question: "What is the capital of France?", Answer: "Paris"},
		},
		Motivation:              "Accurate answers help students trust the material.",
		ChainOfThought:          true,
		PlaceholderContext:      true,
		PlaceholderUserQuestion: true,
	}
}

func TestCompileContainsAllSections(t *testing.T) {
	text := sampleTemplate().Compile()

	assert.Contains(t, text, "You are a careful geography tutor.")
	assert.Contains(t, text, "Task: Answer the question")
	assert.Contains(t, text, "1. Quote the context when possible.")
	assert.Contains(t, text, "2. Say 'unknown' if the context is silent.")
	assert.Contains(t, text, "Question: What is the capital of France?")
	assert.Contains(t, text, "Answer: Paris")
	assert.Contains(t, text, "Think step by step")
	assert.Contains(t, text, "{{context}}")
	assert.Contains(t, text, "{{question}}")
}

func TestCompileSectionOrder(t *testing.T) {
	text := sampleTemplate().Compile()

	role := strings.Index(text, "geography tutor")
	task := strings.Index(text, "Task:")
	instructions := strings.Index(text, "Instructions:")
	examples := strings.Index(text, "Examples:")
	placeholder := strings.Index(text, "{{question}}")

	require.True(t, role >= 0 && task > role)
	require.True(t, instructions > task)
	require.True(t, examples > instructions)
	require.True(t, placeholder > examples)
}

func TestCompileIsPure(t *testing.T) {
	tpl := sampleTemplate()
	assert.Equal(t, tpl.Compile(), tpl.Compile())
}

func TestCompileOmitsEmptySections(t *testing.T) {
	tpl := &Template{Task: "Summarize the text.", PlaceholderUserQuestion: true}
	text := tpl.Compile()

	assert.NotContains(t, text, "Instructions:")
	assert.NotContains(t, text, "Examples:")
	assert.NotContains(t, text, "{{context}}")
	assert.Contains(t, text, "{{question}}")
}

func TestCloneIsIndependent(t *testing.T) {
	tpl := sampleTemplate()
	cp := tpl.Clone()

	cp.Task = "changed"
	cp.Instructions[0] = "changed"
	cp.Examples[0].Answer = "changed"

	assert.Equal(t, "Answer the question using only the given context.", tpl.Task)
	assert.Equal(t, "Quote the context when possible.", tpl.Instructions[0])
	assert.Equal(t, "Paris", tpl.Examples[0].Answer)
}
