package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackpropagateUpdatesAncestors(t *testing.T) {
	tree := NewTree("root", 1.0)
	child := tree.Add(tree.Root, "child")
	grandchild := tree.Add(child, "grandchild")

	grandchild.Backpropagate(0.8)

	assert.Equal(t, 1, grandchild.Visits)
	assert.Equal(t, 1, child.Visits)
	assert.Equal(t, 1, tree.Root.Visits)
	assert.InDelta(t, 0.8, tree.Root.AvgScore(), 0.001)
}

func TestRecordKeepsOwnScoreApartFromSelectionStats(t *testing.T) {
	tree := NewTree("root", 1.0)
	tree.Root.Record(0.9)

	child := tree.Add(tree.Root, "child")
	child.Record(0.1)

	// The child's result flows into the root's selection statistics but
	// must not touch the root's own evaluation.
	assert.InDelta(t, 0.9, tree.Root.Score(), 0.001)
	assert.InDelta(t, 0.5, tree.Root.AvgScore(), 0.001)
	assert.InDelta(t, 0.1, child.Score(), 0.001)
	assert.True(t, tree.Root.Evaluated())
}

func TestSelectReturnsUnvisitedRootFirst(t *testing.T) {
	tree := NewTree("root", 1.0)
	assert.Same(t, tree.Root, tree.Select())
}

func TestSelectPrefersUnvisitedChildren(t *testing.T) {
	tree := NewTree("root", 1.0)
	tree.Root.Record(0.5)

	a := tree.Add(tree.Root, "a")
	b := tree.Add(tree.Root, "b")
	a.Record(0.9)

	assert.Same(t, b, tree.Select())
}

func TestSelectBalancesScoreAndVisits(t *testing.T) {
	tree := NewTree("root", 0.5)
	good := tree.Add(tree.Root, "good")
	bad := tree.Add(tree.Root, "bad")

	// Root visit count includes backpropagated child visits.
	for i := 0; i < 5; i++ {
		good.Backpropagate(0.9)
	}
	bad.Backpropagate(0.1)

	// With a small exploration constant the high-average child wins.
	assert.Same(t, good, tree.Select())

	// A large exploration constant pulls selection to the under-visited one.
	tree.Exploration = 10
	assert.Same(t, bad, tree.Select())
}

func TestBestPicksHighestOwnScore(t *testing.T) {
	tree := NewTree("root", 1.0)
	tree.Root.Record(0.2)

	a := tree.Add(tree.Root, "a")
	a.Record(0.7)
	b := tree.Add(tree.Root, "b")
	b.Record(0.4)

	best := tree.Best()
	require.NotNil(t, best)
	assert.Same(t, a, best)
}

func TestBestNotDilutedByWeakDescendants(t *testing.T) {
	tree := NewTree("root", 1.0)
	tree.Root.Record(0.9)

	a := tree.Add(tree.Root, "a")
	a.Record(0.1)
	b := tree.Add(tree.Root, "b")
	b.Record(0.8)

	// The root's selection average has sunk to 0.6, but its own candidate
	// still scored 0.9 and must beat every child.
	assert.InDelta(t, 0.6, tree.Root.AvgScore(), 0.001)
	assert.Same(t, tree.Root, tree.Best())
}

func TestBestTieKeepsBaseline(t *testing.T) {
	tree := NewTree("root", 1.0)
	tree.Root.Record(0.5)

	child := tree.Add(tree.Root, "child")
	child.Record(0.5)

	assert.Same(t, tree.Root, tree.Best())
}

func TestBestIgnoresUnevaluatedNodes(t *testing.T) {
	tree := NewTree("root", 1.0)
	tree.Add(tree.Root, "never evaluated")
	tree.Root.Record(0.1)

	assert.Same(t, tree.Root, tree.Best())
}
