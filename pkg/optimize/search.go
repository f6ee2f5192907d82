package optimize

import (
	"math"

	"github.com/longregen/stanza/internal/id"
)

// Node is one candidate in a search tree. Visits and TotalScore are
// selection statistics: they accumulate scores backpropagated from
// descendants and exist only to steer the upper-confidence bound. A node's
// own evaluation result is stored separately, because an ancestor's running
// average says how promising its subtree is, not how good the ancestor's
// candidate itself scored.
type Node struct {
	ID         string
	Value      any
	Parent     *Node
	Children   []*Node
	Visits     int
	TotalScore float64

	evaluated bool
	score     float64
}

// AvgScore returns the mean of all scores backpropagated through this node.
func (n *Node) AvgScore() float64 {
	if n.Visits == 0 {
		return 0
	}
	return n.TotalScore / float64(n.Visits)
}

// Score returns the node's own evaluation score.
func (n *Node) Score() float64 { return n.score }

// Evaluated reports whether the node's candidate has been scored.
func (n *Node) Evaluated() bool { return n.evaluated }

// Record stores the node's own evaluation score and folds it into the
// selection statistics of the node and its ancestors.
func (n *Node) Record(score float64) {
	n.score = score
	n.evaluated = true
	n.Backpropagate(score)
}

// Backpropagate adds the score to this node's and every ancestor's selection
// statistics.
func (n *Node) Backpropagate(score float64) {
	for cur := n; cur != nil; cur = cur.Parent {
		cur.Visits++
		cur.TotalScore += score
	}
}

// Tree is a best-first search tree with upper-confidence selection. Values
// are opaque: candidates come from a generation function and scores from an
// external callback, so the same core can search any discrete structured
// parameter.
type Tree struct {
	Root        *Node
	Exploration float64
}

// NewTree roots a search at the given baseline value.
func NewTree(rootValue any, exploration float64) *Tree {
	if exploration <= 0 {
		exploration = math.Sqrt2
	}
	return &Tree{
		Root:        &Node{ID: id.NewNode(), Value: rootValue},
		Exploration: exploration,
	}
}

// Add attaches a child candidate under parent.
func (t *Tree) Add(parent *Node, value any) *Node {
	child := &Node{ID: id.NewNode(), Value: value, Parent: parent}
	parent.Children = append(parent.Children, child)
	return child
}

// Select descends from the root toward a promising node: an unvisited node is
// taken immediately, otherwise the child with the best upper-confidence score
// (average score plus an exploration bonus for under-visited children).
func (t *Tree) Select() *Node {
	node := t.Root
	for {
		if node.Visits == 0 || len(node.Children) == 0 {
			return node
		}
		var best *Node
		bestScore := math.Inf(-1)
		for _, c := range node.Children {
			if c.Visits == 0 {
				return c
			}
			score := c.AvgScore() + t.Exploration*math.Sqrt(math.Log(float64(node.Visits))/float64(c.Visits))
			if score > bestScore {
				best = c
				bestScore = score
			}
		}
		node = best
	}
}

// Best returns the evaluated node with the highest own score. Selection
// statistics are deliberately not consulted: an ancestor's average includes
// its descendants' scores and would misrank the ancestor's own candidate.
// Ties keep the earlier node in walk order, so the baseline root wins a tie.
func (t *Tree) Best() *Node {
	var best *Node
	t.Walk(func(n *Node) {
		if !n.evaluated {
			return
		}
		if best == nil || n.score > best.score {
			best = n
		}
	})
	return best
}

// Walk visits every node depth-first, root first.
func (t *Tree) Walk(fn func(*Node)) {
	var rec func(*Node)
	rec = func(n *Node) {
		fn(n)
		for _, c := range n.Children {
			rec(c)
		}
	}
	rec(t.Root)
}
