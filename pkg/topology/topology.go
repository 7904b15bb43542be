// Package topology implements the closed-form arithmetic of the static
// k-ary tree overlay: given a rank, its arity, and the tree size, compute
// its parent, children, level, and descendant set without any search or
// discovery step.
package topology

import "github.com/pkg/errors"

// ErrInvalidRank is returned when a rank falls outside [0, size).
var ErrInvalidRank = errors.New("rank out of range")

// ErrInvalidArity is returned for a non-positive arity.
var ErrInvalidArity = errors.New("arity must be positive")

// Tree describes a k-ary tree overlay of a fixed size and arity, rooted
// at rank 0.
type Tree struct {
	Size  uint32
	Arity uint32
}

// New validates size/arity and returns a Tree.
func New(size, arity uint32) (Tree, error) {
	if arity == 0 {
		return Tree{}, ErrInvalidArity
	}
	if size == 0 {
		return Tree{}, ErrInvalidRank
	}
	return Tree{Size: size, Arity: arity}, nil
}

func (t Tree) valid(rank uint32) bool { return rank < t.Size }

// IsRoot reports whether rank is the tree root.
func (t Tree) IsRoot(rank uint32) bool { return rank == 0 }

// Parent returns the parent rank of rank. The root has no parent.
func (t Tree) Parent(rank uint32) (uint32, bool, error) {
	if !t.valid(rank) {
		return 0, false, ErrInvalidRank
	}
	if t.IsRoot(rank) {
		return 0, false, nil
	}
	return (rank - 1) / t.Arity, true, nil
}

// Child returns the i-th (0-based) child rank of rank, if it exists
// within the tree's size.
func (t Tree) Child(rank uint32, i uint32) (uint32, bool, error) {
	if !t.valid(rank) {
		return 0, false, ErrInvalidRank
	}
	child := rank*t.Arity + i + 1
	if child >= t.Size {
		return 0, false, nil
	}
	return child, true, nil
}

// ChildrenCount returns the number of live children rank has within the
// tree's size.
func (t Tree) ChildrenCount(rank uint32) (uint32, error) {
	if !t.valid(rank) {
		return 0, ErrInvalidRank
	}
	first := rank*t.Arity + 1
	if first >= t.Size {
		return 0, nil
	}
	remaining := t.Size - first
	if remaining > t.Arity {
		return t.Arity, nil
	}
	return remaining, nil
}

// Children returns all live child ranks of rank, in index order.
func (t Tree) Children(rank uint32) ([]uint32, error) {
	n, err := t.ChildrenCount(rank)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, n)
	for i := uint32(0); i < n; i++ {
		c, ok, err := t.Child(rank, i)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, c)
	}
	return out, nil
}

// Level returns the depth of rank, with the root at level 0.
func (t Tree) Level(rank uint32) (uint32, error) {
	if !t.valid(rank) {
		return 0, ErrInvalidRank
	}
	level := uint32(0)
	cur := rank
	for cur != 0 {
		cur = (cur - 1) / t.Arity
		level++
	}
	return level, nil
}

// ChildRoute returns which of rank's children is an ancestor of (or equal
// to) target, i.e. the next hop from rank toward target. Returns false if
// target is not a descendant of rank.
func (t Tree) ChildRoute(rank, target uint32) (uint32, bool, error) {
	if !t.valid(rank) || !t.valid(target) {
		return 0, false, ErrInvalidRank
	}
	if target == rank {
		return 0, false, nil
	}
	cur := target
	for {
		p, ok, err := t.Parent(cur)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			return 0, false, nil
		}
		if p == rank {
			return cur, true, nil
		}
		cur = p
	}
}

// IsDescendant reports whether target lies in the subtree rooted at rank
// (rank itself counts as its own descendant).
func (t Tree) IsDescendant(rank, target uint32) (bool, error) {
	if !t.valid(rank) || !t.valid(target) {
		return false, ErrInvalidRank
	}
	cur := target
	for {
		if cur == rank {
			return true, nil
		}
		p, ok, err := t.Parent(cur)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		cur = p
	}
}

// Descendants returns every rank in the subtree rooted at rank, excluding
// rank itself, in breadth-first order.
func (t Tree) Descendants(rank uint32) ([]uint32, error) {
	if !t.valid(rank) {
		return nil, ErrInvalidRank
	}
	var out []uint32
	queue := []uint32{rank}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		kids, err := t.Children(cur)
		if err != nil {
			return nil, err
		}
		out = append(out, kids...)
		queue = append(queue, kids...)
	}
	return out, nil
}
