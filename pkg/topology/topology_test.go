package topology

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// k=2, N=7 is a complete binary tree:
//           0
//         /   \
//        1     2
//       / \   / \
//      3   4 5   6
func newBinaryTree(t *testing.T) Tree {
	tr, err := New(7, 2)
	require.NoError(t, err)
	return tr
}

func TestParentChildInverse(t *testing.T) {
	tr := newBinaryTree(t)
	for rank := uint32(0); rank < tr.Size; rank++ {
		kids, err := tr.Children(rank)
		require.NoError(t, err)
		for i, c := range kids {
			p, ok, err := tr.Parent(c)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, rank, p, "child(%d,%d)=%d must have parent %d", rank, i, c, rank)
		}
	}
}

func TestRootHasNoParent(t *testing.T) {
	tr := newBinaryTree(t)
	_, ok, err := tr.Parent(0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLevels(t *testing.T) {
	tr := newBinaryTree(t)
	want := map[uint32]uint32{0: 0, 1: 1, 2: 1, 3: 2, 4: 2, 5: 2, 6: 2}
	for rank, level := range want {
		got, err := tr.Level(rank)
		require.NoError(t, err)
		require.Equal(t, level, got, "rank %d", rank)
	}
}

func TestChildRouteToDescendant(t *testing.T) {
	tr := newBinaryTree(t)
	hop, ok, err := tr.ChildRoute(0, 6)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(2), hop)

	hop, ok, err = tr.ChildRoute(0, 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1), hop)
}

func TestChildRouteNotDescendant(t *testing.T) {
	tr := newBinaryTree(t)
	_, ok, err := tr.ChildRoute(1, 2)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDescendantsOfRoot(t *testing.T) {
	tr := newBinaryTree(t)
	d, err := tr.Descendants(0)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint32{1, 2, 3, 4, 5, 6}, d)
}

func TestDescendantsOfLeaf(t *testing.T) {
	tr := newBinaryTree(t)
	d, err := tr.Descendants(6)
	require.NoError(t, err)
	require.Empty(t, d)
}

func TestIsDescendant(t *testing.T) {
	tr := newBinaryTree(t)
	ok, err := tr.IsDescendant(1, 4)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tr.IsDescendant(2, 4)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = tr.IsDescendant(5, 5)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestChildrenCountLeaf(t *testing.T) {
	tr := newBinaryTree(t)
	n, err := tr.ChildrenCount(6)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestInvalidRankRejected(t *testing.T) {
	tr := newBinaryTree(t)
	_, _, err := tr.Parent(99)
	require.ErrorIs(t, err, ErrInvalidRank)
}

func TestInvalidArityRejected(t *testing.T) {
	_, err := New(7, 0)
	require.ErrorIs(t, err, ErrInvalidArity)
}
