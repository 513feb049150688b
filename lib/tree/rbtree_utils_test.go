package tree

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func buildTestTree(t *testing.T, keys ...int64) *rbTree[int64] {
	tree := newTestTree(t)
	for _, k := range keys {
		_, err := tree.Insert(k)
		require.NoError(t, err)
	}
	require.NoError(t, Validate[int64](tree))
	return tree
}

func TestValidate_RedRoot(t *testing.T) {
	tree := buildTestTree(t, 2, 1, 3)
	tree.node(tree.root).color = Red
	require.Error(t, RootColorValidate[int64](tree))
	// root red with red children
	require.Error(t, RedViolationValidate[int64](tree))
	require.Len(t, multierr.Errors(Validate[int64](tree)), 2)
}

func TestValidate_RedViolation(t *testing.T) {
	tree := buildTestTree(t, 20, 10, 30, 5)
	// 10 and 30 are black, 5 is red; painting 10 red breaks p3 and p4.
	h, err := tree.Find(10)
	require.NoError(t, err)
	tree.node(h.idx).color = Red
	require.Error(t, RedViolationValidate[int64](tree))
	require.Error(t, BlackViolationValidate[int64](tree))
	require.NoError(t, RootColorValidate[int64](tree))
}

func TestValidate_BlackViolation(t *testing.T) {
	tree := buildTestTree(t, 20, 10, 30)
	h, err := tree.Find(30)
	require.NoError(t, err)
	tree.node(h.idx).color = Black
	require.NoError(t, RedViolationValidate[int64](tree))
	require.Error(t, BlackViolationValidate[int64](tree))
}

func TestValidate_SentinelColor(t *testing.T) {
	tree := buildTestTree(t, 1)
	tree.node(nilIdx).color = Red
	require.Error(t, RootColorValidate[int64](tree))
	tree.node(nilIdx).color = Black
	tree.node(nilIdx).left = tree.root
	require.Error(t, RootColorValidate[int64](tree))
}

func TestValidate_OrderAndLinks(t *testing.T) {
	tree := buildTestTree(t, 2, 1, 3)
	l := tree.node(tree.root).left
	tree.node(l).key = 9
	require.Error(t, OrderValidate[int64](tree))

	tree = buildTestTree(t, 2, 1, 3)
	r := tree.node(tree.root).right
	tree.node(r).parent = r
	require.Error(t, LinkValidate[int64](tree))

	tree = buildTestTree(t, 2, 1, 3)
	tree.count = 5
	require.Error(t, OrderValidate[int64](tree))
}
