package tree

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/benz9527/xrbtree/lib/infra"
)

var _ RBNode[int64] = (*rbNodeView[int64])(nil)

type rbNodeView[K infra.Integer] struct {
	tree *rbTree[K]
	idx  uint32
}

func (v *rbNodeView[K]) Key() K         { return v.tree.node(v.idx).key }
func (v *rbNodeView[K]) Color() RBColor { return v.tree.node(v.idx).color }
func (v *rbNodeView[K]) IsNil() bool    { return v.idx == nilIdx }

func (v *rbNodeView[K]) Handle() RBHandle {
	if v.idx == nilIdx {
		return RBHandle{}
	}
	return v.tree.handle(v.idx)
}

func (v *rbNodeView[K]) Left() RBNode[K] {
	return &rbNodeView[K]{tree: v.tree, idx: v.tree.node(v.idx).left}
}

func (v *rbNodeView[K]) Right() RBNode[K] {
	return &rbNodeView[K]{tree: v.tree, idx: v.tree.node(v.idx).right}
}

func (v *rbNodeView[K]) Parent() RBNode[K] {
	return &rbNodeView[K]{tree: v.tree, idx: v.tree.node(v.idx).parent}
}

func isBlack[K infra.Integer](node RBNode[K]) bool {
	return node.IsNil() || node.Color() == Black
}

func isRed[K infra.Integer](node RBNode[K]) bool {
	return !node.IsNil() && node.Color() == Red
}

func sameNode[K infra.Integer](a, b RBNode[K]) bool {
	if a.IsNil() || b.IsNil() {
		return a.IsNil() && b.IsNil()
	}
	return a.Handle() == b.Handle()
}

func blackDepthTo[K infra.Integer](target, to RBNode[K]) int {
	depth := 0
	for aux := target; !sameNode[K](aux, to); aux = aux.Parent() {
		if isBlack[K](aux) {
			depth++
		}
	}
	return depth
}

// rbtree rule validation utilities.

// References:
// https://github1s.com/minghu6/rust-minghu6/blob/master/coll_st/src/bst/rb.rs

// preorder collects every node of the tree, parents before children.
func preorder[K infra.Integer](tree RBTree[K]) []RBNode[K] {
	aux := tree.Root()
	if aux.IsNil() {
		return nil
	}
	nodes := make([]RBNode[K], 0, tree.Len())
	stack := make([]RBNode[K], 0, 64)
	defer func() {
		clear(stack)
	}()
	stack = append(stack, aux)
	for len(stack) > 0 {
		aux = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes = append(nodes, aux)
		if r := aux.Right(); !r.IsNil() {
			stack = append(stack, r)
		}
		if l := aux.Left(); !l.IsNil() {
			stack = append(stack, l)
		}
	}
	return nodes
}

// RootColorValidate checks the root and the sentinel are black and the
// sentinel links point to itself.
func RootColorValidate[K infra.Integer](tree RBTree[K]) error {
	root := tree.Root()
	sentinel := root.Parent()
	if !sentinel.IsNil() {
		return errors.New("rbtree root has a parent")
	}
	if sentinel.Color() != Black {
		return errors.New("rbtree sentinel is not black")
	}
	if !sentinel.Left().IsNil() || !sentinel.Right().IsNil() || !sentinel.Parent().IsNil() {
		return errors.New("rbtree sentinel links escape")
	}
	if !root.IsNil() && root.Color() != Black {
		return fmt.Errorf("rbtree root %v is not black", root.Key())
	}
	return nil
}

func RedViolationValidate[K infra.Integer](tree RBTree[K]) error {
	for _, aux := range preorder[K](tree) {
		if isRed[K](aux) && (isRed[K](aux.Left()) || isRed[K](aux.Right())) {
			return fmt.Errorf("rbtree red violation at key %v", aux.Key())
		}
	}
	return nil
}

/*
<X> is a RED node.
[X] is a BLACK node (or the sentinel).

	        [13]
			/  \
		 <8>    [15]
		 / \    /  \
	  [6] [11] [14] [17]
	  /              /
	<1>            [16]

Each node with a sentinel child is the end of some paths, the black
depth from it to the root must be equal.
*/
func BlackViolationValidate[K infra.Integer](tree RBTree[K]) error {
	var (
		root       = tree.Root()
		blackDepth = -1
	)
	for _, aux := range preorder[K](tree) {
		if !aux.Left().IsNil() && !aux.Right().IsNil() {
			continue
		}
		depth := blackDepthTo[K](aux, root.Parent())
		if blackDepth < 0 {
			blackDepth = depth
		} else if depth != blackDepth {
			return fmt.Errorf("rbtree black violation at key %v, depth %d, expected %d", aux.Key(), depth, blackDepth)
		}
	}
	return nil
}

// LinkValidate checks every child points back to its parent.
func LinkValidate[K infra.Integer](tree RBTree[K]) error {
	for _, aux := range preorder[K](tree) {
		for _, c := range []RBNode[K]{aux.Left(), aux.Right()} {
			if !c.IsNil() && !sameNode[K](c.Parent(), aux) {
				return fmt.Errorf("rbtree broken parent link at key %v", c.Key())
			}
		}
	}
	return nil
}

// OrderValidate checks the inorder keys follow the tree order and the
// traversal visits exactly Len keys.
func OrderValidate[K infra.Integer](tree RBTree[K]) error {
	cmp := infra.AscComparator[K]
	if t, ok := tree.(*rbTree[K]); ok {
		cmp = t.keyCompare
	}

	var (
		err   error
		prev  K
		count int64
	)
	tree.Foreach(func(idx int64, color RBColor, key K) bool {
		if idx > 0 && cmp(prev, key) > 0 {
			err = fmt.Errorf("rbtree order violation at index %d, %v after %v", idx, key, prev)
			return false
		}
		prev = key
		count++
		return true
	})
	if err != nil {
		return err
	}
	if count != tree.Len() {
		return fmt.Errorf("rbtree traversal visits %d keys, len %d", count, tree.Len())
	}
	return nil
}

// Validate runs all the rules and combines the violations.
func Validate[K infra.Integer](tree RBTree[K]) error {
	return multierr.Combine(
		RootColorValidate[K](tree),
		RedViolationValidate[K](tree),
		BlackViolationValidate[K](tree),
		LinkValidate[K](tree),
		OrderValidate[K](tree),
	)
}
