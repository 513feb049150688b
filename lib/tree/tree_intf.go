package tree

import "github.com/benz9527/xrbtree/lib/infra"

// go install golang.org/x/tools/cmd/stringer@latest

//go:generate stringer -type=RBColor
type RBColor uint8

const (
	Black RBColor = iota
	Red
)

//go:generate stringer -type=RBDirection
type RBDirection int8

const (
	Left RBDirection = -1 + iota
	Root
	Right
)

// RBHandle is a non-owning reference to one stored key.
// It stays valid until the referenced key is erased or the tree
// is released. The zero value never refers to a node.
type RBHandle struct {
	tree uint64
	gen  uint64
	idx  uint32
}

func (h RBHandle) IsZero() bool {
	return h == RBHandle{}
}

// RBNode is a read-only structural view of a node.
// The sentinel is viewed as a node whose IsNil returns true.
type RBNode[K infra.Integer] interface {
	Key() K
	Color() RBColor
	IsNil() bool
	Handle() RBHandle
	Left() RBNode[K]
	Right() RBNode[K]
	Parent() RBNode[K]
}

// RBTree is a multiset of keys. Equal keys are kept, a later insertion
// is placed after the earlier equal keys in order.
// It is not safe for concurrent use.
type RBTree[K infra.Integer] interface {
	Len() int64
	Root() RBNode[K]
	Insert(key K) (RBHandle, error)
	Find(key K) (RBHandle, error)
	Min() (RBHandle, error)
	Max() (RBHandle, error)
	Succ(h RBHandle) (RBHandle, error)
	Pred(h RBHandle) (RBHandle, error)
	Key(h RBHandle) (K, error)
	Color(h RBHandle) (RBColor, error)
	Erase(h RBHandle) error
	EraseKey(key K) error
	RemoveMin() (K, error)
	RemoveMax() (K, error)
	ToArray(buf []K) int
	Foreach(action func(idx int64, color RBColor, key K) bool)
	Release() int64
}
