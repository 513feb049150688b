package tree

import (
	"math"

	"github.com/benz9527/xrbtree/lib/infra"
)

// The sentinel always occupies slot 0 of the arena. It is black, its links
// point to itself, and it stands for every absent child and for the parent
// of the root.
const nilIdx uint32 = 0

type rbNode[K infra.Integer] struct {
	parent uint32
	left   uint32
	right  uint32
	// Bumped each time the slot is released, so a handle taken before
	// the release no longer matches.
	gen   uint64
	key   K
	color RBColor
	live  bool
}

// rbArena stores the nodes of one tree addressed by stable indices.
// Released slots are recycled through the free list.
//
// Node pointers returned by node() are invalidated by alloc(), because
// the backing slice may grow. Callers never keep them across an alloc.
type rbArena[K infra.Integer] struct {
	nodes []rbNode[K]
	free  []uint32
	limit int64 // max live nodes, 0 means unlimited
}

func newRBArena[K infra.Integer](prealloc int, limit int64) *rbArena[K] {
	if prealloc < 0 {
		prealloc = 0
	}
	a := &rbArena[K]{
		nodes: make([]rbNode[K], 1, prealloc+1),
		limit: limit,
	}
	a.nodes[nilIdx] = rbNode[K]{
		parent: nilIdx,
		left:   nilIdx,
		right:  nilIdx,
		color:  Black,
	}
	return a
}

func (a *rbArena[K]) node(idx uint32) *rbNode[K] {
	return &a.nodes[idx]
}

func (a *rbArena[K]) live() int64 {
	return int64(len(a.nodes)-1) - int64(len(a.free))
}

// alloc returns a red node holding key with all links on the sentinel.
// It fails when the live count reached the limit or the index space
// is exhausted, the arena is left unchanged in that case.
func (a *rbArena[K]) alloc(key K) (uint32, bool) {
	if a.limit > 0 && a.live() >= a.limit {
		return nilIdx, false
	}

	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		if uint64(len(a.nodes)) > math.MaxUint32 {
			return nilIdx, false
		}
		idx = uint32(len(a.nodes))
		a.nodes = append(a.nodes, rbNode[K]{})
	}

	node := &a.nodes[idx]
	node.parent, node.left, node.right = nilIdx, nilIdx, nilIdx
	node.key = key
	node.color = Red
	node.live = true
	return idx, true
}

func (a *rbArena[K]) release(idx uint32) {
	if idx == nilIdx {
		// impossible run to here
		panic( /* debug assertion */ "[rbtree] release the sentinel node")
	}
	gen := a.nodes[idx].gen + 1
	a.nodes[idx] = rbNode[K]{gen: gen}
	a.free = append(a.free, idx)
}

// valid reports whether idx with generation gen still refers to a live node.
func (a *rbArena[K]) valid(idx uint32, gen uint64) bool {
	if idx == nilIdx || uint64(idx) >= uint64(len(a.nodes)) {
		return false
	}
	node := &a.nodes[idx]
	return node.live && node.gen == gen
}
