package tree

import (
	"errors"
	"sync/atomic"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/benz9527/xrbtree/lib/id"
	"github.com/benz9527/xrbtree/lib/infra"
	"github.com/benz9527/xrbtree/lib/xlog"
)

var (
	ErrRBTreeAllocFailed   = errors.New("[rbtree] node allocation failed")
	ErrRBTreeInvalidHandle = errors.New("[rbtree] invalid node handle")
	ErrRBTreeKeyNotFound   = errors.New("[rbtree] key not found")
	ErrRBTreeEmpty         = errors.New("[rbtree] empty tree")
	ErrRBTreeInvalidOption = errors.New("[rbtree] invalid option")
)

// Every tree, and every epoch of a tree after Release, draws its own
// identity. Handles carry it, so a handle from another tree (or from
// before a release) is rejected.
var rbTreeIDGen = lo.Must(id.MonotonicNonZeroID())

// RBTreeRecorder receives the tree operation events, see the
// observability package for the OpenTelemetry implementation.
type RBTreeRecorder interface {
	RecordInsert()
	RecordErase()
	RecordFailure(reason string)
}

type nopRecorder struct{}

func (nopRecorder) RecordInsert()        {}
func (nopRecorder) RecordErase()         {}
func (nopRecorder) RecordFailure(string) {}

var _ RBTree[int64] = (*rbTree[int64])(nil)

type rbTree[K infra.Integer] struct {
	arena    *rbArena[K]
	logger   xlog.XLogger
	recorder RBTreeRecorder
	id       uint64
	count    int64 // atomic, read by the metrics readers
	root     uint32
	isDesc   bool
	prealloc int
	limit    int64
}

func (tree *rbTree[K]) keyCompare(k1, k2 K) int64 {
	if !tree.isDesc {
		return infra.AscComparator[K](k1, k2)
	}
	return infra.DescComparator[K](k1, k2)
}

func (tree *rbTree[K]) node(idx uint32) *rbNode[K] {
	return tree.arena.node(idx)
}

func (tree *rbTree[K]) handle(idx uint32) RBHandle {
	return RBHandle{
		tree: tree.id,
		idx:  idx,
		gen:  tree.node(idx).gen,
	}
}

func (tree *rbTree[K]) resolve(h RBHandle) (uint32, error) {
	if h.tree != tree.id || !tree.arena.valid(h.idx, h.gen) {
		tree.logger.Warn("reject handle",
			zap.Uint64("tree", tree.id),
			zap.Uint64("handleTree", h.tree),
			zap.Uint32("idx", h.idx),
			zap.Uint64("gen", h.gen),
		)
		tree.recorder.RecordFailure("invalid_handle")
		return nilIdx, infra.WrapErrorStack(ErrRBTreeInvalidHandle)
	}
	return h.idx, nil
}

func (tree *rbTree[K]) Len() int64 {
	return atomic.LoadInt64(&tree.count)
}

func (tree *rbTree[K]) Root() RBNode[K] {
	return &rbNodeView[K]{tree: tree, idx: tree.root}
}

func (tree *rbTree[K]) direction(x uint32) RBDirection {
	if x == tree.root {
		return Root
	}
	if x == tree.node(tree.node(x).parent).left {
		return Left
	}
	return Right
}

func (tree *rbTree[K]) child(x uint32, dir RBDirection) uint32 {
	switch dir {
	case Left:
		return tree.node(x).left
	case Right:
		return tree.node(x).right
	default:
	}
	// impossible run to here
	panic( /* debug assertion */ "[rbtree] child with unknown direction")
}

func (dir RBDirection) opposite() RBDirection {
	return -dir
}

// References:
// https://elixir.bootlin.com/linux/latest/source/lib/rbtree.c
// rbtree properties:
// https://en.wikipedia.org/wiki/Red%E2%80%93black_tree#Properties
// p1. Every node is either red or black.
// p2. The sentinel is black.
// p3. A red node does not have a red child. (red-violation)
// p4. Every path from a given node to any of its descendant
//   sentinel goes through the same number of black nodes. (black-violation)
// p5. The root is black.

/*
		 |                         |
		 X                         S
		/ \     leftRotate(X)     / \
	   L   S    ============>    X   Sd
		  / \                   / \
		Sc   Sd                L   Sc
*/
func (tree *rbTree[K]) leftRotate(x uint32) {
	xn := tree.node(x)
	if x == nilIdx || xn.right == nilIdx {
		// impossible run to here
		panic( /* debug assertion */ "[rbtree] left rotate node x is nil or x.right is nil")
	}

	y := xn.right
	yn := tree.node(y)
	xn.right = yn.left
	if yn.left != nilIdx {
		tree.node(yn.left).parent = x
	}

	p := xn.parent
	switch dir := tree.direction(x); dir {
	case Root:
		tree.root = y
	case Left:
		tree.node(p).left = y
	case Right:
		tree.node(p).right = y
	default:
		// impossible run to here
		panic( /* debug assertion */ "[rbtree] unknown node direction to left-rotate")
	}
	yn.parent = p
	yn.left = x
	xn.parent = y
}

/*
			 |                         |
			 X                         S
			/ \     rightRotate(S)    / \
	       L   S    <============    X   R
			  / \                   / \
			Sc   Sd               Sc   Sd
*/
func (tree *rbTree[K]) rightRotate(x uint32) {
	xn := tree.node(x)
	if x == nilIdx || xn.left == nilIdx {
		// impossible run to here
		panic( /* debug assertion */ "[rbtree] right rotate node x is nil or x.left is nil")
	}

	y := xn.left
	yn := tree.node(y)
	xn.left = yn.right
	if yn.right != nilIdx {
		tree.node(yn.right).parent = x
	}

	p := xn.parent
	switch dir := tree.direction(x); dir {
	case Root:
		tree.root = y
	case Left:
		tree.node(p).left = y
	case Right:
		tree.node(p).right = y
	default:
		// impossible run to here
		panic( /* debug assertion */ "[rbtree] unknown node direction to right-rotate")
	}
	yn.parent = p
	yn.right = x
	xn.parent = y
}

// rotate moves x down to the dir side.
func (tree *rbTree[K]) rotate(x uint32, dir RBDirection) {
	switch dir {
	case Left:
		tree.leftRotate(x)
	case Right:
		tree.rightRotate(x)
	default:
		// impossible run to here
		panic( /* debug assertion */ "[rbtree] rotate with unknown direction")
	}
}

// Insert keeps equal keys, a tie routes right so the new key is ordered
// after the existing equal keys.
func (tree *rbTree[K]) Insert(key K) (RBHandle, error) {
	z, ok := tree.arena.alloc(key)
	if !ok {
		err := infra.WrapErrorStack(ErrRBTreeAllocFailed)
		tree.logger.ErrorStack(err, "insert",
			zap.Uint64("tree", tree.id),
			zap.Int64("len", tree.Len()),
			zap.Int64("capacity", tree.limit),
		)
		tree.recorder.RecordFailure("alloc_failed")
		return RBHandle{}, err
	}

	y, x := nilIdx, tree.root
	for x != nilIdx {
		y = x
		if /* less */ tree.keyCompare(key, tree.node(x).key) < 0 {
			x = tree.node(x).left
		} else /* greater or equal */ {
			x = tree.node(x).right
		}
	}

	tree.node(z).parent = y
	if y == nilIdx {
		tree.root = z
	} else if tree.keyCompare(key, tree.node(y).key) < 0 {
		tree.node(y).left = z
	} else {
		tree.node(y).right = z
	}

	atomic.AddInt64(&tree.count, 1)
	tree.insertFixup(z)
	tree.recorder.RecordInsert()
	return tree.handle(z), nil
}

/*
New node X is red by default.

<X> is a RED node.
[X] is a BLACK node (or the sentinel).

im1: The uncle U is red, so the grandpa G is black. (red-violation)
Repaint P and U into black and G into red.
G may be red-violation now, recursive to fix grandpa.

	    [G]             <G>
	    / \             / \
	  <P> <U>  ====>  [P] [U]
	  /               /
	<X>             <X>

im2: The uncle U is black, X is the inner child of P.
Rotate P to the X's opposite direction, then P is the outer
child of X. Enter im3 with P.

	  [G]                 [G]
	  / \    rotate(P)    / \
	<P> [U]  ========>  <X> [U]
	  \                 /
	  <X>             <P>

im3: The uncle U is black, X is the outer child of P.
Repaint P into black and G into red, rotate G to the U's side.

	    [G]                 <P>               [P]
	    / \    rotate(G)    / \    repaint    / \
	  <P> [U]  ========>  <X> [G]  ======>  <X> <G>
	  /                         \                 \
	<X>                         [U]               [U]

The root's parent is the black sentinel, so the loop stops at the root.
Recoloring may push red up to the root, the root is repainted at last.
*/
func (tree *rbTree[K]) insertFixup(z uint32) {
	for tree.node(tree.node(z).parent).color == Red {
		p := tree.node(z).parent
		g := tree.node(p).parent
		dir := tree.direction(p)
		u := tree.child(g, dir.opposite())

		if /* im1 */ tree.node(u).color == Red {
			tree.node(p).color = Black
			tree.node(u).color = Black
			tree.node(g).color = Red
			z = g
			continue
		}

		if /* im2 */ tree.direction(z) != dir {
			z = p
			tree.rotate(z, dir)
			p = tree.node(z).parent
		}

		/* im3 */
		tree.node(p).color = Black
		tree.node(g).color = Red
		tree.rotate(g, dir.opposite())
	}
	tree.node(tree.root).color = Black
}

func (tree *rbTree[K]) Find(key K) (RBHandle, error) {
	for x := tree.root; x != nilIdx; {
		res := tree.keyCompare(key, tree.node(x).key)
		if res == 0 {
			return tree.handle(x), nil
		} else if res > 0 {
			x = tree.node(x).right
		} else {
			x = tree.node(x).left
		}
	}
	return RBHandle{}, ErrRBTreeKeyNotFound
}

func (tree *rbTree[K]) minimum(x uint32) uint32 {
	for x != nilIdx && tree.node(x).left != nilIdx {
		x = tree.node(x).left
	}
	return x
}

func (tree *rbTree[K]) maximum(x uint32) uint32 {
	for x != nilIdx && tree.node(x).right != nilIdx {
		x = tree.node(x).right
	}
	return x
}

func (tree *rbTree[K]) Min() (RBHandle, error) {
	if tree.root == nilIdx {
		return RBHandle{}, ErrRBTreeEmpty
	}
	return tree.handle(tree.minimum(tree.root)), nil
}

func (tree *rbTree[K]) Max() (RBHandle, error) {
	if tree.root == nilIdx {
		return RBHandle{}, ErrRBTreeEmpty
	}
	return tree.handle(tree.maximum(tree.root)), nil
}

// The succ node of the current node is its next node in sorted order.
func (tree *rbTree[K]) succ(x uint32) uint32 {
	if r := tree.node(x).right; r != nilIdx {
		return tree.minimum(r)
	}
	// Backtrack to father node that is the x's succ.
	p := tree.node(x).parent
	for p != nilIdx && x == tree.node(p).right {
		x = p
		p = tree.node(p).parent
	}
	return p
}

// The pred node of the current node is its previous node in sorted order.
func (tree *rbTree[K]) pred(x uint32) uint32 {
	if l := tree.node(x).left; l != nilIdx {
		return tree.maximum(l)
	}
	p := tree.node(x).parent
	for p != nilIdx && x == tree.node(p).left {
		x = p
		p = tree.node(p).parent
	}
	return p
}

func (tree *rbTree[K]) Succ(h RBHandle) (RBHandle, error) {
	x, err := tree.resolve(h)
	if err != nil {
		return RBHandle{}, err
	}
	if x = tree.succ(x); x == nilIdx {
		return RBHandle{}, ErrRBTreeKeyNotFound
	}
	return tree.handle(x), nil
}

func (tree *rbTree[K]) Pred(h RBHandle) (RBHandle, error) {
	x, err := tree.resolve(h)
	if err != nil {
		return RBHandle{}, err
	}
	if x = tree.pred(x); x == nilIdx {
		return RBHandle{}, ErrRBTreeKeyNotFound
	}
	return tree.handle(x), nil
}

func (tree *rbTree[K]) Key(h RBHandle) (K, error) {
	x, err := tree.resolve(h)
	if err != nil {
		return *new(K), err
	}
	return tree.node(x).key, nil
}

func (tree *rbTree[K]) Color(h RBHandle) (RBColor, error) {
	x, err := tree.resolve(h)
	if err != nil {
		return Black, err
	}
	return tree.node(x).color, nil
}

// transplant puts v at u's position. v's parent is always set, even if
// v is the sentinel, the erase fixup starts from it.
func (tree *rbTree[K]) transplant(u, v uint32) {
	p := tree.node(u).parent
	switch dir := tree.direction(u); dir {
	case Root:
		tree.root = v
	case Left:
		tree.node(p).left = v
	case Right:
		tree.node(p).right = v
	default:
		// impossible run to here
		panic( /* debug assertion */ "[rbtree] unknown node direction to transplant")
	}
	tree.node(v).parent = p
}

func (tree *rbTree[K]) Erase(h RBHandle) error {
	z, err := tree.resolve(h)
	if err != nil {
		return err
	}
	tree.erase(z)
	return nil
}

/*
r1: Z has at most one child C (maybe the sentinel).
Replace Z by C. X is C, the removed color is Z's color.

r2: Z has two children. Its succ S is the leftmost node of the
right subtree, S has no left child.
Take S out of its position (replaced by its right child X), then
put S at Z's position with Z's color. The removed color is S's
original color.

	  |                    |
	  Z                    S
	 / \                  / \
	L  ..   replace(Z)   L  ..
		|   =========>       |
		P                    P
	   / \                  / \
	  S  ..                X  ..
	   \
	    X

A removed red node never breaks p3 or p4. A removed black node
leaves a black deficit at X (double-black), it must be fixed.
*/
func (tree *rbTree[K]) erase(z uint32) {
	zn := tree.node(z)
	y, yColor := z, zn.color
	var x uint32

	if /* r1 */ zn.left == nilIdx {
		x = zn.right
		tree.transplant(z, zn.right)
	} else if /* r1 */ zn.right == nilIdx {
		x = zn.left
		tree.transplant(z, zn.left)
	} else /* r2 */ {
		y = tree.minimum(zn.right)
		yn := tree.node(y)
		yColor = yn.color
		x = yn.right
		if yn.parent == z {
			tree.node(x).parent = y
		} else {
			tree.transplant(y, yn.right)
			yn.right = zn.right
			tree.node(yn.right).parent = y
		}
		tree.transplant(z, y)
		yn.left = zn.left
		tree.node(yn.left).parent = y
		yn.color = zn.color
	}

	if yColor == Black {
		tree.eraseFixup(x)
	}
	// Transplant may leave the sentinel pointing at a real node.
	tree.node(nilIdx).parent = nilIdx

	tree.arena.release(z)
	atomic.AddInt64(&tree.count, -1)
	tree.recorder.RecordErase()
}

/*
<X> is a RED node.
[X] is a BLACK node (or the sentinel).
{X} is either a RED node or a BLACK node.

X carries the black deficit. S is X's sibling, Sc is the S's child
on X's side and Sd is the S's child on the other side.

rm1: S is red, so P, Sc and Sd are black.
Repaint S into black and P into red, rotate P to X's side.
The new sibling (old Sc) is black, enter rm2-rm4.

	  [P]                   <S>               [S]
	  / \    l-rotate(P)    / \    repaint    / \
	[X] <S>  ==========>  [P] [Sd]  ======>  <P> [Sd]
	    / \               / \               / \
	 [Sc] [Sd]          [X] [Sc]          [X] [Sc]

rm2: S, Sc and Sd are black.
Repaint S into red, the deficit moves up to P.
If P is red, the loop stops and P is repainted black at last.

	  {P}             {P}
	  / \             / \
	[X] [S]  ====>  [X] <S>
	    / \             / \
	 [Sc] [Sd]       [Sc] [Sd]

rm3: S is black, Sc is red and Sd is black.
Repaint Sc into black and S into red, rotate S away from X.
Enter rm4 with the new sibling (old Sc).

	                        {P}                {P}
	  {P}                   / \                / \
	  / \    r-rotate(S)  [X] <Sc>   repaint  [X] [Sc]
	[X] [S]  ==========>        \    ======>       \
	    / \                     [S]                <S>
	  <Sc> [Sd]                   \                  \
	                              [Sd]               [Sd]

rm4: S is black and Sd is red.
S takes P's color, P and Sd are repainted black, rotate P to X's side.
The deficit is absorbed, stop.

	  {P}                   [S]                {S}
	  / \    l-rotate(P)    / \     repaint    / \
	[X] [S]  ==========>  {P} <Sd>  ======>  [P] [Sd]
	    / \               / \                / \
	 [Sc] <Sd>          [X] [Sc]           [X] [Sc]
*/
func (tree *rbTree[K]) eraseFixup(x uint32) {
	for x != tree.root && tree.node(x).color == Black {
		p := tree.node(x).parent
		dir := Left
		if x != tree.node(p).left {
			dir = Right
		}
		s := tree.child(p, dir.opposite())

		if /* rm1 */ tree.node(s).color == Red {
			tree.node(s).color = Black
			tree.node(p).color = Red
			tree.rotate(p, dir)
			s = tree.child(p, dir.opposite())
		}

		sc, sd := tree.child(s, dir), tree.child(s, dir.opposite())
		if /* rm2 */ tree.node(sc).color == Black && tree.node(sd).color == Black {
			tree.node(s).color = Red
			x = p
			continue
		}

		if /* rm3 */ tree.node(sd).color == Black {
			tree.node(sc).color = Black
			tree.node(s).color = Red
			tree.rotate(s, dir.opposite())
			s = tree.child(p, dir.opposite())
			sd = tree.child(s, dir.opposite())
		}

		/* rm4 */
		tree.node(s).color = tree.node(p).color
		tree.node(p).color = Black
		tree.node(sd).color = Black
		tree.rotate(p, dir)
		x = tree.root
	}
	tree.node(x).color = Black
}

func (tree *rbTree[K]) EraseKey(key K) error {
	h, err := tree.Find(key)
	if err != nil {
		return err
	}
	return tree.Erase(h)
}

func (tree *rbTree[K]) RemoveMin() (K, error) {
	if tree.root == nilIdx {
		return *new(K), ErrRBTreeEmpty
	}
	x := tree.minimum(tree.root)
	key := tree.node(x).key
	tree.erase(x)
	return key, nil
}

func (tree *rbTree[K]) RemoveMax() (K, error) {
	if tree.root == nilIdx {
		return *new(K), ErrRBTreeEmpty
	}
	x := tree.maximum(tree.root)
	key := tree.node(x).key
	tree.erase(x)
	return key, nil
}

// ToArray writes the keys in order into buf until it is full,
// returns the number of keys written.
func (tree *rbTree[K]) ToArray(buf []K) int {
	if len(buf) == 0 {
		return 0
	}
	n := 0
	tree.Foreach(func(idx int64, color RBColor, key K) bool {
		buf[n] = key
		n++
		return n < len(buf)
	})
	return n
}

// Inorder traversal to implement the DFS.
func (tree *rbTree[K]) Foreach(action func(idx int64, color RBColor, key K) bool) {
	if action == nil || tree.root == nilIdx {
		return
	}

	stack := make([]uint32, 0, 64)
	defer func() {
		clear(stack)
	}()

	idx := int64(0)
	for x := tree.root; x != nilIdx || len(stack) > 0; {
		if x != nilIdx {
			stack = append(stack, x)
			x = tree.node(x).left
			continue
		}
		x = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := tree.node(x)
		if !action(idx, node.color, node.key) {
			return
		}
		idx++
		x = node.right
	}
}

// Release frees every node in post-order (children before parent) with an
// explicit stack, then drops the arena and the sentinel. The tree gets a new
// identity, all the handles taken before are rejected from now on.
// The tree is empty and usable after the release.
// Returns the number of released nodes.
func (tree *rbTree[K]) Release() int64 {
	var (
		released = int64(0)
		last     = nilIdx
		stack    = make([]uint32, 0, 64)
	)
	for x := tree.root; x != nilIdx || len(stack) > 0; {
		if x != nilIdx {
			stack = append(stack, x)
			x = tree.node(x).left
			continue
		}
		top := stack[len(stack)-1]
		if r := tree.node(top).right; r != nilIdx && r != last {
			x = r
			continue
		}
		tree.arena.release(top)
		released++
		last = top
		stack = stack[:len(stack)-1]
	}

	tree.logger.Debug("release",
		zap.Uint64("tree", tree.id),
		zap.Int64("released", released),
	)
	tree.arena = newRBArena[K](tree.prealloc, tree.limit)
	tree.root = nilIdx
	atomic.StoreInt64(&tree.count, 0)
	tree.id = rbTreeIDGen.Number()
	return released
}

type RBTreeOpt[K infra.Integer] func(*rbTree[K]) error

func WithRBTreeDesc[K infra.Integer]() RBTreeOpt[K] {
	return func(tree *rbTree[K]) error {
		tree.isDesc = true
		return nil
	}
}

// WithRBTreeCapacity bounds the number of live keys, Insert fails with
// ErrRBTreeAllocFailed beyond it.
func WithRBTreeCapacity[K infra.Integer](capacity int64) RBTreeOpt[K] {
	return func(tree *rbTree[K]) error {
		if capacity <= 0 {
			return infra.WrapErrorStackWithMessage(ErrRBTreeInvalidOption, "capacity must be positive")
		}
		tree.limit = capacity
		return nil
	}
}

func WithRBTreePrealloc[K infra.Integer](n int) RBTreeOpt[K] {
	return func(tree *rbTree[K]) error {
		if n < 0 {
			return infra.WrapErrorStackWithMessage(ErrRBTreeInvalidOption, "prealloc must not be negative")
		}
		tree.prealloc = n
		return nil
	}
}

func WithRBTreeLogger[K infra.Integer](logger xlog.XLogger) RBTreeOpt[K] {
	return func(tree *rbTree[K]) error {
		if logger == nil {
			return infra.WrapErrorStackWithMessage(ErrRBTreeInvalidOption, "nil logger")
		}
		tree.logger = logger.Named("rbtree")
		return nil
	}
}

func WithRBTreeRecorder[K infra.Integer](recorder RBTreeRecorder) RBTreeOpt[K] {
	return func(tree *rbTree[K]) error {
		if recorder == nil {
			return infra.WrapErrorStackWithMessage(ErrRBTreeInvalidOption, "nil recorder")
		}
		tree.recorder = recorder
		return nil
	}
}

func NewRBTree[K infra.Integer](opts ...RBTreeOpt[K]) (RBTree[K], error) {
	tree, err := newRBTree[K](opts...)
	if err != nil {
		return nil, err
	}
	return tree, nil
}

func newRBTree[K infra.Integer](opts ...RBTreeOpt[K]) (*rbTree[K], error) {
	tree := &rbTree[K]{
		isDesc: false,
		root:   nilIdx,
	}
	for _, o := range opts {
		if err := o(tree); err != nil {
			return nil, err
		}
	}
	if tree.prealloc > 0 && tree.limit > 0 && int64(tree.prealloc) > tree.limit {
		tree.prealloc = int(tree.limit)
	}
	if tree.logger == nil {
		tree.logger = xlog.NewNopXLogger()
	}
	if tree.recorder == nil {
		tree.recorder = nopRecorder{}
	}
	tree.arena = newRBArena[K](tree.prealloc, tree.limit)
	tree.id = rbTreeIDGen.Number()
	return tree, nil
}
