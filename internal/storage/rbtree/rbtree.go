package rbtree

import (
	"errors"
)

// ErrDuplicateKey is returned by Insert when an element comparing equal to the
// new value is already stored.
var ErrDuplicateKey = errors.New("rbtree: duplicate key")

type color bool

const (
	red   color = false
	black color = true
)

// node is internal to the tree; parent links never leave this package.
type node[T any] struct {
	value  T
	color  color
	left   *node[T]
	right  *node[T]
	parent *node[T]
}

// Tree is a red/black balanced ordered index over values of type T.
// Ordering is defined by the comparison function given to New, which must
// return a negative number, zero or a positive number when a is less than,
// equal to or greater than b.
//
// Tree is not safe for concurrent use; callers serialize access.
type Tree[T any] struct {
	root *node[T]
	size int
	cmp  func(a, b T) int
}

// New creates an empty tree ordered by cmp
func New[T any](cmp func(a, b T) int) *Tree[T] {
	return &Tree[T]{cmp: cmp}
}

// Len returns the number of stored elements
func (t *Tree[T]) Len() int {
	return t.size
}

// Insert adds v to the tree. It returns ErrDuplicateKey and leaves the tree
// unchanged if an equal element already exists.
func (t *Tree[T]) Insert(v T) error {
	var parent *node[T]
	cur := t.root
	c := 0
	for cur != nil {
		parent = cur
		c = t.cmp(v, cur.value)
		switch {
		case c < 0:
			cur = cur.left
		case c > 0:
			cur = cur.right
		default:
			return ErrDuplicateKey
		}
	}

	n := &node[T]{value: v, color: red, parent: parent}
	switch {
	case parent == nil:
		t.root = n
	case c < 0:
		parent.left = n
	default:
		parent.right = n
	}
	t.size++

	t.fixAfterInsert(n)
	return nil
}

// Delete removes the element equal to v. It reports whether an element was
// removed; deleting an absent value is a no-op.
func (t *Tree[T]) Delete(v T) bool {
	n := t.lookup(v)
	if n == nil {
		return false
	}
	t.deleteNode(n)
	return true
}

// Find returns the stored element equal to v
func (t *Tree[T]) Find(v T) (T, bool) {
	n := t.lookup(v)
	if n == nil {
		var zero T
		return zero, false
	}
	return n.value, true
}

// Contains reports whether an element equal to v is stored
func (t *Tree[T]) Contains(v T) bool {
	return t.lookup(v) != nil
}

// Min returns the smallest element
func (t *Tree[T]) Min() (T, bool) {
	if t.root == nil {
		var zero T
		return zero, false
	}
	return minimum(t.root).value, true
}

// Max returns the largest element
func (t *Tree[T]) Max() (T, bool) {
	if t.root == nil {
		var zero T
		return zero, false
	}
	return maximum(t.root).value, true
}

// PollMin removes and returns the smallest element
func (t *Tree[T]) PollMin() (T, bool) {
	if t.root == nil {
		var zero T
		return zero, false
	}
	n := minimum(t.root)
	v := n.value
	t.deleteNode(n)
	return v, true
}

// PollMax removes and returns the largest element
func (t *Tree[T]) PollMax() (T, bool) {
	if t.root == nil {
		var zero T
		return zero, false
	}
	n := maximum(t.root)
	v := n.value
	t.deleteNode(n)
	return v, true
}

// Ascending returns every element from the minimum to the maximum.
func (t *Tree[T]) Ascending() []T {
	out := make([]T, 0, t.size)
	stack := make([]*node[T], 0, 32)
	cur := t.root
	for cur != nil || len(stack) > 0 {
		for cur != nil {
			stack = append(stack, cur)
			cur = cur.left
		}
		cur = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur.value)
		cur = cur.right
	}
	return out
}

func (t *Tree[T]) lookup(v T) *node[T] {
	cur := t.root
	for cur != nil {
		c := t.cmp(v, cur.value)
		switch {
		case c < 0:
			cur = cur.left
		case c > 0:
			cur = cur.right
		default:
			return cur
		}
	}
	return nil
}

func (t *Tree[T]) fixAfterInsert(n *node[T]) {
	for n != t.root && n.parent.color == red {
		p := n.parent
		// p is red so it cannot be the root; g exists.
		g := p.parent

		if p == g.left {
			uncle := g.right
			if colorOf(uncle) == red {
				p.color = black
				uncle.color = black
				g.color = red
				n = g
				continue
			}
			if n == p.right {
				t.rotateLeft(p)
				n = p
				p = n.parent
			}
			p.color = black
			g.color = red
			t.rotateRight(g)
		} else {
			uncle := g.left
			if colorOf(uncle) == red {
				p.color = black
				uncle.color = black
				g.color = red
				n = g
				continue
			}
			if n == p.left {
				t.rotateRight(p)
				n = p
				p = n.parent
			}
			p.color = black
			g.color = red
			t.rotateLeft(g)
		}
	}
	t.root.color = black
}

// deleteNode unlinks n. A node with two children takes its in-order
// successor's value and the successor node is removed instead.
func (t *Tree[T]) deleteNode(n *node[T]) {
	if n.left != nil && n.right != nil {
		s := minimum(n.right)
		n.value = s.value
		n = s
	}

	child := n.left
	if child == nil {
		child = n.right
	}

	switch {
	case child != nil:
		t.transplant(n, child)
		n.left, n.right, n.parent = nil, nil, nil
		if n.color == black {
			t.fixAfterDelete(child)
		}
	case n.parent == nil:
		t.root = nil
	default:
		// n stands in for the removed leaf while the tree is repaired.
		if n.color == black {
			t.fixAfterDelete(n)
		}
		if p := n.parent; p != nil {
			if n == p.left {
				p.left = nil
			} else {
				p.right = nil
			}
			n.parent = nil
		}
	}
	t.size--
}

func (t *Tree[T]) fixAfterDelete(x *node[T]) {
	for x != t.root && colorOf(x) == black {
		p := parentOf(x)
		if x == leftOf(p) {
			sib := rightOf(p)
			if colorOf(sib) == red {
				setColor(sib, black)
				setColor(p, red)
				t.rotateLeft(p)
				sib = rightOf(parentOf(x))
			}
			if colorOf(leftOf(sib)) == black && colorOf(rightOf(sib)) == black {
				setColor(sib, red)
				x = parentOf(x)
				continue
			}
			if colorOf(rightOf(sib)) == black {
				setColor(leftOf(sib), black)
				setColor(sib, red)
				t.rotateRight(sib)
				sib = rightOf(parentOf(x))
			}
			setColor(sib, colorOf(parentOf(x)))
			setColor(parentOf(x), black)
			setColor(rightOf(sib), black)
			t.rotateLeft(parentOf(x))
			x = t.root
		} else {
			sib := leftOf(p)
			if colorOf(sib) == red {
				setColor(sib, black)
				setColor(p, red)
				t.rotateRight(p)
				sib = leftOf(parentOf(x))
			}
			if colorOf(rightOf(sib)) == black && colorOf(leftOf(sib)) == black {
				setColor(sib, red)
				x = parentOf(x)
				continue
			}
			if colorOf(leftOf(sib)) == black {
				setColor(rightOf(sib), black)
				setColor(sib, red)
				t.rotateLeft(sib)
				sib = leftOf(parentOf(x))
			}
			setColor(sib, colorOf(parentOf(x)))
			setColor(parentOf(x), black)
			setColor(leftOf(sib), black)
			t.rotateRight(parentOf(x))
			x = t.root
		}
	}
	setColor(x, black)
}

// transplant puts replacement where n was; n's own links are left untouched.
func (t *Tree[T]) transplant(n, replacement *node[T]) {
	replacement.parent = n.parent
	switch {
	case n.parent == nil:
		t.root = replacement
	case n == n.parent.left:
		n.parent.left = replacement
	default:
		n.parent.right = replacement
	}
}

func (t *Tree[T]) rotateLeft(x *node[T]) {
	if x == nil || x.right == nil {
		return
	}
	y := x.right
	x.right = y.left
	if y.left != nil {
		y.left.parent = x
	}
	t.transplant(x, y)
	y.left = x
	x.parent = y
}

func (t *Tree[T]) rotateRight(x *node[T]) {
	if x == nil || x.left == nil {
		return
	}
	y := x.left
	x.left = y.right
	if y.right != nil {
		y.right.parent = x
	}
	t.transplant(x, y)
	y.right = x
	x.parent = y
}

func minimum[T any](n *node[T]) *node[T] {
	for n.left != nil {
		n = n.left
	}
	return n
}

func maximum[T any](n *node[T]) *node[T] {
	for n.right != nil {
		n = n.right
	}
	return n
}

// nil-safe accessors; a nil node is a black leaf.

func colorOf[T any](n *node[T]) color {
	if n == nil {
		return black
	}
	return n.color
}

func setColor[T any](n *node[T], c color) {
	if n != nil {
		n.color = c
	}
}

func parentOf[T any](n *node[T]) *node[T] {
	if n == nil {
		return nil
	}
	return n.parent
}

func leftOf[T any](n *node[T]) *node[T] {
	if n == nil {
		return nil
	}
	return n.left
}

func rightOf[T any](n *node[T]) *node[T] {
	if n == nil {
		return nil
	}
	return n.right
}
