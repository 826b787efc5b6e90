// Package freelist provides an intrusive doubly-linked list whose nodes are addressed by index
// rather than by pointer. Records embed a Node and expose it through a Linker; the list only ever
// stores indices, so the owning record of any node is simply the record at that index.
//
// PushFront, Remove, Empty and Init are O(1). Iteration starts with the most recently pushed node.
package freelist

// None is the index used to terminate a list
const None = -1

// Node is the link embedded in each record that can be placed in a List. The zero value is not
// a valid unlinked node; records should call Reset before their first use.
type Node struct {
	prev   int
	next   int
	linked bool
}

// Reset marks the node as unlinked
func (n *Node) Reset() {
	n.prev = None
	n.next = None
	n.linked = false
}

// Linked returns true if the node is currently a member of some list
func (n *Node) Linked() bool {
	return n.linked
}

// Linker recovers the Node embedded in the record at the provided index
type Linker interface {
	Link(index int) *Node
}

// List is the head of an index-based intrusive list. A single Linker may back many lists as long
// as every node is a member of at most one of them.
type List struct {
	head  int
	count int
}

// Init empties the list. It does not touch any nodes that were members.
func (l *List) Init() {
	l.head = None
	l.count = 0
}

func (l *List) Empty() bool {
	return l.head == None
}

func (l *List) Len() int {
	return l.count
}

// Front returns the index of the first node in the list, or None if the list is empty
func (l *List) Front() int {
	return l.head
}

// Next returns the index of the node following index, or None if index is the last node
func (l *List) Next(linker Linker, index int) int {
	return linker.Link(index).next
}

// PushFront links the node at index at the head of the list. It panics if the node is
// already linked into a list.
func (l *List) PushFront(linker Linker, index int) {
	node := linker.Link(index)
	if node.linked {
		panic("node is already linked into a list")
	}

	node.prev = None
	node.next = l.head
	node.linked = true
	if l.head != None {
		linker.Link(l.head).prev = index
	}
	l.head = index
	l.count++
}

// Remove unlinks the node at index, which must be a member of this list
func (l *List) Remove(linker Linker, index int) {
	node := linker.Link(index)
	if !node.linked {
		panic("node is not linked into a list")
	}

	if node.prev != None {
		linker.Link(node.prev).next = node.next
	} else {
		if l.head != index {
			panic("node has no predecessor but is not the head of this list")
		}
		l.head = node.next
	}

	if node.next != None {
		linker.Link(node.next).prev = node.prev
	}

	node.Reset()
	l.count--
}

// PopFront unlinks and returns the first node in the list, or None if the list is empty
func (l *List) PopFront(linker Linker) int {
	index := l.head
	if index != None {
		l.Remove(linker, index)
	}
	return index
}

// Contains scans the list for index. It runs in time proportional to the length of the list.
func (l *List) Contains(linker Linker, index int) bool {
	for current := l.head; current != None; current = linker.Link(current).next {
		if current == index {
			return true
		}
	}

	return false
}

// Each calls visit for every node in the list, front to back, until visit returns false
func (l *List) Each(linker Linker, visit func(index int) bool) {
	for current := l.head; current != None; {
		next := linker.Link(current).next
		if !visit(current) {
			return
		}
		current = next
	}
}
