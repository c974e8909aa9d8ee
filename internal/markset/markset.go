// Package markset records which nodes of a schema have been proven reachable.
//
// Types are tracked at two granularities. A type is "fully" marked when every one of its members is wanted, which
// happens when it is selected directly or when some dependency edge points at the type itself (eg. a field of that
// type). It is "partially" marked when it is only needed to host individually marked members or nested types; such a
// type is retained as a shell holding only those members.
//
// Marks are monotonic: nothing is ever unmarked.
package markset

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/alecthomas/protoprune/schema"
)

type state uint8

const (
	unmarked state = iota
	partial
	full
)

// MarkSet is the mutable reachability state of a single pruning run. It is not safe for concurrent use.
type MarkSet struct {
	types   map[schema.TypeName]state
	members map[schema.Member]bool
	roots   map[schema.Node]bool
	exclude func(schema.Node) bool
}

// Option configures a [MarkSet].
type Option func(*MarkSet)

// WithExclusions prevents nodes matching exclude from ever being marked, except as roots or owners.
func WithExclusions(exclude func(schema.Node) bool) Option {
	return func(m *MarkSet) {
		m.exclude = exclude
	}
}

// New creates an empty MarkSet.
func New(options ...Option) *MarkSet {
	m := &MarkSet{
		types:   map[schema.TypeName]state{},
		members: map[schema.Member]bool{},
		roots:   map[schema.Node]bool{},
		exclude: func(schema.Node) bool { return false },
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// Root marks node as selected by the user. Root types are fully marked.
func (m *MarkSet) Root(node schema.Node) {
	switch node := node.(type) {
	case schema.TypeName:
		m.types[node] = full
	case schema.Member:
		m.members[node] = true
	default:
		panic(fmt.Sprintf("unexpected node type %T", node))
	}
	m.roots[node] = true
}

// Mark node as reachable, returning true if this is the first time it became marked.
//
// Types are fully marked, so a partially marked type returns true when it is upgraded. Marking a member does not mark
// its owner.
func (m *MarkSet) Mark(node schema.Node) bool {
	if m.exclude(node) {
		return false
	}
	switch node := node.(type) {
	case schema.TypeName:
		if m.types[node] == full {
			return false
		}
		m.types[node] = full
		return true
	case schema.Member:
		if m.members[node] {
			return false
		}
		m.members[node] = true
		return true
	default:
		panic(fmt.Sprintf("unexpected node type %T", node))
	}
}

// MarkOwner partially marks a type that hosts marked members or nested types, returning true if the type was
// previously unmarked.
//
// Exclusions do not apply: a member or nested type can only be marked under an excluded type when a more specific rule
// selected it, and it cannot be represented without its owner. The owner's other members stay excluded.
func (m *MarkSet) MarkOwner(t schema.TypeName) bool {
	if m.types[t] != unmarked {
		return false
	}
	m.types[t] = partial
	return true
}

// ContainsAllMembers returns true if every member of t is wanted.
func (m *MarkSet) ContainsAllMembers(t schema.TypeName) bool {
	return m.types[t] == full
}

// ContainsType returns true if t is marked, fully or partially.
func (m *MarkSet) ContainsType(t schema.TypeName) bool {
	return m.types[t] != unmarked
}

// ContainsMember returns true if member was marked individually or its owner is fully marked.
func (m *MarkSet) ContainsMember(member schema.Member) bool {
	if m.members[member] {
		return true
	}
	return m.types[member.Type] == full && !m.exclude(member)
}

// IsRoot returns true if node was selected by the user.
func (m *MarkSet) IsRoot(node schema.Node) bool {
	return m.roots[node]
}

// Roots returns the user-selected nodes, sorted by name.
func (m *MarkSet) Roots() []schema.Node {
	out := make([]schema.Node, 0, len(m.roots))
	for node := range m.roots {
		out = append(out, node)
	}
	slices.SortFunc(out, func(a, b schema.Node) int { return cmp.Compare(a.String(), b.String()) })
	return out
}

// Len returns the number of marked types and individually marked members.
func (m *MarkSet) Len() (types, members int) {
	return len(m.types), len(m.members)
}
