// Package identifier selects schema nodes with include and exclude rules.
//
// A node is included when the most specific rule matching it is an include rule. When there are no include rules every
// node that is not excluded is included. Rules match the node itself, or any enclosing wildcard: the type "a.b.C" is
// matched by "a.b.C", "a.b.*", "a.*" and "*", and the member "a.b.C#d" additionally by its type's rules.
package identifier

import (
	"fmt"
	"slices"
	"sync"

	"github.com/alecthomas/errors"

	"github.com/alecthomas/protoprune/schema"
)

// Set of include and exclude rules.
//
// A Set records which of its rules matched a node, so that rules which never matched anything can be reported. It is
// safe for concurrent use.
type Set struct {
	includes map[string]bool
	excludes map[string]bool

	lock         sync.Mutex
	usedIncludes map[string]bool
	usedExcludes map[string]bool
}

// New parses includes and excludes into a Set.
func New(includes, excludes []string) (*Set, error) {
	s := &Set{
		includes:     map[string]bool{},
		excludes:     map[string]bool{},
		usedIncludes: map[string]bool{},
		usedExcludes: map[string]bool{},
	}
	for _, rule := range includes {
		parsed, err := ParseRule(rule)
		if err != nil {
			return nil, errors.Errorf("include: %w", err)
		}
		s.includes[parsed.String()] = true
	}
	for _, rule := range excludes {
		parsed, err := ParseRule(rule)
		if err != nil {
			return nil, errors.Errorf("exclude: %w", err)
		}
		s.excludes[parsed.String()] = true
	}
	return s, nil
}

// MustNew is like [New] but panics on error.
func MustNew(includes, excludes []string) *Set {
	s, err := New(includes, excludes)
	if err != nil {
		panic(err)
	}
	return s
}

// Everything returns a Set without rules, which includes every node.
func Everything() *Set { return MustNew(nil, nil) }

// IsEverything returns true if the set has no rules.
func (s *Set) IsEverything() bool { return len(s.includes) == 0 && len(s.excludes) == 0 }

// Includes returns true if node is selected.
func (s *Set) Includes(node schema.Node) bool {
	include, exclude := s.match(node)
	if excluded(include, exclude) {
		return false
	}
	if len(s.includes) == 0 {
		return true
	}
	return include != -1
}

// Excludes returns true if node must not be retained, even when it is reachable.
func (s *Set) Excludes(node schema.Node) bool {
	return excluded(s.match(node))
}

// An exclude rule wins unless an include rule is strictly more specific.
func excluded(include, exclude int) bool {
	return exclude != -1 && (include == -1 || include >= exclude)
}

// Unused returns the include and exclude rules that have not matched any node, sorted.
func (s *Set) Unused() (includes, excludes []string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for rule := range s.includes {
		if !s.usedIncludes[rule] {
			includes = append(includes, rule)
		}
	}
	for rule := range s.excludes {
		if !s.usedExcludes[rule] {
			excludes = append(excludes, rule)
		}
	}
	slices.Sort(includes)
	slices.Sort(excludes)
	return includes, excludes
}

// match returns the depth of the most specific include and exclude rules matching node, or -1.
//
// Depth 0 is the node itself, and each enclosing rule is one deeper.
func (s *Set) match(node schema.Node) (include, exclude int) {
	var identifier string
	switch node := node.(type) {
	case schema.TypeName:
		identifier = string(node)
	case schema.Member:
		identifier = node.String()
	default:
		panic(fmt.Sprintf("unexpected node type %T", node))
	}
	include, exclude = -1, -1
	s.lock.Lock()
	defer s.lock.Unlock()
	depth := 0
	for rule := identifier; rule != ""; rule = enclosing(rule) {
		if include == -1 && s.includes[rule] {
			include = depth
			s.usedIncludes[rule] = true
		}
		if exclude == -1 && s.excludes[rule] {
			exclude = depth
			s.usedExcludes[rule] = true
		}
		depth++
	}
	return include, exclude
}
