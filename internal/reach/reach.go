// Package reach computes the closure of schema nodes reachable from a user selection.
//
// The rules applied when marking are:
//
//  1. Every type or service selected directly is a root and is fully marked.
//  2. Every member selected directly on a type that is not itself selected is a root member.
//  3. A fully marked message marks the value type of each field, including oneof and extension fields; a fully marked
//     enum marks the options of each constant; a fully marked service marks the request and response types of each RPC.
//  4. A marked member marks its owner as a shell, then marks its own dependencies as in rule 3.
//  5. A marked nested type marks its enclosing type as a shell, as does a marked extension field declared inside a
//     message.
//  6. Any marked element with options marks the field backing each option.
//
// Types reached only through members (rules 4 and 5) stay partially marked, so their other members are not retained.
package reach

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/alecthomas/errors"

	"github.com/alecthomas/protoprune/internal/markset"
	"github.com/alecthomas/protoprune/schema"
)

// Selection decides which nodes the user selected explicitly.
type Selection interface {
	Includes(node schema.Node) bool
}

// Excluder is optionally implemented by a [Selection] to prevent nodes from being marked even when reachable.
type Excluder interface {
	Excludes(node schema.Node) bool
}

// UnresolvedTypeError is returned when a reachable type is not declared in the schema.
type UnresolvedTypeError struct {
	Type schema.TypeName
}

func (e *UnresolvedTypeError) Error() string {
	return fmt.Sprintf("unresolved type %s", e.Type)
}

// UnresolvedMemberError is returned when a reachable member is not declared on its owner.
type UnresolvedMemberError struct {
	Member schema.Member
}

func (e *UnresolvedMemberError) Error() string {
	return fmt.Sprintf("unresolved member %s", e.Member)
}

type options struct {
	logger *slog.Logger
}

type Option func(*options)

// WithLogger logs the roots and progress of the computation at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

type engine struct {
	schema    *schema.Schema
	selection Selection
	marks     *markset.MarkSet
	logger    *slog.Logger
	// Types and members whose immediate dependencies have not yet been visited.
	queue []schema.Node
}

// Compute marks every node reachable from the nodes selected by selection.
//
// The schema is not modified, and each call uses its own mark set.
func Compute(s *schema.Schema, selection Selection, opts ...Option) (*markset.MarkSet, error) {
	o := &options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(o)
	}
	var markOptions []markset.Option
	if excluder, ok := selection.(Excluder); ok {
		markOptions = append(markOptions, markset.WithExclusions(excluder.Excludes))
	}
	e := &engine{
		schema:    s,
		selection: selection,
		marks:     markset.New(markOptions...),
		logger:    o.logger,
	}
	e.markRoots()
	expanded, err := e.markReachable()
	if err != nil {
		return nil, err
	}
	types, members := e.marks.Len()
	e.logger.Debug("Computed reachable nodes", "roots", len(e.marks.Roots()), "types", types, "members", members, "expanded", expanded)
	return e.marks, nil
}

func (e *engine) markRoots() {
	for _, file := range e.schema.Files {
		for _, t := range file.Types {
			e.markTypeRoots(t)
		}
		for _, service := range file.Services {
			e.markServiceRoots(service)
		}
	}
}

func (e *engine) markTypeRoots(t schema.Type) {
	name := t.TypeName()
	if e.selection.Includes(name) {
		e.root(name)
	} else {
		switch t := t.(type) {
		case *schema.Message:
			for _, field := range t.FieldsAndOneOfFields() {
				e.markMemberRoot(schema.Member{Type: name, Name: field.Name})
			}
			for _, field := range t.Extensions {
				e.markMemberRoot(schema.Member{Type: name, Name: field.MemberName()})
			}
		case *schema.Enum:
			for _, constant := range t.Constants {
				e.markMemberRoot(schema.Member{Type: name, Name: constant.Name})
			}
		default:
			panic(fmt.Sprintf("unexpected type %T", t))
		}
	}

	for _, nested := range t.NestedTypes() {
		e.markTypeRoots(nested)
	}
}

func (e *engine) markServiceRoots(service *schema.Service) {
	if e.selection.Includes(service.Name) {
		e.root(service.Name)
		return
	}
	for _, rpc := range service.Rpcs {
		e.markMemberRoot(schema.Member{Type: service.Name, Name: rpc.Name})
	}
}

func (e *engine) markMemberRoot(member schema.Member) {
	if e.selection.Includes(member) {
		e.root(member)
	}
}

func (e *engine) root(node schema.Node) {
	e.logger.Debug("Root", "node", node.String())
	e.marks.Root(node)
	e.queue = append(e.queue, node)
}

// Mark everything reachable by what's enqueued, queueing new things as we go.
func (e *engine) markReachable() (expanded int, err error) {
	for len(e.queue) > 0 {
		node := e.queue[0]
		e.queue = e.queue[1:]
		expanded++

		switch node := node.(type) {
		case schema.Member:
			err = e.expandMember(node)
		case schema.TypeName:
			err = e.expandType(node)
		default:
			panic(fmt.Sprintf("unexpected node type %T", node))
		}
		if err != nil {
			return expanded, err
		}
	}
	return expanded, nil
}

func (e *engine) expandType(name schema.TypeName) error {
	if name.IsScalar() {
		return nil
	}
	decl, ok := e.schema.Lookup(name)
	if !ok {
		return errors.WithStack(&UnresolvedTypeError{Type: name})
	}
	switch decl := decl.(type) {
	case *schema.Message:
		e.markOptions(decl.Options)
		e.markEnclosingType(name)
		if e.marks.ContainsAllMembers(name) {
			for _, field := range decl.FieldsAndOneOfFields() {
				e.markField(field)
			}
			for _, oneOf := range decl.OneOfs {
				e.markOptions(oneOf.Options)
			}
			for _, field := range decl.Extensions {
				e.markField(field)
			}
		}

	case *schema.Enum:
		e.markOptions(decl.Options)
		e.markEnclosingType(name)
		if e.marks.ContainsAllMembers(name) {
			for _, constant := range decl.Constants {
				e.markOptions(constant.Options)
			}
		}

	case *schema.Service:
		e.markOptions(decl.Options)
		if e.marks.ContainsAllMembers(name) {
			for _, rpc := range decl.Rpcs {
				e.markRpc(rpc)
			}
		}

	case schema.Scalar:

	default:
		panic(fmt.Sprintf("unexpected declaration %T", decl))
	}
	return nil
}

func (e *engine) expandMember(member schema.Member) error {
	e.markOwner(member.Type)
	decl, ok := e.schema.Lookup(member.Type)
	if !ok {
		return errors.WithStack(&UnresolvedTypeError{Type: member.Type})
	}
	switch decl := decl.(type) {
	case *schema.Message:
		field := decl.Field(member.Name)
		if field == nil {
			field = decl.ExtensionField(member.Name)
		}
		if field != nil {
			for _, oneOf := range decl.OneOfs {
				if slices.Contains(oneOf.Fields, field) {
					e.markOptions(oneOf.Options)
				}
			}
			e.markField(field)
			return nil
		}

	case *schema.Enum:
		if constant := decl.Constant(member.Name); constant != nil {
			e.markOptions(constant.Options)
			return nil
		}

	case *schema.Service:
		if rpc := decl.Rpc(member.Name); rpc != nil {
			e.markRpc(rpc)
			return nil
		}

	case schema.Scalar:

	default:
		panic(fmt.Sprintf("unexpected declaration %T", decl))
	}
	return errors.WithStack(&UnresolvedMemberError{Member: member})
}

// Nested types keep their enclosing type as a shell so the nesting can be represented.
func (e *engine) markEnclosingType(name schema.TypeName) {
	e.markScope(name.EnclosingTypeOrPackage())
}

// markScope marks scope as a shell if it names a type rather than a package.
func (e *engine) markScope(scope schema.TypeName) {
	if e.schema.Type(scope) != nil {
		e.markOwner(scope)
	}
}

func (e *engine) markField(field *schema.Field) {
	e.markOptions(field.Options)
	e.markType(field.Type)
	// The extend block of a message-scoped extension lives in the declaring message.
	if field.IsExtension() {
		e.markScope(schema.TypeName(field.Scope))
	}
}

func (e *engine) markRpc(rpc *schema.Rpc) {
	e.markOptions(rpc.Options)
	e.markType(rpc.RequestType)
	e.markType(rpc.ResponseType)
}

// The backing field of every option must survive for the option to be representable.
func (e *engine) markOptions(options schema.Options) {
	for _, member := range options.Fields() {
		if e.marks.Mark(member) {
			e.queue = append(e.queue, member)
		}
	}
}

func (e *engine) markType(t schema.TypeName) {
	switch {
	case t.IsMap():
		e.markType(t.MapKey())
		e.markType(t.MapValue())
	case t.IsScalar():
	default:
		if e.marks.Mark(t) {
			e.queue = append(e.queue, t)
		}
	}
}

func (e *engine) markOwner(t schema.TypeName) {
	if e.marks.MarkOwner(t) {
		e.queue = append(e.queue, t)
	}
}
