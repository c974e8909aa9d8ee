// Package retain projects a schema onto the nodes of a completed reachability computation.
//
// The projection is a filtered copy that preserves declaration order (files, then types, then members) so output is
// stable across runs. The input schema is never modified.
package retain

import (
	"fmt"

	"github.com/alecthomas/errors"

	"github.com/alecthomas/protoprune/schema"
)

// Marks is the read-only view of a mark set used for projection.
type Marks interface {
	ContainsType(t schema.TypeName) bool
	ContainsMember(member schema.Member) bool
}

type options struct {
	keepEmptyFiles bool
}

type Option func(*options)

// WithKeepEmptyFiles keeps files whose declarations were all pruned, as empty placeholders.
//
// By default such files are dropped, and imports of them are removed from the surviving files.
func WithKeepEmptyFiles(keep bool) Option {
	return func(o *options) {
		o.keepEmptyFiles = keep
	}
}

type projector struct {
	marks Marks
	// Retained copies of messages, by name, used to attach retained extension fields.
	messages map[schema.TypeName]*schema.Message
}

// Retain returns a copy of s containing only the types, services and members contained in marks.
//
// A field is only retained if its value type is also retained, and an RPC only if its request and response types are,
// so excluded types never leave dangling references.
func Retain(s *schema.Schema, marks Marks, opts ...Option) (*schema.Schema, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	p := &projector{marks: marks, messages: map[schema.TypeName]*schema.Message{}}

	files := make([]*schema.File, 0, len(s.Files))
	for _, file := range s.Files {
		files = append(files, p.file(file))
	}

	// Extensions are attached to their extendee once every message has been copied, as extendees may be declared in
	// later files.
	for i, file := range s.Files {
		files[i].Extends = p.extends(file.Extends)
		for t := range schema.Walk(file.Types) {
			if msg, ok := t.(*schema.Message); ok && len(msg.Extends) > 0 {
				if retained, ok := p.messages[msg.Name]; ok {
					retained.Extends = p.extends(msg.Extends)
				}
			}
		}
	}

	kept := make([]*schema.File, 0, len(files))
	paths := map[string]bool{}
	for _, file := range files {
		if file.IsEmpty() && !o.keepEmptyFiles {
			continue
		}
		kept = append(kept, file)
		paths[file.Path] = true
	}
	for _, file := range kept {
		var imports []schema.Import
		for _, imp := range file.Imports {
			if paths[imp.Path] {
				imports = append(imports, imp)
			}
		}
		file.Imports = imports
	}

	out, err := schema.New(kept...)
	if err != nil {
		return nil, errors.Wrap(err, "retained schema is inconsistent")
	}
	return out, nil
}

func (p *projector) file(file *schema.File) *schema.File {
	out := &schema.File{
		Path:    file.Path,
		Syntax:  file.Syntax,
		Package: file.Package,
		Imports: file.Imports,
		Options: p.options(file.Options),
	}
	out.Types = p.types(file.Types)
	for _, service := range file.Services {
		if retained := p.service(service); retained != nil {
			out.Services = append(out.Services, retained)
		}
	}
	return out
}

func (p *projector) types(types []schema.Type) []schema.Type {
	var out []schema.Type
	for _, t := range types {
		if retained := p.typ(t); retained != nil {
			out = append(out, retained)
		}
	}
	return out
}

func (p *projector) typ(t schema.Type) schema.Type {
	if !p.marks.ContainsType(t.TypeName()) {
		return nil
	}
	switch t := t.(type) {
	case *schema.Message:
		return p.message(t)
	case *schema.Enum:
		return p.enum(t)
	default:
		panic(fmt.Sprintf("unexpected type %T", t))
	}
}

func (p *projector) message(msg *schema.Message) *schema.Message {
	out := &schema.Message{
		Name:            msg.Name,
		Options:         p.options(msg.Options),
		Reserved:        msg.Reserved,
		ExtensionRanges: msg.ExtensionRanges,
	}
	for _, field := range msg.Fields {
		if p.keepField(msg.Name, field) {
			out.Fields = append(out.Fields, p.field(field))
		}
	}
	for _, oneOf := range msg.OneOfs {
		var fields []*schema.Field
		for _, field := range oneOf.Fields {
			if p.keepField(msg.Name, field) {
				fields = append(fields, p.field(field))
			}
		}
		if len(fields) > 0 {
			out.OneOfs = append(out.OneOfs, &schema.OneOf{Name: oneOf.Name, Fields: fields, Options: p.options(oneOf.Options)})
		}
	}
	out.Nested = p.types(msg.Nested)
	p.messages[msg.Name] = out
	return out
}

func (p *projector) enum(enum *schema.Enum) *schema.Enum {
	out := &schema.Enum{Name: enum.Name, Options: p.options(enum.Options), Reserved: enum.Reserved}
	for _, constant := range enum.Constants {
		if p.marks.ContainsMember(schema.Member{Type: enum.Name, Name: constant.Name}) {
			out.Constants = append(out.Constants, &schema.EnumConstant{
				Name:    constant.Name,
				Tag:     constant.Tag,
				Options: p.options(constant.Options),
			})
		}
	}
	return out
}

func (p *projector) service(service *schema.Service) *schema.Service {
	if !p.marks.ContainsType(service.Name) {
		return nil
	}
	out := &schema.Service{Name: service.Name, Options: p.options(service.Options)}
	for _, rpc := range service.Rpcs {
		if !p.marks.ContainsMember(schema.Member{Type: service.Name, Name: rpc.Name}) {
			continue
		}
		if !p.typeRetained(rpc.RequestType) || !p.typeRetained(rpc.ResponseType) {
			continue
		}
		retained := *rpc
		retained.Options = p.options(rpc.Options)
		out.Rpcs = append(out.Rpcs, &retained)
	}
	return out
}

func (p *projector) extends(extends []*schema.Extend) []*schema.Extend {
	var out []*schema.Extend
	for _, extend := range extends {
		extendee, ok := p.messages[extend.Extendee]
		if !ok {
			continue
		}
		var fields []*schema.Field
		for _, field := range extend.Fields {
			if p.keepField(extend.Extendee, field) {
				retained := p.field(field)
				fields = append(fields, retained)
				extendee.Extensions = append(extendee.Extensions, retained)
			}
		}
		if len(fields) > 0 {
			out = append(out, &schema.Extend{Extendee: extend.Extendee, Fields: fields})
		}
	}
	return out
}

func (p *projector) keepField(owner schema.TypeName, field *schema.Field) bool {
	return p.marks.ContainsMember(schema.Member{Type: owner, Name: field.MemberName()}) && p.typeRetained(field.Type)
}

func (p *projector) field(field *schema.Field) *schema.Field {
	out := *field
	out.Options = p.options(field.Options)
	return &out
}

func (p *projector) typeRetained(t schema.TypeName) bool {
	switch {
	case t.IsMap():
		return p.typeRetained(t.MapKey()) && p.typeRetained(t.MapValue())
	case t.IsScalar():
		return true
	default:
		return p.marks.ContainsType(t)
	}
}

func (p *projector) options(options schema.Options) schema.Options {
	return options.Retain(p.marks.ContainsMember)
}
