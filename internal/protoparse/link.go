package protoparse

import (
	"strings"

	"github.com/alecthomas/errors"
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/alecthomas/protoprune/schema"
)

// The message backing the options of each kind of element.
const (
	fileOptions      schema.TypeName = "google.protobuf.FileOptions"
	messageOptions   schema.TypeName = "google.protobuf.MessageOptions"
	fieldOptions     schema.TypeName = "google.protobuf.FieldOptions"
	oneOfOptions     schema.TypeName = "google.protobuf.OneofOptions"
	enumOptions      schema.TypeName = "google.protobuf.EnumOptions"
	enumValueOptions schema.TypeName = "google.protobuf.EnumValueOptions"
	serviceOptions   schema.TypeName = "google.protobuf.ServiceOptions"
	methodOptions    schema.TypeName = "google.protobuf.MethodOptions"
)

// linker converts syntax trees into schema files, resolving every name against the declarations of all files.
//
// Declarations are collected first, then references are resolved in three passes: type references, then extension
// attachment, then option names, as custom options are extension fields.
type linker struct {
	types      map[schema.TypeName]schema.Declaration
	extensions map[schema.TypeName]*schema.Field
	files      []*schema.File

	references []func() error
	options    []func() error
}

func newLinker() *linker {
	return &linker{
		types:      map[schema.TypeName]schema.Declaration{},
		extensions: map[schema.TypeName]*schema.Field{},
	}
}

// declare files that are already linked, such as the well-known files.
func (l *linker) declare(files []*schema.File) error {
	s, err := schema.New(files...)
	if err != nil {
		return errors.WithStack(err)
	}
	for t := range s.Types() {
		l.types[t.TypeName()] = t
		if msg, ok := t.(*schema.Message); ok {
			for _, field := range msg.Extensions {
				l.extensions[schema.TypeName(field.MemberName())] = field
			}
		}
	}
	for _, file := range files {
		for _, service := range file.Services {
			l.types[service.Name] = service
		}
	}
	return nil
}

func (l *linker) link(linked []*schema.File) (*schema.Schema, error) {
	for _, resolve := range l.references {
		if err := resolve(); err != nil {
			return nil, err
		}
	}
	for _, file := range l.files {
		l.attachExtensions(file.Extends)
		for t := range schema.Walk(file.Types) {
			if msg, ok := t.(*schema.Message); ok {
				l.attachExtensions(msg.Extends)
			}
		}
	}
	for _, resolve := range l.options {
		if err := resolve(); err != nil {
			return nil, err
		}
	}
	s, err := schema.New(append(l.files, linked...)...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return s, nil
}

func (l *linker) attachExtensions(extends []*schema.Extend) {
	for _, extend := range extends {
		if msg, ok := l.types[extend.Extendee].(*schema.Message); ok {
			msg.Extensions = append(msg.Extensions, extend.Fields...)
		}
	}
}

func (l *linker) file(path string, ast *File) {
	out := &schema.File{Path: path, Syntax: ast.Syntax}
	var options []*Option
	for _, entry := range ast.Entries {
		switch {
		case entry.Package != "":
			out.Package = entry.Package
		case entry.Import != nil:
			out.Imports = append(out.Imports, schema.Import{Path: entry.Import.Path, Modifier: entry.Import.Modifier})
		case entry.Option != nil:
			options = append(options, entry.Option)
		}
	}
	scope := schema.TypeName(out.Package)
	out.Options = l.resolveOptions(fileOptions, scope, options)
	for _, entry := range ast.Entries {
		switch {
		case entry.Message != nil:
			out.Types = append(out.Types, l.message(scope, entry.Message))
		case entry.Enum != nil:
			out.Types = append(out.Types, l.enum(scope, entry.Enum))
		case entry.Service != nil:
			out.Services = append(out.Services, l.service(scope, entry.Service))
		case entry.Extend != nil:
			out.Extends = append(out.Extends, l.extend(scope, entry.Extend))
		}
	}
	l.files = append(l.files, out)
}

func (l *linker) message(scope schema.TypeName, ast *Message) *schema.Message {
	out := &schema.Message{Name: scope.Nested(ast.Name)}
	l.types[out.Name] = out
	var options []*Option
	for _, entry := range ast.Entries {
		switch {
		case entry.Option != nil:
			options = append(options, entry.Option)
		case entry.Field != nil:
			out.Fields = append(out.Fields, l.field(out.Name, entry.Field))
		case entry.OneOf != nil:
			out.OneOfs = append(out.OneOfs, l.oneOf(out.Name, entry.OneOf))
		case entry.Message != nil:
			out.Nested = append(out.Nested, l.message(out.Name, entry.Message))
		case entry.Enum != nil:
			out.Nested = append(out.Nested, l.enum(out.Name, entry.Enum))
		case entry.Extend != nil:
			out.Extends = append(out.Extends, l.extend(out.Name, entry.Extend))
		case entry.Reserved != nil:
			out.Reserved = append(out.Reserved, entry.Reserved.String())
		case entry.Extensions != nil:
			out.ExtensionRanges = append(out.ExtensionRanges, rangesString(entry.Extensions.Ranges))
		}
	}
	out.Options = l.resolveOptions(messageOptions, out.Name, options)
	return out
}

// field declared in scope, which is the enclosing message for regular fields.
func (l *linker) field(scope schema.TypeName, ast *Field) *schema.Field {
	out := &schema.Field{
		Name:  ast.Name,
		Label: schema.Label(ast.Label),
		Tag:   ast.Tag,
	}
	out.Options = l.resolveOptions(fieldOptions, scope, ast.Options)
	l.references = append(l.references, func() error {
		if m := ast.Type.Map; m != nil {
			key, err := l.resolveType(scope, m.Key, ast.Pos)
			if err != nil {
				return err
			}
			value, err := l.resolveType(scope, m.Value, ast.Pos)
			if err != nil {
				return err
			}
			out.Type = schema.MapOf(key, value)
			return nil
		}
		t, err := l.resolveType(scope, ast.Type.Reference, ast.Pos)
		if err != nil {
			return err
		}
		out.Type = t
		return nil
	})
	return out
}

func (l *linker) oneOf(scope schema.TypeName, ast *OneOf) *schema.OneOf {
	out := &schema.OneOf{Name: ast.Name}
	var options []*Option
	for _, entry := range ast.Entries {
		switch {
		case entry.Option != nil:
			options = append(options, entry.Option)
		case entry.Field != nil:
			out.Fields = append(out.Fields, l.field(scope, entry.Field))
		}
	}
	out.Options = l.resolveOptions(oneOfOptions, scope, options)
	return out
}

func (l *linker) enum(scope schema.TypeName, ast *Enum) *schema.Enum {
	out := &schema.Enum{Name: scope.Nested(ast.Name)}
	l.types[out.Name] = out
	var options []*Option
	for _, entry := range ast.Entries {
		switch {
		case entry.Option != nil:
			options = append(options, entry.Option)
		case entry.Reserved != nil:
			out.Reserved = append(out.Reserved, entry.Reserved.String())
		case entry.Value != nil:
			out.Constants = append(out.Constants, &schema.EnumConstant{
				Name:    entry.Value.Name,
				Tag:     entry.Value.Tag,
				Options: l.resolveOptions(enumValueOptions, out.Name, entry.Value.Options),
			})
		}
	}
	out.Options = l.resolveOptions(enumOptions, out.Name, options)
	return out
}

func (l *linker) service(scope schema.TypeName, ast *Service) *schema.Service {
	out := &schema.Service{Name: scope.Nested(ast.Name)}
	l.types[out.Name] = out
	var options []*Option
	for _, entry := range ast.Entries {
		switch {
		case entry.Option != nil:
			options = append(options, entry.Option)
		case entry.RPC != nil:
			out.Rpcs = append(out.Rpcs, l.rpc(scope, entry.RPC))
		}
	}
	out.Options = l.resolveOptions(serviceOptions, scope, options)
	return out
}

func (l *linker) rpc(scope schema.TypeName, ast *RPC) *schema.Rpc {
	out := &schema.Rpc{
		Name:              ast.Name,
		RequestStreaming:  ast.RequestStreaming,
		ResponseStreaming: ast.ResponseStreaming,
		Options:           l.resolveOptions(methodOptions, scope, ast.Options),
	}
	l.references = append(l.references, func() error {
		request, err := l.resolveMessage(scope, ast.Request, ast.Pos)
		if err != nil {
			return err
		}
		response, err := l.resolveMessage(scope, ast.Response, ast.Pos)
		if err != nil {
			return err
		}
		out.RequestType, out.ResponseType = request, response
		return nil
	})
	return out
}

func (l *linker) extend(scope schema.TypeName, ast *Extend) *schema.Extend {
	// Extendees are provisional until resolved, so the fields are already recognisable as extensions.
	out := &schema.Extend{Extendee: schema.TypeName(ast.Extendee)}
	for _, field := range ast.Fields {
		extension := l.field(scope, field)
		extension.Extendee = out.Extendee
		extension.Scope = string(scope)
		l.extensions[schema.TypeName(extension.MemberName())] = extension
		out.Fields = append(out.Fields, extension)
	}
	l.references = append(l.references, func() error {
		extendee, err := l.resolveMessage(scope, ast.Extendee, ast.Pos)
		if err != nil {
			return err
		}
		out.Extendee = extendee
		for _, field := range out.Fields {
			field.Extendee = extendee
		}
		return nil
	})
	return out
}

// resolveOptions converts options immediately, and resolves their backing fields once extensions are attached.
func (l *linker) resolveOptions(kind, scope schema.TypeName, options []*Option) schema.Options {
	if len(options) == 0 {
		return nil
	}
	out := make(schema.Options, 0, len(options))
	for i, option := range options {
		out = append(out, schema.Option{Name: option.Name.String(), Value: option.Value.String()})
		l.options = append(l.options, func() error {
			member, err := l.resolveOption(kind, scope, option)
			if err != nil {
				return err
			}
			out[i].Field = member
			return nil
		})
	}
	return out
}

// resolveOption returns the field backing option, or nil if it is a built-in option and descriptor.proto is not part of
// the schema.
func (l *linker) resolveOption(kind, scope schema.TypeName, option *Option) (*schema.Member, error) {
	if option.Name.Extension != "" {
		name, ok := lookup(scope, option.Name.Extension, func(name schema.TypeName) bool {
			_, ok := l.extensions[name]
			return ok
		})
		if !ok {
			return nil, errors.WithStack(participle.Errorf(option.Pos, "unknown option (%s)", option.Name.Extension))
		}
		field := l.extensions[name]
		if field.Extendee != kind {
			return nil, errors.WithStack(participle.Errorf(option.Pos, "option (%s) extends %s, not %s", option.Name.Extension, field.Extendee, kind))
		}
		return &schema.Member{Type: kind, Name: field.MemberName()}, nil
	}
	msg, ok := l.types[kind].(*schema.Message)
	if !ok || msg.Field(option.Name.Name) == nil {
		return nil, nil //nolint:nilnil
	}
	return &schema.Member{Type: kind, Name: option.Name.Name}, nil
}

func (l *linker) resolveType(scope schema.TypeName, ref string, pos lexer.Position) (schema.TypeName, error) {
	if t := schema.TypeName(ref); t.IsScalar() {
		return t, nil
	}
	name, ok := lookup(scope, ref, func(name schema.TypeName) bool {
		switch l.types[name].(type) {
		case *schema.Message, *schema.Enum:
			return true
		default:
			return false
		}
	})
	if !ok {
		return "", errors.WithStack(participle.Errorf(pos, "unknown type %s", ref))
	}
	return name, nil
}

func (l *linker) resolveMessage(scope schema.TypeName, ref string, pos lexer.Position) (schema.TypeName, error) {
	name, ok := lookup(scope, ref, func(name schema.TypeName) bool {
		_, ok := l.types[name].(*schema.Message)
		return ok
	})
	if !ok {
		return "", errors.WithStack(participle.Errorf(pos, "unknown message %s", ref))
	}
	return name, nil
}

// lookup resolves ref relative to scope, searching from the innermost scope outwards. A leading dot makes ref
// absolute.
func lookup(scope schema.TypeName, ref string, found func(schema.TypeName) bool) (schema.TypeName, bool) {
	if absolute, ok := strings.CutPrefix(ref, "."); ok {
		return schema.TypeName(absolute), found(schema.TypeName(absolute))
	}
	for {
		if candidate := scope.Nested(ref); found(candidate) {
			return candidate, true
		}
		if scope == "" {
			return "", false
		}
		scope = scope.EnclosingTypeOrPackage()
	}
}
