package schema

import (
	"iter"

	"github.com/alecthomas/errors"
)

// Schema is an ordered set of linked files.
type Schema struct {
	Files []*File

	files    map[string]*File
	types    map[TypeName]Type
	services map[TypeName]*Service
}

// New indexes the given files into a Schema.
//
// Every type and service, nested ones included, must have a unique name.
func New(files ...*File) (*Schema, error) {
	s := &Schema{
		Files:    files,
		files:    make(map[string]*File, len(files)),
		types:    make(map[TypeName]Type),
		services: make(map[TypeName]*Service),
	}
	for _, file := range files {
		if _, ok := s.files[file.Path]; ok {
			return nil, errors.Errorf("duplicate file %s", file.Path)
		}
		s.files[file.Path] = file
		for _, t := range file.Types {
			if err := s.indexType(file, t); err != nil {
				return nil, err
			}
		}
		for _, service := range file.Services {
			if err := s.checkUnique(file, service.Name); err != nil {
				return nil, err
			}
			s.services[service.Name] = service
		}
	}
	return s, nil
}

// MustNew is like [New] but panics on error.
func MustNew(files ...*File) *Schema {
	s, err := New(files...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) indexType(file *File, t Type) error {
	if err := s.checkUnique(file, t.TypeName()); err != nil {
		return err
	}
	s.types[t.TypeName()] = t
	for _, nested := range t.NestedTypes() {
		if err := s.indexType(file, nested); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) checkUnique(file *File, name TypeName) error {
	_, isType := s.types[name]
	_, isService := s.services[name]
	if isType || isService {
		return errors.Errorf("%s: %s is already defined", file.Path, name)
	}
	return nil
}

// File returns the file with the given path, or nil.
func (s *Schema) File(path string) *File { return s.files[path] }

// Type returns the message or enum called name, or nil.
func (s *Schema) Type(name TypeName) Type { return s.types[name] }

// Service returns the service called name, or nil.
func (s *Schema) Service(name TypeName) *Service { return s.services[name] }

// Lookup resolves name to its declaration.
//
// Map types are not declarations and are never found.
func (s *Schema) Lookup(name TypeName) (Declaration, bool) {
	if name.IsScalar() {
		return Scalar(name), true
	}
	if t, ok := s.types[name]; ok {
		return t, true
	}
	if service, ok := s.services[name]; ok {
		return service, true
	}
	return nil, false
}

// HasMember returns true if member is declared in the schema.
func (s *Schema) HasMember(member Member) bool {
	decl, ok := s.Lookup(member.Type)
	if !ok {
		return false
	}
	switch decl := decl.(type) {
	case *Message:
		return decl.Field(member.Name) != nil || decl.ExtensionField(member.Name) != nil
	case *Enum:
		return decl.Constant(member.Name) != nil
	case *Service:
		return decl.Rpc(member.Name) != nil
	case Scalar:
		return false
	}
	return false
}

// Types iterates over every type in the schema, depth-first in declaration order.
func (s *Schema) Types() iter.Seq[Type] {
	return func(yield func(Type) bool) {
		for _, file := range s.Files {
			for t := range Walk(file.Types) {
				if !yield(t) {
					return
				}
			}
		}
	}
}

// Walk iterates over types and the types nested inside them, depth-first in declaration order.
func Walk(types []Type) iter.Seq[Type] {
	return func(yield func(Type) bool) {
		var walk func(types []Type) bool
		walk = func(types []Type) bool {
			for _, t := range types {
				if !yield(t) || !walk(t.NestedTypes()) {
					return false
				}
			}
			return true
		}
		walk(types)
	}
}

// Nodes iterates over every [TypeName] and [Member] declared in the schema, in declaration order.
//
// Extension fields are yielded as members of their extendee, after its regular fields.
func (s *Schema) Nodes() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for t := range s.Types() {
			if !yield(t.TypeName()) {
				return
			}
			for _, member := range typeMembers(t) {
				if !yield(member) {
					return
				}
			}
		}
		for _, file := range s.Files {
			for _, service := range file.Services {
				if !yield(service.Name) {
					return
				}
				for _, rpc := range service.Rpcs {
					if !yield(Member{Type: service.Name, Name: rpc.Name}) {
						return
					}
				}
			}
		}
	}
}

func typeMembers(t Type) []Member {
	var out []Member
	switch t := t.(type) {
	case *Message:
		for _, field := range t.FieldsAndOneOfFields() {
			out = append(out, Member{Type: t.Name, Name: field.Name})
		}
		for _, field := range t.Extensions {
			out = append(out, Member{Type: t.Name, Name: field.MemberName()})
		}
	case *Enum:
		for _, constant := range t.Constants {
			out = append(out, Member{Type: t.Name, Name: constant.Name})
		}
	}
	return out
}
