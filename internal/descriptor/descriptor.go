// Package descriptor converts between protobuf FileDescriptorSets and [schema.Schema].
package descriptor

import (
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/alecthomas/errors"
	"github.com/alecthomas/protoprune/schema"
)

// Set is a loaded FileDescriptorSet and its schema.
type Set struct {
	fds    *descriptorpb.FileDescriptorSet
	schema *schema.Schema
}

// Load a FileDescriptorSet, which must include every imported file (eg. `protoc --include_imports`).
//
// Custom options are resolved against the extensions declared in the set itself.
func Load(fds *descriptorpb.FileDescriptorSet) (*Set, error) {
	files, err := protodesc.NewFiles(fds)
	if err != nil {
		return nil, errors.Errorf("invalid descriptor set: %w", err)
	}
	// Custom options are unknown fields until decoded with the extension types of the set.
	data, err := proto.Marshal(fds)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	resolved := &descriptorpb.FileDescriptorSet{}
	if err := (proto.UnmarshalOptions{Resolver: dynamicpb.NewTypes(files)}).Unmarshal(data, resolved); err != nil {
		return nil, errors.Errorf("failed to resolve options: %w", err)
	}
	files, err = protodesc.NewFiles(resolved)
	if err != nil {
		return nil, errors.Errorf("invalid descriptor set: %w", err)
	}

	descriptors := make([]protoreflect.FileDescriptor, 0, len(resolved.File))
	for _, file := range resolved.File {
		fd, err := files.FindFileByPath(file.GetName())
		if err != nil {
			return nil, errors.WithStack(err)
		}
		descriptors = append(descriptors, fd)
	}
	converted, err := Convert(descriptors)
	if err != nil {
		return nil, err
	}
	s, err := schema.New(converted...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Set{fds: resolved, schema: s}, nil
}

// Decode and load a binary FileDescriptorSet.
func Decode(data []byte) (*Set, error) {
	fds := &descriptorpb.FileDescriptorSet{}
	if err := proto.Unmarshal(data, fds); err != nil {
		return nil, errors.Errorf("failed to decode descriptor set: %w", err)
	}
	return Load(fds)
}

// WellKnown converts the named files, and the files they import, from the descriptors linked into this binary.
func WellKnown(paths ...string) ([]*schema.File, error) {
	var files []protoreflect.FileDescriptor
	seen := map[string]bool{}
	var visit func(path string) error
	visit = func(path string) error {
		if seen[path] {
			return nil
		}
		seen[path] = true
		fd, err := protoregistry.GlobalFiles.FindFileByPath(path)
		if err != nil {
			return errors.Errorf("%s: %w", path, err)
		}
		imports := fd.Imports()
		for i := range imports.Len() {
			if err := visit(imports.Get(i).Path()); err != nil {
				return err
			}
		}
		files = append(files, fd)
		return nil
	}
	for _, path := range paths {
		if err := visit(path); err != nil {
			return nil, err
		}
	}
	return Convert(files)
}

// IsWellKnown returns true if path can be loaded with [WellKnown].
func IsWellKnown(path string) bool {
	_, err := protoregistry.GlobalFiles.FindFileByPath(path)
	return err == nil
}

// Schema returns the schema of the set.
func (s *Set) Schema() *schema.Schema { return s.schema }

// Retain returns a copy of the descriptors containing only the declarations in pruned.
//
// pruned must be derived from [Set.Schema]. Options backed by fields that were pruned are cleared, dependencies are
// reduced to the remaining files and source code info is dropped.
func (s *Set) Retain(pruned *schema.Schema) *descriptorpb.FileDescriptorSet {
	r := &retainer{original: s.schema, pruned: pruned}
	out := &descriptorpb.FileDescriptorSet{}
	for _, file := range s.fds.File {
		if pruned.File(file.GetName()) == nil {
			continue
		}
		file = proto.Clone(file).(*descriptorpb.FileDescriptorProto) //nolint:forcetypeassert
		r.file(file)
		out.File = append(out.File, file)
	}
	return out
}

type retainer struct {
	original *schema.Schema
	pruned   *schema.Schema
}

func (r *retainer) file(file *descriptorpb.FileDescriptorProto) {
	pkg := file.GetPackage()
	file.SourceCodeInfo = nil
	r.options(file.Options)

	public := map[int32]bool{}
	for _, i := range file.PublicDependency {
		public[i] = true
	}
	weak := map[int32]bool{}
	for _, i := range file.WeakDependency {
		weak[i] = true
	}
	var dependencies []string
	file.PublicDependency, file.WeakDependency = nil, nil
	for i, dependency := range file.Dependency {
		if r.pruned.File(dependency) == nil {
			continue
		}
		index := int32(len(dependencies)) //nolint:gosec
		if public[int32(i)] {             //nolint:gosec
			file.PublicDependency = append(file.PublicDependency, index)
		}
		if weak[int32(i)] { //nolint:gosec
			file.WeakDependency = append(file.WeakDependency, index)
		}
		dependencies = append(dependencies, dependency)
	}
	file.Dependency = dependencies

	file.MessageType = r.messages(pkg, file.MessageType)
	file.EnumType = r.enums(pkg, file.EnumType)
	file.Extension = r.extensions(pkg, file.Extension)

	var services []*descriptorpb.ServiceDescriptorProto
	for _, service := range file.Service {
		name := qualify(pkg, service.GetName())
		if r.pruned.Service(name) == nil {
			continue
		}
		r.options(service.Options)
		var methods []*descriptorpb.MethodDescriptorProto
		for _, method := range service.Method {
			if r.pruned.HasMember(schema.Member{Type: name, Name: method.GetName()}) {
				r.options(method.Options)
				methods = append(methods, method)
			}
		}
		service.Method = methods
		services = append(services, service)
	}
	file.Service = services
}

func (r *retainer) messages(scope string, messages []*descriptorpb.DescriptorProto) []*descriptorpb.DescriptorProto {
	var out []*descriptorpb.DescriptorProto
	for _, msg := range messages {
		name := qualify(scope, msg.GetName())
		if r.pruned.Type(name) == nil {
			continue
		}
		r.message(name, msg)
		out = append(out, msg)
	}
	return out
}

func (r *retainer) message(name schema.TypeName, msg *descriptorpb.DescriptorProto) {
	r.options(msg.Options)

	var fields []*descriptorpb.FieldDescriptorProto
	referenced := map[string]bool{}
	for _, field := range msg.Field {
		if r.pruned.HasMember(schema.Member{Type: name, Name: field.GetName()}) {
			r.options(field.Options)
			fields = append(fields, field)
			referenced[strings.TrimPrefix(field.GetTypeName(), ".")] = true
		}
	}

	// Oneofs without fields are dropped, so the remaining ones are re-indexed.
	used := map[int32]bool{}
	for _, field := range fields {
		if field.OneofIndex != nil {
			used[field.GetOneofIndex()] = true
		}
	}
	index := map[int32]int32{}
	var oneOfs []*descriptorpb.OneofDescriptorProto
	for i, oneOf := range msg.OneofDecl {
		if !used[int32(i)] { //nolint:gosec
			continue
		}
		r.options(oneOf.Options)
		index[int32(i)] = int32(len(oneOfs)) //nolint:gosec
		oneOfs = append(oneOfs, oneOf)
	}
	for _, field := range fields {
		if field.OneofIndex != nil {
			field.OneofIndex = proto.Int32(index[field.GetOneofIndex()])
		}
	}
	msg.Field = fields
	msg.OneofDecl = oneOfs

	var nested []*descriptorpb.DescriptorProto
	for _, child := range msg.NestedType {
		childName := name.Nested(child.GetName())
		if child.GetOptions().GetMapEntry() {
			if referenced[string(childName)] {
				nested = append(nested, child)
			}
			continue
		}
		if r.pruned.Type(childName) == nil {
			continue
		}
		r.message(childName, child)
		nested = append(nested, child)
	}
	msg.NestedType = nested
	msg.EnumType = r.enums(string(name), msg.EnumType)
	msg.Extension = r.extensions(string(name), msg.Extension)
}

func (r *retainer) enums(scope string, enums []*descriptorpb.EnumDescriptorProto) []*descriptorpb.EnumDescriptorProto {
	var out []*descriptorpb.EnumDescriptorProto
	for _, enum := range enums {
		name := qualify(scope, enum.GetName())
		if r.pruned.Type(name) == nil {
			continue
		}
		r.options(enum.Options)
		var values []*descriptorpb.EnumValueDescriptorProto
		for _, value := range enum.Value {
			if r.pruned.HasMember(schema.Member{Type: name, Name: value.GetName()}) {
				r.options(value.Options)
				values = append(values, value)
			}
		}
		enum.Value = values
		out = append(out, enum)
	}
	return out
}

func (r *retainer) extensions(scope string, extensions []*descriptorpb.FieldDescriptorProto) []*descriptorpb.FieldDescriptorProto {
	var out []*descriptorpb.FieldDescriptorProto
	for _, field := range extensions {
		extendee := schema.TypeName(strings.TrimPrefix(field.GetExtendee(), "."))
		if r.pruned.HasMember(schema.Member{Type: extendee, Name: string(qualify(scope, field.GetName()))}) {
			r.options(field.Options)
			out = append(out, field)
		}
	}
	return out
}

// Options whose backing field was pruned are cleared. Options without a backing field in the schema are kept.
func (r *retainer) options(options proto.Message) {
	if options == nil {
		return
	}
	msg := options.ProtoReflect()
	if !msg.IsValid() {
		return
	}
	var cleared []protoreflect.FieldDescriptor
	msg.Range(func(fd protoreflect.FieldDescriptor, _ protoreflect.Value) bool {
		member := OptionMember(fd)
		if r.original.HasMember(member) && !r.pruned.HasMember(member) {
			cleared = append(cleared, fd)
		}
		return true
	})
	for _, fd := range cleared {
		msg.Clear(fd)
	}
}

func qualify(scope, name string) schema.TypeName {
	return schema.TypeName(scope).Nested(name)
}
