package descriptor

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/alecthomas/errors"
	"github.com/alecthomas/protoprune/schema"
)

// Largest field number, written as "max" in ranges.
const maxFieldNumber = 536870911

type backedOption struct {
	options schema.Options
	index   int
	member  schema.Member
}

type converter struct {
	backed []backedOption
}

// Convert files to their schema representation.
//
// Extension fields are attached to extendees within files, and options are only backed by fields declared in files.
// Map entry messages are represented as map types rather than nested messages, and proto3 optional fields as plain
// fields.
func Convert(files []protoreflect.FileDescriptor) ([]*schema.File, error) {
	c := &converter{}
	out := make([]*schema.File, 0, len(files))
	for _, fd := range files {
		out = append(out, c.file(fd))
	}
	s, err := schema.New(out...)
	if err != nil {
		return nil, errors.Wrap(err, "invalid descriptors")
	}
	attachExtensions(s)
	for _, option := range c.backed {
		if s.HasMember(option.member) {
			member := option.member
			option.options[option.index].Field = &member
		}
	}
	return out, nil
}

func attachExtensions(s *schema.Schema) {
	attach := func(extends []*schema.Extend) {
		for _, extend := range extends {
			if msg, ok := s.Type(extend.Extendee).(*schema.Message); ok {
				msg.Extensions = append(msg.Extensions, extend.Fields...)
			}
		}
	}
	for _, file := range s.Files {
		attach(file.Extends)
		for t := range schema.Walk(file.Types) {
			if msg, ok := t.(*schema.Message); ok {
				attach(msg.Extends)
			}
		}
	}
}

func (c *converter) file(fd protoreflect.FileDescriptor) *schema.File {
	out := &schema.File{
		Path:    fd.Path(),
		Package: string(fd.Package()),
		Options: c.options(fd.Options()),
	}
	if syntax := fd.Syntax(); syntax.IsValid() && syntax != protoreflect.Editions {
		out.Syntax = syntax.String()
	}
	imports := fd.Imports()
	for i := range imports.Len() {
		imp := imports.Get(i)
		modifier := ""
		switch {
		case imp.IsPublic:
			modifier = "public"
		case imp.IsWeak:
			modifier = "weak"
		}
		out.Imports = append(out.Imports, schema.Import{Path: imp.Path(), Modifier: modifier})
	}
	out.Types = c.types(fd.Messages(), fd.Enums())
	services := fd.Services()
	for i := range services.Len() {
		out.Services = append(out.Services, c.service(services.Get(i)))
	}
	out.Extends = c.extends(fd.Extensions())
	return out
}

func (c *converter) types(messages protoreflect.MessageDescriptors, enums protoreflect.EnumDescriptors) []schema.Type {
	var out []schema.Type
	for i := range messages.Len() {
		md := messages.Get(i)
		if md.IsMapEntry() {
			continue
		}
		out = append(out, c.message(md))
	}
	for i := range enums.Len() {
		out = append(out, c.enum(enums.Get(i)))
	}
	return out
}

func (c *converter) message(md protoreflect.MessageDescriptor) *schema.Message {
	out := &schema.Message{
		Name:    schema.TypeName(md.FullName()),
		Options: c.options(md.Options()),
	}
	fields := md.Fields()
	for i := range fields.Len() {
		fd := fields.Get(i)
		if oneOf := fd.ContainingOneof(); oneOf != nil && !oneOf.IsSynthetic() {
			continue
		}
		out.Fields = append(out.Fields, c.field(fd))
	}
	oneOfs := md.Oneofs()
	for i := range oneOfs.Len() {
		od := oneOfs.Get(i)
		if od.IsSynthetic() {
			continue
		}
		oneOf := &schema.OneOf{Name: string(od.Name()), Options: c.options(od.Options())}
		for j := range od.Fields().Len() {
			oneOf.Fields = append(oneOf.Fields, c.field(od.Fields().Get(j)))
		}
		out.OneOfs = append(out.OneOfs, oneOf)
	}
	out.Nested = c.types(md.Messages(), md.Enums())
	out.Extends = c.extends(md.Extensions())

	reserved := md.ReservedRanges()
	if reserved.Len() > 0 {
		ranges := make([]string, 0, reserved.Len())
		for i := range reserved.Len() {
			r := reserved.Get(i)
			ranges = append(ranges, formatRange(int(r[0]), int(r[1])-1))
		}
		out.Reserved = append(out.Reserved, strings.Join(ranges, ", "))
	}
	if names := reservedNames(md.ReservedNames()); names != "" {
		out.Reserved = append(out.Reserved, names)
	}
	extensionRanges := md.ExtensionRanges()
	if extensionRanges.Len() > 0 {
		ranges := make([]string, 0, extensionRanges.Len())
		for i := range extensionRanges.Len() {
			r := extensionRanges.Get(i)
			ranges = append(ranges, formatRange(int(r[0]), int(r[1])-1))
		}
		out.ExtensionRanges = append(out.ExtensionRanges, strings.Join(ranges, ", "))
	}
	return out
}

func (c *converter) field(fd protoreflect.FieldDescriptor) *schema.Field {
	out := &schema.Field{
		Name:    string(fd.Name()),
		Type:    fieldType(fd),
		Tag:     int(fd.Number()),
		Options: c.options(fd.Options()),
	}
	switch {
	case fd.IsMap():
	case fd.Cardinality() == protoreflect.Repeated:
		out.Label = schema.LabelRepeated
	case fd.Cardinality() == protoreflect.Required:
		out.Label = schema.LabelRequired
	case fd.HasOptionalKeyword():
		out.Label = schema.LabelOptional
	}
	if fd.IsExtension() {
		out.Extendee = schema.TypeName(fd.ContainingMessage().FullName())
		out.Scope = string(fd.Parent().FullName())
	}
	return out
}

func fieldType(fd protoreflect.FieldDescriptor) schema.TypeName {
	switch {
	case fd.IsMap():
		return schema.MapOf(fieldType(fd.MapKey()), fieldType(fd.MapValue()))
	case fd.Kind() == protoreflect.MessageKind || fd.Kind() == protoreflect.GroupKind:
		return schema.TypeName(fd.Message().FullName())
	case fd.Kind() == protoreflect.EnumKind:
		return schema.TypeName(fd.Enum().FullName())
	default:
		return schema.TypeName(fd.Kind().String())
	}
}

func (c *converter) enum(ed protoreflect.EnumDescriptor) *schema.Enum {
	out := &schema.Enum{
		Name:    schema.TypeName(ed.FullName()),
		Options: c.options(ed.Options()),
	}
	values := ed.Values()
	for i := range values.Len() {
		value := values.Get(i)
		out.Constants = append(out.Constants, &schema.EnumConstant{
			Name:    string(value.Name()),
			Tag:     int(value.Number()),
			Options: c.options(value.Options()),
		})
	}
	reserved := ed.ReservedRanges()
	if reserved.Len() > 0 {
		ranges := make([]string, 0, reserved.Len())
		for i := range reserved.Len() {
			r := reserved.Get(i)
			ranges = append(ranges, formatRange(int(r[0]), int(r[1])))
		}
		out.Reserved = append(out.Reserved, strings.Join(ranges, ", "))
	}
	if names := reservedNames(ed.ReservedNames()); names != "" {
		out.Reserved = append(out.Reserved, names)
	}
	return out
}

func (c *converter) service(sd protoreflect.ServiceDescriptor) *schema.Service {
	out := &schema.Service{
		Name:    schema.TypeName(sd.FullName()),
		Options: c.options(sd.Options()),
	}
	methods := sd.Methods()
	for i := range methods.Len() {
		method := methods.Get(i)
		out.Rpcs = append(out.Rpcs, &schema.Rpc{
			Name:              string(method.Name()),
			RequestType:       schema.TypeName(method.Input().FullName()),
			ResponseType:      schema.TypeName(method.Output().FullName()),
			RequestStreaming:  method.IsStreamingClient(),
			ResponseStreaming: method.IsStreamingServer(),
			Options:           c.options(method.Options()),
		})
	}
	return out
}

// Consecutive extensions of the same message are grouped into a single extend block.
func (c *converter) extends(extensions protoreflect.ExtensionDescriptors) []*schema.Extend {
	var out []*schema.Extend
	for i := range extensions.Len() {
		field := c.field(extensions.Get(i))
		if len(out) == 0 || out[len(out)-1].Extendee != field.Extendee {
			out = append(out, &schema.Extend{Extendee: field.Extendee})
		}
		last := out[len(out)-1]
		last.Fields = append(last.Fields, field)
	}
	return out
}

func (c *converter) options(options proto.Message) schema.Options {
	if options == nil {
		return nil
	}
	msg := options.ProtoReflect()
	if !msg.IsValid() {
		return nil
	}
	type entry struct {
		fd    protoreflect.FieldDescriptor
		value protoreflect.Value
	}
	var entries []entry
	msg.Range(func(fd protoreflect.FieldDescriptor, value protoreflect.Value) bool {
		entries = append(entries, entry{fd, value})
		return true
	})
	if len(entries) == 0 {
		return nil
	}
	slices.SortFunc(entries, func(a, b entry) int { return int(a.fd.Number()) - int(b.fd.Number()) })
	out := make(schema.Options, 0, len(entries))
	for i, e := range entries {
		out = append(out, schema.Option{Name: optionName(e.fd), Value: formatValue(e.fd, e.value)})
		c.backed = append(c.backed, backedOption{options: out[:len(entries)], index: i, member: OptionMember(e.fd)})
	}
	return out
}

// OptionMember returns the member backing an option field.
func OptionMember(fd protoreflect.FieldDescriptor) schema.Member {
	if fd.IsExtension() {
		return schema.Member{Type: schema.TypeName(fd.ContainingMessage().FullName()), Name: string(fd.FullName())}
	}
	return schema.Member{Type: schema.TypeName(fd.ContainingMessage().FullName()), Name: string(fd.Name())}
}

func optionName(fd protoreflect.FieldDescriptor) string {
	if fd.IsExtension() {
		return "(" + string(fd.FullName()) + ")"
	}
	return string(fd.Name())
}

// formatValue renders an option value in protobuf text format.
func formatValue(fd protoreflect.FieldDescriptor, value protoreflect.Value) string {
	switch {
	case fd.IsList():
		list := value.List()
		values := make([]string, 0, list.Len())
		for i := range list.Len() {
			values = append(values, formatScalar(fd, list.Get(i)))
		}
		return "[" + strings.Join(values, ", ") + "]"
	case fd.IsMap():
		var entries []string
		value.Map().Range(func(key protoreflect.MapKey, value protoreflect.Value) bool {
			entries = append(entries, "{ key: "+formatScalar(fd.MapKey(), key.Value())+", value: "+formatScalar(fd.MapValue(), value)+" }")
			return true
		})
		slices.Sort(entries)
		return "[" + strings.Join(entries, ", ") + "]"
	default:
		return formatScalar(fd, value)
	}
}

func formatScalar(fd protoreflect.FieldDescriptor, value protoreflect.Value) string {
	switch fd.Kind() {
	case protoreflect.StringKind:
		return strconv.Quote(value.String())
	case protoreflect.BytesKind:
		return strconv.Quote(string(value.Bytes()))
	case protoreflect.EnumKind:
		if ev := fd.Enum().Values().ByNumber(value.Enum()); ev != nil {
			return string(ev.Name())
		}
		return strconv.Itoa(int(value.Enum()))
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return formatMessage(value.Message())
	default:
		return fmt.Sprint(value.Interface())
	}
}

func formatMessage(msg protoreflect.Message) string {
	var fields []protoreflect.FieldDescriptor
	msg.Range(func(fd protoreflect.FieldDescriptor, _ protoreflect.Value) bool {
		fields = append(fields, fd)
		return true
	})
	if len(fields) == 0 {
		return "{}"
	}
	slices.SortFunc(fields, func(a, b protoreflect.FieldDescriptor) int { return int(a.Number()) - int(b.Number()) })
	parts := make([]string, 0, len(fields))
	for _, fd := range fields {
		name := string(fd.Name())
		if fd.IsExtension() {
			name = "[" + string(fd.FullName()) + "]"
		}
		parts = append(parts, name+": "+formatValue(fd, msg.Get(fd)))
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

func formatRange(start, end int) string {
	switch {
	case start == end:
		return strconv.Itoa(start)
	case end >= maxFieldNumber:
		return strconv.Itoa(start) + " to max"
	default:
		return strconv.Itoa(start) + " to " + strconv.Itoa(end)
	}
}

func reservedNames(names protoreflect.Names) string {
	if names.Len() == 0 {
		return ""
	}
	quoted := make([]string, 0, names.Len())
	for i := range names.Len() {
		quoted = append(quoted, strconv.Quote(string(names.Get(i))))
	}
	return strings.Join(quoted, ", ")
}
