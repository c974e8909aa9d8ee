package schema

// Type is a declared message or enum.
//
//sumtype:decl
type Type interface {
	Declaration
	// TypeName returns the fully-qualified name of the type.
	TypeName() TypeName
	// NestedTypes returns the types declared inside this type, in declaration order.
	NestedTypes() []Type
	// TypeOptions returns the options applied to the type itself.
	TypeOptions() Options
	// typ is a sealed interface
	typ()
}

// Declaration is what a [TypeName] resolves to in a [Schema]: a *Message, *Enum, *Service or Scalar.
//
//sumtype:decl
type Declaration interface{ declaration() }

// Scalar is the [Declaration] of a built-in scalar type.
type Scalar TypeName

func (Scalar) declaration() {}

// Label of a field.
type Label string

const (
	LabelNone     Label = ""
	LabelOptional Label = "optional"
	LabelRequired Label = "required"
	LabelRepeated Label = "repeated"
)

// Option is a single option assignment, eg. `[(squareup.redacted) = true]`.
type Option struct {
	// Name as written, eg. "deprecated" or "(squareup.redacted)".
	Name string
	// Value as protobuf text, eg. `true`, `"hello"` or `{ a: 1 }`.
	Value string
	// Field is the declaration backing this option, or nil if the backing field is not part of the schema.
	Field *Member
}

// Options applied to an element, in declaration order.
type Options []Option

// Fields returns the members backing each option, in order.
func (o Options) Fields() []Member {
	var out []Member
	for _, option := range o {
		if option.Field != nil {
			out = append(out, *option.Field)
		}
	}
	return out
}

// Retain returns the options that are either unbacked or whose backing field satisfies keep.
func (o Options) Retain(keep func(Member) bool) Options {
	var out Options
	for _, option := range o {
		if option.Field == nil || keep(*option.Field) {
			out = append(out, option)
		}
	}
	return out
}

// Field of a message, oneof or extend block.
type Field struct {
	Name    string
	Type    TypeName
	Label   Label
	Tag     int
	Options Options
	// Extendee is the message this field extends, or "" for regular fields.
	Extendee TypeName
	// Scope is the package or message that declares an extension field.
	Scope string
}

// IsExtension returns true if the field is declared in an extend block.
func (f *Field) IsExtension() bool { return f.Extendee != "" }

// MemberName returns the name that identifies this field as a [Member].
//
// Extension fields are identified by their qualified name, regular fields by their simple name.
func (f *Field) MemberName() string {
	if f.IsExtension() && f.Scope != "" {
		return f.Scope + "." + f.Name
	}
	return f.Name
}

// OneOf is a named group of mutually exclusive fields.
type OneOf struct {
	Name    string
	Fields  []*Field
	Options Options
}

// Extend is an extend block adding fields to another message.
type Extend struct {
	Extendee TypeName
	Fields   []*Field
}

// Message type.
type Message struct {
	Name    TypeName
	Fields  []*Field
	OneOfs  []*OneOf
	Nested  []Type
	Extends []*Extend
	Options Options
	// Extensions are the extension fields declared anywhere in the schema that extend this message.
	//
	// They are attached by the linker and share their *Field with the declaring [Extend].
	Extensions []*Field
	// Reserved tags and names, as written, eg. `5, 10 to 20` or `"foo", "bar"`.
	Reserved []string
	// ExtensionRanges as written, eg. `100 to max`.
	ExtensionRanges []string
}

var _ Type = (*Message)(nil)

func (*Message) declaration()           {}
func (*Message) typ()                   {}
func (m *Message) TypeName() TypeName   { return m.Name }
func (m *Message) NestedTypes() []Type  { return m.Nested }
func (m *Message) TypeOptions() Options { return m.Options }

// FieldsAndOneOfFields returns the declared fields followed by the fields of every oneof.
func (m *Message) FieldsAndOneOfFields() []*Field {
	out := make([]*Field, 0, len(m.Fields))
	out = append(out, m.Fields...)
	for _, oneOf := range m.OneOfs {
		out = append(out, oneOf.Fields...)
	}
	return out
}

// Field returns the declared or oneof field called name, or nil.
func (m *Message) Field(name string) *Field {
	for _, field := range m.Fields {
		if field.Name == name {
			return field
		}
	}
	for _, oneOf := range m.OneOfs {
		for _, field := range oneOf.Fields {
			if field.Name == name {
				return field
			}
		}
	}
	return nil
}

// ExtensionField returns the extension field with the given qualified name, or nil.
func (m *Message) ExtensionField(name string) *Field {
	for _, field := range m.Extensions {
		if field.MemberName() == name {
			return field
		}
	}
	return nil
}

// EnumConstant is a single value of an enum.
type EnumConstant struct {
	Name    string
	Tag     int
	Options Options
}

// Enum type.
type Enum struct {
	Name      TypeName
	Constants []*EnumConstant
	Options   Options
	Reserved  []string
}

var _ Type = (*Enum)(nil)

func (*Enum) declaration()           {}
func (*Enum) typ()                   {}
func (e *Enum) TypeName() TypeName   { return e.Name }
func (e *Enum) NestedTypes() []Type  { return nil }
func (e *Enum) TypeOptions() Options { return e.Options }

// Constant returns the constant called name, or nil.
func (e *Enum) Constant(name string) *EnumConstant {
	for _, constant := range e.Constants {
		if constant.Name == name {
			return constant
		}
	}
	return nil
}

// Rpc is a single method of a service.
type Rpc struct { //nolint:revive
	Name              string
	RequestType       TypeName
	ResponseType      TypeName
	RequestStreaming  bool
	ResponseStreaming bool
	Options           Options
}

// Service declaration.
type Service struct {
	Name    TypeName
	Rpcs    []*Rpc
	Options Options
}

func (*Service) declaration() {}

// Rpc returns the RPC called name, or nil.
func (s *Service) Rpc(name string) *Rpc { //nolint:revive
	for _, rpc := range s.Rpcs {
		if rpc.Name == name {
			return rpc
		}
	}
	return nil
}

// Import of another file.
type Import struct {
	Path string
	// Modifier is "", "public" or "weak".
	Modifier string
}

// File is a single .proto source file.
type File struct {
	Path     string
	Syntax   string
	Package  string
	Imports  []Import
	Types    []Type
	Services []*Service
	Extends  []*Extend
	Options  Options
}

// IsEmpty returns true if the file declares no types, services or extensions.
func (f *File) IsEmpty() bool {
	return len(f.Types) == 0 && len(f.Services) == 0 && len(f.Extends) == 0
}
