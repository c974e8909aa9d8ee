package protoparse

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// File is the syntax tree of a single .proto file.
type File struct {
	Pos lexer.Position

	Syntax  string   `parser:"('syntax' '=' @String ';')?"`
	Entries []*Entry `parser:"@@*"`
}

// Entry is a top-level statement.
type Entry struct {
	Pos lexer.Position

	Package string   `parser:"(  'package' @(Ident ('.' Ident)*) ';'"`
	Import  *Import  `parser:"  | @@"`
	Option  *Option  `parser:"  | 'option' @@ ';'"`
	Message *Message `parser:"  | @@"`
	Enum    *Enum    `parser:"  | @@"`
	Service *Service `parser:"  | @@"`
	Extend  *Extend  `parser:"  | @@"`
	Empty   bool     `parser:"  | @';' )"`
}

type Import struct {
	Pos lexer.Position

	Modifier string `parser:"'import' @('public' | 'weak')?"`
	Path     string `parser:"@String ';'"`
}

// Option assignment, eg. `(a.b).c = { d: 1 }`.
type Option struct {
	Pos lexer.Position

	Name  *OptionName `parser:"@@"`
	Value *Value      `parser:"'=' @@"`
}

type OptionName struct {
	Extension string   `parser:"(  '(' @('.'? Ident ('.' Ident)*) ')'"`
	Name      string   `parser:"  | @Ident )"`
	Path      []string `parser:"('.' @Ident)*"`
}

func (o *OptionName) String() string {
	out := o.Name
	if o.Extension != "" {
		out = "(" + o.Extension + ")"
	}
	for _, part := range o.Path {
		out += "." + part
	}
	return out
}

// Value of an option, in protobuf text format.
type Value struct {
	Pos lexer.Position

	Str       *string    `parser:"  @String+"`
	Number    *string    `parser:"| @(Float | Int)"`
	Ident     *string    `parser:"| @('-'? Ident)"`
	Aggregate *Aggregate `parser:"| @@"`
	List      *List      `parser:"| @@"`
}

func (v *Value) String() string {
	switch {
	case v.Str != nil:
		return strconv.Quote(*v.Str)
	case v.Number != nil:
		return *v.Number
	case v.Ident != nil:
		return *v.Ident
	case v.Aggregate != nil:
		return v.Aggregate.String()
	case v.List != nil:
		return v.List.String()
	}
	return ""
}

type Aggregate struct {
	Open   bool              `parser:"@'{'"`
	Fields []*AggregateField `parser:"@@* '}'"`
}

func (a *Aggregate) String() string {
	if len(a.Fields) == 0 {
		return "{}"
	}
	fields := make([]string, 0, len(a.Fields))
	for _, field := range a.Fields {
		fields = append(fields, field.String())
	}
	return "{ " + strings.Join(fields, ", ") + " }"
}

type AggregateField struct {
	Extension string `parser:"(  '[' @('.'? Ident ('.' Ident)*) ']'"`
	Name      string `parser:"  | @Ident )"`
	Value     *Value `parser:"':'? @@ (',' | ';')?"`
}

func (a *AggregateField) String() string {
	name := a.Name
	if a.Extension != "" {
		name = "[" + a.Extension + "]"
	}
	return name + ": " + a.Value.String()
}

type List struct {
	Open   bool     `parser:"@'['"`
	Values []*Value `parser:"(@@ (',' @@)*)? ']'"`
}

func (l *List) String() string {
	values := make([]string, 0, len(l.Values))
	for _, value := range l.Values {
		values = append(values, value.String())
	}
	return "[" + strings.Join(values, ", ") + "]"
}

type Message struct {
	Pos lexer.Position

	Name    string          `parser:"'message' @Ident '{'"`
	Entries []*MessageEntry `parser:"@@* '}' ';'?"`
}

type MessageEntry struct {
	Pos lexer.Position

	Option     *Option     `parser:"(  'option' @@ ';'"`
	OneOf      *OneOf      `parser:"  | @@"`
	Message    *Message    `parser:"  | @@"`
	Enum       *Enum       `parser:"  | @@"`
	Extend     *Extend     `parser:"  | @@"`
	Reserved   *Reserved   `parser:"  | @@"`
	Extensions *Extensions `parser:"  | @@"`
	Field      *Field      `parser:"  | @@"`
	Empty      bool        `parser:"  | @';' )"`
}

type Field struct {
	Pos lexer.Position

	Label   string     `parser:"@('optional' | 'required' | 'repeated')?"`
	Type    *FieldType `parser:"@@"`
	Name    string     `parser:"@Ident '='"`
	Tag     int        `parser:"@Int"`
	Options []*Option  `parser:"('[' @@ (',' @@)* ']')? ';'"`
}

type FieldType struct {
	Map       *MapType `parser:"  @@"`
	Reference string   `parser:"| @('.'? Ident ('.' Ident)*)"`
}

type MapType struct {
	Key   string `parser:"'map' '<' @Ident ','"`
	Value string `parser:"@('.'? Ident ('.' Ident)*) '>'"`
}

type OneOf struct {
	Pos lexer.Position

	Name    string        `parser:"'oneof' @Ident '{'"`
	Entries []*OneOfEntry `parser:"@@* '}'"`
}

type OneOfEntry struct {
	Option *Option `parser:"(  'option' @@ ';'"`
	Field  *Field  `parser:"  | @@"`
	Empty  bool    `parser:"  | @';' )"`
}

type Enum struct {
	Pos lexer.Position

	Name    string       `parser:"'enum' @Ident '{'"`
	Entries []*EnumEntry `parser:"@@* '}' ';'?"`
}

type EnumEntry struct {
	Option   *Option    `parser:"(  'option' @@ ';'"`
	Reserved *Reserved  `parser:"  | @@"`
	Value    *EnumValue `parser:"  | @@"`
	Empty    bool       `parser:"  | @';' )"`
}

type EnumValue struct {
	Pos lexer.Position

	Name    string    `parser:"@Ident '='"`
	Tag     int       `parser:"@Int"`
	Options []*Option `parser:"('[' @@ (',' @@)* ']')? ';'"`
}

// Reserved tag ranges or field names.
type Reserved struct {
	Ranges []*Range `parser:"'reserved' (  @@ (',' @@)*"`
	Names  []string `parser:"           | @String (',' @String)* ) ';'"`
}

func (r *Reserved) String() string {
	if len(r.Names) > 0 {
		names := make([]string, 0, len(r.Names))
		for _, name := range r.Names {
			names = append(names, strconv.Quote(name))
		}
		return strings.Join(names, ", ")
	}
	return rangesString(r.Ranges)
}

type Extensions struct {
	Ranges  []*Range  `parser:"'extensions' @@ (',' @@)*"`
	Options []*Option `parser:"('[' @@ (',' @@)* ']')? ';'"`
}

type Range struct {
	Start string `parser:"@Int"`
	End   string `parser:"('to' @(Int | 'max'))?"`
}

func (r *Range) String() string {
	if r.End == "" {
		return r.Start
	}
	return r.Start + " to " + r.End
}

func rangesString(ranges []*Range) string {
	out := make([]string, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, r.String())
	}
	return strings.Join(out, ", ")
}

type Service struct {
	Pos lexer.Position

	Name    string          `parser:"'service' @Ident '{'"`
	Entries []*ServiceEntry `parser:"@@* '}' ';'?"`
}

type ServiceEntry struct {
	Option *Option `parser:"(  'option' @@ ';'"`
	RPC    *RPC    `parser:"  | @@"`
	Empty  bool    `parser:"  | @';' )"`
}

type RPC struct {
	Pos lexer.Position

	Name              string    `parser:"'rpc' @Ident"`
	RequestStreaming  bool      `parser:"'(' @'stream'?"`
	Request           string    `parser:"@('.'? Ident ('.' Ident)*) ')'"`
	ResponseStreaming bool      `parser:"'returns' '(' @'stream'?"`
	Response          string    `parser:"@('.'? Ident ('.' Ident)*) ')'"`
	Options           []*Option `parser:"(  '{' ('option' @@ ';' | ';')* '}' ';'?"`
	Empty             bool      `parser:"  | @';' )"`
}

type Extend struct {
	Pos lexer.Position

	Extendee string   `parser:"'extend' @('.'? Ident ('.' Ident)*) '{'"`
	Fields   []*Field `parser:"(@@ | ';')* '}' ';'?"`
}
