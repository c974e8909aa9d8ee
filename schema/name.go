// Package schema is the in-memory model of a linked protobuf schema.
//
// A [Schema] is immutable once built with [New]: the pruner, the retention
// projector and every front end treat it as read-only, so a single schema can be
// shared by any number of concurrent pruning runs.
package schema

import (
	"strings"
)

var scalars = map[TypeName]bool{
	"bool":     true,
	"bytes":    true,
	"double":   true,
	"float":    true,
	"fixed32":  true,
	"fixed64":  true,
	"int32":    true,
	"int64":    true,
	"sfixed32": true,
	"sfixed64": true,
	"sint32":   true,
	"sint64":   true,
	"string":   true,
	"uint32":   true,
	"uint64":   true,
}

// Node is either a [TypeName] or a [Member].
//
//sumtype:decl
type Node interface {
	String() string
	// node is a sealed interface
	node()
}

// TypeName is the fully-qualified name of a message, enum or service, eg. "squareup.dinosaurs.Dinosaur".
//
// Built-in scalars such as "string" and map types such as "map<string, a.B>" are also TypeNames, but they are never
// declared in a schema.
type TypeName string

func (TypeName) node() {}

func (t TypeName) String() string { return string(t) }

// IsScalar returns true if t is one of the built-in protobuf scalar types.
func (t TypeName) IsScalar() bool { return scalars[t] }

// IsMap returns true if t is a map type of the form "map<K, V>".
func (t TypeName) IsMap() bool {
	return strings.HasPrefix(string(t), "map<") && strings.HasSuffix(string(t), ">")
}

// MapKey returns the key type of a map type, or "" if t is not a map.
func (t TypeName) MapKey() TypeName {
	key, _ := t.mapTypes()
	return key
}

// MapValue returns the value type of a map type, or "" if t is not a map.
func (t TypeName) MapValue() TypeName {
	_, value := t.mapTypes()
	return value
}

func (t TypeName) mapTypes() (key, value TypeName) {
	if !t.IsMap() {
		return "", ""
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(string(t), "map<"), ">")
	k, v, ok := strings.Cut(inner, ",")
	if !ok {
		return "", ""
	}
	return TypeName(strings.TrimSpace(k)), TypeName(strings.TrimSpace(v))
}

// MapOf returns the map type with the given key and value types.
func MapOf(key, value TypeName) TypeName {
	return TypeName("map<" + string(key) + ", " + string(value) + ">")
}

// EnclosingTypeOrPackage returns the name of the message or package that declares t.
//
// eg. "a.b.Outer.Inner" returns "a.b.Outer", and "a.b.Outer" returns "a.b". Top-level types without a package return
// "".
func (t TypeName) EnclosingTypeOrPackage() TypeName {
	if t.IsScalar() || t.IsMap() {
		return ""
	}
	i := strings.LastIndexByte(string(t), '.')
	if i == -1 {
		return ""
	}
	return t[:i]
}

// SimpleName returns the last component of t.
func (t TypeName) SimpleName() string {
	if t.IsScalar() || t.IsMap() {
		return string(t)
	}
	return string(t[strings.LastIndexByte(string(t), '.')+1:])
}

// Nested returns the name of a type called name nested inside t.
func (t TypeName) Nested(name string) TypeName {
	if t == "" {
		return TypeName(name)
	}
	return t + "." + TypeName(name)
}

// Member identifies a single field, enum constant or RPC of a type or service.
//
// Extension fields are members of the message they extend, named by their package-qualified name, eg.
// Member{Type: "google.protobuf.FieldOptions", Name: "squareup.redacted"}.
type Member struct {
	Type TypeName
	Name string
}

func (Member) node() {}

func (m Member) String() string { return string(m.Type) + "#" + m.Name }
