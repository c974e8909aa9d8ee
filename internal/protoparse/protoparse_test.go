package protoparse

import (
	"path"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/psanford/memfs"

	"github.com/alecthomas/protoprune/schema"
)

const dinosaurProto = `syntax = "proto3";

package a;

import "b/b.proto";
import "google/protobuf/descriptor.proto";

option java_package = "com.example.a";

extend google.protobuf.FieldOptions {
  bool redacted = 22200;
}

// A dinosaur.
message Dinosaur {
  string name = 1 [(redacted) = true, deprecated = true];
  repeated b.Period periods = 2;
  map<string, Egg> eggs = 3;
  Egg.Shell shell = 4;
  oneof diet {
    string plant = 5;
    .a.Dinosaur prey = 6;
  }
  reserved 10 to 20, 30;
  reserved "legs";

  /* Nested types are resolved from the innermost scope. */
  message Egg {
    enum Shell {
      SHELL_UNKNOWN = 0;
      SHELL_HARD = 1 [(a.label) = "hard"];
    }
    Shell shell = 1;
  }
}

extend google.protobuf.EnumValueOptions {
  string label = 22201;
}

service Park {
  option (service_owner) = { name: "alice" tags: ["x", "y"] };
  rpc Visit (b.Period) returns (stream Dinosaur);
  rpc Feed (Dinosaur) returns (Dinosaur) {
    option deprecated = true;
  }
}

message Owner { string name = 1; }

extend google.protobuf.ServiceOptions {
  Owner service_owner = 22202;
}
`

const periodProto = `syntax = "proto3";
package b;

message Period {
  string name = 1;
  int64 start_mya = 2;
}
`

func testFS(t *testing.T, files map[string]string) *memfs.FS {
	t.Helper()
	fsys := memfs.New()
	for name, source := range files {
		if dir := path.Dir(name); dir != "." {
			assert.NoError(t, fsys.MkdirAll(dir, 0o755))
		}
		assert.NoError(t, fsys.WriteFile(name, []byte(source), 0o600))
	}
	return fsys
}

func TestLoad(t *testing.T) {
	fsys := testFS(t, map[string]string{"a/a.proto": dinosaurProto, "b/b.proto": periodProto})
	s, err := Load(fsys, "a/a.proto")
	assert.NoError(t, err)

	var paths []string
	for _, file := range s.Files {
		paths = append(paths, file.Path)
	}
	assert.Equal(t, []string{"a/a.proto", "b/b.proto", "google/protobuf/descriptor.proto"}, paths)

	file := s.File("a/a.proto")
	assert.Equal(t, "proto3", file.Syntax)
	assert.Equal(t, "a", file.Package)
	assert.Equal(t, []schema.Import{{Path: "b/b.proto"}, {Path: "google/protobuf/descriptor.proto"}}, file.Imports)
	assert.Equal(t, schema.Options{{
		Name:  "java_package",
		Value: `"com.example.a"`,
		Field: &schema.Member{Type: "google.protobuf.FileOptions", Name: "java_package"},
	}}, file.Options)

	dinosaur := s.Type("a.Dinosaur").(*schema.Message) //nolint:forcetypeassert
	var fields []string
	for _, field := range dinosaur.FieldsAndOneOfFields() {
		fields = append(fields, string(field.Label)+" "+string(field.Type)+" "+field.Name)
	}
	assert.Equal(t, []string{
		" string name",
		"repeated b.Period periods",
		" map<string, a.Dinosaur.Egg> eggs",
		" a.Dinosaur.Egg.Shell shell",
		" string plant",
		" a.Dinosaur prey",
	}, fields)
	assert.Equal(t, "diet", dinosaur.OneOfs[0].Name)
	assert.Equal(t, []string{"10 to 20, 30", `"legs"`}, dinosaur.Reserved)
	assert.Equal(t, schema.Options{
		{Name: "(redacted)", Value: "true", Field: &schema.Member{Type: "google.protobuf.FieldOptions", Name: "a.redacted"}},
		{Name: "deprecated", Value: "true", Field: &schema.Member{Type: "google.protobuf.FieldOptions", Name: "deprecated"}},
	}, dinosaur.Fields[0].Options)

	egg := s.Type("a.Dinosaur.Egg").(*schema.Message) //nolint:forcetypeassert
	assert.Equal(t, schema.TypeName("a.Dinosaur.Egg.Shell"), egg.Fields[0].Type)
	shell := s.Type("a.Dinosaur.Egg.Shell").(*schema.Enum) //nolint:forcetypeassert
	assert.Equal(t, schema.Options{{
		Name:  "(a.label)",
		Value: `"hard"`,
		Field: &schema.Member{Type: "google.protobuf.EnumValueOptions", Name: "a.label"},
	}}, shell.Constants[1].Options)

	fieldOptions := s.Type("google.protobuf.FieldOptions").(*schema.Message) //nolint:forcetypeassert
	redacted := fieldOptions.ExtensionField("a.redacted")
	assert.NotZero(t, redacted)
	assert.True(t, redacted == file.Extends[0].Fields[0])
	assert.Equal(t, schema.TypeName("google.protobuf.FieldOptions"), redacted.Extendee)
	assert.Equal(t, schema.TypeName("a.Owner"), file.Extends[2].Fields[0].Type)

	park := s.Service("a.Park")
	assert.Equal(t, schema.Options{{
		Name:  "(service_owner)",
		Value: `{ name: "alice", tags: ["x", "y"] }`,
		Field: &schema.Member{Type: "google.protobuf.ServiceOptions", Name: "a.service_owner"},
	}}, park.Options)
	assert.Equal(t, &schema.Rpc{Name: "Visit", RequestType: "b.Period", ResponseType: "a.Dinosaur", ResponseStreaming: true}, park.Rpcs[0])
	assert.Equal(t, schema.Options{{
		Name:  "deprecated",
		Value: "true",
		Field: &schema.Member{Type: "google.protobuf.MethodOptions", Name: "deprecated"},
	}}, park.Rpcs[1].Options)
}

func TestLoadWithoutDescriptorProto(t *testing.T) {
	fsys := testFS(t, map[string]string{"c.proto": `
syntax = "proto2";
package c;
option go_package = "example.com/c";
message C {
  optional string name = 1 [deprecated = true, default = "x"];
  extensions 100 to max;
}
`})
	s, err := Load(fsys, "c.proto")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(s.Files))
	assert.Equal(t, schema.Options{{Name: "go_package", Value: `"example.com/c"`}}, s.Files[0].Options)

	c := s.Type("c.C").(*schema.Message) //nolint:forcetypeassert
	assert.Equal(t, schema.LabelOptional, c.Fields[0].Label)
	assert.Equal(t, schema.Options{{Name: "deprecated", Value: "true"}, {Name: "default", Value: `"x"`}}, c.Fields[0].Options)
	assert.Equal(t, []string{"100 to max"}, c.ExtensionRanges)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		errors []string
	}{
		{
			name:   "ParseError",
			source: `message A {`,
			errors: []string{"failed to parse a.proto", "a.proto:1:"},
		},
		{
			name:   "UnknownType",
			source: "package a;\nmessage A {\n  Missing m = 1;\n}",
			errors: []string{"a.proto:3:3", "unknown type Missing"},
		},
		{
			name:   "MissingImport",
			source: `import "missing.proto";`,
			errors: []string{"a.proto:1:1", `import "missing.proto" not found`},
		},
		{
			name:   "UnknownOption",
			source: `package a; message A { string s = 1 [(nope) = true]; }`,
			errors: []string{"unknown option (nope)"},
		},
		{
			name: "OptionOnWrongKind",
			source: `import "google/protobuf/descriptor.proto";
package a;
extend google.protobuf.FieldOptions { bool x = 50000; }
message A { option (x) = true; }`,
			errors: []string{"option (x) extends google.protobuf.FieldOptions, not google.protobuf.MessageOptions"},
		},
		{
			name:   "DuplicateType",
			source: `package a; message A {} message A {}`,
			errors: []string{"a.A is already defined"},
		},
		{
			name:   "RequestIsNotAMessage",
			source: `package a; enum E { Z = 0; } service S { rpc R (E) returns (E); }`,
			errors: []string{"unknown message E"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := testFS(t, map[string]string{"a.proto": tt.source})
			_, err := Load(fsys, "a.proto")
			assert.Error(t, err)
			for _, want := range tt.errors {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestLoadMissingRoot(t *testing.T) {
	_, err := Load(testFS(t, nil), "nope.proto")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read nope.proto")
}

func TestParseString(t *testing.T) {
	tests := []struct {
		name   string
		source string
		check  func(t *testing.T, file *File)
	}{
		{
			name:   "NegativeEnumValue",
			source: `enum E { NEG = -1; }`,
			check: func(t *testing.T, file *File) {
				t.Helper()
				assert.Equal(t, -1, file.Entries[0].Enum.Entries[0].Value.Tag)
			},
		},
		{
			name:   "ConcatenatedStrings",
			source: `option a = "x" "y";`,
			check: func(t *testing.T, file *File) {
				t.Helper()
				assert.Equal(t, `"xy"`, file.Entries[0].Option.Value.String())
			},
		},
		{
			name:   "OptionPath",
			source: `option (a.b).c.d = -inf;`,
			check: func(t *testing.T, file *File) {
				t.Helper()
				option := file.Entries[0].Option
				assert.Equal(t, "(a.b).c.d", option.Name.String())
				assert.Equal(t, "-inf", option.Value.String())
			},
		},
		{
			name:   "EmptyAggregate",
			source: `option (a) = {};`,
			check: func(t *testing.T, file *File) {
				t.Helper()
				assert.Equal(t, "{}", file.Entries[0].Option.Value.String())
			},
		},
		{
			name:   "NestedAggregate",
			source: `option (a) = { b { c: 1.5 } [d.e]: E_F };`,
			check: func(t *testing.T, file *File) {
				t.Helper()
				assert.Equal(t, "{ b: { c: 1.5 }, [d.e]: E_F }", file.Entries[0].Option.Value.String())
			},
		},
		{
			name:   "ImportModifiers",
			source: `import public "a.proto"; import weak "b.proto";`,
			check: func(t *testing.T, file *File) {
				t.Helper()
				assert.Equal(t, "public", file.Entries[0].Import.Modifier)
				assert.Equal(t, "weak", file.Entries[1].Import.Modifier)
			},
		},
		{
			name:   "StreamingRpc",
			source: `service S { rpc R (stream A) returns (stream B) {} }`,
			check: func(t *testing.T, file *File) {
				t.Helper()
				rpc := file.Entries[0].Service.Entries[0].RPC
				assert.True(t, rpc.RequestStreaming)
				assert.True(t, rpc.ResponseStreaming)
				assert.Equal(t, "A", rpc.Request)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, err := ParseString("test.proto", tt.source)
			assert.NoError(t, err)
			tt.check(t, file)
		})
	}
}
