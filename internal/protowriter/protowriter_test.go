package protowriter

import (
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/psanford/memfs"

	"github.com/alecthomas/protoprune/internal/protoparse"
	"github.com/alecthomas/protoprune/schema"
)

const source = `syntax = "proto3";
package a;
import public "b.proto";
option java_package = "com.example.a";

message Dinosaur {
  option deprecated = true;
  string name = 1 [deprecated = true, json_name = "n"];
  repeated b.Period periods = 2;
  map<string, Egg> eggs = 3;
  oneof diet {
    string plant = 4;
    Dinosaur prey = 5;
  }
  reserved 10 to 20, 30;
  reserved "legs";
  message Egg {}
  enum Kind {
    KIND_UNKNOWN = 0;
    KIND_BIG = 1 [deprecated = true];
    reserved 5;
  }
}

service Park {
  rpc Visit (stream b.Period) returns (Dinosaur);
  rpc Feed (Dinosaur) returns (stream Dinosaur) {
    option deprecated = true;
  }
}

extend b.Period {
  Dinosaur.Kind kind = 100;
}
`

const periodSource = `syntax = "proto2";
package b;
message Period {
  optional string name = 1;
  extensions 100 to max;
}
`

const expected = `syntax = "proto3";

package a;

import public "b.proto";

option java_package = "com.example.a";

message Dinosaur {
  option deprecated = true;
  string name = 1 [deprecated = true, json_name = "n"];
  repeated .b.Period periods = 2;
  map<string, .a.Dinosaur.Egg> eggs = 3;
  oneof diet {
    string plant = 4;
    .a.Dinosaur prey = 5;
  }
  reserved 10 to 20, 30;
  reserved "legs";
  message Egg {}
  enum Kind {
    KIND_UNKNOWN = 0;
    KIND_BIG = 1 [deprecated = true];
    reserved 5;
  }
}

service Park {
  rpc Visit (stream .b.Period) returns (.a.Dinosaur);
  rpc Feed (.a.Dinosaur) returns (stream .a.Dinosaur) {
    option deprecated = true;
  }
}

extend .b.Period {
  .a.Dinosaur.Kind kind = 100;
}
`

func load(t *testing.T, files map[string]string) *schema.Schema {
	t.Helper()
	fsys := memfs.New()
	for name, source := range files {
		assert.NoError(t, fsys.WriteFile(name, []byte(source), 0o600))
	}
	s, err := protoparse.Load(fsys, "a.proto")
	assert.NoError(t, err)
	return s
}

func TestString(t *testing.T) {
	s := load(t, map[string]string{"a.proto": source, "b.proto": periodSource})
	assert.Equal(t, expected, String(s.File("a.proto")))
	assert.Equal(t, `syntax = "proto2";

package b;

message Period {
  optional string name = 1;
  extensions 100 to max;
}
`, String(s.File("b.proto")))
}

func TestOutputReparses(t *testing.T) {
	s := load(t, map[string]string{"a.proto": source, "b.proto": periodSource})
	rewritten := load(t, map[string]string{
		"a.proto": String(s.File("a.proto")),
		"b.proto": String(s.File("b.proto")),
	})
	assert.Equal(t, expected, String(rewritten.File("a.proto")))
}

func TestEmptyDeclarations(t *testing.T) {
	file := &schema.File{
		Path:     "e.proto",
		Types:    []schema.Type{&schema.Message{Name: "E"}},
		Services: []*schema.Service{{Name: "S"}},
	}
	assert.Equal(t, "message E {}\n\nservice S {}\n", String(file))
}

func TestWrite(t *testing.T) {
	out := &strings.Builder{}
	err := Write(out, &schema.File{Path: "p.proto", Package: "p"})
	assert.NoError(t, err)
	assert.Equal(t, "package p;\n", out.String())
}
