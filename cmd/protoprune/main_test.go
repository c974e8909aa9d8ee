package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/alecthomas/kong"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/alecthomas/protoprune/internal/logging/loggingtest"
)

const dinosaurProto = `syntax = "proto3";
package p;

message Dinosaur {
  string name = 1;
  Period period = 2;
  Egg egg = 3;
}

message Period {
  int64 start_mya = 1;
}

message Egg {}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	assert.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kongOptions("test")...)
	assert.NoError(t, err)
	_, err = parser.Parse(args)
	assert.NoError(t, err)
	stdout := &bytes.Buffer{}
	err = cli.Run(loggingtest.NewForTesting(t), stdout)
	return stdout.String(), err
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "p", "dinosaur.proto"), dinosaurProto)

	out, err := run(t, "-I", dir, "--list", "-i", "p.Dinosaur#period", "p/dinosaur.proto")
	assert.NoError(t, err)
	assert.Equal(t, "p.Dinosaur\np.Dinosaur#period\np.Period\np.Period#start_mya\n", out)
}

func TestOut(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "in", "p", "dinosaur.proto"), dinosaurProto)
	writeFile(t, filepath.Join(dir, "selection.txt"), `# Keep dinosaurs, but not their eggs.
include p.Dinosaur
exclude 'p.Egg' "p.Dinosaur#name"
`)
	outDir := filepath.Join(dir, "out")

	_, err := run(t, "-I", filepath.Join(dir, "in"), "--selection-file", filepath.Join(dir, "selection.txt"), "--out", outDir, "p/dinosaur.proto")
	assert.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(outDir, "p", "dinosaur.proto"))
	assert.NoError(t, err)
	assert.Equal(t, `syntax = "proto3";

package p;

message Dinosaur {
  .p.Period period = 2;
}

message Period {
  int64 start_mya = 1;
}
`, string(data))
}

func TestDescriptorSet(t *testing.T) {
	dir := t.TempDir()
	fds := &descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{
		protodesc.ToFileDescriptorProto(durationpb.File_google_protobuf_duration_proto),
		protodesc.ToFileDescriptorProto(timestamppb.File_google_protobuf_timestamp_proto),
	}}
	data, err := proto.Marshal(fds)
	assert.NoError(t, err)
	input := filepath.Join(dir, "input.pb")
	assert.NoError(t, os.WriteFile(input, data, 0o600))
	output := filepath.Join(dir, "output.pb")

	_, err = run(t, "--descriptor-set", input, "--descriptor-out", output, "-i", "google.protobuf.Duration")
	assert.NoError(t, err)

	data, err = os.ReadFile(output)
	assert.NoError(t, err)
	pruned := &descriptorpb.FileDescriptorSet{}
	assert.NoError(t, proto.Unmarshal(data, pruned))
	assert.Equal(t, 1, len(pruned.File))
	assert.Equal(t, "google/protobuf/duration.proto", pruned.File[0].GetName())
	assert.Equal(t, "Duration", pruned.File[0].MessageType[0].GetName())
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "p", "dinosaur.proto"), dinosaurProto)
	config := filepath.Join(dir, "protoprune.toml")
	writeFile(t, config, "keep-empty-files = true\n")

	var cli CLI
	parser, err := kong.New(&cli, kongOptions("test")...)
	assert.NoError(t, err)
	_, err = parser.Parse([]string{"--config", config, "-I", dir, "--list", "p/dinosaur.proto"})
	assert.NoError(t, err)
	assert.True(t, cli.KeepEmptyFiles)
}

func TestErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "p", "dinosaur.proto"), dinosaurProto)
	writeFile(t, filepath.Join(dir, "bad-selection.txt"), "retain p.Dinosaur\n")

	tests := []struct {
		name string
		args []string
		err  string
	}{
		{"NoOutput", []string{"-I", dir, "p/dinosaur.proto"}, "nothing to do"},
		{"NoInput", []string{"--list"}, "no input"},
		{"DescriptorOutWithoutDescriptorSet", []string{"-I", dir, "--descriptor-out", filepath.Join(dir, "x.pb"), "p/dinosaur.proto"}, "--descriptor-out requires --descriptor-set"},
		{"InvalidRule", []string{"-I", dir, "--list", "-i", "p.*.Dinosaur", "p/dinosaur.proto"}, "include: "},
		{"InvalidSelectionFile", []string{"-I", dir, "--list", "--selection-file", filepath.Join(dir, "bad-selection.txt"), "p/dinosaur.proto"}, `bad-selection.txt:1: expected include or exclude but got "retain"`},
		{"MissingFile", []string{"-I", dir, "--list", "p/missing.proto"}, "failed to read p/missing.proto"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}
