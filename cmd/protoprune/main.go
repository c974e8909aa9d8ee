// Command protoprune removes the declarations of a protobuf schema that a set of include and exclude rules do not
// need.
package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/alecthomas/errors"
	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	"github.com/alecthomas/repr"
	"github.com/kballard/go-shellquote"
	"github.com/natefinch/atomic"
	"google.golang.org/protobuf/proto"

	"github.com/alecthomas/protoprune"
	"github.com/alecthomas/protoprune/identifier"
	"github.com/alecthomas/protoprune/internal/descriptor"
	"github.com/alecthomas/protoprune/internal/logging"
	"github.com/alecthomas/protoprune/internal/protoparse"
	"github.com/alecthomas/protoprune/internal/protowriter"
	"github.com/alecthomas/protoprune/schema"
)

type CLI struct {
	Version        kong.VersionFlag   `help:"Print the version and exit."`
	Chdir          kong.ChangeDirFlag `help:"Change to this directory before running." placeholder:"DIR" short:"C"`
	Config         kong.ConfigFlag    `help:"Load flags from this TOML file." placeholder:"FILE"`
	Log            logging.Config     `embed:"" prefix:"log-"`
	ProtoPath      string             `help:"Directory that .proto files and their imports are relative to." default:"." short:"I" type:"existingdir" placeholder:"DIR"`
	DescriptorSet  string             `help:"Prune this binary FileDescriptorSet instead of .proto files." type:"existingfile" placeholder:"FILE"`
	Include        []string           `help:"Retain this type, member or wildcard, and everything it references." short:"i" placeholder:"RULE"`
	Exclude        []string           `help:"Never retain this type, member or wildcard." short:"x" placeholder:"RULE"`
	SelectionFile  string             `help:"Read \"include RULE...\" and \"exclude RULE...\" lines from this file." type:"existingfile" placeholder:"FILE"`
	KeepEmptyFiles bool               `help:"Keep files whose declarations were all pruned."`
	List           bool               `help:"Print the retained types and members."`
	Out            string             `help:"Write the pruned .proto files to this directory." type:"path" placeholder:"DIR"`
	DescriptorOut  string             `help:"Write the pruned FileDescriptorSet to this file (requires --descriptor-set)." type:"path" placeholder:"FILE"`
	Files          []string           `help:".proto files to prune, relative to --proto-path." arg:"" optional:""`
}

func kongOptions(version string) []kong.Option {
	return []kong.Option{
		kong.Description("Remove unused declarations from protobuf schemas."),
		kong.Configuration(kongtoml.Loader, ".protoprune.toml"),
		kong.Vars{"version": version},
	}
}

func main() {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		version = info.Main.Version
	}
	var cli CLI
	kctx := kong.Parse(&cli, kongOptions(version)...)
	logger := logging.New(os.Stderr, cli.Log)
	err := cli.Run(logger, os.Stdout)
	kctx.FatalIfErrorf(err)
}

// Run prunes the input schema and writes the requested outputs.
func (c *CLI) Run(logger *slog.Logger, stdout io.Writer) error {
	if !c.List && c.Out == "" && c.DescriptorOut == "" {
		return errors.Errorf("nothing to do, pass one or more of --list, --out or --descriptor-out")
	}
	selection, err := c.selection()
	if err != nil {
		return err
	}
	s, set, err := c.load()
	if err != nil {
		return err
	}

	options := []protoprune.Option{
		protoprune.WithLogger(logger),
		protoprune.WithKeepEmptyFiles(c.KeepEmptyFiles),
	}
	marks, err := protoprune.Mark(s, selection, options...)
	if err != nil {
		return errors.Errorf("failed to prune: %w", err)
	}
	logger.Debug("Selected roots", "roots", repr.String(marks.Roots()))
	pruned, err := protoprune.Retain(s, marks, options...)
	if err != nil {
		return errors.Errorf("failed to prune: %w", err)
	}

	includes, excludes := selection.Unused()
	for _, rule := range includes {
		logger.Warn("Include rule matched nothing", "rule", rule)
	}
	for _, rule := range excludes {
		logger.Warn("Exclude rule matched nothing", "rule", rule)
	}

	if c.List {
		for node := range pruned.Nodes() {
			fmt.Fprintln(stdout, node)
		}
	}
	if c.Out != "" {
		if err := writeProtos(c.Out, pruned); err != nil {
			return err
		}
	}
	if c.DescriptorOut != "" {
		data, err := proto.Marshal(set.Retain(pruned))
		if err != nil {
			return errors.Errorf("failed to encode descriptor set: %w", err)
		}
		if err := atomic.WriteFile(c.DescriptorOut, bytes.NewReader(data)); err != nil {
			return errors.Errorf("failed to write %s: %w", c.DescriptorOut, err)
		}
	}
	return nil
}

// load the schema to prune. The descriptor set is nil unless the input is a FileDescriptorSet.
func (c *CLI) load() (*schema.Schema, *descriptor.Set, error) {
	switch {
	case c.DescriptorSet != "" && len(c.Files) > 0:
		return nil, nil, errors.Errorf("--descriptor-set cannot be combined with .proto files")

	case c.DescriptorSet != "":
		data, err := os.ReadFile(c.DescriptorSet)
		if err != nil {
			return nil, nil, errors.Errorf("failed to read %s: %w", c.DescriptorSet, err)
		}
		set, err := descriptor.Decode(data)
		if err != nil {
			return nil, nil, errors.Errorf("%s: %w", c.DescriptorSet, err)
		}
		return set.Schema(), set, nil

	case len(c.Files) == 0:
		return nil, nil, errors.Errorf("no input, pass .proto files or --descriptor-set")

	case c.DescriptorOut != "":
		return nil, nil, errors.Errorf("--descriptor-out requires --descriptor-set")

	default:
		paths := make([]string, 0, len(c.Files))
		for _, file := range c.Files {
			paths = append(paths, path.Clean(filepath.ToSlash(file)))
		}
		s, err := protoparse.Load(os.DirFS(c.ProtoPath), paths...)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	}
}

func (c *CLI) selection() (*identifier.Set, error) {
	includes, excludes := slices.Clone(c.Include), slices.Clone(c.Exclude)
	if c.SelectionFile != "" {
		fileIncludes, fileExcludes, err := readSelectionFile(c.SelectionFile)
		if err != nil {
			return nil, err
		}
		includes = append(includes, fileIncludes...)
		excludes = append(excludes, fileExcludes...)
	}
	return identifier.New(includes, excludes)
}

// readSelectionFile reads lines of the form "include RULE..." or "exclude RULE...".
//
// Rules are split into words with shell quoting rules. Lines starting with # are comments.
func readSelectionFile(path string) (includes, excludes []string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Errorf("failed to read selection: %w", err)
	}
	for i, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		words, err := shellquote.Split(line)
		if err != nil {
			return nil, nil, errors.Errorf("%s:%d: %w", path, i+1, err)
		}
		if len(words) == 0 {
			continue
		}
		switch words[0] {
		case "include":
			includes = append(includes, words[1:]...)
		case "exclude":
			excludes = append(excludes, words[1:]...)
		default:
			return nil, nil, errors.Errorf("%s:%d: expected include or exclude but got %q", path, i+1, words[0])
		}
	}
	return includes, excludes, nil
}

func writeProtos(dir string, s *schema.Schema) error {
	for _, file := range s.Files {
		dest := filepath.Join(dir, filepath.FromSlash(file.Path))
		if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
			return errors.Errorf("failed to create output directory: %w", err)
		}
		buf := &bytes.Buffer{}
		if err := protowriter.Write(buf, file); err != nil {
			return err
		}
		if err := atomic.WriteFile(dest, buf); err != nil {
			return errors.Errorf("failed to write %s: %w", dest, err)
		}
	}
	return nil
}
