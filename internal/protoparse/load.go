package protoparse

import (
	"io/fs"

	"github.com/alecthomas/errors"
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	// Well-known files that may be imported without being present on the import path.
	_ "google.golang.org/protobuf/types/known/anypb"
	_ "google.golang.org/protobuf/types/known/apipb"
	_ "google.golang.org/protobuf/types/known/durationpb"
	_ "google.golang.org/protobuf/types/known/emptypb"
	_ "google.golang.org/protobuf/types/known/fieldmaskpb"
	_ "google.golang.org/protobuf/types/known/sourcecontextpb"
	_ "google.golang.org/protobuf/types/known/structpb"
	_ "google.golang.org/protobuf/types/known/timestamppb"
	_ "google.golang.org/protobuf/types/known/typepb"
	_ "google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/alecthomas/protoprune/internal/descriptor"
	"github.com/alecthomas/protoprune/schema"
)

type pendingFile struct {
	path string
	// Position of the import that requested the file, or nil for the files passed to Load.
	importedFrom *lexer.Position
}

// Load parses the files at paths in fsys, and every file they import, and links them into a schema.
//
// Imports are resolved relative to the root of fsys. Well-known files such as "google/protobuf/descriptor.proto" are
// loaded from the descriptors compiled into this binary when fsys does not contain them.
//
// The files at paths come first in the schema, followed by imported files in the order they were first imported.
func Load(fsys fs.FS, paths ...string) (*schema.Schema, error) {
	l := newLinker()
	queue := make([]pendingFile, 0, len(paths))
	for _, path := range paths {
		queue = append(queue, pendingFile{path: path})
	}
	seen := map[string]bool{}
	var wellKnown []string
	for len(queue) > 0 {
		pending := queue[0]
		queue = queue[1:]
		if seen[pending.path] {
			continue
		}
		seen[pending.path] = true

		source, err := fs.ReadFile(fsys, pending.path)
		if errors.Is(err, fs.ErrNotExist) && pending.importedFrom != nil {
			if descriptor.IsWellKnown(pending.path) {
				wellKnown = append(wellKnown, pending.path)
				continue
			}
			return nil, errors.WithStack(participle.Errorf(*pending.importedFrom, "import %q not found", pending.path))
		} else if err != nil {
			return nil, errors.Errorf("failed to read %s: %w", pending.path, err)
		}
		ast, err := ParseString(pending.path, string(source))
		if err != nil {
			return nil, err
		}
		for _, entry := range ast.Entries {
			if entry.Import != nil {
				queue = append(queue, pendingFile{path: entry.Import.Path, importedFrom: &entry.Import.Pos})
			}
		}
		l.file(pending.path, ast)
	}

	var linked []*schema.File
	if len(wellKnown) > 0 {
		files, err := descriptor.WellKnown(wellKnown...)
		if err != nil {
			return nil, err
		}
		linked = files
		if err := l.declare(linked); err != nil {
			return nil, err
		}
	}
	return l.link(linked)
}
