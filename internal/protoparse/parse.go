// Package protoparse parses .proto files and links them into a [schema.Schema].
//
// The grammar covers proto2 and proto3 syntax, excluding groups and editions.
package protoparse

import (
	"io"

	"github.com/alecthomas/errors"
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var (
	protoParser = participle.MustBuild[File](
		participle.Lexer(protoLexer),
		participle.Elide("Whitespace", "Comment"),
		participle.Unquote("String"),
		participle.UseLookahead(2),
	)
	protoLexer = lexer.MustSimple([]lexer.SimpleRule{
		{"Comment", `//[^\n]*|/\*(?s:.*?)\*/`},
		{"String", `"(\\.|[^"\\])*"`},
		{"Float", `[-+]?(\d+\.\d*|\.\d+)([eE][-+]?\d+)?|[-+]?\d+[eE][-+]?\d+`},
		{"Int", `[-+]?(0[xX][0-9a-fA-F]+|\d+)`},
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`},
		{"Punct", `[-+.,;:=<>(){}\[\]]`},
		{"Whitespace", `\s+`},
	})
)

// Parse a single .proto file.
//
// path is only used to report error positions.
func Parse(path string, r io.Reader) (*File, error) {
	file, err := protoParser.Parse(path, r)
	if err != nil {
		return nil, errors.Errorf("failed to parse %s: %w", path, err)
	}
	return file, nil
}

// ParseString is like [Parse] but parses source directly.
func ParseString(path, source string) (*File, error) {
	file, err := protoParser.ParseString(path, source)
	if err != nil {
		return nil, errors.Errorf("failed to parse %s: %w", path, err)
	}
	return file, nil
}
