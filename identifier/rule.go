package identifier

import (
	"strings"

	"github.com/alecthomas/errors"
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var (
	ruleParser = participle.MustBuild[Rule](
		participle.Lexer(ruleLexer),
		participle.Elide("Whitespace"),
	)
	ruleLexer = lexer.MustSimple([]lexer.SimpleRule{
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`},
		{"Punct", `[.*#]`},
		{"Whitespace", `\s+`},
	})
)

// Rule is a single include or exclude rule.
//
// Rules name a type ("pkg.Type"), a nested type ("pkg.Type.Nested"), a member ("pkg.Type#member", or
// "google.protobuf.FieldOptions#pkg.extension" for an extension field), or every declaration below a prefix ("pkg.*",
// "*").
type Rule struct {
	Pos lexer.Position

	Segments []string `parser:"@(Ident | '*') ('.' @(Ident | '*'))*"`
	Member   string   `parser:"('#' @(Ident ('.' Ident)*))?"`
}

// ParseRule parses and validates a single rule.
func ParseRule(rule string) (*Rule, error) {
	if strings.TrimSpace(rule) == "" {
		return nil, errors.Errorf("empty rule")
	}
	parsed, err := ruleParser.ParseString("", rule)
	if err != nil {
		return nil, errors.Errorf("invalid rule %q: %w", rule, err)
	}
	if err := parsed.validate(); err != nil {
		return nil, errors.Errorf("invalid rule %q: %w", rule, err)
	}
	return parsed, nil
}

func (r *Rule) validate() error {
	for i, segment := range r.Segments {
		if segment == "*" && i != len(r.Segments)-1 {
			return errors.Errorf("wildcard can only be the last segment")
		}
	}
	if r.Member != "" && r.Wildcard() {
		return errors.Errorf("wildcard cannot have a member")
	}
	return nil
}

// Wildcard returns true if the rule matches everything below a prefix.
func (r *Rule) Wildcard() bool { return r.Segments[len(r.Segments)-1] == "*" }

func (r *Rule) String() string {
	out := strings.Join(r.Segments, ".")
	if r.Member != "" {
		out += "#" + r.Member
	}
	return out
}

// enclosing returns the next less specific rule that matches identifier, or "" once "*" has been reached.
//
// eg. "a.B#c" -> "a.B" -> "a.*" -> "*", and "a.B.C" -> "a.B.*" -> "a.*" -> "*".
func enclosing(identifier string) string {
	if hash := strings.LastIndexByte(identifier, '#'); hash != -1 {
		return identifier[:hash]
	}
	if identifier == "*" {
		return ""
	}
	trimmed := strings.TrimSuffix(identifier, ".*")
	if dot := strings.LastIndexByte(trimmed, '.'); dot != -1 {
		return trimmed[:dot] + ".*"
	}
	return "*"
}
