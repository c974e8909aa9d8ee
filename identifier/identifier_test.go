package identifier

import (
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/alecthomas/protoprune/schema"
)

func TestParseRule(t *testing.T) {
	tests := []struct {
		name    string
		rule    string
		want    string
		wantErr bool
	}{
		{name: "Everything", rule: "*", want: "*"},
		{name: "Package", rule: "a.b.*", want: "a.b.*"},
		{name: "Type", rule: "a.b.C", want: "a.b.C"},
		{name: "Member", rule: "a.b.C#d", want: "a.b.C#d"},
		{name: "ExtensionMember", rule: "google.protobuf.FieldOptions#a.b.redacted", want: "google.protobuf.FieldOptions#a.b.redacted"},
		{name: "Whitespace", rule: " a.b.C ", want: "a.b.C"},
		{name: "Empty", rule: "", wantErr: true},
		{name: "WildcardNotLast", rule: "a.*.C", wantErr: true},
		{name: "WildcardMember", rule: "a.*#b", wantErr: true},
		{name: "TrailingDot", rule: "a.b.", wantErr: true},
		{name: "EmptyMember", rule: "a.B#", wantErr: true},
		{name: "InvalidCharacter", rule: "a/b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRule(tt.rule)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestEnclosing(t *testing.T) {
	var got []string
	for rule := "a.b.C.D#e"; rule != ""; rule = enclosing(rule) {
		got = append(got, rule)
	}
	assert.Equal(t, []string{"a.b.C.D#e", "a.b.C.D", "a.b.C.*", "a.b.*", "a.*", "*"}, got)
}

func TestIncludes(t *testing.T) {
	tests := []struct {
		name     string
		includes []string
		excludes []string
		node     schema.Node
		want     bool
	}{
		{name: "NoRules", node: schema.TypeName("a.B"), want: true},
		{name: "NoRulesMember", node: schema.Member{Type: "a.B", Name: "c"}, want: true},
		{name: "ExactType", includes: []string{"a.B"}, node: schema.TypeName("a.B"), want: true},
		{name: "OtherType", includes: []string{"a.B"}, node: schema.TypeName("a.C"), want: false},
		{name: "NestedTypeIsNotIncludedByEnclosing", includes: []string{"a.B"}, node: schema.TypeName("a.B.C"), want: false},
		{name: "NestedWildcard", includes: []string{"a.B.*"}, node: schema.TypeName("a.B.C"), want: true},
		{name: "PackageWildcard", includes: []string{"a.*"}, node: schema.TypeName("a.b.C"), want: true},
		{name: "Star", includes: []string{"*"}, node: schema.TypeName("x.Y"), want: true},
		{name: "MemberOfIncludedType", includes: []string{"a.B"}, node: schema.Member{Type: "a.B", Name: "c"}, want: true},
		{name: "ExactMember", includes: []string{"a.B#c"}, node: schema.Member{Type: "a.B", Name: "c"}, want: true},
		{name: "SiblingMember", includes: []string{"a.B#c"}, node: schema.Member{Type: "a.B", Name: "d"}, want: false},
		{name: "MemberDoesNotIncludeType", includes: []string{"a.B#c"}, node: schema.TypeName("a.B"), want: false},
		{name: "ExcludedType", excludes: []string{"a.B"}, node: schema.TypeName("a.B"), want: false},
		{name: "ExcludedTypeExcludesMembers", excludes: []string{"a.B"}, node: schema.Member{Type: "a.B", Name: "c"}, want: false},
		{name: "ExcludeOnlyIncludesOthers", excludes: []string{"a.B"}, node: schema.TypeName("a.C"), want: true},
		{name: "SpecificIncludeBeatsWildcardExclude", includes: []string{"a.B"}, excludes: []string{"a.*"}, node: schema.TypeName("a.B"), want: true},
		{name: "SpecificExcludeBeatsWildcardInclude", includes: []string{"a.*"}, excludes: []string{"a.B"}, node: schema.TypeName("a.B"), want: false},
		{name: "ExcludedMemberOfIncludedType", includes: []string{"a.B"}, excludes: []string{"a.B#c"}, node: schema.Member{Type: "a.B", Name: "c"}, want: false},
		{name: "EqualRulesExclude", includes: []string{"a.B"}, excludes: []string{"a.B"}, node: schema.TypeName("a.B"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.includes, tt.excludes)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, s.Includes(tt.node))
		})
	}
}

func TestExcludes(t *testing.T) {
	s := MustNew([]string{"a.B"}, []string{"a.*", "a.B#secret"})
	assert.True(t, s.Excludes(schema.TypeName("a.C")))
	assert.True(t, s.Excludes(schema.Member{Type: "a.C", Name: "d"}))
	assert.False(t, s.Excludes(schema.TypeName("a.B")))
	assert.False(t, s.Excludes(schema.Member{Type: "a.B", Name: "public"}))
	assert.True(t, s.Excludes(schema.Member{Type: "a.B", Name: "secret"}))
	assert.False(t, s.Excludes(schema.TypeName("b.C")))
}

func TestUnused(t *testing.T) {
	s := MustNew([]string{"a.B", "a.Missing", "b.*"}, []string{"a.B#c", "z.*"})
	assert.True(t, s.Includes(schema.TypeName("a.B")))
	assert.False(t, s.Includes(schema.Member{Type: "a.B", Name: "c"}))

	includes, excludes := s.Unused()
	assert.Equal(t, []string{"a.Missing", "b.*"}, includes)
	assert.Equal(t, []string{"z.*"}, excludes)
}

func TestEverything(t *testing.T) {
	s := Everything()
	assert.True(t, s.IsEverything())
	assert.True(t, s.Includes(schema.TypeName("a.B")))
	assert.False(t, s.Excludes(schema.TypeName("a.B")))
	includes, excludes := s.Unused()
	assert.Equal(t, 0, len(includes))
	assert.Equal(t, 0, len(excludes))
}

func TestNewReportsInvalidRules(t *testing.T) {
	_, err := New([]string{"a.B", "a..C"}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "include: invalid rule \"a..C\"")

	_, err = New(nil, []string{"*.a"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "exclude: invalid rule \"*.a\"")
}
