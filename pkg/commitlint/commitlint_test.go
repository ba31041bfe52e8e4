package commitlint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultRules = Rules{
	Types:           []string{"feat", "fix", "docs", "style", "refactor", "perf", "test", "build", "ci", "chore", "revert"},
	MaxHeaderLength: 100,
}

func rules(v []Violation) []string {
	out := make([]string, len(v))
	for i, x := range v {
		out[i] = x.Rule
	}
	return out
}

func TestLint_Valid(t *testing.T) {
	for _, msg := range []string{
		"feat: add skill sync",
		"fix(cursor): keep version strings quoted",
		"feat(hooks,sync)!: rename marker file",
		"docs: readme\n\nLonger explanation.\n",
		"chore: bump deps\n# Please enter the commit message\n# Lines starting with '#' are ignored",
		"Merge branch 'main' into feature",
		"Revert \"feat: add skill sync\"",
		"fixup! feat: add skill sync",
	} {
		assert.NoError(t, defaultRules.Lint(msg), msg)
	}
}

func TestLint_Violations(t *testing.T) {
	tests := []struct {
		msg  string
		want []string
	}{
		{"", []string{"header-empty"}},
		{"# only a comment", []string{"header-empty"}},
		{"added stuff", []string{"header-format"}},
		{"feature: add", []string{"type-enum"}},
		{"feat: ", []string{"subject-empty"}},
		{"feat: subject\nbody right away", []string{"body-leading-blank"}},
		{"feat: " + strings.Repeat("x", 100), []string{"header-max-length"}},
		{"Feat: x", []string{"type-enum"}},
		{"feat:subject", []string{"header-format"}},
		{"feat(api):subject", []string{"header-format"}},
	}

	for _, tt := range tests {
		err := defaultRules.Lint(tt.msg)
		require.Error(t, err, tt.msg)
		assert.Equal(t, tt.want, rules(Violations(err)), tt.msg)
	}
}

func TestLint_Scopes(t *testing.T) {
	r := defaultRules
	r.Scopes = []string{"hooks", "sync"}

	assert.NoError(t, r.Lint("fix(hooks): x"))
	assert.NoError(t, r.Lint("fix: no scope is fine"))

	err := r.Lint("fix(hooks, cursor): x")
	require.Error(t, err)
	v := Violations(err)
	require.Len(t, v, 1)
	assert.Equal(t, `scope "cursor" must be one of [hooks, sync]`, v[0].Message)
	assert.Contains(t, err.Error(), "scope-enum")
}

func TestParseHeader(t *testing.T) {
	h, ok := ParseHeader("feat(api, cli)!: drop v1")
	require.True(t, ok)
	assert.Equal(t, "feat", h.Type)
	assert.Equal(t, []string{"api", "cli"}, h.Scopes)
	assert.True(t, h.Breaking)
	assert.Equal(t, "drop v1", h.Subject)

	_, ok = ParseHeader("no colon here")
	assert.False(t, ok)
}

func TestClean(t *testing.T) {
	assert.Equal(t, "feat: x\n\nbody", Clean("feat: x  \n\nbody\n\n# comment\n"))
	assert.Equal(t, "a\nb", Clean("a\r\nb"))
}
