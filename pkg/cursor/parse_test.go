package cursor

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSkill(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		file     string
		content  string
		expected SkillDoc
	}{
		{
			name:    "frontmatter",
			file:    "skills/gh-review/SKILL.md",
			content: "---\nname: gh-review\ndescription: Review PRs\n---\nBody\n",
			expected: SkillDoc{
				Name:        "gh-review",
				Description: "Review PRs",
				Body:        "Body",
			},
		},
		{
			name:    "missing fields fall back to directory",
			file:    "skills/data-tools/SKILL.md",
			content: "---\nauthor: me\n---\nBody\n",
			expected: SkillDoc{
				Name:        "Data Tools",
				Description: "Skill for data-tools",
				Body:        "Body",
			},
		},
		{
			name:    "broken yaml uses line matching",
			file:    "skills/broken/SKILL.md",
			content: "---\nname: broken\ndescription: Uses: colons: everywhere\nversion: 2\n---\nBody\n",
			expected: SkillDoc{
				Name:        "broken",
				Description: "Uses: colons: everywhere",
				Version:     "2",
				Body:        "Body",
			},
		},
		{
			name:    "no frontmatter uses leading heading",
			file:    "skills/x/SKILL.md",
			content: "# Real Title\ntext\n",
			expected: SkillDoc{
				Name:        "Real Title",
				Description: "This skill provides guidance for real title",
				Body:        "# Real Title\ntext",
			},
		},
		{
			name:    "heading after intro is ignored",
			file:    "skills/api-guide/SKILL.md",
			content: "Intro\n# Later\n",
			expected: SkillDoc{
				Name:        "Api Guide",
				Description: "This skill provides guidance for api guide",
				Body:        "Intro\n# Later",
			},
		},
		{
			name:    "no frontmatter no heading uses file stem",
			file:    "skills/solidity-tips.md",
			content: "just text\n",
			expected: SkillDoc{
				Name:        "Solidity Tips",
				Description: "This skill provides guidance for solidity tips",
				Body:        "just text",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), filepath.FromSlash(tt.file))
			writeFile(t, path, tt.content)

			doc, err := ParseSkill(ctx, path)
			require.NoError(t, err)
			tt.expected.Path = path
			assert.Equal(t, tt.expected, *doc)
		})
	}
}

func TestParseReference(t *testing.T) {
	dir := t.TempDir()

	withDesc := filepath.Join(dir, "gas-costs.md")
	writeFile(t, withDesc, "---\ndescription: Gas table\n---\n\nTable here\n")
	ref, err := ParseReference(withDesc, "Eth", "web3")
	require.NoError(t, err)
	assert.Equal(t, "Gas table", ref.Description)
	assert.Equal(t, "Table here", ref.Body)

	plain := filepath.Join(dir, "call_graph.md")
	writeFile(t, plain, "Plain body\n")
	ref, err = ParseReference(plain, "Eth", "web3")
	require.NoError(t, err)
	assert.Equal(t, "Detailed reference for call graph (Eth skill)", ref.Description)
	assert.Equal(t, "Plain body", ref.Body)
}

func TestAgentAndScriptSummaries(t *testing.T) {
	assert.Equal(t, "Heading", agentSummary("intro\n# Heading\n"))
	assert.Equal(t, "first line", agentSummary("\n\n  first line  \nsecond"))
	assert.Len(t, []rune(agentSummary(strings.Repeat("é", 100))), 80)
	assert.Equal(t, "Agent prompt", agentSummary("  \n"))

	assert.Equal(t, "Does things.", scriptSummary("\"\"\"\n  Does things.\n  More.\n\"\"\""))
	assert.Equal(t, "No description available", scriptSummary("print(1)"))
}
