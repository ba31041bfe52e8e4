package cursor

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var docstringRe = regexp.MustCompile(`(?s)"""(.*?)"""`)

// Attachments are the optional sibling folders inlined into a skill rule.
type Attachments struct {
	Examples []string // examples/*.md
	Agents   []string // agents/*.md
	Scripts  []string // scripts/*.py
}

func ruleHeader(description string) []string {
	return []string{
		"---",
		"description: " + description,
		"alwaysApply: false",
		"---",
		"",
	}
}

// RenderSkill produces the .mdc rule for a skill.
func RenderSkill(doc *SkillDoc, att Attachments) (string, error) {
	lines := ruleHeader(doc.Description)
	lines = append(lines, "# "+doc.Name, "")

	if doc.Version != "" {
		lines = append(lines, "<!-- Version: "+doc.Version+" -->", "")
	}

	lines = append(lines, doc.Body)

	if len(att.Examples) > 0 {
		lines = append(lines, "", "---", "", "## Examples", "")
		for _, path := range att.Examples {
			content, err := os.ReadFile(path)
			if err != nil {
				return "", errors.Wrapf(err, "failed to read example %s", path)
			}
			lines = append(lines, "### "+displayName(stem(path)), "", strings.TrimSpace(string(content)), "")
		}
	}

	if len(att.Agents) > 0 {
		lines = append(lines, "", "---", "", "## Specialized Agents", "",
			"The following agent prompts are available for specialized tasks:", "")
		for _, path := range att.Agents {
			content, err := os.ReadFile(path)
			if err != nil {
				return "", errors.Wrapf(err, "failed to read agent %s", path)
			}
			lines = append(lines, "- **"+displayName(stem(path))+"**: "+agentSummary(string(content)))
		}
		lines = append(lines, "")
	}

	if len(att.Scripts) > 0 {
		lines = append(lines, "", "---", "", "## Available Scripts", "",
			"The following scripts are available in the marketplace but cannot be executed from Cursor rules:", "")
		for _, path := range att.Scripts {
			content, err := os.ReadFile(path)
			if err != nil {
				return "", errors.Wrapf(err, "failed to read script %s", path)
			}
			lines = append(lines, "- `"+filepath.Base(path)+"`: "+scriptSummary(string(content)))
		}
		lines = append(lines, "", "To use these scripts, run them via `uv run` from the marketplace directory.")
	}

	return strings.Join(lines, "\n"), nil
}

// RenderReference produces the .mdc rule for a reference ("reference") or an
// agent prompt ("agent").
func RenderReference(ref *ReferenceDoc, kind string) string {
	lines := ruleHeader(ref.Description)
	lines = append(lines,
		"# "+displayName(ref.Name),
		"",
		"_"+titleCase(kind)+" for "+ref.SkillName+" skill ("+ref.PluginName+" plugin)_",
		"",
		ref.Body,
	)
	return strings.Join(lines, "\n")
}

// agentSummary is the first heading of an agent prompt, else its first
// non-empty line cut to 80 characters.
func agentSummary(content string) string {
	if m := headingRe.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > 80 {
			return string(r[:80])
		}
		return line
	}
	return "Agent prompt"
}

// scriptSummary is the first line of the script's first docstring.
func scriptSummary(content string) string {
	m := docstringRe.FindStringSubmatch(content)
	if m == nil {
		return "No description available"
	}
	return strings.Split(strings.TrimSpace(m[1]), "\n")[0]
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
