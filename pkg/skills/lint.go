package skills

import (
	"github.com/hashicorp/go-multierror"
)

// Problem is a single lint finding for a skill file.
type Problem struct {
	Path    string
	Message string
}

func (p Problem) Error() string {
	return p.Path + ": " + p.Message
}

// Lint checks every skill found under roots. It returns how many skill files
// were checked and a *multierror.Error of Problems when any are found.
func Lint(roots ...string) (int, error) {
	var result *multierror.Error
	checked := 0

	for _, root := range roots {
		dirs, err := FindSkillDirs(root)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}

		for _, dir := range dirs {
			path, _ := FindSkillFile(dir)
			checked++
			for _, problem := range lintFile(path) {
				result = multierror.Append(result, problem)
			}
		}
	}

	return checked, result.ErrorOrNil()
}

func lintFile(path string) []Problem {
	skill, err := ParseFile(path)
	if err != nil {
		return []Problem{{Path: path, Message: err.Error()}}
	}

	var problems []Problem
	if skill.Name == "" {
		problems = append(problems, Problem{Path: path, Message: "missing required frontmatter field 'name'"})
	} else if !IsKebabCase(skill.Name) {
		problems = append(problems, Problem{Path: path, Message: "name '" + skill.Name + "' is not kebab-case"})
	}
	if skill.Description == "" {
		problems = append(problems, Problem{Path: path, Message: "missing required frontmatter field 'description'"})
	}
	return problems
}
