// Package commitlint checks commit messages against the conventional
// commit header format and the repository's type and scope tables.
package commitlint

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var headerRe = regexp.MustCompile(`^(?P<type>[a-zA-Z]+)(?:\((?P<scope>[^()]*)\))?(?P<breaking>!)?(?:: (?P<subject>.*)|:)$`)

// passthroughPrefixes mark headers git generates itself
var passthroughPrefixes = []string{"Merge ", "Revert ", "fixup! ", "squash! ", "amend! "}

// Rules is the allowed type and scope table
type Rules struct {
	Types           []string
	Scopes          []string // empty allows any scope
	MaxHeaderLength int
}

// Header is a parsed conventional commit header
type Header struct {
	Type     string
	Scopes   []string
	Breaking bool
	Subject  string
}

// Violation is one rule a commit message breaks
type Violation struct {
	Rule    string
	Message string
}

func (v Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Message)
}

// Clean strips comment lines and trailing blank lines the way git does
// before recording the message
func Clean(message string) string {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(message, "\r\n", "\n"), "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, strings.TrimRight(line, " \t"))
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

// ParseHeader splits the first line of a message into its parts
func ParseHeader(line string) (*Header, bool) {
	m := headerRe.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	h := &Header{
		Type:     m[headerRe.SubexpIndex("type")],
		Breaking: m[headerRe.SubexpIndex("breaking")] != "",
		Subject:  strings.TrimSpace(m[headerRe.SubexpIndex("subject")]),
	}
	if scope := m[headerRe.SubexpIndex("scope")]; scope != "" {
		for _, s := range strings.Split(scope, ",") {
			h.Scopes = append(h.Scopes, strings.TrimSpace(s))
		}
	}
	return h, true
}

// Lint returns nil when message is acceptable, otherwise a
// *multierror.Error whose entries are Violations
func (r Rules) Lint(message string) error {
	message = Clean(message)
	if message == "" {
		return multierror.Append(nil, Violation{Rule: "header-empty", Message: "commit message is empty"})
	}

	lines := strings.Split(message, "\n")
	header := lines[0]

	for _, p := range passthroughPrefixes {
		if strings.HasPrefix(header, p) {
			return nil
		}
	}

	var result *multierror.Error

	if r.MaxHeaderLength > 0 && len([]rune(header)) > r.MaxHeaderLength {
		result = multierror.Append(result, Violation{
			Rule:    "header-max-length",
			Message: fmt.Sprintf("header must not be longer than %d characters, current length is %d", r.MaxHeaderLength, len([]rune(header))),
		})
	}

	if len(lines) > 1 && strings.TrimSpace(lines[1]) != "" {
		result = multierror.Append(result, Violation{Rule: "body-leading-blank", Message: "body must have leading blank line"})
	}

	h, ok := ParseHeader(header)
	if !ok {
		result = multierror.Append(result, Violation{
			Rule:    "header-format",
			Message: fmt.Sprintf("header %q must match type(scope): subject", header),
		})
		return result.ErrorOrNil()
	}

	if len(r.Types) > 0 && !slices.Contains(r.Types, h.Type) {
		result = multierror.Append(result, Violation{
			Rule:    "type-enum",
			Message: fmt.Sprintf("type %q must be one of [%s]", h.Type, strings.Join(r.Types, ", ")),
		})
	}

	if len(r.Scopes) > 0 {
		for _, s := range h.Scopes {
			if !slices.Contains(r.Scopes, s) {
				result = multierror.Append(result, Violation{
					Rule:    "scope-enum",
					Message: fmt.Sprintf("scope %q must be one of [%s]", s, strings.Join(r.Scopes, ", ")),
				})
			}
		}
	}

	if h.Subject == "" {
		result = multierror.Append(result, Violation{Rule: "subject-empty", Message: "subject may not be empty"})
	}

	return result.ErrorOrNil()
}

// Violations flattens the error returned by Lint
func Violations(err error) []Violation {
	merr, ok := err.(*multierror.Error)
	if !ok || merr == nil {
		return nil
	}
	out := make([]Violation, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		if v, ok := e.(Violation); ok {
			out = append(out, v)
		}
	}
	return out
}
