package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/claudine-dev/claudine/pkg/logger"
)

var magicPhrases = []*regexp.Regexp{
	regexp.MustCompile(`\blooks?\s+good\b`),
	regexp.MustCompile(`\bdone\b`),
	regexp.MustCompile(`\bship\s+it\b`),
	regexp.MustCompile(`\blgtm\b`),
	regexp.MustCompile(`\bperfect\b`),
	regexp.MustCompile(`\bgreat\b`),
	regexp.MustCompile(`\bawesome\b`),
	regexp.MustCompile(`\ball\s+good\b`),
	regexp.MustCompile(`\bwe'?re\s+done\b`),
	regexp.MustCompile(`\bthat'?s\s+it\b`),
	regexp.MustCompile(`\bfinished\b`),
	regexp.MustCompile(`\bcomplete\b`),
	regexp.MustCompile(`\bapproved\b`),
}

// HasMagicPhrase reports whether the prompt signals the user is satisfied
func HasMagicPhrase(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, re := range magicPhrases {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// TriggerHandler turns pending skills into a learning request once the user
// approves the work
type TriggerHandler struct {
	store *MarkerStore
}

// NewTriggerHandler creates the UserPromptSubmit handler
func NewTriggerHandler(store *MarkerStore) *TriggerHandler {
	return &TriggerHandler{store: store}
}

// Name returns the hook name
func (h *TriggerHandler) Name() string { return "skill-learning-trigger" }

// Event returns the hook event
func (h *TriggerHandler) Event() HookType { return HookTypeUserPromptSubmit }

// Handle checks the prompt for a magic phrase and consumes the marker
func (h *TriggerHandler) Handle(ctx context.Context, input []byte) (*Output, error) {
	var payload UserPromptSubmitPayload
	if err := json.Unmarshal(input, &payload); err != nil {
		logger.G(ctx).WithError(err).Debug("ignoring malformed UserPromptSubmit payload")
		return nil, nil
	}

	if !h.store.Exists() || payload.Prompt == "" || !HasMagicPhrase(payload.Prompt) {
		return &Output{}, nil
	}

	pending, err := h.store.TakePending()
	if err != nil {
		logger.G(ctx).WithError(err).Debug("marker file is not valid JSON")
		return &Output{}, nil
	}
	if len(pending) == 0 {
		return &Output{}, nil
	}

	return &Output{SystemMessage: triggerMessage(pending)}, nil
}

func triggerMessage(pending []PendingSkill) string {
	names := make([]string, len(pending))
	lines := make([]string, len(pending))
	for i, p := range pending {
		name := p.SkillName
		if name == "" {
			name = "unknown"
		}
		names[i] = fmt.Sprintf("'%s'", name)
		lines[i] = fmt.Sprintf("- '%s' -> %s", name, p.LearningsPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The user has indicated satisfaction. %d skill(s) pending: %s.\n\n", len(pending), strings.Join(names, ", "))
	b.WriteString("NOW CREATE LEARNING SUMMARIES for each skill:\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\nFor EACH skill, create the learnings directory if needed, then write a file with this format:\n\n")
	b.WriteString("```markdown\n")
	b.WriteString(learningTemplate)
	b.WriteString("[Brief explanation of the situation and what led to these learnings]\n```\n\n")
	b.WriteString("Base each learning on what was accomplished with that specific skill.")
	return b.String()
}
