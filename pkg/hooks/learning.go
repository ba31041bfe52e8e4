package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/claudine-dev/claudine/pkg/logger"
)

const learningTemplate = `# Learning: [Brief title of what was learned]

## DO
- [Specific actionable advice to follow]
- [Another do item]

## DON'T
- [Specific pitfalls to avoid]
- [Another don't item]

## Context
`

// LearningsPath is where the learning summary for skill should be written
func LearningsPath(skill string, now time.Time) string {
	return fmt.Sprintf(".claude/skills/%s/learnings/%s.md", skill, now.Format("20060102_150405"))
}

// SkillName strips the plugin namespace from a skill reference
func SkillName(ref string) string {
	if i := strings.LastIndex(ref, ":"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// SkillLearningHandler asks for a learning summary right after a skill is used
type SkillLearningHandler struct {
	store *MarkerStore
	now   func() time.Time
}

// NewSkillLearningHandler creates the PostToolUse handler
func NewSkillLearningHandler(store *MarkerStore) *SkillLearningHandler {
	return &SkillLearningHandler{store: store, now: time.Now}
}

// Name returns the hook name
func (h *SkillLearningHandler) Name() string { return "skill-learning" }

// Event returns the hook event
func (h *SkillLearningHandler) Event() HookType { return HookTypePostToolUse }

// Handle emits the learning instructions for the skill in tool_input
func (h *SkillLearningHandler) Handle(ctx context.Context, input []byte) (*Output, error) {
	var payload PostToolUsePayload
	if err := json.Unmarshal(input, &payload); err != nil {
		logger.G(ctx).WithError(err).Debug("ignoring malformed PostToolUse payload")
		return nil, nil
	}

	ref := payload.ToolInput.Skill
	if ref == "" {
		return nil, nil
	}

	name := SkillName(ref)
	now := h.now()
	path := LearningsPath(name, now)

	if h.store != nil {
		entry := PendingSkill{
			SkillName:     name,
			LearningsPath: path,
			Timestamp:     now.Format(time.RFC3339),
		}
		if err := h.store.Add(entry); err != nil {
			logger.G(ctx).WithError(err).Warn("failed to record pending skill learning")
		}
	}

	msg := fmt.Sprintf("IMPORTANT: A skill was just used. Please create a learning summary file at '%s' with the following format:\n\n", path) +
		learningTemplate +
		"[Brief explanation of the situation that led to this learning]\n\n" +
		"First create the learnings directory if it doesn't exist, then write the learning file. " +
		"Base the content on what was just discussed/accomplished with the skill."

	return &Output{HookSpecificOutput: &HookSpecificOutput{AdditionalContext: msg}}, nil
}
