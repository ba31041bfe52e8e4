package hooks

// BasePayload contains fields common to all hook payloads
type BasePayload struct {
	SessionID      string   `json:"session_id"`
	TranscriptPath string   `json:"transcript_path"`
	CWD            string   `json:"cwd"`
	HookEventName  HookType `json:"hook_event_name"`
}

// SkillToolInput is the tool_input of a Skill tool call
type SkillToolInput struct {
	Skill string `json:"skill"`
}

// PostToolUsePayload is sent after a tool call completes
type PostToolUsePayload struct {
	BasePayload
	ToolName  string         `json:"tool_name"`
	ToolInput SkillToolInput `json:"tool_input"`
}

// UserPromptSubmitPayload is sent when the user submits a prompt
type UserPromptSubmitPayload struct {
	BasePayload
	Prompt string `json:"prompt"`
}

// SessionEndPayload is sent when the session ends
type SessionEndPayload struct {
	BasePayload
	Reason string `json:"reason"`
}

// Output is the JSON a hook prints. The zero value prints as {}.
type Output struct {
	SystemMessage      string              `json:"systemMessage,omitempty"`
	HookSpecificOutput *HookSpecificOutput `json:"hookSpecificOutput,omitempty"`
}

// HookSpecificOutput carries context injected into the conversation
type HookSpecificOutput struct {
	HookEventName     HookType `json:"hookEventName,omitempty"`
	AdditionalContext string   `json:"additionalContext"`
}

// PendingSkill is one entry of the pending-learning marker file
type PendingSkill struct {
	SkillName     string `json:"skill_name"`
	LearningsPath string `json:"learnings_path"`
	Timestamp     string `json:"timestamp,omitempty"`
}
