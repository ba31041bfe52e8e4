package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/claudine-dev/claudine/pkg/logger"
)

// CleanupHandler removes the marker when the session ends
type CleanupHandler struct {
	store *MarkerStore
}

// NewCleanupHandler creates the SessionEnd handler
func NewCleanupHandler(store *MarkerStore) *CleanupHandler {
	return &CleanupHandler{store: store}
}

// Name returns the hook name
func (h *CleanupHandler) Name() string { return "skill-learning-cleanup" }

// Event returns the hook event
func (h *CleanupHandler) Event() HookType { return HookTypeSessionEnd }

// Handle deletes the marker and reports the learnings that never got written
func (h *CleanupHandler) Handle(ctx context.Context, input []byte) (*Output, error) {
	var payload SessionEndPayload
	if err := json.Unmarshal(input, &payload); err != nil {
		logger.G(ctx).WithError(err).Debug("SessionEnd payload is not valid JSON")
	}

	if !h.store.Exists() {
		return &Output{}, nil
	}

	pending, err := h.store.Take()
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return &Output{}, nil
	}

	names := make([]string, len(pending))
	for i, p := range pending {
		names[i] = p.SkillName
		if names[i] == "" {
			names[i] = "unknown"
		}
	}

	logger.G(ctx).WithField("reason", payload.Reason).WithField("pending", len(pending)).Info("cleaned up pending skill learnings")

	return &Output{
		SystemMessage: fmt.Sprintf("Session ended with %d pending skill learning(s) (%s). Marker file cleaned up.",
			len(pending), strings.Join(names, ", ")),
	}, nil
}
