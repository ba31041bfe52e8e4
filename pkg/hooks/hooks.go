// Package hooks implements the Claude Code hook handlers shipped with
// claudine. Each handler reads the event JSON from stdin and writes its
// response JSON to stdout; together they turn skill usage into written
// learnings once the user signals the work is done.
package hooks

import (
	"context"
	"encoding/json"
	"io"
	"sort"

	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/pkg/errors"
)

// HookType is the Claude Code event a handler is registered for
type HookType string

// Hook events handled by claudine
const (
	HookTypePostToolUse      HookType = "PostToolUse"
	HookTypeUserPromptSubmit HookType = "UserPromptSubmit"
	HookTypeSessionEnd       HookType = "SessionEnd"
)

// Handler processes one hook invocation. A nil Output means the hook
// prints nothing.
type Handler interface {
	Name() string
	Event() HookType
	Handle(ctx context.Context, input []byte) (*Output, error)
}

// Registry holds the named handlers
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// DefaultRegistry returns the skill-learning handlers sharing one marker store
func DefaultRegistry(store *MarkerStore) *Registry {
	r := NewRegistry()
	r.Register(NewSkillLearningHandler(store))
	r.Register(NewTriggerHandler(store))
	r.Register(NewCleanupHandler(store))
	return r
}

// Register adds a handler to the registry
func (r *Registry) Register(h Handler) {
	r.handlers[h.Name()] = h
}

// Get retrieves a handler by name
func (r *Registry) Get(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered handler names in order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the named handler with stdin as input and writes its output
func (r *Registry) Run(ctx context.Context, name string, stdin io.Reader, stdout io.Writer) error {
	h, ok := r.Get(name)
	if !ok {
		return errors.Errorf("unknown hook %q", name)
	}

	input, err := io.ReadAll(stdin)
	if err != nil {
		return errors.Wrap(err, "failed to read hook input")
	}

	out, err := h.Handle(ctx, input)
	if err != nil {
		return errors.Wrapf(err, "hook %s failed", name)
	}
	if out == nil {
		logger.G(ctx).WithField("hook", name).Debug("hook produced no output")
		return nil
	}

	data, err := json.Marshal(out)
	if err != nil {
		return errors.Wrap(err, "failed to marshal hook output")
	}
	_, err = stdout.Write(append(data, '\n'))
	return err
}
