package osutil

import (
	"context"
	"io"
	"strings"
	"sync"
)

// FakeRunner is a scripted Runner for tests. Responses are matched by the
// longest registered prefix of the command line; unmatched commands succeed
// with empty output.
type FakeRunner struct {
	mu        sync.Mutex
	calls     []Command
	responses map[string][]Result
	failures  map[string]error
	effects   map[string]func(Command)
}

// NewFakeRunner returns an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		responses: map[string][]Result{},
		failures:  map[string]error{},
		effects:   map[string]func(Command){},
	}
}

// On queues results for commands starting with prefix. The last queued
// result is repeated once the queue drains.
func (f *FakeRunner) On(prefix string, results ...Result) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[prefix] = append(f.responses[prefix], results...)
	return f
}

// Fail makes commands starting with prefix fail to start with err.
func (f *FakeRunner) Fail(prefix string, err error) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[prefix] = err
	return f
}

// Do runs fn for commands starting with prefix, before the result is
// returned. Tests use it to simulate side effects such as git creating files.
func (f *FakeRunner) Do(prefix string, fn func(Command)) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.effects[prefix] = fn
	return f
}

// Run records the call and replays the scripted result.
func (f *FakeRunner) Run(_ context.Context, c Command) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, c)
	line := c.String()

	if key, ok := longestPrefix(line, f.effects); ok {
		f.effects[key](c)
	}

	if key, ok := longestPrefix(line, f.failures); ok {
		return Result{ExitCode: -1}, f.failures[key]
	}

	var res Result
	if key, ok := longestPrefix(line, f.responses); ok {
		queue := f.responses[key]
		res = queue[0]
		if len(queue) > 1 {
			f.responses[key] = queue[1:]
		}
	}

	if c.Stdout != nil && res.Stdout != "" {
		_, _ = io.WriteString(c.Stdout, res.Stdout)
		res.Stdout = ""
	}
	if c.Stderr != nil && res.Stderr != "" {
		_, _ = io.WriteString(c.Stderr, res.Stderr)
		res.Stderr = ""
	}

	if res.ExitCode != 0 {
		return res, &ExitError{Command: line, Code: res.ExitCode, Stderr: res.Stderr}
	}
	return res, nil
}

// Calls returns the commands run so far.
func (f *FakeRunner) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.calls...)
}

// Lines returns the command lines run so far.
func (f *FakeRunner) Lines() []string {
	calls := f.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.String()
	}
	return lines
}

// Ran reports whether any command line started with prefix.
func (f *FakeRunner) Ran(prefix string) bool {
	for _, line := range f.Lines() {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func longestPrefix[T any](line string, m map[string]T) (string, bool) {
	best, found := "", false
	for key := range m {
		if strings.HasPrefix(line, key) && len(key) >= len(best) {
			best, found = key, true
		}
	}
	return best, found
}
