package cursor

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchDebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	fired := make(chan struct{}, 10)
	done := make(chan error, 1)

	go func() {
		done <- Watch(ctx, dir, 50*time.Millisecond, func() {
			runs.Add(1)
			fired <- struct{}{}
		})
	}()

	// The watcher registers asynchronously; keep touching files until it reacts.
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	i := 0
loop:
	for {
		select {
		case <-fired:
			break loop
		case <-ticker.C:
			i++
			require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte{byte(i)}, 0o644))
		case <-deadline:
			t.Fatal("watch never triggered")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(1))
}

func TestWatchMissingDir(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "missing"), time.Millisecond, func() {})
	assert.Error(t, err)
}
