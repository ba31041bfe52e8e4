package audit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memUploader struct {
	keys []string
	data [][]byte
	err  error
}

func (m *memUploader) Upload(_ context.Context, key string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.keys = append(m.keys, key)
	m.data = append(m.data, data)
	return nil
}

func (m *memUploader) Location(key string) string { return "mem://" + key }

func TestNewEntry(t *testing.T) {
	t.Setenv("USER", "ada")
	t.Setenv("CI_JOB_ID", "")

	e := NewEntry("rollback_started", "51.15.0.1", "started")
	_, err := uuid.Parse(e.ID)
	require.NoError(t, err)
	ts, err := time.Parse(time.RFC3339, e.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)
	assert.Equal(t, "ada", e.User)
	assert.Equal(t, "manual", e.CIJobID)
	assert.True(t, strings.HasSuffix(e.Timestamp, "Z"))
}

func TestLog_AppendKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rollback-audit-staging.json")
	l := NewLog(path)
	ctx := context.Background()

	first := NewEntry("rollback_started", "h", "started")
	second := NewEntry("rollback_completed", "h", "success")
	second.Details["final_status"] = "success"
	require.NoError(t, l.Append(ctx, first))
	require.NoError(t, l.Append(ctx, second))

	entries, err := l.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.ID, entries[0].ID)
	assert.Equal(t, "success", entries[1].Details["final_status"])
}

func TestLog_CorruptFileIsKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy-audit.json")
	seeded := []byte(`[{"id":"1","action":"deploy","status":"success"},]`)
	require.NoError(t, os.WriteFile(path, seeded, 0o644))

	l := NewLog(path)
	err := l.Append(context.Background(), NewEntry("rollback", "h", "started"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, seeded, data)
}

func TestLog_Uploads(t *testing.T) {
	up := &memUploader{}
	l := NewLog(filepath.Join(t.TempDir(), "a.json"), WithUploader(up, "rollback"))

	require.NoError(t, l.Append(context.Background(), NewEntry("rollback_started", "10.0.0.1", "started")))
	require.Len(t, up.keys, 1)
	assert.Equal(t, ObjectKey("rollback", "10.0.0.1", time.Now()), up.keys[0])
	assert.Contains(t, string(up.data[0]), `"action": "rollback_started"`)
}

func TestLog_UploadFailureIsNotFatal(t *testing.T) {
	up := &memUploader{err: errors.New("bucket gone")}
	l := NewLog(filepath.Join(t.TempDir(), "a.json"), WithUploader(up, "rollback"))
	require.NoError(t, l.Append(context.Background(), NewEntry("x", "h", "s")))

	entries, err := l.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestObjectKey(t *testing.T) {
	ts := time.Date(2026, 1, 9, 23, 30, 0, 0, time.FixedZone("X", -2*60*60))
	assert.Equal(t, "rollback/h/2026/01/10/audit.json", ObjectKey("rollback", "h", ts))
}

func TestEntries_Missing(t *testing.T) {
	entries, err := NewLog(filepath.Join(t.TempDir(), "none.json")).Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestS3Uploader(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			gotPath = r.URL.Path
			body, _ := io.ReadAll(r.Body)
			gotBody = string(body)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	up, err := NewS3Uploader(srv.URL, "fr-par", "ak", "sk", "audit-logs")
	require.NoError(t, err)
	assert.Equal(t, "s3://audit-logs/rollback/h/audit.json", up.Location("rollback/h/audit.json"))

	require.NoError(t, up.Upload(context.Background(), "rollback/h/audit.json", []byte(`{"a":1}`)))
	assert.Equal(t, "/audit-logs/rollback/h/audit.json", gotPath)
	assert.Contains(t, gotBody, `{"a":1}`)

	_, err = NewS3Uploader(srv.URL, "fr-par", "ak", "sk", "")
	assert.Error(t, err)
}
