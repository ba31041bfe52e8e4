// Package audit records deployment and rollback events as an append-only
// JSON array on disk, optionally mirroring each entry to object storage.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
)

// Entry is one audit record
type Entry struct {
	ID          string         `json:"id"`
	Timestamp   string         `json:"timestamp"`
	Action      string         `json:"action"`
	Host        string         `json:"host"`
	Image       string         `json:"image,omitempty"`
	Version     string         `json:"version,omitempty"`
	FromVersion string         `json:"from_version,omitempty"`
	ToVersion   string         `json:"to_version,omitempty"`
	Status      string         `json:"status"`
	Reason      string         `json:"reason,omitempty"`
	User        string         `json:"user"`
	CIJobID     string         `json:"ci_job_id"`
	Details     map[string]any `json:"details,omitempty"`
}

// NewEntry stamps a new entry with an id, the current UTC time and the
// invoking user and CI job
func NewEntry(action, host, status string) Entry {
	return Entry{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Action:    action,
		Host:      host,
		Status:    status,
		User:      envOr("USER", "unknown"),
		CIJobID:   envOr("CI_JOB_ID", "manual"),
		Details:   map[string]any{},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ErrCorrupt is returned when the existing log is not a JSON array. The file
// is left untouched.
var ErrCorrupt = errors.New("audit log is not a JSON array")

// Uploader mirrors entries to remote storage
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte) error
	Location(key string) string
}

// Log appends entries to a JSON array file
type Log struct {
	path     string
	uploader Uploader
	prefix   string
}

// Option configures a Log
type Option func(*Log)

// WithUploader mirrors every entry under prefix/<host>/<Y/m/d>/audit.json
func WithUploader(u Uploader, prefix string) Option {
	return func(l *Log) {
		l.uploader = u
		l.prefix = prefix
	}
}

// NewLog creates a Log writing to path
func NewLog(path string, opts ...Option) *Log {
	l := &Log{path: path}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the local log file
func (l *Log) Path() string {
	return l.path
}

// ObjectKey is the remote key an entry is mirrored to
func ObjectKey(prefix, host string, t time.Time) string {
	return fmt.Sprintf("%s/%s/%s/audit.json", prefix, host, t.UTC().Format("2006/01/02"))
}

// Append adds entry to the local file. Upload failures are logged and do
// not fail the call; an unparseable log fails it with ErrCorrupt.
func (l *Log) Append(ctx context.Context, entry Entry) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create audit log directory")
	}

	err := lockedfile.Transform(l.path, func(data []byte) ([]byte, error) {
		var entries []json.RawMessage
		if len(data) > 0 {
			if err := json.Unmarshal(data, &entries); err != nil {
				return nil, errors.Wrapf(ErrCorrupt, "%v", err)
			}
		}

		raw, err := json.Marshal(entry)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal audit entry")
		}
		entries = append(entries, raw)

		return json.MarshalIndent(entries, "", "  ")
	})
	if err != nil {
		return errors.Wrapf(err, "failed to write audit log %s", l.path)
	}
	logger.G(ctx).WithField("path", l.path).WithField("action", entry.Action).Debug("audit entry saved")

	if l.uploader != nil {
		key := ObjectKey(l.prefix, entry.Host, time.Now())
		data, err := json.MarshalIndent(entry, "", "  ")
		if err == nil {
			err = l.uploader.Upload(ctx, key, data)
		}
		if err != nil {
			logger.G(ctx).WithError(err).Warn("failed to upload audit entry")
		} else {
			logger.G(ctx).WithField("location", l.uploader.Location(key)).Info("audit entry uploaded")
		}
	}
	return nil
}

// Entries reads the log back
func (l *Log) Entries() ([]Entry, error) {
	data, err := lockedfile.Read(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read audit log")
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(err, "failed to parse audit log")
	}
	return entries, nil
}
