package hooks

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
)

// MarkerFileName is the pending-learning marker under ~/.claude
const MarkerFileName = ".pending-skill-learning.json"

// MarkerStore persists the skills awaiting a learning summary. The file
// holds either a single object or a list of objects.
type MarkerStore struct {
	path string
	mu   sync.Mutex
}

// NewMarkerStore creates a store backed by the given file
func NewMarkerStore(path string) *MarkerStore {
	return &MarkerStore{path: path}
}

// DefaultMarkerStore returns the store at ~/.claude/.pending-skill-learning.json
func DefaultMarkerStore() (*MarkerStore, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user home directory")
	}
	return NewMarkerStore(filepath.Join(homeDir, ".claude", MarkerFileName)), nil
}

// Path returns the marker file location
func (s *MarkerStore) Path() string {
	return s.path
}

// Exists reports whether the marker file is present and not empty
func (s *MarkerStore) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && info.Size() > 0
}

// Add records a pending skill, replacing an earlier entry for the same skill
func (s *MarkerStore) Add(entry PendingSkill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create marker directory")
	}

	return lockedfile.Transform(s.path, func(data []byte) ([]byte, error) {
		pending, err := decodePending(data)
		if err != nil {
			logger.L.WithError(err).Warn("failed to parse existing marker, starting over")
			pending = nil
		}

		kept := pending[:0]
		for _, p := range pending {
			if p.SkillName != entry.SkillName {
				kept = append(kept, p)
			}
		}
		kept = append(kept, entry)

		result, err := json.MarshalIndent(kept, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal marker")
		}
		return result, nil
	})
}

// Load reads the pending skills. A missing file yields an empty list.
func (s *MarkerStore) Load() ([]PendingSkill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *MarkerStore) load() ([]PendingSkill, error) {
	data, err := lockedfile.Read(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read marker file")
	}
	return decodePending(data)
}

// Take reads the pending skills and empties the marker under one file
// lock, so a skill added concurrently is either returned or kept. A marker
// that cannot be parsed is still emptied and reported as empty.
func (s *MarkerStore) Take() ([]PendingSkill, error) {
	return s.take(true)
}

// TakePending is Take for a marker that holds pending skills. An empty or
// unreadable marker is left in place.
func (s *MarkerStore) TakePending() ([]PendingSkill, error) {
	return s.take(false)
}

func (s *MarkerStore) take(discardInvalid bool) ([]PendingSkill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := lockedfile.OpenFile(s.path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to open marker file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read marker file")
	}
	pending, err := decodePending(data)
	if err != nil {
		if !discardInvalid {
			return nil, err
		}
		logger.L.WithError(err).Debug("discarding unreadable marker")
		pending = nil
	}
	if len(pending) == 0 && !discardInvalid {
		return nil, nil
	}

	// Emptied rather than removed: an Add waiting on this lock holds the same inode
	if err := f.Truncate(0); err != nil {
		return nil, errors.Wrap(err, "failed to empty marker file")
	}
	return pending, nil
}

func decodePending(data []byte) ([]PendingSkill, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '{' {
		var single PendingSkill
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, errors.Wrap(err, "invalid marker object")
		}
		return []PendingSkill{single}, nil
	}

	var list []PendingSkill
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, errors.Wrap(err, "invalid marker list")
	}
	return list, nil
}
