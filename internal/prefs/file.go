package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

const (
	// defaultLockTimeout bounds how long one Get or Set waits for the
	// cross-process lock. A peer holding the lock past this is treated as a
	// state-store failure, not a reason to wedge every handler.
	defaultLockTimeout = 5 * time.Second

	lockRetryDelay = 50 * time.Millisecond
)

// FileStore implements Store over a single JSON document.
//
// Layout: top-level map from stringified user ID to Record. The companion
// <path>.lock file is held exclusively for the whole span of every Get and
// Set, across processes (flock) and goroutines (mutex), so readers never see
// a partially written document and no field update is lost.
type FileStore struct {
	path        string
	lock        *flock.Flock
	lockTimeout time.Duration
	mu          sync.Mutex
	logger      *zap.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed store at path. The parent directory is
// created if needed; the document itself is created lazily on first Set.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("prefs: path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("prefs: creating state directory: %w", err)
	}

	return &FileStore{
		path:        path,
		lock:        flock.New(path + ".lock"),
		lockTimeout: defaultLockTimeout,
		logger:      logger,
	}, nil
}

// acquire takes the cross-process lock, giving up after the store's timeout.
func (s *FileStore) acquire(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return err
	}
	if !locked {
		return fmt.Errorf("lock not acquired within %s", s.lockTimeout)
	}
	return nil
}

// Get returns the user's record, or defaults when the user is unknown or the
// document is unreadable. A corrupt state file must never block all users.
func (s *FileStore) Get(ctx context.Context, userID int64) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquire(ctx); err != nil {
		s.logger.Warn("prefs lock failed, serving defaults",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return DefaultRecord()
	}
	defer s.unlock()

	states := s.load()
	if rec, ok := states[strconv.FormatInt(userID, 10)]; ok {
		return rec
	}
	return DefaultRecord()
}

// Set merges the supplied fields into the user's record and atomically
// replaces the whole document.
func (s *FileStore) Set(ctx context.Context, userID int64, update Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquire(ctx); err != nil {
		return fmt.Errorf("prefs: acquiring lock: %w", err)
	}
	defer s.unlock()

	states := s.load()

	key := strconv.FormatInt(userID, 10)
	rec, ok := states[key]
	if !ok {
		rec = DefaultRecord()
	}

	if update.ActiveProject != nil {
		rec.ActiveProject = *update.ActiveProject
	}
	if update.Language != nil {
		rec.Language = *update.Language
	}
	if update.MainTopic != nil {
		rec.MainTopic = *update.MainTopic
	}
	states[key] = rec

	return s.save(states)
}

func (s *FileStore) unlock() {
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("prefs unlock failed", zap.Error(err))
	}
}

// load reads the document. Absent or corrupt files degrade to an empty map.
func (s *FileStore) load() map[string]Record {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("prefs read failed, starting from defaults", zap.Error(err))
		}
		return map[string]Record{}
	}

	var states map[string]Record
	if err := json.Unmarshal(data, &states); err != nil {
		s.logger.Warn("prefs document corrupt, starting from defaults", zap.Error(err))
		return map[string]Record{}
	}
	if states == nil {
		states = map[string]Record{}
	}
	return states
}

// save replaces the document all-or-nothing via temp file + rename.
func (s *FileStore) save(states map[string]Record) error {
	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return fmt.Errorf("prefs: marshaling: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("prefs: writing temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("prefs: replacing document: %w", err)
	}
	return nil
}
