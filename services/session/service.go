package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/r0mbeg/multibank/models"
)

var (
	// ErrNoSession is returned when a profile is set while logged out.
	ErrNoSession = errors.New("no active session")
)

const snapshotFile = "session.json"

// Service is the single source of truth for "am I logged in, as whom, until
// when". Token, expiry and profile are replaced as one unit under the lock,
// so readers never observe a token with a stale expiry.
//
// The service itself performs no network I/O. Its only side effect is a
// persisted snapshot so a restart restores the session without
// re-authenticating.
type Service struct {
	mu      sync.RWMutex
	fs      afero.Fs
	path    string
	current models.Session
	now     func() time.Time
}

// Option configures optional Service behavior.
type Option func(*Service)

// WithClock sets the time source (primarily for testing).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithFs sets the filesystem used for snapshot persistence.
func WithFs(fs afero.Fs) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// NewService creates a session store persisting its snapshot inside
// storageDir. If storageDir is empty the session lives in memory only.
// A snapshot restored from disk is discarded when already expired.
func NewService(storageDir string, opts ...Option) (*Service, error) {
	svc := &Service{
		fs:  afero.NewOsFs(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}

	if strings.TrimSpace(storageDir) != "" {
		if err := svc.fs.MkdirAll(storageDir, 0o755); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
		svc.path = filepath.Join(storageDir, snapshotFile)

		if err := svc.load(); err != nil {
			return nil, err
		}
	}

	return svc, nil
}

// Login replaces the session wholesale: the new token, an absolute expiry
// computed from the backend's expires_in seconds, and optionally the user.
// The profile usually arrives later via SetUser — login with a nil user is
// the normal path.
func (s *Service) Login(token string, expiresIn int64, user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = models.Session{
		Token:     token,
		ExpiresAt: s.now().Add(time.Duration(expiresIn) * time.Second),
		User:      user,
	}
	_ = s.saveLocked()
}

// SetUser merges a fetched profile into the current session. Token and
// expiry are untouched. Setting a profile with no active session is refused
// so a profile can never outlive its token.
func (s *Service) SetUser(user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Token == "" {
		return ErrNoSession
	}
	s.current.User = &user
	return s.saveLocked()
}

// Logout clears token, expiry and profile as one unit. Idempotent.
func (s *Service) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = models.Session{}
	_ = s.saveLocked()
}

// Valid reports whether a token is present and not yet expired. Pure read:
// an expired session is not cleared here — only a backend 401 forces logout.
func (s *Service) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current.Token != "" && s.now().Before(s.current.ExpiresAt)
}

// Token returns the current bearer token, or empty when logged out. The
// gateway calls this immediately before every dispatch.
func (s *Service) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current.Token
}

// User returns a copy of the current profile, or nil when none is set.
func (s *Service) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current.User == nil {
		return nil
	}
	user := *s.current.User
	return &user
}

// Session returns a snapshot of the whole session state.
func (s *Service) Session() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.current
	if s.current.User != nil {
		user := *s.current.User
		snapshot.User = &user
	}
	return snapshot
}

// load restores the persisted snapshot, skipping empty or expired sessions.
func (s *Service) load() error {
	exists, err := afero.Exists(s.fs, s.path)
	if err != nil {
		return fmt.Errorf("stat session file: %w", err)
	}
	if !exists {
		return nil // No snapshot yet, start logged out
	}

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return fmt.Errorf("read session file: %w", err)
	}

	var stored models.Session
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}

	if stored.Token == "" || !s.now().Before(stored.ExpiresAt) {
		return nil // Stale snapshot, stay logged out
	}

	s.current = stored
	return nil
}

// saveLocked writes the snapshot. Must be called with mu held.
func (s *Service) saveLocked() error {
	if s.path == "" {
		return nil // No persistence configured
	}

	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	// Write to temp file first, then rename (atomic write)
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session temp file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("replace session file: %w", err)
	}

	return nil
}
