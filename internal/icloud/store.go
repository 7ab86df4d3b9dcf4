package icloud

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/icebox-backup/icebox/internal/backup"
)

// SessionStore hands out remote capabilities per identity, loading each
// session from disk on first use. It implements backup.SessionProvider.
type SessionStore struct {
	dir string

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionStore(dir string) *SessionStore {
	return &SessionStore{dir: dir, sessions: make(map[string]*Session)}
}

var _ backup.SessionProvider = (*SessionStore)(nil)

func (s *SessionStore) session(identity string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[identity]; ok {
		return sess, nil
	}
	sess, err := LoadSession(s.dir, identity)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no session for %s: %w", identity, backup.ErrNoSession)
		}
		return nil, err
	}
	s.sessions[identity] = sess
	return sess, nil
}

func (s *SessionStore) Drive(ctx context.Context, identity string) (backup.DriveAPI, error) {
	sess, err := s.session(identity)
	if err != nil {
		return nil, err
	}
	return sess.Drive(), nil
}

func (s *SessionStore) Photos(ctx context.Context, identity string) (backup.PhotosAPI, error) {
	sess, err := s.session(identity)
	if err != nil {
		return nil, err
	}
	return sess.Photos(), nil
}

// Forget drops a cached session, forcing a reload on next use.
func (s *SessionStore) Forget(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, identity)
}
