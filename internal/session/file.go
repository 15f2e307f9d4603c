package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// FileStore keeps sessions in memory and mirrors the whole table to a JSON
// document on every mutation. The mutex covers the full
// read-modify-write-persist span, so the persisted image is never torn and
// concurrent joins cannot lose each other's entries.
type FileStore struct {
	mu       sync.Mutex
	path     string
	sessions map[string]*Session
}

// NewFileStore loads the table persisted at path. A missing or unparseable
// document is not an error: the store starts empty.
func NewFileStore(path string) *FileStore {
	sessions := make(map[string]*Session)
	if raw, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(raw, &sessions); err != nil {
			log.Printf("ignoring unparseable session file %s: %v", path, err)
			sessions = make(map[string]*Session)
		}
	}
	return &FileStore{path: path, sessions: sessions}
}

func (s *FileStore) RecordJoin(_ context.Context, username, profileID, serverID string, now time.Time) error {
	username = strings.ToLower(username)
	nowSecs := now.Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Eviction is lazy: one full prune pass per write, no background timer.
	for _, sess := range s.sessions {
		for server, ts := range sess.Servers {
			if nowSecs-ts > int64(Window/time.Second) {
				delete(sess.Servers, server)
			}
		}
	}

	sess, ok := s.sessions[username]
	if !ok {
		sess = &Session{ProfileID: profileID, Servers: make(map[string]int64)}
		s.sessions[username] = sess
	}
	sess.Servers[serverID] = nowSecs

	return s.persist()
}

func (s *FileStore) CheckJoin(_ context.Context, username, serverID string, now time.Time) (string, bool, error) {
	username = strings.ToLower(username)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[username]
	if !ok {
		return "", false, nil
	}
	ts, ok := sess.Servers[serverID]
	if !ok {
		return "", false, nil
	}
	if now.Unix()-ts > int64(Window/time.Second) {
		return "", false, nil
	}
	return sess.ProfileID, true, nil
}

// persist rewrites the whole document. Called with the lock held.
func (s *FileStore) persist() error {
	raw, err := json.Marshal(s.sessions)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("write sessions file: %w", err)
	}
	return nil
}
