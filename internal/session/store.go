package session

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"exocal/internal/model"
)

// Persisted keys in the session_state table. Fixed names so any future
// client build reads the same state.
const (
	keyUserID      = "user_uid"
	keyRole        = "user_role"
	keyDisplayName = "user_display_name"
)

// Store holds the current session and persists it to the local database so
// it survives restarts. It is the single process-wide owner of session
// state: only the role resolver (via the auth watcher) and explicit
// sign-out write to it.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu      sync.Mutex
	current model.Session
	subs    map[int]func(model.Role)
	nextSub int
}

// NewStore creates a Store backed by db, loading any session persisted by a
// previous run.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	s := &Store{
		db:     db,
		logger: logger,
		subs:   make(map[int]func(model.Role)),
	}

	rows, err := db.Query(`SELECT key, value FROM session_state`)
	if err != nil {
		return nil, fmt.Errorf("load session state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan session state: %w", err)
		}
		switch key {
		case keyUserID:
			s.current.UserID = value
		case keyRole:
			s.current.Role = model.Role(value)
		case keyDisplayName:
			s.current.DisplayName = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load session state: %w", err)
	}

	return s, nil
}

// Set overwrites the whole session as one logical step: readers either see
// the previous triple or the new one, never a mix. An uploader role with an
// empty user ID is downgraded to viewer.
func (s *Store) Set(userID string, role model.Role, displayName string) error {
	if role.CanEdit() && userID == "" {
		s.logger.Warn("refusing uploader role without user id, downgrading to viewer")
		role = model.RoleViewer
	}

	s.mu.Lock()
	s.current = model.Session{UserID: userID, Role: role, DisplayName: displayName}
	fns := s.subscribers()
	s.mu.Unlock()

	if err := s.persist(userID, role, displayName); err != nil {
		s.logger.Error("persist session", "error", err)
	}

	for _, fn := range fns {
		fn(role)
	}
	return nil
}

// Clear removes the session; subsequent Role() reads return unauthenticated.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.current = model.Session{}
	fns := s.subscribers()
	s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM session_state`); err != nil {
		s.logger.Error("clear session state", "error", err)
	}

	for _, fn := range fns {
		fn(model.RoleUnauthenticated)
	}
	return nil
}

// Role returns the last written role.
func (s *Store) Role() model.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Role
}

// UserID returns the last written user identifier, or "" when signed out.
func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.UserID
}

// DisplayName returns the cached display name for the signed-in user.
func (s *Store) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.DisplayName
}

// Session returns a copy of the current session triple.
func (s *Store) Session() model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe registers fn to run after every session change with the new
// role. The returned cancel func removes the registration.
func (s *Store) Subscribe(fn func(model.Role)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// subscribers returns a snapshot of the callbacks. Caller must hold mu.
func (s *Store) subscribers() []func(model.Role) {
	fns := make([]func(model.Role), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return fns
}

func (s *Store) persist(userID string, role model.Role, displayName string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for key, value := range map[string]string{
		keyUserID:      userID,
		keyRole:        string(role),
		keyDisplayName: displayName,
	} {
		if _, err := tx.Exec(
			`INSERT INTO session_state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value,
		); err != nil {
			return fmt.Errorf("upsert %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
