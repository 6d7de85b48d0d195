package auth

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/odyssey-erp/odyssey-console/internal/access"
)

// Listener is notified after the identity changes. A nil identity means the
// session was cleared.
type Listener func(identity *access.Identity, source access.Source)

// Snapshot is a point-in-time copy of the session.
type Snapshot struct {
	Identity *access.Identity `json:"user"`
	Token    string           `json:"-"`
	Loading  bool             `json:"loading"`
}

// Authenticated reports whether the snapshot carries an identity.
func (s Snapshot) Authenticated() bool {
	return s.Identity != nil
}

// Store is the single source of truth for who is logged in.
type Store struct {
	client  Authenticator
	storage Storage
	logger  *slog.Logger

	// writeMu serialises mutations and their notifications; mu guards fields.
	writeMu sync.Mutex
	mu      sync.RWMutex

	identity  *access.Identity
	token     string
	loading   bool
	settled   sync.Once
	listeners []Listener
}

// NewStore builds an empty store. It stays in the loading phase until
// Restore is called.
func NewStore(client Authenticator, storage Storage, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if storage == nil {
		storage = NewMemoryStorage()
	}
	return &Store{client: client, storage: storage, logger: logger, loading: true}
}

// Subscribe registers fn for identity changes. Listeners may read the
// store but must not mutate it.
func (s *Store) Subscribe(fn Listener) {
	if fn == nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Login authenticates against the backend and adopts the result. On failure
// the session is left unchanged. Concurrent logins on one store apply in
// completion order; coalescing across stores is the job of LoginGroup.
func (s *Store) Login(ctx context.Context, email, password string) (access.Identity, error) {
	email = strings.TrimSpace(email)
	result, err := s.client.Login(ctx, email, password)
	if err != nil {
		s.logger.Info("login failed", slog.String("email", email), slog.Any("error", err))
		return access.Identity{}, err
	}

	identity := s.admit(result.Identity)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.identity = identity
	s.token = result.Token
	s.mu.Unlock()
	s.settle()

	s.persist(*identity, result.Token)
	s.notify(identity, access.SourceLogin)
	return *identity.Clone(), nil
}

// Logout clears the session locally. The backend is notified on a best
// effort basis and its failure never prevents the local logout.
func (s *Store) Logout(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token != "" && s.client != nil {
		if err := s.client.Logout(ctx, token); err != nil {
			s.logger.Warn("remote logout", slog.Any("error", err))
		}
	}

	s.mu.Lock()
	s.identity = nil
	s.token = ""
	s.mu.Unlock()

	for _, key := range []string{KeyToken, KeyUserData} {
		if err := s.storage.Delete(key); err != nil {
			s.logger.Warn("clear persisted session", slog.String("key", key), slog.Any("error", err))
		}
	}
	s.notify(nil, access.SourceRefresh)
}

// Restore adopts a previously persisted session without contacting the
// backend. Storage problems are treated as "no persisted session". The
// loading phase ends after the first call whatever the outcome.
func (s *Store) Restore() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	token, identity, ok := s.readPersisted()
	if !ok {
		s.settle()
		return
	}
	admitted := s.admit(identity)

	s.mu.Lock()
	s.identity = admitted
	s.token = token
	s.mu.Unlock()
	s.settle()

	s.notify(admitted, access.SourceRestore)
}

// Refresh replaces the identity of a live session, for example after an
// entitlement change. It is a no-op when nobody is logged in.
func (s *Store) Refresh(identity access.Identity) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token == "" {
		return
	}
	admitted := s.admit(identity)

	s.mu.Lock()
	s.identity = admitted
	s.mu.Unlock()

	s.persist(*admitted, token)
	s.notify(admitted, access.SourceRefresh)
}

// HasModuleAccess reports whether the current identity may open key.
func (s *Store) HasModuleAccess(key string) bool {
	return s.Policy().HasModuleAccess(key)
}

// IsAdmin reports whether the current identity is an administrator.
func (s *Store) IsAdmin() bool {
	return s.Policy().IsAdmin()
}

// Policy returns an evaluator over the current identity.
func (s *Store) Policy() access.Evaluator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return access.NewEvaluator(s.identity)
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Identity: s.identity.Clone(), Token: s.token, Loading: s.loading}
}

// Loading reports whether Restore has not completed yet.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Store) settle() {
	s.settled.Do(func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	})
}

func (s *Store) admit(identity access.Identity) *access.Identity {
	normalized, dropped := identity.Normalize()
	if len(dropped) > 0 {
		s.logger.Warn("ignoring unknown module keys", slog.String("user_id", string(normalized.ID)), slog.Any("keys", dropped))
	}
	return &normalized
}

func (s *Store) readPersisted() (string, access.Identity, bool) {
	token, ok, err := s.storage.Get(KeyToken)
	if err != nil {
		s.logger.Warn("read persisted token", slog.Any("error", err))
		return "", access.Identity{}, false
	}
	if !ok || token == "" {
		return "", access.Identity{}, false
	}
	raw, ok, err := s.storage.Get(KeyUserData)
	if err != nil {
		s.logger.Warn("read persisted identity", slog.Any("error", err))
		return "", access.Identity{}, false
	}
	if !ok || raw == "" {
		return "", access.Identity{}, false
	}
	identity, err := decodeIdentity(raw)
	if err != nil {
		s.logger.Warn("decode persisted identity", slog.Any("error", err))
		return "", access.Identity{}, false
	}
	return token, identity, true
}

func (s *Store) persist(identity access.Identity, token string) {
	encoded, err := encodeIdentity(identity)
	if err != nil {
		s.logger.Warn("encode identity", slog.Any("error", err))
		return
	}
	if err := s.storage.Set(KeyToken, token); err != nil {
		s.logger.Warn("persist token", slog.Any("error", err))
		return
	}
	if err := s.storage.Set(KeyUserData, encoded); err != nil {
		s.logger.Warn("persist identity", slog.Any("error", err))
		_ = s.storage.Delete(KeyToken)
	}
}

func (s *Store) notify(identity *access.Identity, source access.Source) {
	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(identity.Clone(), source)
	}
}
