package desk

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/helpdesk/internal/collab"
	"github.com/yoockh/helpdesk/internal/models"
)

// Session is the authentication state of the desk.
type Session struct {
	User          *models.User
	Authenticated bool
	Token         string
}

func (s Session) IsAdmin() bool {
	return s.Authenticated && s.User != nil && s.User.Role == models.RoleAdmin
}

// SessionManager owns the current session and its persisted token. It is
// safe for concurrent use so transports can read the token from any goroutine.
type SessionManager struct {
	auth   collab.Auth
	tokens TokenStore
	log    *logrus.Entry
	now    func() time.Time

	mu      sync.RWMutex
	current Session
}

func NewSessionManager(auth collab.Auth, tokens TokenStore, log *logrus.Entry) *SessionManager {
	if tokens == nil {
		tokens = &MemoryTokenStore{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SessionManager{auth: auth, tokens: tokens, log: log, now: time.Now}
}

// Restore reads the persisted session. An empty or unreadable store yields an
// anonymous session.
func (m *SessionManager) Restore() Session {
	ss, err := m.tokens.Load()
	if err != nil {
		m.log.WithError(err).Warn("stored session unreadable")
		ss = nil
	}
	var s Session
	if ss != nil && ss.Token != "" && ss.User.ID != "" {
		u := ss.User
		s = Session{User: &u, Authenticated: true, Token: ss.Token}
	}
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	return s
}

func (m *SessionManager) Login(ctx context.Context, email, password string) (Session, error) {
	const op = "SessionManager.Login"

	res, err := m.auth.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, collab.ErrInvalidCredentials) {
			return Session{}, authFailure(op, "invalid email or password", err)
		}
		return Session{}, authFailure(op, "login failed", err)
	}
	u := res.User
	s := Session{User: &u, Authenticated: true, Token: res.Token}
	if err := m.tokens.Save(StoredSession{Token: res.Token, User: u, SavedAt: m.now().UTC()}); err != nil {
		m.log.WithError(err).Warn("session not persisted")
	}
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	return s, nil
}

// Logout tells the auth service first, while the token is still attached,
// then forgets the session regardless of the outcome.
func (m *SessionManager) Logout(ctx context.Context) {
	if m.Current().Authenticated {
		if err := m.auth.Logout(ctx); err != nil {
			m.log.WithError(err).Debug("remote logout failed")
		}
	}
	if err := m.tokens.Clear(); err != nil {
		m.log.WithError(err).Warn("stored session not cleared")
	}
	m.mu.Lock()
	m.current = Session{}
	m.mu.Unlock()
}

func (m *SessionManager) Current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.current
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Token implements rest.TokenSource.
func (m *SessionManager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Token
}
