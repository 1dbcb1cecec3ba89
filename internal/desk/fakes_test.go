package desk

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/helpdesk/internal/collab"
	"github.com/yoockh/helpdesk/internal/models"
)

type fakeBackend struct {
	mu sync.Mutex

	accounts map[string]models.User
	convs    []models.Conversation
	all      []models.Conversation
	users    []models.User

	send       func(ctx context.Context, id, text string) (*collab.SendResult, error)
	create     func(topic string) (*models.Conversation, error)
	resolveErr error
	loadErr    error
	loginErr   error
	feedback   func(id string, rating int) error

	userLoads     int
	adminLoads    int
	userResolves  int
	adminResolves int
	logouts       int
}

func newFake() *fakeBackend {
	return &fakeBackend{accounts: map[string]models.User{
		"user@company.com":  {ID: "u1", Name: "John Doe", Email: "user@company.com", Role: models.RoleUser},
		"admin@company.com": {ID: "a1", Name: "Admin User", Email: "admin@company.com", Role: models.RoleAdmin},
	}}
}

func (f *fakeBackend) backend() collab.Backend {
	return collab.Backend{Auth: f, Chat: f, Admin: fakeAdmin{f}}
}

func (f *fakeBackend) Login(_ context.Context, email, password string) (*collab.LoginResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	u, ok := f.accounts[email]
	if !ok || password != "secret" {
		return nil, collab.ErrInvalidCredentials
	}
	return &collab.LoginResult{Token: "tok-" + u.ID, User: u}, nil
}

func (f *fakeBackend) Logout(context.Context) error {
	f.mu.Lock()
	f.logouts++
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, id, text string) (*collab.SendResult, error) {
	if f.send != nil {
		return f.send(ctx, id, text)
	}
	return &collab.SendResult{Message: "ok", Confidence: 0.9, Sources: []models.Source{{Title: "FAQ", Score: 0.9}}}, nil
}

func cloneAll(in []models.Conversation) []models.Conversation {
	out := make([]models.Conversation, 0, len(in))
	for _, c := range in {
		out = append(out, c.Clone())
	}
	return out
}

func (f *fakeBackend) GetConversations(context.Context) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userLoads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return cloneAll(f.convs), nil
}

func (f *fakeBackend) CreateConversation(_ context.Context, topic string) (*models.Conversation, error) {
	if f.create != nil {
		return f.create(topic)
	}
	return nil, errors.New("not configured")
}

func (f *fakeBackend) ResolveConversation(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userResolves++
	return f.resolveErr
}

func (f *fakeBackend) SubmitFeedback(_ context.Context, id string, rating int, _ string) error {
	if f.feedback != nil {
		return f.feedback(id, rating)
	}
	return nil
}

type fakeAdmin struct{ f *fakeBackend }

func (a fakeAdmin) GetAllConversations(context.Context) ([]models.Conversation, error) {
	a.f.mu.Lock()
	defer a.f.mu.Unlock()
	a.f.adminLoads++
	return cloneAll(a.f.all), nil
}

func (a fakeAdmin) GetUsers(context.Context) ([]models.User, error) {
	a.f.mu.Lock()
	defer a.f.mu.Unlock()
	return append([]models.User(nil), a.f.users...), nil
}

func (a fakeAdmin) GetStats(context.Context) (*models.Stats, error) { return &models.Stats{}, nil }

func (a fakeAdmin) AddUser(_ context.Context, in models.UserInput) (*models.User, error) {
	return &models.User{ID: "u9", Name: in.Name, Email: in.Email, Role: in.Role}, nil
}

func (a fakeAdmin) UpdateUser(_ context.Context, id string, in models.UserInput) (*models.User, error) {
	return &models.User{ID: id, Name: in.Name, Email: in.Email, Role: in.Role}, nil
}

func (a fakeAdmin) DeleteUser(context.Context, string) error { return nil }

func (a fakeAdmin) ResolveConversation(context.Context, string, string) error {
	a.f.mu.Lock()
	defer a.f.mu.Unlock()
	a.f.adminResolves++
	return a.f.resolveErr
}

func (f *fakeBackend) counts() (userLoads, adminLoads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userLoads, f.adminLoads
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func start(t *testing.T, f *fakeBackend, tokens TokenStore) *Controller {
	t.Helper()
	c := New(Deps{Backend: f.backend(), Tokens: tokens, Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(cancel)
	return c
}

func login(t *testing.T, c *Controller, email string) {
	t.Helper()
	_, err := c.Login(context.Background(), email, "secret")
	require.NoError(t, err)
}

func waitFor(t *testing.T, a *Action) {
	t.Helper()
	require.NotNil(t, a)
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("action did not settle")
	}
}

func snapshot(t *testing.T, c *Controller) Snapshot {
	t.Helper()
	s, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	return s
}

func conversation(t *testing.T, s Snapshot, id string) models.Conversation {
	t.Helper()
	for _, c := range s.Conversations {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("conversation %s not in store", id)
	return models.Conversation{}
}

// expectNotice drains notices until one of the given level arrives.
func expectNotice(t *testing.T, c *Controller, level Level) Notice {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case n := <-c.Notices():
			if n.Level == level {
				return n
			}
		case <-timeout:
			t.Fatalf("no %s notice", level)
			return Notice{}
		}
	}
}

// holdLoop occupies the controller loop until the returned release func is
// called, so calls made meanwhile stay queued.
func holdLoop(t *testing.T, c *Controller) (release func()) {
	t.Helper()
	started := make(chan struct{})
	unblock := make(chan struct{})
	c.events <- func() {
		close(started)
		<-unblock
	}
	<-started
	return func() { close(unblock) }
}

type actionResult struct {
	a   *Action
	err error
}

// callCancelledWhileQueued issues call while the loop is held and cancels
// its context once the call is queued.
func callCancelledWhileQueued(t *testing.T, c *Controller, call func(ctx context.Context) (*Action, error)) actionResult {
	t.Helper()
	release := holdLoop(t, c)
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan actionResult, 1)
	go func() {
		a, err := call(ctx)
		out <- actionResult{a, err}
	}()
	require.Eventually(t, func() bool { return len(c.events) == 1 }, 2*time.Second, time.Millisecond)
	cancel()
	release()
	select {
	case r := <-out:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("call did not return")
		return actionResult{}
	}
}

