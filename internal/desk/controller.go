// Package desk is the client side of the support desk: session handling, the
// conversation store, optimistic mutations and the per-role views derived
// from them. All state is owned by one event loop started with Run.
package desk

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/helpdesk/internal/collab"
	"github.com/yoockh/helpdesk/internal/models"
	"golang.org/x/sync/errgroup"
)

var ErrStopped = errors.New("desk: controller stopped")

const noticeBuffer = 32

type Deps struct {
	Backend collab.Backend

	// Sessions defaults to a manager over Backend.Auth and Tokens.
	Sessions *SessionManager
	Tokens   TokenStore
	Logger   *logrus.Entry
	Now      func() time.Time
}

type Controller struct {
	chat     collab.Chat
	admin    collab.Admin
	sessions *SessionManager
	log      *logrus.Entry
	now      func() time.Time

	base    context.Context
	cancel  context.CancelFunc
	events  chan func()
	notices chan Notice
	stopped chan struct{}

	// Owned by the loop.
	store     *Store
	role      models.UserRole
	userSel   string
	adminSel  string
	busy      map[string]int
	resolving map[string]bool
	creating  int
	epoch     uint64
	loadSeq   uint64
}

func New(d Deps) *Controller {
	log := d.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "desk")
	sessions := d.Sessions
	if sessions == nil {
		sessions = NewSessionManager(d.Backend.Auth, d.Tokens, log)
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	base, cancel := context.WithCancel(context.Background())
	return &Controller{
		chat:      d.Backend.Chat,
		admin:     d.Backend.Admin,
		sessions:  sessions,
		log:       log,
		now:       now,
		base:      base,
		cancel:    cancel,
		events:    make(chan func(), 64),
		notices:   make(chan Notice, noticeBuffer),
		stopped:   make(chan struct{}),
		store:     NewStore(),
		busy:      map[string]int{},
		resolving: map[string]bool{},
	}
}

// Run processes events until ctx is done. Remote calls still in flight are
// cancelled when it returns.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.stopped)
	defer c.cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-c.events:
			fn()
		}
	}
}

// do runs fn on the loop and waits for its result. ctx only bounds the wait
// for a slot in the queue.
func (c *Controller) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case c.events <- func() { errc <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
	// Once queued, fn runs regardless of ctx, and its effects must reach
	// the caller.
	select {
	case err := <-errc:
		return err
	case <-c.stopped:
		select {
		case err := <-errc:
			return err
		default:
			return ErrStopped
		}
	}
}

// complete posts a remote completion back to the loop. If the loop is gone
// the action settles with ErrStopped.
func (c *Controller) complete(a *Action, fn func()) {
	select {
	case c.events <- fn:
	case <-c.stopped:
		a.settle("", ErrStopped)
	}
}

// Notices delivers transient notifications. Notices are dropped when nobody
// drains the channel.
func (c *Controller) Notices() <-chan Notice { return c.notices }

func (c *Controller) notify(level Level, conversationID, text string) {
	n := Notice{Level: level, Text: text, ConversationID: conversationID, At: c.now()}
	select {
	case c.notices <- n:
	default:
		c.log.WithField("notice", text).Debug("notice dropped")
	}
}

func (c *Controller) Session() Session { return c.sessions.Current() }

// Token lets the controller act as the bearer token source of a transport.
func (c *Controller) Token() string { return c.sessions.Token() }

// resetLocked drops every session- and view-scoped value. Completions of
// actions issued before the reset are ignored afterwards.
func (c *Controller) resetLocked(role models.UserRole) {
	c.epoch++
	c.store.Reset()
	c.role = role
	c.userSel = ""
	c.adminSel = ""
	c.busy = map[string]int{}
	c.resolving = map[string]bool{}
	c.creating = 0
}

// Restore resumes a persisted session and loads its conversations.
func (c *Controller) Restore(ctx context.Context) (Session, error) {
	s := c.sessions.Restore()
	err := c.do(ctx, func() error {
		role := models.UserRole("")
		if s.Authenticated {
			role = s.User.Role
		}
		c.resetLocked(role)
		return nil
	})
	if err != nil || !s.Authenticated {
		return s, err
	}
	return s, c.Load(ctx)
}

// Login signs in and loads the view matching the account's role. A failed
// load leaves the session signed in.
func (c *Controller) Login(ctx context.Context, email, password string) (Session, error) {
	s, err := c.sessions.Login(ctx, email, password)
	if err != nil {
		text := "Could not reach the support service"
		if errors.Is(err, collab.ErrInvalidCredentials) {
			text = "Invalid email or password"
		}
		c.notify(LevelError, "", text)
		return s, err
	}
	err = c.do(ctx, func() error {
		c.resetLocked(s.User.Role)
		return nil
	})
	if err != nil {
		return s, err
	}
	c.notify(LevelSuccess, "", "Welcome, "+s.User.Name)
	return s, c.Load(ctx)
}

// Logout clears the store before the token so nothing of the previous
// account stays visible.
func (c *Controller) Logout(ctx context.Context) error {
	err := c.do(ctx, func() error {
		c.resetLocked("")
		return nil
	})
	c.sessions.Logout(ctx)
	return err
}

// SwitchRole moves between the user and admin views in one step: the role
// changes, the store and both selections are cleared and exactly one reload
// follows, after which the user view derives its default selection. If the
// reload fails the view stays empty.
func (c *Controller) SwitchRole(ctx context.Context, role models.UserRole) error {
	const op = "Controller.SwitchRole"

	changed := false
	err := c.do(ctx, func() error {
		s := c.sessions.Current()
		if !s.Authenticated {
			return guard(op, "not signed in")
		}
		if !role.Valid() {
			return guard(op, "unknown role")
		}
		if role == models.RoleAdmin && !s.IsAdmin() {
			return guard(op, "admin access required")
		}
		if role == c.role {
			return nil
		}
		c.resetLocked(role)
		changed = true
		return nil
	})
	if err != nil || !changed {
		return err
	}
	return c.Load(ctx)
}

// Load replaces the store with what the current role may see. Results of a
// load overtaken by a newer load, a role switch or a logout are discarded.
func (c *Controller) Load(ctx context.Context) error {
	const op = "Controller.Load"

	var (
		role  models.UserRole
		seq   uint64
		epoch uint64
	)
	err := c.do(ctx, func() error {
		if !c.sessions.Current().Authenticated {
			return guard(op, "not signed in")
		}
		c.loadSeq++
		role, seq, epoch = c.role, c.loadSeq, c.epoch
		return nil
	})
	if err != nil {
		return err
	}

	var (
		convs []models.Conversation
		users []models.User
	)
	if role == models.RoleAdmin {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			convs, err = c.admin.GetAllConversations(gctx)
			return err
		})
		g.Go(func() error {
			var err error
			users, err = c.admin.GetUsers(gctx)
			return err
		})
		err = g.Wait()
	} else {
		convs, err = c.chat.GetConversations(ctx)
	}
	if err != nil {
		c.log.WithError(err).WithField("role", role).Warn("load failed")
		c.notify(LevelError, "", "Failed to load conversations")
		return fetchFailure(op, err)
	}

	return c.do(ctx, func() error {
		if epoch != c.epoch || seq != c.loadSeq || role != c.role {
			return nil
		}
		c.store.Replace(convs, users)
		if c.adminSel != "" && !c.store.Has(c.adminSel) {
			c.adminSel = ""
		}
		if c.userSel != "" && !c.store.Has(c.userSel) {
			c.userSel = ""
		}
		if role == models.RoleUser && c.userSel == "" {
			if cur := CurrentConversationFor(role, "", c.store.List()); cur != nil {
				c.userSel = cur.ID
			}
		}
		return nil
	})
}

// Select sets the user view's current conversation.
func (c *Controller) Select(ctx context.Context, id string) error {
	const op = "Controller.Select"
	return c.do(ctx, func() error {
		if c.role != models.RoleUser {
			return guard(op, "not in the user view")
		}
		if !c.store.Has(id) {
			return guard(op, "conversation not found")
		}
		c.userSel = id
		return nil
	})
}

// SelectForAdmin opens a conversation in the admin detail view; an empty id
// closes it.
func (c *Controller) SelectForAdmin(ctx context.Context, id string) error {
	const op = "Controller.SelectForAdmin"
	return c.do(ctx, func() error {
		if c.role != models.RoleAdmin {
			return guard(op, "not in the admin view")
		}
		if id != "" && !c.store.Has(id) {
			return guard(op, "conversation not found")
		}
		c.adminSel = id
		return nil
	})
}

// Snapshot is a copy of everything a view renders. CurrentConversationID is
// the user view's selection and stays empty in the admin view.
type Snapshot struct {
	Session               Session
	Role                  models.UserRole
	Conversations         []models.Conversation
	Users                 []models.User
	CurrentConversationID string
	Current               *models.Conversation
	AdminSelectionID      string
	AdminSelected         *models.Conversation
	Stats                 models.Stats
	Busy                  map[string]bool
	Creating              bool
	Capabilities          Capabilities
}

func (s Snapshot) IsBusy(conversationID string) bool { return s.Busy[conversationID] }

func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.do(ctx, func() error {
		convs := c.store.List()
		snap = Snapshot{
			Session:       c.sessions.Current(),
			Role:          c.role,
			Conversations: convs,
			Users:         c.store.Users(),
			Stats:         StatsOf(convs),
			Busy:          map[string]bool{},
			Creating:      c.creating > 0,
		}
		snap.Capabilities = CapabilitiesOf(snap.Session)
		for id, n := range c.busy {
			if n > 0 {
				snap.Busy[id] = true
			}
		}
		switch c.role {
		case models.RoleUser:
			if cur := CurrentConversationFor(c.role, c.userSel, convs); cur != nil {
				cp := cur.Clone()
				snap.Current = &cp
				snap.CurrentConversationID = cp.ID
			}
		case models.RoleAdmin:
			if sel := CurrentConversationFor(c.role, c.adminSel, convs); sel != nil {
				cp := sel.Clone()
				snap.AdminSelected = &cp
				snap.AdminSelectionID = cp.ID
			}
		}
		return nil
	})
	return snap, err
}
