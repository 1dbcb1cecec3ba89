// Package memory is an in-process stand-in for the support API with the
// demo accounts and canned assistant replies. Every call waits a fixed delay.
package memory

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yoockh/helpdesk/internal/collab"
	"github.com/yoockh/helpdesk/internal/models"
	"github.com/yoockh/helpdesk/internal/providers/llm"
	"github.com/yoockh/helpdesk/internal/storage"
	"github.com/yoockh/helpdesk/internal/utils"
)

const (
	DefaultDelay     = 300 * time.Millisecond
	DefaultSendDelay = time.Second

	cannedConfidence = 0.85
	cannedTokens     = 150
	cannedCost       = 0.0045
)

var cannedSources = []models.Source{
	{Title: "User Guide", Score: 0.92},
	{Title: "FAQ Document", Score: 0.78},
}

// Options zero values select the default delays; a negative delay disables it.
type Options struct {
	Delay     time.Duration
	SendDelay time.Duration

	// LLM produces replies; defaults to the canned provider.
	LLM llm.Provider
	Now func() time.Time
}

type account struct {
	user models.User
	hash string
}

type Backend struct {
	mu      sync.Mutex
	opts    Options
	users   []account
	convs   []models.Conversation
	current *models.User
	nodes   map[string]models.KBNode
	objects *storage.MemoryStore
}

// New returns a backend seeded with the demo users and one open conversation.
func New(opts Options) (*Backend, error) {
	if opts.LLM == nil {
		opts.LLM = &llm.Canned{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Delay == 0 {
		opts.Delay = DefaultDelay
	}
	if opts.SendDelay == 0 {
		opts.SendDelay = DefaultSendDelay
	}
	b := &Backend{opts: opts, nodes: map[string]models.KBNode{}, objects: storage.NewMemoryStore()}

	seed := []struct {
		id, name, email, password string
		role                      models.UserRole
	}{
		{"user-001", "John Doe", "user@company.com", "password123", models.RoleUser},
		{"user-002", "Admin User", "admin@company.com", "admin123", models.RoleAdmin},
	}
	now := opts.Now().UTC()
	for _, s := range seed {
		hash, err := utils.HashPassword(s.password)
		if err != nil {
			return nil, err
		}
		b.users = append(b.users, account{
			user: models.User{ID: s.id, Name: s.name, Email: s.email, Role: s.role, CreatedAt: now},
			hash: hash,
		})
	}

	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	b.convs = []models.Conversation{{
		ID:        "CONV001",
		UserID:    "user-001",
		User:      "John Doe",
		Topic:     "Login Issues with SSO",
		Category:  "Account Access",
		Priority:  models.PriorityHigh,
		StartDate: start,
		Messages: []models.Message{
			{Sender: models.SenderUser, Text: "I cannot log in using SSO. Password reset not working."},
			{Sender: models.SenderAssistant, Text: "I understand. Have you tried clearing your browser cache and cookies?"},
		},
	}}
	return b, nil
}

// Backend exposes the backend through every collaborator interface.
func (b *Backend) Backend() collab.Backend {
	return collab.Backend{Auth: b, Chat: b, Admin: admin{b}, Documents: documents{b}}
}

func (b *Backend) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (b *Backend) delay(ctx context.Context) error {
	return b.wait(ctx, b.opts.Delay)
}

func remote(op string, status int, msg string) error {
	return &collab.RemoteError{Op: op, Status: status, Code: http.StatusText(status), Message: msg}
}

// requireUser must be called with b.mu held.
func (b *Backend) requireUser(op string) (*models.User, error) {
	if b.current == nil {
		return nil, remote(op, http.StatusUnauthorized, "not logged in")
	}
	return b.current, nil
}

func (b *Backend) requireAdmin(op string) error {
	u, err := b.requireUser(op)
	if err != nil {
		return err
	}
	if u.Role != models.RoleAdmin {
		return remote(op, http.StatusForbidden, "admin access required")
	}
	return nil
}

func (b *Backend) find(id string) int {
	for i := range b.convs {
		if b.convs[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Backend) Login(ctx context.Context, email, password string) (*collab.LoginResult, error) {
	if err := b.delay(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.users {
		a := &b.users[i]
		if !utils.SameEmail(a.user.Email, email) {
			continue
		}
		if utils.CheckPassword(a.hash, password) != nil {
			break
		}
		a.user.LastSignInAt = b.opts.Now().UTC()
		u := a.user
		b.current = &u
		return &collab.LoginResult{Token: "mock-jwt-token-" + uuid.NewString(), User: u}, nil
	}
	return nil, collab.ErrInvalidCredentials
}

func (b *Backend) Logout(ctx context.Context) error {
	b.mu.Lock()
	b.current = nil
	b.mu.Unlock()
	return nil
}

func (b *Backend) SendMessage(ctx context.Context, conversationID, text string) (*collab.SendResult, error) {
	const op = "chat.send"

	if err := b.wait(ctx, b.opts.SendDelay); err != nil {
		return nil, err
	}

	b.mu.Lock()
	u, err := b.requireUser(op)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	i := b.find(conversationID)
	switch {
	case i < 0:
		b.mu.Unlock()
		return nil, remote(op, http.StatusNotFound, "conversation not found")
	case b.convs[i].UserID != u.ID:
		b.mu.Unlock()
		return nil, remote(op, http.StatusForbidden, "conversation belongs to another user")
	case b.convs[i].IsResolved:
		b.mu.Unlock()
		return nil, remote(op, http.StatusConflict, "conversation is resolved")
	}
	b.mu.Unlock()

	answer, err := llm.Collect(ctx, b.opts.LLM, text)
	if err != nil {
		return nil, remote(op, http.StatusServiceUnavailable, "assistant is unavailable")
	}

	now := b.opts.Now().UTC()
	conf := cannedConfidence
	res := &collab.SendResult{
		Message:    answer,
		Confidence: conf,
		Sources:    append([]models.Source(nil), cannedSources...),
		Metadata:   models.ReplyMetadata{Tokens: cannedTokens, Cost: cannedCost},
		Timestamp:  now,
	}

	b.mu.Lock()
	if i := b.find(conversationID); i >= 0 {
		b.convs[i].Messages = append(b.convs[i].Messages,
			models.Message{Sender: models.SenderUser, Text: text, Timestamp: &now},
			models.Message{Sender: models.SenderAssistant, Text: answer, Confidence: &conf, Sources: append([]models.Source(nil), res.Sources...), Timestamp: &now},
		)
	}
	b.mu.Unlock()
	return res, nil
}

func (b *Backend) GetConversations(ctx context.Context) ([]models.Conversation, error) {
	const op = "chat.conversations"

	if err := b.delay(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.requireUser(op)
	if err != nil {
		return nil, err
	}
	out := []models.Conversation{}
	for _, c := range b.convs {
		if c.UserID == u.ID {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (b *Backend) CreateConversation(ctx context.Context, topic string) (*models.Conversation, error) {
	const op = "chat.create"

	if err := b.delay(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.requireUser(op)
	if err != nil {
		return nil, err
	}

	n := len(b.convs) + 1
	id := fmt.Sprintf("CONV%03d", n)
	for b.find(id) >= 0 {
		n++
		id = fmt.Sprintf("CONV%03d", n)
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = models.DefaultTopic
	}
	now := b.opts.Now().UTC()
	conv := models.Conversation{
		ID:        id,
		UserID:    u.ID,
		User:      u.Name,
		Topic:     topic,
		Category:  models.DefaultCategory,
		Priority:  models.PriorityMedium,
		StartDate: now,
		Messages:  []models.Message{{Sender: models.SenderAssistant, Text: models.GreetingText, Timestamp: &now}},
	}
	b.convs = append([]models.Conversation{conv}, b.convs...)
	out := conv.Clone()
	return &out, nil
}

func (b *Backend) resolve(ctx context.Context, op, conversationID, notes string, asAdmin bool) error {
	if err := b.delay(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.requireUser(op)
	if err != nil {
		return err
	}
	if asAdmin && u.Role != models.RoleAdmin {
		return remote(op, http.StatusForbidden, "admin access required")
	}
	i := b.find(conversationID)
	if i < 0 {
		return remote(op, http.StatusNotFound, "conversation not found")
	}
	c := &b.convs[i]
	if !asAdmin && c.UserID != u.ID {
		return remote(op, http.StatusForbidden, "conversation belongs to another user")
	}
	if c.IsResolved {
		return remote(op, http.StatusConflict, "conversation is already resolved")
	}
	notes = strings.TrimSpace(notes)
	notice := models.UserResolvedNotice
	if asAdmin {
		if notes == "" {
			notes = models.AdminResolvedNotes
		}
		notice = models.AdminResolvedNotice(notes)
	} else if notes == "" {
		notes = models.UserResolvedNotes
	}
	now := b.opts.Now().UTC()
	c.IsResolved = true
	c.ResolvedDate = &now
	c.ResolutionNotes = notes
	c.FeedbackGiven = false
	c.Messages = append(c.Messages, models.Message{Sender: models.SenderAssistant, Text: notice, Timestamp: &now})
	return nil
}

func (b *Backend) ResolveConversation(ctx context.Context, conversationID, notes string) error {
	return b.resolve(ctx, "chat.resolve", conversationID, notes, false)
}

func (b *Backend) SubmitFeedback(ctx context.Context, conversationID string, rating int, comment string) error {
	const op = "chat.feedback"

	if err := b.delay(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.requireUser(op)
	if err != nil {
		return err
	}
	if rating < 1 || rating > 5 {
		return remote(op, http.StatusBadRequest, "rating must be between 1 and 5")
	}
	i := b.find(conversationID)
	if i < 0 || b.convs[i].UserID != u.ID {
		return remote(op, http.StatusNotFound, "conversation not found")
	}
	c := &b.convs[i]
	if !c.IsResolved || c.FeedbackGiven {
		return remote(op, http.StatusConflict, "feedback not accepted")
	}
	c.FeedbackGiven = true
	return nil
}
