package desk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/helpdesk/internal/collab"
	"github.com/yoockh/helpdesk/internal/models"
)

func TestSendFailureKeepsUserMessageAndAppendsOneError(t *testing.T) {
	f := newFake()
	f.convs = []models.Conversation{{ID: "C1", UserID: "u1"}}
	f.send = func(context.Context, string, string) (*collab.SendResult, error) {
		return nil, errors.New("connection refused")
	}
	c := start(t, f, nil)
	login(t, c, "user@company.com")

	a, err := c.SendMessage(context.Background(), "C1", "hi")
	require.NoError(t, err)
	waitFor(t, a)
	assert.ErrorIs(t, a.Err(), ErrDeliveryFailure)
	assert.Equal(t, PhaseSettled, a.Phase())

	msgs := conversation(t, snapshot(t, c), "C1").Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, models.SenderUser, msgs[0].Sender)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.False(t, msgs[0].IsError)
	assert.Equal(t, models.SenderAssistant, msgs[1].Sender)
	assert.Equal(t, DeliveryErrorText, msgs[1].Text)
	assert.True(t, msgs[1].IsError)

	n := expectNotice(t, c, LevelError)
	assert.Equal(t, "C1", n.ConversationID)
}

func TestOptimisticMessageVisibleWhileSendPending(t *testing.T) {
	f := newFake()
	f.convs = []models.Conversation{{ID: "C1"}, {ID: "C2"}}
	release := make(chan struct{})
	f.send = func(context.Context, string, string) (*collab.SendResult, error) {
		<-release
		return &collab.SendResult{Message: "maybe", Confidence: 0.4, Timestamp: time.Now()}, nil
	}
	c := start(t, f, nil)
	login(t, c, "user@company.com")

	a, err := c.SendMessage(context.Background(), "C1", "  where is my invoice?  ")
	require.NoError(t, err)
	assert.Equal(t, PhaseOptimistic, a.Phase())

	s := snapshot(t, c)
	msgs := conversation(t, s, "C1").Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, "where is my invoice?", msgs[0].Text)
	assert.True(t, s.IsBusy("C1"))
	assert.False(t, s.IsBusy("C2"))

	close(release)
	waitFor(t, a)
	require.NoError(t, a.Err())

	s = snapshot(t, c)
	msgs = conversation(t, s, "C1").Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "maybe", msgs[1].Text)
	require.NotNil(t, msgs[1].Confidence)
	assert.Equal(t, 0.4, *msgs[1].Confidence)
	assert.False(t, s.IsBusy("C1"))

	expectNotice(t, c, LevelWarning)
}

func TestSendGuards(t *testing.T) {
	now := time.Now()
	f := newFake()
	f.convs = []models.Conversation{
		{ID: "C1", IsResolved: true, ResolvedDate: &now, ResolutionNotes: "done"},
		{ID: "C2"},
	}
	c := start(t, f, nil)
	ctx := context.Background()

	_, err := c.SendMessage(ctx, "C2", "hi")
	assert.ErrorIs(t, err, ErrGuardViolation, "anonymous")

	login(t, c, "user@company.com")
	for name, tc := range map[string]struct{ id, text string }{
		"resolved": {"C1", "hello"},
		"blank":    {"C2", "   "},
		"unknown":  {"C404", "hello"},
	} {
		t.Run(name, func(t *testing.T) {
			a, err := c.SendMessage(ctx, tc.id, tc.text)
			assert.Nil(t, a)
			assert.ErrorIs(t, err, ErrGuardViolation)
		})
	}
	assert.Empty(t, conversation(t, snapshot(t, c), "C1").Messages)
}

func TestCreateConversationInsertsOnceAndSelects(t *testing.T) {
	greeting := models.Message{Sender: models.SenderAssistant, Text: models.GreetingText}
	f := newFake()
	f.convs = []models.Conversation{{ID: "C1"}}
	f.create = func(topic string) (*models.Conversation, error) {
		return &models.Conversation{ID: "C9", Topic: topic, Messages: []models.Message{greeting}}, nil
	}
	c := start(t, f, nil)
	login(t, c, "user@company.com")
	assert.Equal(t, "C1", snapshot(t, c).CurrentConversationID)

	a, err := c.CreateConversation(context.Background(), "Topic")
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, a.Phase())
	waitFor(t, a)
	require.NoError(t, a.Err())
	assert.Equal(t, "C9", a.Target())

	s := snapshot(t, c)
	ids := 0
	for _, conv := range s.Conversations {
		if conv.ID == "C9" {
			ids++
		}
	}
	assert.Equal(t, 1, ids)
	assert.Equal(t, "C9", s.Conversations[0].ID)
	assert.Equal(t, "C9", s.CurrentConversationID)
	assert.Equal(t, "Topic", s.Current.Topic)

	a, err = c.CreateConversation(context.Background(), "Topic")
	require.NoError(t, err)
	waitFor(t, a)
	assert.Len(t, snapshot(t, c).Conversations, 2)
}

func TestCreateFailureStoresNothing(t *testing.T) {
	f := newFake()
	f.create = func(string) (*models.Conversation, error) { return nil, errors.New("boom") }
	c := start(t, f, nil)
	login(t, c, "user@company.com")

	a, err := c.CreateConversation(context.Background(), "")
	require.NoError(t, err)
	waitFor(t, a)
	assert.ErrorIs(t, a.Err(), ErrFetchFailure)
	assert.Empty(t, snapshot(t, c).Conversations)
}

func TestResolveTwiceIsNoop(t *testing.T) {
	f := newFake()
	f.convs = []models.Conversation{{ID: "C1", FeedbackGiven: true}}
	c := start(t, f, nil)
	login(t, c, "user@company.com")
	ctx := context.Background()

	a, err := c.Resolve(ctx, "C1", "")
	require.NoError(t, err)
	waitFor(t, a)
	require.NoError(t, a.Err())
	first := conversation(t, snapshot(t, c), "C1")

	a2, err := c.Resolve(ctx, "C1", "again")
	assert.Nil(t, a2)
	assert.ErrorIs(t, err, ErrGuardViolation)

	second := conversation(t, snapshot(t, c), "C1")
	assert.Equal(t, first, second)
	assert.True(t, second.IsResolved)
	require.NotNil(t, second.ResolvedDate)
	assert.Equal(t, models.UserResolvedNotes, second.ResolutionNotes)
	assert.False(t, second.FeedbackGiven)
	require.Len(t, second.Messages, 1)
	assert.Equal(t, models.UserResolvedNotice, second.Messages[0].Text)
	assert.Equal(t, 1, f.userResolves)

	_, err = c.SendMessage(ctx, "C1", "one more thing")
	assert.ErrorIs(t, err, ErrGuardViolation)
}

func TestResolveWhilePendingIsRejected(t *testing.T) {
	f := newFake()
	f.convs = []models.Conversation{{ID: "C1"}}
	c := start(t, f, nil)
	login(t, c, "user@company.com")
	ctx := context.Background()

	a, err := c.Resolve(ctx, "C1", "fixed")
	require.NoError(t, err)
	_, err = c.Resolve(ctx, "C1", "fixed")
	assert.ErrorIs(t, err, ErrGuardViolation)
	waitFor(t, a)
}

func TestResolveFailureReopens(t *testing.T) {
	f := newFake()
	f.convs = []models.Conversation{{ID: "C1"}}
	f.resolveErr = &collab.RemoteError{Op: "chat.resolve", Status: 500}
	c := start(t, f, nil)
	login(t, c, "user@company.com")

	a, err := c.Resolve(context.Background(), "C1", "fixed")
	require.NoError(t, err)
	waitFor(t, a)
	assert.ErrorIs(t, a.Err(), ErrFetchFailure)

	conv := conversation(t, snapshot(t, c), "C1")
	assert.False(t, conv.IsResolved)
	assert.Nil(t, conv.ResolvedDate)
	assert.Empty(t, conv.ResolutionNotes)
	assert.Empty(t, conv.Messages)
	expectNotice(t, c, LevelError)
}

func TestAdminResolveQuotesNotesAndClosesDetail(t *testing.T) {
	f := newFake()
	f.all = []models.Conversation{{ID: "C1", UserID: "u1"}, {ID: "C2", UserID: "u1"}}
	c := start(t, f, nil)
	login(t, c, "admin@company.com")
	ctx := context.Background()

	require.NoError(t, c.SelectForAdmin(ctx, "C1"))
	assert.Equal(t, "C1", snapshot(t, c).AdminSelectionID)

	a, err := c.Resolve(ctx, "C1", "Reset SSO link")
	require.NoError(t, err)
	waitFor(t, a)
	require.NoError(t, a.Err())

	s := snapshot(t, c)
	assert.Empty(t, s.AdminSelectionID)
	assert.Nil(t, s.AdminSelected)
	conv := conversation(t, s, "C1")
	assert.Equal(t, "Reset SSO link", conv.ResolutionNotes)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, models.AdminResolvedNotice("Reset SSO link"), conv.Messages[0].Text)
	assert.Equal(t, 1, f.adminResolves)
	assert.Equal(t, 0, f.userResolves)
	assert.Equal(t, 1, s.Stats.Resolved)
}

func TestSwitchRoleSelection(t *testing.T) {
	now := time.Now()
	f := newFake()
	f.convs = []models.Conversation{
		{ID: "C1", IsResolved: true, ResolvedDate: &now, ResolutionNotes: "x"},
		{ID: "C2"},
		{ID: "C3"},
	}
	f.all = append(cloneAll(f.convs), models.Conversation{ID: "C7"})
	f.users = []models.User{{ID: "u1"}, {ID: "a1"}}
	c := start(t, f, nil)
	ctx := context.Background()

	login(t, c, "admin@company.com")
	s := snapshot(t, c)
	assert.Equal(t, models.RoleAdmin, s.Role)
	assert.Len(t, s.Conversations, 4)
	assert.Len(t, s.Users, 2)
	assert.Empty(t, s.CurrentConversationID)

	require.NoError(t, c.SwitchRole(ctx, models.RoleUser))
	s = snapshot(t, c)
	assert.Equal(t, "C2", s.CurrentConversationID)
	assert.Len(t, s.Conversations, 3)
	assert.Empty(t, s.Users)

	require.NoError(t, c.Select(ctx, "C3"))
	assert.Equal(t, "C3", snapshot(t, c).CurrentConversationID)

	require.NoError(t, c.SwitchRole(ctx, models.RoleAdmin))
	s = snapshot(t, c)
	assert.Empty(t, s.CurrentConversationID)
	require.NoError(t, c.SelectForAdmin(ctx, "C7"))

	require.NoError(t, c.SwitchRole(ctx, models.RoleUser))
	s = snapshot(t, c)
	assert.Equal(t, "C2", s.CurrentConversationID)
	assert.Empty(t, s.AdminSelectionID)

	userLoads, adminLoads := f.counts()
	assert.Equal(t, 2, userLoads)
	assert.Equal(t, 2, adminLoads)

	require.NoError(t, c.SwitchRole(ctx, models.RoleUser))
	userLoads, _ = f.counts()
	assert.Equal(t, 2, userLoads, "same role does not reload")
}

func TestNonAdminCannotEnterAdminView(t *testing.T) {
	f := newFake()
	c := start(t, f, nil)
	login(t, c, "user@company.com")

	err := c.SwitchRole(context.Background(), models.RoleAdmin)
	assert.ErrorIs(t, err, ErrGuardViolation)
	assert.Equal(t, models.RoleUser, snapshot(t, c).Role)
	_, adminLoads := f.counts()
	assert.Zero(t, adminLoads)
}

func TestSelectGuards(t *testing.T) {
	f := newFake()
	f.convs = []models.Conversation{{ID: "C1"}}
	c := start(t, f, nil)
	login(t, c, "user@company.com")
	ctx := context.Background()

	assert.ErrorIs(t, c.Select(ctx, "nope"), ErrGuardViolation)
	assert.ErrorIs(t, c.SelectForAdmin(ctx, "C1"), ErrGuardViolation)
	assert.Equal(t, "C1", snapshot(t, c).CurrentConversationID)
}

func TestLogoutDropsPendingCompletions(t *testing.T) {
	f := newFake()
	f.convs = []models.Conversation{{ID: "C1"}}
	release := make(chan struct{})
	f.send = func(context.Context, string, string) (*collab.SendResult, error) {
		<-release
		return &collab.SendResult{Message: "late"}, nil
	}
	tokens := &MemoryTokenStore{}
	c := start(t, f, tokens)
	login(t, c, "user@company.com")
	ctx := context.Background()

	a, err := c.SendMessage(ctx, "C1", "hi")
	require.NoError(t, err)
	require.NoError(t, c.Logout(ctx))

	s := snapshot(t, c)
	assert.False(t, s.Session.Authenticated)
	assert.Empty(t, s.Conversations)
	stored, err := tokens.Load()
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.Equal(t, 1, f.logouts)

	close(release)
	waitFor(t, a)
	assert.ErrorIs(t, a.Err(), ErrGuardViolation)
	assert.Empty(t, snapshot(t, c).Conversations)
	assert.Empty(t, c.Token())
}

func TestFeedbackAcceptedOnce(t *testing.T) {
	now := time.Now()
	f := newFake()
	f.convs = []models.Conversation{
		{ID: "C1", IsResolved: true, ResolvedDate: &now, ResolutionNotes: "done"},
		{ID: "C2"},
	}
	c := start(t, f, nil)
	login(t, c, "user@company.com")
	ctx := context.Background()

	_, err := c.SubmitFeedback(ctx, "C2", 5, "")
	assert.ErrorIs(t, err, ErrGuardViolation, "open conversation")
	_, err = c.SubmitFeedback(ctx, "C1", 0, "")
	assert.ErrorIs(t, err, ErrGuardViolation, "rating out of range")

	a, err := c.SubmitFeedback(ctx, "C1", 5, "great")
	require.NoError(t, err)
	_, err = c.SubmitFeedback(ctx, "C1", 4, "")
	assert.ErrorIs(t, err, ErrGuardViolation, "second submission")
	waitFor(t, a)
	require.NoError(t, a.Err())
	assert.True(t, conversation(t, snapshot(t, c), "C1").FeedbackGiven)
}

func TestFeedbackFailureAllowsRetry(t *testing.T) {
	now := time.Now()
	f := newFake()
	f.convs = []models.Conversation{{ID: "C1", IsResolved: true, ResolvedDate: &now, ResolutionNotes: "done"}}
	f.feedback = func(string, int) error { return errors.New("down") }
	c := start(t, f, nil)
	login(t, c, "user@company.com")

	a, err := c.SubmitFeedback(context.Background(), "C1", 3, "")
	require.NoError(t, err)
	waitFor(t, a)
	assert.ErrorIs(t, a.Err(), ErrFetchFailure)
	assert.False(t, conversation(t, snapshot(t, c), "C1").FeedbackGiven)
}

func TestLoginFailure(t *testing.T) {
	c := start(t, newFake(), nil)

	_, err := c.Login(context.Background(), "user@company.com", "wrong")
	assert.ErrorIs(t, err, ErrAuthFailure)
	assert.ErrorIs(t, err, collab.ErrInvalidCredentials)
	s := snapshot(t, c)
	assert.False(t, s.Session.Authenticated)
	assert.Equal(t, Capabilities{}, s.Capabilities)
}

func TestRestoreSession(t *testing.T) {
	f := newFake()
	f.convs = []models.Conversation{{ID: "C1"}}
	tokens := &MemoryTokenStore{}
	require.NoError(t, tokens.Save(StoredSession{Token: "tok-u1", User: f.accounts["user@company.com"]}))

	c := start(t, f, tokens)
	s, err := c.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Authenticated)
	assert.Equal(t, "tok-u1", c.Token())
	assert.Equal(t, "C1", snapshot(t, c).CurrentConversationID)

	empty := start(t, f, &MemoryTokenStore{})
	s, err = empty.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, s.Authenticated)
}

func TestRosterChanges(t *testing.T) {
	f := newFake()
	f.users = []models.User{{ID: "u1", Name: "John Doe"}, {ID: "a1", Name: "Admin User"}}
	c := start(t, f, nil)
	ctx := context.Background()

	login(t, c, "user@company.com")
	_, err := c.AddUser(ctx, models.UserInput{Name: "Jane"})
	assert.ErrorIs(t, err, ErrGuardViolation)
	require.NoError(t, c.Logout(ctx))

	login(t, c, "admin@company.com")
	a, err := c.AddUser(ctx, models.UserInput{Name: "Jane", Email: "jane@company.com", Role: models.RoleUser})
	require.NoError(t, err)
	waitFor(t, a)
	require.NoError(t, a.Err())
	assert.Equal(t, "u9", a.Target())
	assert.Len(t, snapshot(t, c).Users, 3)

	_, err = c.DeleteUser(ctx, "a1")
	assert.ErrorIs(t, err, ErrGuardViolation)

	a, err = c.DeleteUser(ctx, "u1")
	require.NoError(t, err)
	waitFor(t, a)
	users := snapshot(t, c).Users
	require.Len(t, users, 2)
	assert.Equal(t, "a1", users[0].ID)
}

func TestCancelledCallerStillSettlesQueuedResolve(t *testing.T) {
	f := newFake()
	f.convs = []models.Conversation{{ID: "C1"}}
	c := start(t, f, nil)
	login(t, c, "user@company.com")

	r := callCancelledWhileQueued(t, c, func(ctx context.Context) (*Action, error) {
		return c.Resolve(ctx, "C1", "done")
	})
	require.NoError(t, r.err)
	waitFor(t, r.a)
	require.NoError(t, r.a.Err())

	s := snapshot(t, c)
	conv := conversation(t, s, "C1")
	assert.True(t, conv.IsResolved)
	assert.Equal(t, "done", conv.ResolutionNotes)
	assert.False(t, s.IsBusy("C1"))
	assert.Equal(t, 1, f.userResolves)
}

func TestCancelledCallerStillSettlesQueuedSend(t *testing.T) {
	f := newFake()
	f.convs = []models.Conversation{{ID: "C1"}}
	c := start(t, f, nil)
	login(t, c, "user@company.com")

	r := callCancelledWhileQueued(t, c, func(ctx context.Context) (*Action, error) {
		return c.SendMessage(ctx, "C1", "hello")
	})
	require.NoError(t, r.err)
	waitFor(t, r.a)
	require.NoError(t, r.a.Err())

	s := snapshot(t, c)
	msgs := conversation(t, s, "C1").Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, "ok", msgs[1].Text)
	assert.False(t, s.IsBusy("C1"))
}

func TestSwitchRoleFailedReloadLeavesViewEmpty(t *testing.T) {
	f := newFake()
	f.all = []models.Conversation{{ID: "C7", UserID: "u2"}}
	c := start(t, f, nil)
	ctx := context.Background()
	login(t, c, "admin@company.com")
	require.Len(t, snapshot(t, c).Conversations, 1)

	f.mu.Lock()
	f.loadErr = errors.New("connection reset")
	f.mu.Unlock()
	err := c.SwitchRole(ctx, models.RoleUser)
	assert.ErrorIs(t, err, ErrFetchFailure)

	s := snapshot(t, c)
	assert.Equal(t, models.RoleUser, s.Role)
	assert.Empty(t, s.Conversations)
	assert.Empty(t, s.Users)
	assert.Empty(t, s.CurrentConversationID)

	_, err = c.SendMessage(ctx, "C7", "hi")
	assert.ErrorIs(t, err, ErrGuardViolation)
}

func TestLoginNoticeDistinguishesTransportFailure(t *testing.T) {
	f := newFake()
	c := start(t, f, nil)
	ctx := context.Background()

	_, err := c.Login(ctx, "user@company.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password", expectNotice(t, c, LevelError).Text)

	f.loginErr = &collab.RemoteError{Op: "auth.login", Status: 503}
	_, err = c.Login(ctx, "user@company.com", "secret")
	assert.ErrorIs(t, err, ErrAuthFailure)
	assert.NotErrorIs(t, err, collab.ErrInvalidCredentials)
	assert.Equal(t, "Could not reach the support service", expectNotice(t, c, LevelError).Text)
}

