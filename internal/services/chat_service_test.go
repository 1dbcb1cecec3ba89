package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/helpdesk/internal/models"
	"github.com/yoockh/helpdesk/internal/utils"
)

type chatFixture struct {
	repos
	svc       ChatService
	llm       *stubLLM
	escalator *recordingEscalator
	owner     *models.User
	stranger  *models.User
}

func newChatFixture(t *testing.T, hits []models.ScoredChunk) *chatFixture {
	r := newRepos(t)
	f := &chatFixture{
		repos:     r,
		llm:       &stubLLM{answer: "Try resetting your SSO password."},
		escalator: &recordingEscalator{},
		owner:     seedUser(t, r.users, "John Doe", "user@company.com", "password123", models.RoleUser),
		stranger:  seedUser(t, r.users, "Jane Roe", "jane@company.com", "password123", models.RoleUser),
	}
	f.svc = NewChatService(ChatDeps{
		Conversations: r.convos,
		Users:         r.users,
		Feedback:      r.feedback,
		Retriever: retrieverFunc(func(context.Context, string, int) ([]models.ScoredChunk, error) {
			return hits, nil
		}),
		LLM:       f.llm,
		Escalator: f.escalator,
	})
	return f
}

func TestChatCreateStartsWithGreeting(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()

	conv, err := f.svc.Create(ctx, f.owner.ID, "  ")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTopic, conv.Topic)
	assert.Equal(t, f.owner.ID, conv.UserID)
	assert.Equal(t, "John Doe", conv.User)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, models.GreetingText, conv.Messages[0].Text)

	mine, err := f.svc.List(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := f.svc.List(ctx, f.stranger.ID)
	require.NoError(t, err)
	assert.Empty(t, theirs)
}

func TestChatSendGroundedReply(t *testing.T) {
	hits := []models.ScoredChunk{
		{KnowledgeChunk: models.KnowledgeChunk{Title: "User Guide", Content: "Reset SSO from the portal."}, Score: 0.923},
		{KnowledgeChunk: models.KnowledgeChunk{Title: "FAQ Document", Content: "SSO FAQ."}, Score: 0.781},
		{KnowledgeChunk: models.KnowledgeChunk{Title: "User Guide", Content: "More."}, Score: 0.6},
	}
	f := newChatFixture(t, hits)
	ctx := context.Background()
	conv, err := f.svc.Create(ctx, f.owner.ID, "Login Issues with SSO")
	require.NoError(t, err)

	res, err := f.svc.Send(ctx, f.owner.ID, conv.ID, "I cannot log in with SSO")
	require.NoError(t, err)
	assert.Equal(t, "Try resetting your SSO password.", res.Message)
	assert.InDelta(t, 0.92, res.Confidence, 1e-9)
	assert.Equal(t, []models.Source{{Title: "User Guide", Score: 0.92}, {Title: "FAQ Document", Score: 0.78}}, res.Sources)
	assert.Positive(t, res.Metadata.Tokens)
	assert.Positive(t, res.Metadata.Cost)
	assert.Empty(t, f.escalator.ids)
	assert.Contains(t, f.llm.last, "Reset SSO from the portal.")

	stored, err := f.convos.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 3)
	assert.Equal(t, models.SenderUser, stored.Messages[1].Sender)
	assert.Equal(t, "I cannot log in with SSO", stored.Messages[1].Text)
	assert.Equal(t, models.SenderAssistant, stored.Messages[2].Sender)
	require.NotNil(t, stored.Messages[2].Confidence)
	assert.InDelta(t, 0.92, *stored.Messages[2].Confidence, 1e-9)
}

func TestChatSendLowConfidenceEscalates(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()
	conv, err := f.svc.Create(ctx, f.owner.ID, "")
	require.NoError(t, err)

	res, err := f.svc.Send(ctx, f.owner.ID, conv.ID, "something obscure")
	require.NoError(t, err)
	assert.Less(t, res.Confidence, models.LowConfidence)
	assert.Equal(t, []string{conv.ID}, f.escalator.ids)
}

func TestChatSendGuards(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()
	conv, err := f.svc.Create(ctx, f.owner.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, f.owner.ID, conv.ID, "   ")
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))

	_, err = f.svc.Send(ctx, f.stranger.ID, conv.ID, "hi")
	assert.True(t, utils.IsCode(err, utils.CodeForbidden))

	_, err = f.svc.Send(ctx, f.owner.ID, "missing", "hi")
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))

	_, err = f.svc.Resolve(ctx, f.owner.ID, conv.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, f.owner.ID, conv.ID, "hi")
	assert.True(t, utils.IsCode(err, utils.CodeConflict))
}

func TestChatSendAssistantFailureKeepsUserMessage(t *testing.T) {
	f := newChatFixture(t, nil)
	f.llm.err = errors.New("model offline")
	ctx := context.Background()
	conv, err := f.svc.Create(ctx, f.owner.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, f.owner.ID, conv.ID, "hi")
	assert.True(t, utils.IsCode(err, utils.CodeUnavailable))

	stored, err := f.convos.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, "hi", stored.Messages[1].Text)
}

func TestChatResolveOnceAppendsNotice(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()
	conv, err := f.svc.Create(ctx, f.owner.ID, "")
	require.NoError(t, err)

	out, err := f.svc.Resolve(ctx, f.owner.ID, conv.ID, "")
	require.NoError(t, err)
	assert.True(t, out.IsResolved)
	assert.NotNil(t, out.ResolvedDate)
	assert.Equal(t, models.UserResolvedNotes, out.ResolutionNotes)
	assert.Equal(t, models.UserResolvedNotice, out.Messages[len(out.Messages)-1].Text)

	_, err = f.svc.Resolve(ctx, f.owner.ID, conv.ID, "")
	assert.True(t, utils.IsCode(err, utils.CodeConflict))

	again, err := f.convos.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, again.Messages, len(out.Messages))
}

func TestChatFeedbackOnceOnResolved(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()
	conv, err := f.svc.Create(ctx, f.owner.ID, "")
	require.NoError(t, err)

	err = f.svc.Feedback(ctx, f.owner.ID, conv.ID, 5, "great")
	assert.True(t, utils.IsCode(err, utils.CodeConflict))

	_, err = f.svc.Resolve(ctx, f.owner.ID, conv.ID, "")
	require.NoError(t, err)

	assert.True(t, utils.IsCode(f.svc.Feedback(ctx, f.owner.ID, conv.ID, 9, ""), utils.CodeInvalidArgument))
	require.NoError(t, f.svc.Feedback(ctx, f.owner.ID, conv.ID, 5, " great "))
	assert.True(t, utils.IsCode(f.svc.Feedback(ctx, f.owner.ID, conv.ID, 4, ""), utils.CodeConflict))

	fb, err := f.feedback.GetByConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, fb.Rating)
	assert.Equal(t, "great", fb.Comment)
}

func TestChatEscalateMarksHighPriority(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()
	conv, err := f.svc.Create(ctx, f.owner.ID, "")
	require.NoError(t, err)

	require.NoError(t, f.svc.Escalate(ctx, conv.ID))
	stored, err := f.convos.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, stored.Escalated)
	assert.Equal(t, models.PriorityHigh, stored.Priority)

	assert.True(t, utils.IsCode(f.svc.Escalate(ctx, "missing"), utils.CodeNotFound))
}

func TestSplitChunks(t *testing.T) {
	text := "First paragraph.\n\nSecond paragraph.\n\n" + "word word word word word word"
	got := SplitChunks(text, 40)
	assert.Equal(t, []string{"First paragraph.\n\nSecond paragraph.", "word word word word word word"}, got)

	long := SplitChunks("aaaa bbbb cccc dddd", 9)
	assert.Equal(t, []string{"aaaa bbbb", "cccc dddd"}, long)
}

func TestChatResolveKeepsUserNotes(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()
	conv, err := f.svc.Create(ctx, f.owner.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Resolve(ctx, f.owner.ID, conv.ID, "  Cleared the browser cache  ")
	require.NoError(t, err)

	stored, err := f.convos.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsResolved)
	assert.Equal(t, "Cleared the browser cache", stored.ResolutionNotes)
}
