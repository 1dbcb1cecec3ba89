package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/helpdesk/internal/metrics"
	"github.com/yoockh/helpdesk/internal/models"
	"github.com/yoockh/helpdesk/internal/providers/llm"
	pgrepo "github.com/yoockh/helpdesk/internal/repositories/postgres"
	"github.com/yoockh/helpdesk/internal/utils"
)

const (
	maxMessageLen   = 4000
	historyWindow   = 10
	retrievalDepth  = 3
	costPerToken    = 0.00003
	ungroundedScore = 0.5
)

// Retriever finds knowledge base passages relevant to a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]models.ScoredChunk, error)
}

// Escalator hands a low-confidence conversation to human agents.
type Escalator interface {
	Escalate(ctx context.Context, conversationID, reason string) error
}

type ChatService interface {
	List(ctx context.Context, userID string) ([]models.Conversation, error)
	Create(ctx context.Context, userID, topic string) (*models.Conversation, error)
	Send(ctx context.Context, userID, conversationID, text string) (*models.SendResult, error)
	Resolve(ctx context.Context, userID, conversationID, notes string) (*models.Conversation, error)
	Feedback(ctx context.Context, userID, conversationID string, rating int, comment string) error
	// Escalate marks a conversation for human follow-up. Used by the escalation worker.
	Escalate(ctx context.Context, conversationID string) error
}

type chatService struct {
	convos    pgrepo.ConversationRepo
	users     pgrepo.UserRepository
	feedback  pgrepo.FeedbackRepository
	retriever Retriever
	llm       llm.Provider
	escalator Escalator
	log       *logrus.Entry
	now       func() time.Time
}

type ChatDeps struct {
	Conversations pgrepo.ConversationRepo
	Users         pgrepo.UserRepository
	Feedback      pgrepo.FeedbackRepository
	Retriever     Retriever
	LLM           llm.Provider
	Escalator     Escalator
	Logger        *logrus.Entry
}

func NewChatService(d ChatDeps) ChatService {
	log := d.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &chatService{
		convos:    d.Conversations,
		users:     d.Users,
		feedback:  d.Feedback,
		retriever: d.Retriever,
		llm:       d.LLM,
		escalator: d.Escalator,
		log:       log,
		now:       time.Now,
	}
}

func (s *chatService) List(ctx context.Context, userID string) ([]models.Conversation, error) {
	const op = "ChatService.List"

	if userID == "" {
		return nil, utils.E(utils.CodeUnauthorized, op, "missing user", nil)
	}
	rows, err := s.convos.ListByUser(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list conversations", err)
	}
	if rows == nil {
		rows = []models.Conversation{}
	}
	return rows, nil
}

func (s *chatService) Create(ctx context.Context, userID, topic string) (*models.Conversation, error) {
	const op = "ChatService.Create"

	if userID == "" {
		return nil, utils.E(utils.CodeUnauthorized, op, "missing user", nil)
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeUnauthorized, op, "user no longer exists", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load user", err)
	}

	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = models.DefaultTopic
	}
	now := s.now().UTC()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		User:      u.Name,
		Topic:     topic,
		Category:  models.DefaultCategory,
		Priority:  models.PriorityMedium,
		StartDate: now,
		Messages: []models.Message{{
			Sender:    models.SenderAssistant,
			Text:      models.GreetingText,
			Timestamp: &now,
		}},
	}
	if err := s.convos.Create(ctx, conv); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create conversation", err)
	}
	return conv, nil
}

// owned loads a conversation and checks that userID owns it.
func (s *chatService) owned(ctx context.Context, op, userID, conversationID string) (*models.Conversation, error) {
	if userID == "" {
		return nil, utils.E(utils.CodeUnauthorized, op, "missing user", nil)
	}
	if conversationID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "conversation id is required", nil)
	}
	conv, err := s.convos.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "conversation not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load conversation", err)
	}
	if conv.UserID != userID {
		return nil, utils.E(utils.CodeForbidden, op, "conversation belongs to another user", nil)
	}
	return conv, nil
}

func (s *chatService) Send(ctx context.Context, userID, conversationID, text string) (*models.SendResult, error) {
	const op = "ChatService.Send"

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "message is required", nil)
	}
	if len(text) > maxMessageLen {
		return nil, utils.E(utils.CodeInvalidArgument, op, "message is too long", nil)
	}

	conv, err := s.owned(ctx, op, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.IsResolved {
		return nil, utils.E(utils.CodeConflict, op, "conversation is resolved", nil)
	}

	sentAt := s.now().UTC()
	userMsg := &models.Message{Sender: models.SenderUser, Text: text, Timestamp: &sentAt}
	if err := s.convos.AppendMessages(ctx, conv.ID, userMsg); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to store message", err)
	}

	log := s.log.WithFields(logrus.Fields{"conversation_id": conv.ID, "user_id": userID})

	var hits []models.ScoredChunk
	if s.retriever != nil {
		hits, err = s.retriever.Retrieve(ctx, text, retrievalDepth)
		if err != nil {
			log.WithError(err).Warn("knowledge retrieval failed; answering ungrounded")
			hits = nil
		}
	}

	prompt := buildPrompt(conv.Messages, hits, text)
	answer, err := llm.Collect(ctx, s.llm, prompt)
	if err != nil || answer == "" {
		metrics.ReplyFailed()
		if err == nil {
			err = errors.New("empty answer")
		}
		return nil, utils.E(utils.CodeUnavailable, op, "assistant is unavailable", err)
	}

	confidence := confidenceOf(hits)
	sources := sourcesOf(hits)
	repliedAt := s.now().UTC()
	reply := &models.Message{
		Sender:     models.SenderAssistant,
		Text:       answer,
		Confidence: &confidence,
		Sources:    sources,
		Timestamp:  &repliedAt,
	}
	if err := s.convos.AppendMessages(ctx, conv.ID, reply); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to store reply", err)
	}

	tokens := len(strings.Fields(prompt)) + len(strings.Fields(answer))
	res := &models.SendResult{
		Message:    answer,
		Confidence: confidence,
		Sources:    sources,
		Metadata: models.ReplyMetadata{
			Tokens: tokens,
			Cost:   math.Round(float64(tokens)*costPerToken*1e6) / 1e6,
		},
		Timestamp: repliedAt,
	}
	metrics.ObserveReply(confidence, res.Metadata.Cost, models.LowConfidence)

	if confidence < models.LowConfidence && s.escalator != nil {
		reason := fmt.Sprintf("low confidence %.2f", confidence)
		if err := s.escalator.Escalate(ctx, conv.ID, reason); err != nil {
			metrics.Escalation("failed")
			log.WithError(err).Warn("escalation enqueue failed")
		} else {
			metrics.Escalation("queued")
		}
	}
	return res, nil
}

func buildPrompt(history []models.Message, hits []models.ScoredChunk, question string) string {
	var b strings.Builder
	if len(hits) > 0 {
		b.WriteString("Knowledge base excerpts:\n")
		for i, h := range hits {
			fmt.Fprintf(&b, "[%d] %s: %s\n", i+1, h.Title, h.Content)
		}
		b.WriteString("\n")
	}

	start := 0
	if len(history) > historyWindow {
		start = len(history) - historyWindow
	}
	if len(history[start:]) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range history[start:] {
			if m.IsError {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", m.Sender, m.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString("Customer question:\n")
	b.WriteString(question)
	return b.String()
}

// confidenceOf is the best retrieval score, or a fixed low value when the
// answer could not be grounded in any document.
func confidenceOf(hits []models.ScoredChunk) float64 {
	if len(hits) == 0 {
		return ungroundedScore
	}
	best := hits[0].Score
	for _, h := range hits[1:] {
		if h.Score > best {
			best = h.Score
		}
	}
	return roundScore(math.Max(0, math.Min(1, best)))
}

func sourcesOf(hits []models.ScoredChunk) []models.Source {
	seen := map[string]bool{}
	var out []models.Source
	for _, h := range hits {
		if seen[h.Title] {
			continue
		}
		seen[h.Title] = true
		out = append(out, models.Source{Title: h.Title, Score: roundScore(h.Score)})
	}
	return out
}

func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}

// Resolve closes an owned conversation. Blank notes are stored as the
// default user resolution text.
func (s *chatService) Resolve(ctx context.Context, userID, conversationID, notes string) (*models.Conversation, error) {
	const op = "ChatService.Resolve"

	conv, err := s.owned(ctx, op, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.IsResolved {
		return nil, utils.E(utils.CodeConflict, op, "conversation is already resolved", nil)
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		notes = models.UserResolvedNotes
	}
	out, err := resolveConversation(ctx, s.convos, op, conv.ID, notes, models.UserResolvedNotice, s.now())
	if err != nil {
		return nil, err
	}
	metrics.Resolved(string(models.RoleUser))
	return out, nil
}

// resolveConversation is shared by the owner and admin flows.
func resolveConversation(ctx context.Context, convos pgrepo.ConversationRepo, op, id, notes, notice string, at time.Time) (*models.Conversation, error) {
	at = at.UTC()
	msg := &models.Message{Sender: models.SenderAssistant, Text: notice, Timestamp: &at}
	if err := convos.Resolve(ctx, id, notes, at, msg); err != nil {
		switch {
		case errors.Is(err, utils.ErrNotFound):
			return nil, utils.E(utils.CodeNotFound, op, "conversation not found", err)
		case errors.Is(err, utils.ErrConflict):
			return nil, utils.E(utils.CodeConflict, op, "conversation is already resolved", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to resolve conversation", err)
	}
	conv, err := convos.GetByID(ctx, id)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to reload conversation", err)
	}
	return conv, nil
}

func (s *chatService) Feedback(ctx context.Context, userID, conversationID string, rating int, comment string) error {
	const op = "ChatService.Feedback"

	if rating < 1 || rating > 5 {
		return utils.E(utils.CodeInvalidArgument, op, "rating must be between 1 and 5", nil)
	}
	conv, err := s.owned(ctx, op, userID, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsResolved {
		return utils.E(utils.CodeConflict, op, "feedback is only accepted on resolved conversations", nil)
	}
	if conv.FeedbackGiven {
		return utils.E(utils.CodeConflict, op, "feedback already submitted", nil)
	}

	if err := s.convos.MarkFeedback(ctx, conv.ID); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return utils.E(utils.CodeConflict, op, "feedback already submitted", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to record feedback", err)
	}
	fb := &models.Feedback{
		ConversationID: conv.ID,
		UserID:         userID,
		Rating:         rating,
		Comment:        strings.TrimSpace(comment),
		CreatedAt:      s.now().UTC(),
	}
	if err := s.feedback.Insert(ctx, fb); err != nil && !errors.Is(err, utils.ErrConflict) {
		return utils.E(utils.CodeInternal, op, "failed to store feedback", err)
	}
	return nil
}

func (s *chatService) Escalate(ctx context.Context, conversationID string) error {
	const op = "ChatService.Escalate"

	if err := s.convos.MarkEscalated(ctx, conversationID); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "conversation not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to escalate conversation", err)
	}
	return nil
}
