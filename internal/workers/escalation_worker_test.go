package workers

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/yoockh/helpdesk/internal/services"
	"github.com/yoockh/helpdesk/internal/utils"
)

type fakeChat struct {
	services.ChatService
	escalated []string
	err       error
}

func (f *fakeChat) Escalate(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.escalated = append(f.escalated, id)
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestHandleMsgEscalates(t *testing.T) {
	chat := &fakeChat{}
	p := &EscalationWorkerPool{Chat: chat, Logger: quietLogger()}
	p.defaults()

	ack := p.handleMsg(context.Background(), redis.XMessage{
		ID:     "1-0",
		Values: map[string]any{"conversation_id": "C1", "reason": "low confidence 0.50"},
	})
	assert.True(t, ack)
	assert.Equal(t, []string{"C1"}, chat.escalated)
}

func TestHandleMsgAcksMalformedAndMissing(t *testing.T) {
	p := &EscalationWorkerPool{Chat: &fakeChat{}, Logger: quietLogger()}
	assert.True(t, p.handleMsg(context.Background(), redis.XMessage{ID: "1-0", Values: map[string]any{}}))

	gone := &fakeChat{err: utils.E(utils.CodeNotFound, "ChatService.Escalate", "conversation not found", utils.ErrNotFound)}
	p = &EscalationWorkerPool{Chat: gone, Logger: quietLogger()}
	assert.True(t, p.handleMsg(context.Background(), redis.XMessage{ID: "2-0", Values: map[string]any{"conversation_id": "C9"}}))
}

func TestHandleMsgLeavesTransientFailuresPending(t *testing.T) {
	p := &EscalationWorkerPool{Chat: &fakeChat{err: errors.New("db down")}, Logger: quietLogger()}
	assert.False(t, p.handleMsg(context.Background(), redis.XMessage{ID: "3-0", Values: map[string]any{"conversation_id": "C1"}}))
}

func TestDirectEscalator(t *testing.T) {
	chat := &fakeChat{}
	e := &DirectEscalator{Chat: chat}
	assert.NoError(t, e.Escalate(context.Background(), "C2", "low"))
	assert.Equal(t, []string{"C2"}, chat.escalated)
}
