package workers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/helpdesk/internal/metrics"
	"github.com/yoockh/helpdesk/internal/services"
	"github.com/yoockh/helpdesk/internal/utils"
)

const (
	DefaultStream = "escalation:stream"
	DefaultGroup  = "escalation-workers"
)

// StreamEscalator queues escalations on a Redis stream.
type StreamEscalator struct {
	Redis  *redis.Client
	Stream string
}

func (e *StreamEscalator) Escalate(ctx context.Context, conversationID, reason string) error {
	stream := e.Stream
	if stream == "" {
		stream = DefaultStream
	}
	return e.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"conversation_id": conversationID,
			"reason":          reason,
			"queued_at":       time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Err()
}

// DirectEscalator applies escalations inline. It is used when Redis is not configured.
type DirectEscalator struct {
	Chat   services.ChatService
	Logger *logrus.Entry
}

func (e *DirectEscalator) Escalate(ctx context.Context, conversationID, reason string) error {
	if err := e.Chat.Escalate(ctx, conversationID); err != nil {
		return err
	}
	metrics.Escalation("applied")
	if e.Logger != nil {
		e.Logger.WithFields(logrus.Fields{"conversation_id": conversationID, "reason": reason}).Info("conversation escalated")
	}
	return nil
}

// EscalationWorkerPool consumes the escalation stream in a consumer group and
// flags each conversation for human follow-up.
type EscalationWorkerPool struct {
	Redis      *redis.Client
	Chat       services.ChatService
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *EscalationWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Chat == nil {
		return errors.New("EscalationWorkerPool missing dependency: Redis/Chat must be set")
	}
	p.defaults()

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *EscalationWorkerPool) defaults() {
	if p.Stream == "" {
		p.Stream = DefaultStream
	}
	if p.Group == "" {
		p.Group = DefaultGroup
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}
}

func (p *EscalationWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				if p.handleMsg(ctx, msg) {
					_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
				}
			}
		}
	}
}

// handleMsg reports whether the message is done with and can be acked.
// Transient failures leave it pending for redelivery.
func (p *EscalationWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) bool {
	getStr := func(k string) string {
		v, ok := msg.Values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	conversationID := getStr("conversation_id")
	if conversationID == "" {
		return true
	}

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":        msg.ID,
		"conversation_id": conversationID,
		"reason":          getStr("reason"),
	})

	if err := p.Chat.Escalate(ctx, conversationID); err != nil {
		if utils.IsCode(err, utils.CodeNotFound) {
			log.Warn("escalated conversation no longer exists")
			return true
		}
		metrics.Escalation("failed")
		log.WithError(err).Error("escalation failed")
		return false
	}
	metrics.Escalation("applied")
	log.Info("conversation escalated")
	return true
}
