package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/yoockh/helpdesk/internal/models"
	"github.com/yoockh/helpdesk/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepo interface {
	Create(ctx context.Context, c *models.Conversation) error
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	ListByUser(ctx context.Context, userID string) ([]models.Conversation, error)
	ListAll(ctx context.Context) ([]models.Conversation, error)
	AppendMessages(ctx context.Context, conversationID string, msgs ...*models.Message) error
	Resolve(ctx context.Context, id, notes string, at time.Time, notice *models.Message) error
	MarkFeedback(ctx context.Context, id string) error
	MarkEscalated(ctx context.Context, id string) error
	Stats(ctx context.Context) (models.Stats, error)
}

type conversationRepo struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepo{db: db}
}

func orderedMessages(db *gorm.DB) *gorm.DB {
	return db.Order("seq ASC")
}

func (r *conversationRepo) Create(ctx context.Context, c *models.Conversation) error {
	for i := range c.Messages {
		if c.Messages[i].ID == "" {
			c.Messages[i].ID = uuid.NewString()
		}
		c.Messages[i].ConversationID = c.ID
		c.Messages[i].Seq = int64(i + 1)
	}
	err := r.db.WithContext(ctx).Create(c).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return utils.ErrConflict
	}
	return err
}

func (r *conversationRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	var row models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Messages", orderedMessages).
		Where("id = ?", id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *conversationRepo) ListByUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	var rows []models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Messages", orderedMessages).
		Where("user_id = ?", userID).
		Order("start_date DESC").
		Find(&rows).Error
	return rows, err
}

func (r *conversationRepo) ListAll(ctx context.Context) ([]models.Conversation, error) {
	var rows []models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Messages", orderedMessages).
		Order("start_date DESC").
		Find(&rows).Error
	return rows, err
}

// AppendMessages locks the conversation row and numbers the new messages
// after the current tail.
func (r *conversationRepo) AppendMessages(ctx context.Context, conversationID string, msgs ...*models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return appendLocked(tx, conversationID, msgs)
	})
}

func appendLocked(tx *gorm.DB, conversationID string, msgs []*models.Message) error {
	var conv models.Conversation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", conversationID).
		Take(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrNotFound
	}
	if err != nil {
		return err
	}

	var tail int64
	if err := tx.Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&tail).Error; err != nil {
		return err
	}

	for i, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.ConversationID = conversationID
		m.Seq = tail + int64(i) + 1
	}
	return tx.Create(msgs).Error
}

// Resolve flips an open conversation to resolved exactly once and appends
// the resolution notice. A second call returns utils.ErrConflict.
func (r *conversationRepo) Resolve(ctx context.Context, id, notes string, at time.Time, notice *models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Conversation{}).
			Where("id = ? AND is_resolved = ?", id, false).
			Updates(map[string]any{
				"is_resolved":      true,
				"resolved_date":    at.UTC(),
				"resolution_notes": notes,
				"feedback_given":   false,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missingOrConflict(tx, id)
		}
		if notice == nil {
			return nil
		}
		return appendLocked(tx, id, []*models.Message{notice})
	})
}

func (r *conversationRepo) MarkFeedback(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND is_resolved = ? AND feedback_given = ?", id, true, false).
		Update("feedback_given", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return missingOrConflict(r.db.WithContext(ctx), id)
	}
	return nil
}

func (r *conversationRepo) MarkEscalated(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{"escalated": true, "priority": models.PriorityHigh})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func missingOrConflict(db *gorm.DB, id string) error {
	var n int64
	if err := db.Model(&models.Conversation{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return utils.ErrNotFound
	}
	return utils.ErrConflict
}

func (r *conversationRepo) Stats(ctx context.Context) (models.Stats, error) {
	db := r.db.WithContext(ctx)
	var total, resolved, assistantMsgs, assisted int64

	if err := db.Model(&models.Conversation{}).Count(&total).Error; err != nil {
		return models.Stats{}, err
	}
	if err := db.Model(&models.Conversation{}).Where("is_resolved = ?", true).Count(&resolved).Error; err != nil {
		return models.Stats{}, err
	}
	assistant := db.Model(&models.Message{}).Where("sender = ?", models.SenderAssistant)
	if err := assistant.Session(&gorm.Session{}).Count(&assistantMsgs).Error; err != nil {
		return models.Stats{}, err
	}
	if err := assistant.Session(&gorm.Session{}).Distinct("conversation_id").Count(&assisted).Error; err != nil {
		return models.Stats{}, err
	}

	return models.Stats{
		Open:       int(total - resolved),
		Resolved:   int(resolved),
		Total:      int(total),
		AIAssisted: int(assisted),
		AICost:     float64(assistantMsgs) * models.CostPerAssistantMessage,
	}, nil
}
