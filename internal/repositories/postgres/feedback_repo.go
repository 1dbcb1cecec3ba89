package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/yoockh/helpdesk/internal/models"
	"github.com/yoockh/helpdesk/internal/utils"
	"gorm.io/gorm"
)

type FeedbackRepository interface {
	Insert(ctx context.Context, f *models.Feedback) error
	GetByConversation(ctx context.Context, conversationID string) (*models.Feedback, error)
}

type feedbackRepo struct {
	db *gorm.DB
}

func NewFeedbackRepo(db *gorm.DB) FeedbackRepository {
	return &feedbackRepo{db: db}
}

func (r *feedbackRepo) Insert(ctx context.Context, f *models.Feedback) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	err := r.db.WithContext(ctx).Create(f).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return utils.ErrConflict
	}
	return err
}

func (r *feedbackRepo) GetByConversation(ctx context.Context, conversationID string) (*models.Feedback, error) {
	var f models.Feedback
	err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Take(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &f, err
}
