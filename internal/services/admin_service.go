package services

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/helpdesk/internal/cache"
	"github.com/yoockh/helpdesk/internal/metrics"
	"github.com/yoockh/helpdesk/internal/models"
	pgrepo "github.com/yoockh/helpdesk/internal/repositories/postgres"
	"github.com/yoockh/helpdesk/internal/utils"
)

// DocumentCounter reports how many files the knowledge base holds.
type DocumentCounter interface {
	CountDocuments(ctx context.Context) (int64, error)
}

type AdminService interface {
	Stats(ctx context.Context) (*models.Stats, error)
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	Resolve(ctx context.Context, conversationID, notes string) (*models.Conversation, error)
}

type adminService struct {
	convos   pgrepo.ConversationRepo
	users    pgrepo.UserRepository
	docs     DocumentCounter
	cache    cache.Cache
	statsTTL time.Duration
	log      *logrus.Entry
	now      func() time.Time
}

func NewAdminService(convos pgrepo.ConversationRepo, users pgrepo.UserRepository, docs DocumentCounter, c cache.Cache, statsTTL time.Duration, log *logrus.Entry) AdminService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &adminService{
		convos:   convos,
		users:    users,
		docs:     docs,
		cache:    c,
		statsTTL: statsTTL,
		log:      log,
		now:      time.Now,
	}
}

func (s *adminService) Stats(ctx context.Context) (*models.Stats, error) {
	const op = "AdminService.Stats"

	if s.cache != nil {
		var cached models.Stats
		hit, err := s.cache.GetJSON(ctx, cache.KeyAdminStats, &cached)
		if err != nil {
			s.log.WithError(err).Warn("stats cache read failed")
		} else if hit {
			return &cached, nil
		}
	}

	st, err := s.convos.Stats(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to compute stats", err)
	}
	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to count users", err)
	}
	st.TotalUsers = int(users)
	if s.docs != nil {
		n, err := s.docs.CountDocuments(ctx)
		if err != nil {
			s.log.WithError(err).Warn("document count failed")
		} else {
			st.TotalDocuments = int(n)
		}
	}

	if s.cache != nil && s.statsTTL > 0 {
		if err := s.cache.SetJSON(ctx, cache.KeyAdminStats, st, s.statsTTL); err != nil {
			s.log.WithError(err).Warn("stats cache write failed")
		}
	}
	return &st, nil
}

func (s *adminService) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	const op = "AdminService.ListConversations"

	rows, err := s.convos.ListAll(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list conversations", err)
	}
	if rows == nil {
		rows = []models.Conversation{}
	}
	return rows, nil
}

func (s *adminService) Resolve(ctx context.Context, conversationID, notes string) (*models.Conversation, error) {
	const op = "AdminService.Resolve"

	if conversationID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "conversation id is required", nil)
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		notes = models.AdminResolvedNotes
	}

	conv, err := resolveConversation(ctx, s.convos, op, conversationID, notes, models.AdminResolvedNotice(notes), s.now())
	if err != nil {
		return nil, err
	}
	metrics.Resolved(string(models.RoleAdmin))
	s.invalidateStats(ctx)
	return conv, nil
}

func (s *adminService) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cache.KeyAdminStats); err != nil {
		s.log.WithError(err).Warn("stats cache invalidation failed")
	}
}
