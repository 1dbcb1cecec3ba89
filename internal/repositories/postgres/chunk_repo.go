package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/yoockh/helpdesk/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChunkRepository interface {
	InsertBatch(ctx context.Context, chunks []models.KnowledgeChunk) error
	DeleteByDocuments(ctx context.Context, documentIDs []string) error
	CountByDocument(ctx context.Context, documentID string) (int64, error)
	// Search orders by cosine distance. When terms is non-empty only chunks
	// sharing at least one term are considered.
	Search(ctx context.Context, embedding []float32, terms []string, limit int) ([]models.ScoredChunk, error)
}

type chunkRepo struct {
	db *gorm.DB
}

func NewChunkRepo(db *gorm.DB) ChunkRepository {
	return &chunkRepo{db: db}
}

func (r *chunkRepo) InsertBatch(ctx context.Context, chunks []models.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i := range chunks {
		if chunks[i].ID == "" {
			chunks[i].ID = uuid.NewString()
		}
	}
	return r.db.WithContext(ctx).CreateInBatches(chunks, 100).Error
}

func (r *chunkRepo) DeleteByDocuments(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("document_id IN ?", documentIDs).
		Delete(&models.KnowledgeChunk{}).Error
}

func (r *chunkRepo) CountByDocument(ctx context.Context, documentID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.KnowledgeChunk{}).
		Where("document_id = ?", documentID).
		Count(&n).Error
	return n, err
}

func (r *chunkRepo) Search(ctx context.Context, embedding []float32, terms []string, limit int) ([]models.ScoredChunk, error) {
	if limit <= 0 {
		limit = 3
	}
	vec := pgvector.NewVector(embedding)

	q := r.db.WithContext(ctx).Model(&models.KnowledgeChunk{}).
		Select("id, document_id, title, content, terms, created_at, 1 - (embedding <=> ?) AS score", vec)
	if len(terms) > 0 {
		q = q.Where("terms && ?", pq.Array(terms))
	}

	var rows []models.ScoredChunk
	err := q.Order(clause.Expr{SQL: "embedding <=> ?", Vars: []any{vec}}).
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}
