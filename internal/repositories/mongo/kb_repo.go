package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/helpdesk/internal/models"
	"github.com/yoockh/helpdesk/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// KBRepository stores knowledge base nodes flat, linked by parent id.
type KBRepository interface {
	Insert(ctx context.Context, n *models.KBNode) error
	Get(ctx context.Context, id string) (*models.KBNode, error)
	List(ctx context.Context) ([]models.KBNode, error)
	Rename(ctx context.Context, id, name string) error
	SetStatus(ctx context.Context, id, status string, chunks int) error
	DeleteMany(ctx context.Context, ids []string) error
	CountFiles(ctx context.Context) (int64, error)
}

type kbRepo struct {
	col *mongo.Collection
}

func NewKBRepo(db *mongo.Database) KBRepository {
	return &kbRepo{col: db.Collection("kb_nodes")}
}

func (r *kbRepo) Insert(ctx context.Context, n *models.KBNode) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, n)
	if mongo.IsDuplicateKeyError(err) {
		return utils.ErrConflict
	}
	return err
}

func (r *kbRepo) Get(ctx context.Context, id string) (*models.KBNode, error) {
	var n models.KBNode
	err := r.col.FindOne(ctx, bson.M{"node_id": id}).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &n, err
}

func (r *kbRepo) List(ctx context.Context) ([]models.KBNode, error) {
	opts := options.Find().SetSort(bson.D{{Key: "type", Value: -1}, {Key: "name", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.KBNode
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *kbRepo) Rename(ctx context.Context, id, name string) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"node_id": id},
		bson.M{"$set": bson.M{"name": name}},
	)
	if mongo.IsDuplicateKeyError(err) {
		return utils.ErrConflict
	}
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *kbRepo) SetStatus(ctx context.Context, id, status string, chunks int) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"node_id": id},
		bson.M{"$set": bson.M{"status": status, "chunks": chunks}},
	)
	return err
}

func (r *kbRepo) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.col.DeleteMany(ctx, bson.M{"node_id": bson.M{"$in": ids}})
	return err
}

func (r *kbRepo) CountFiles(ctx context.Context) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{"type": models.NodeFile})
}
