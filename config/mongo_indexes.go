package config

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureMongoIndexes(db *mongo.Database) error {
	if db == nil {
		return errors.New("mongo database is nil; call InitMongo() first")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	nodes := db.Collection("kb_nodes")
	_, err := nodes.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "node_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_node_id").
				SetUnique(true),
		},
		// sibling names are unique within a folder
		{
			Keys: bson.D{{Key: "parent_id", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().
				SetName("uniq_parent_name").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "type", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("by_type_created"),
		},
	})
	return err
}
