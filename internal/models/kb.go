package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NodeType string

const (
	NodeFolder NodeType = "folder"
	NodeFile   NodeType = "file"
)

const (
	DocStatusProcessing = "processing"
	DocStatusIndexed    = "indexed"
	DocStatusFailed     = "failed"
)

// KBNode is one folder or file of the knowledge base tree. Nodes are stored
// flat with a parent pointer; Children is only filled when a tree is built.
type KBNode struct {
	MongoID    primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ID         string             `bson:"node_id" json:"id"`
	ParentID   string             `bson:"parent_id" json:"parentId,omitempty"`
	Name       string             `bson:"name" json:"name"`
	Type       NodeType           `bson:"type" json:"type"`
	ObjectName string             `bson:"object_name,omitempty" json:"-"`
	MimeType   string             `bson:"mime_type,omitempty" json:"mimeType,omitempty"`
	Size       int64              `bson:"size,omitempty" json:"size,omitempty"`
	Category   string             `bson:"category,omitempty" json:"category,omitempty"`
	Status     string             `bson:"status,omitempty" json:"status,omitempty"`
	Chunks     int                `bson:"chunks,omitempty" json:"chunks,omitempty"`
	CreatedAt  time.Time          `bson:"created_at" json:"createdAt"`
	UploadedAt *time.Time         `bson:"uploaded_at,omitempty" json:"uploadedAt,omitempty"`

	Children []*KBNode `bson:"-" json:"children,omitempty"`
}

// DocumentStatus is the indexing state reported for an uploaded file.
type DocumentStatus struct {
	Status string `json:"status"`
	Chunks int    `json:"chunks"`
}

// EmbeddingDim is the width of every stored embedding.
const EmbeddingDim = 256

type KnowledgeChunk struct {
	ID         string          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	DocumentID string          `gorm:"column:document_id;type:text;index" json:"documentId"`
	Title      string          `gorm:"column:title;type:text" json:"title"`
	Content    string          `gorm:"column:content;type:text" json:"content"`
	Terms      pq.StringArray  `gorm:"column:terms;type:text[]" json:"terms"`
	Embedding  pgvector.Vector `gorm:"column:embedding;type:vector(256)" json:"-"`
	CreatedAt  time.Time       `gorm:"column:created_at;type:timestamptz" json:"createdAt"`
}

func (KnowledgeChunk) TableName() string { return "knowledge_chunks" }

// ScoredChunk is a retrieval hit; Score is cosine similarity in [0,1].
type ScoredChunk struct {
	KnowledgeChunk
	Score float64 `gorm:"column:score" json:"score"`
}
