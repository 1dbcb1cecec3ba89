package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}

type Signer interface {
	SignedGetURL(ctx context.Context, objectName string, ttl time.Duration) (string, error)
}

type Remover interface {
	Delete(ctx context.Context, objectName string) error
}

// ObjectStore is everything the knowledge base needs from a bucket.
type ObjectStore interface {
	Uploader
	Signer
	Remover
}

var ErrObjectNotFound = errors.New("object not found")
