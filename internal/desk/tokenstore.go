package desk

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yoockh/helpdesk/internal/models"
	bolt "go.etcd.io/bbolt"
)

// StoredSession is what survives a restart: the bearer token and the profile
// it was issued for.
type StoredSession struct {
	Token   string      `json:"token"`
	User    models.User `json:"user"`
	SavedAt time.Time   `json:"savedAt"`
}

// TokenStore persists at most one session. Load returns (nil, nil) when
// nothing is stored.
type TokenStore interface {
	Load() (*StoredSession, error)
	Save(s StoredSession) error
	Clear() error
}

var (
	bucketSession = []byte("session")
	keyCurrent    = []byte("current")
)

// BoltTokenStore keeps the session in a bbolt file.
type BoltTokenStore struct {
	db *bolt.DB
}

func OpenBoltTokenStore(path string) (*BoltTokenStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSession)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltTokenStore{db: db}, nil
}

func (s *BoltTokenStore) Close() error { return s.db.Close() }

func (s *BoltTokenStore) Load() (*StoredSession, error) {
	var out *StoredSession
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSession)
		if b == nil {
			return nil
		}
		data := b.Get(keyCurrent)
		if data == nil {
			return nil
		}
		var ss StoredSession
		if err := json.Unmarshal(data, &ss); err != nil {
			return err
		}
		out = &ss
		return nil
	})
	return out, err
}

func (s *BoltTokenStore) Save(ss StoredSession) error {
	data, err := json.Marshal(ss)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSession)
		if b == nil {
			return errors.New("session bucket missing")
		}
		return b.Put(keyCurrent, data)
	})
}

func (s *BoltTokenStore) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSession)
		if b == nil {
			return nil
		}
		return b.Delete(keyCurrent)
	})
}

type MemoryTokenStore struct {
	mu sync.Mutex
	s  *StoredSession
}

func (m *MemoryTokenStore) Load() (*StoredSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s == nil {
		return nil, nil
	}
	cp := *m.s
	return &cp, nil
}

func (m *MemoryTokenStore) Save(s StoredSession) error {
	m.mu.Lock()
	m.s = &s
	m.mu.Unlock()
	return nil
}

func (m *MemoryTokenStore) Clear() error {
	m.mu.Lock()
	m.s = nil
	m.mu.Unlock()
	return nil
}
