package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/helpdesk/internal/models"
	pgrepo "github.com/yoockh/helpdesk/internal/repositories/postgres"
	"github.com/yoockh/helpdesk/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Conversation{}, &models.Message{}, &models.Feedback{}))
	return db
}

type repos struct {
	users    pgrepo.UserRepository
	convos   pgrepo.ConversationRepo
	feedback pgrepo.FeedbackRepository
}

func newRepos(t *testing.T) repos {
	db := newTestDB(t)
	return repos{
		users:    pgrepo.NewUserRepo(db),
		convos:   pgrepo.NewConversationRepo(db),
		feedback: pgrepo.NewFeedbackRepo(db),
	}
}

func seedUser(t *testing.T, r pgrepo.UserRepository, name, email, password string, role models.UserRole) *models.User {
	t.Helper()
	hash, err := utils.HashPassword(password)
	require.NoError(t, err)
	u := &models.User{Name: name, Email: email, PasswordHash: hash, Role: role, CreatedAt: time.Now().UTC()}
	require.NoError(t, r.Create(context.Background(), u))
	return u
}

type stubLLM struct {
	answer string
	err    error
	last   string
}

func (s *stubLLM) Close() error { return nil }

func (s *stubLLM) StreamAnswer(_ context.Context, prompt string) (<-chan string, <-chan error) {
	s.last = prompt
	out := make(chan string, 1)
	errs := make(chan error, 1)
	if s.err != nil {
		errs <- s.err
	} else {
		out <- s.answer
	}
	close(errs)
	close(out)
	return out, errs
}

type retrieverFunc func(ctx context.Context, query string, k int) ([]models.ScoredChunk, error)

func (f retrieverFunc) Retrieve(ctx context.Context, query string, k int) ([]models.ScoredChunk, error) {
	return f(ctx, query, k)
}

type recordingEscalator struct {
	mu  sync.Mutex
	ids []string
}

func (e *recordingEscalator) Escalate(_ context.Context, id, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, id)
	return nil
}

// memoryNodes is an in-process KBRepository.
type memoryNodes struct {
	mu    sync.Mutex
	nodes map[string]models.KBNode
}

func newMemoryNodes() *memoryNodes { return &memoryNodes{nodes: map[string]models.KBNode{}} }

func (m *memoryNodes) sibling(parentID, name, except string) bool {
	for _, n := range m.nodes {
		if n.ParentID == parentID && n.Name == name && n.ID != except {
			return true
		}
	}
	return false
}

func (m *memoryNodes) Insert(_ context.Context, n *models.KBNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sibling(n.ParentID, n.Name, "") {
		return utils.ErrConflict
	}
	m.nodes[n.ID] = *n
	return nil
}

func (m *memoryNodes) Get(_ context.Context, id string) (*models.KBNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return &n, nil
}

func (m *memoryNodes) List(context.Context) ([]models.KBNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.KBNode, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryNodes) Rename(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok {
		return utils.ErrNotFound
	}
	if m.sibling(n.ParentID, name, id) {
		return utils.ErrConflict
	}
	n.Name = name
	m.nodes[id] = n
	return nil
}

func (m *memoryNodes) SetStatus(_ context.Context, id, status string, chunks int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.nodes[id]
	n.Status = status
	n.Chunks = chunks
	m.nodes[id] = n
	return nil
}

func (m *memoryNodes) DeleteMany(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.nodes, id)
	}
	return nil
}

func (m *memoryNodes) CountFiles(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, node := range m.nodes {
		if node.Type == models.NodeFile {
			n++
		}
	}
	return n, nil
}

// memoryChunks scores by shared terms instead of vector distance.
type memoryChunks struct {
	mu     sync.Mutex
	chunks []models.KnowledgeChunk
	calls  [][]string
}

func (m *memoryChunks) InsertBatch(_ context.Context, chunks []models.KnowledgeChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *memoryChunks) DeleteByDocuments(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := map[string]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if !drop[c.DocumentID] {
			kept = append(kept, c)
		}
	}
	m.chunks = kept
	return nil
}

func (m *memoryChunks) CountByDocument(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.chunks {
		if c.DocumentID == id {
			n++
		}
	}
	return n, nil
}

func (m *memoryChunks) Search(_ context.Context, _ []float32, terms []string, limit int) ([]models.ScoredChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, terms)

	var out []models.ScoredChunk
	for _, c := range m.chunks {
		shared := 0
		for _, t := range terms {
			for _, ct := range c.Terms {
				if t == ct {
					shared++
					break
				}
			}
		}
		if len(terms) > 0 && shared == 0 {
			continue
		}
		score := 0.1
		if len(terms) > 0 {
			score = float64(shared) / float64(len(terms))
		}
		out = append(out, models.ScoredChunk{KnowledgeChunk: c, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
