package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/helpdesk/internal/models"
	"github.com/yoockh/helpdesk/internal/providers/embed"
	mongorepo "github.com/yoockh/helpdesk/internal/repositories/mongo"
	pgrepo "github.com/yoockh/helpdesk/internal/repositories/postgres"
	"github.com/yoockh/helpdesk/internal/storage"
	"github.com/yoockh/helpdesk/internal/utils"
)

const (
	MaxUploadBytes = 10 << 20

	chunkChars    = 800
	chunkTerms    = 64
	queryTerms    = 16
	indexTimeout  = 2 * time.Minute
	downloadTTL   = 15 * time.Minute
	maxNodeName   = 255
	objectsPrefix = "kb/"
)

type KBService interface {
	Tree(ctx context.Context) ([]*models.KBNode, error)
	CreateFolder(ctx context.Context, parentID, name string) (*models.KBNode, error)
	Upload(ctx context.Context, parentID, filename, mimeType, category string, r io.Reader) (*models.KBNode, error)
	Status(ctx context.Context, id string) (*models.DocumentStatus, error)
	Rename(ctx context.Context, id, name string) (*models.KBNode, error)
	Delete(ctx context.Context, id string) error
	DownloadURL(ctx context.Context, id string) (string, error)

	Retriever
	DocumentCounter
}

type KBDeps struct {
	Nodes    mongorepo.KBRepository
	Chunks   pgrepo.ChunkRepository
	Objects  storage.ObjectStore
	Embedder embed.Embedder
	Logger   *logrus.Entry

	// Async indexes uploads in the background; Status reports progress.
	Async bool
}

type kbService struct {
	nodes    mongorepo.KBRepository
	chunks   pgrepo.ChunkRepository
	objects  storage.ObjectStore
	embedder embed.Embedder
	log      *logrus.Entry
	async    bool
	now      func() time.Time
}

func NewKBService(d KBDeps) KBService {
	log := d.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	emb := d.Embedder
	if emb == nil {
		emb = embed.NewHashing(models.EmbeddingDim)
	}
	return &kbService{
		nodes:    d.Nodes,
		chunks:   d.Chunks,
		objects:  d.Objects,
		embedder: emb,
		log:      log,
		async:    d.Async,
		now:      time.Now,
	}
}

func cleanName(op, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "", utils.E(utils.CodeInvalidArgument, op, "name is required", nil)
	}
	if strings.ContainsAny(name, "/\\") {
		return "", utils.E(utils.CodeInvalidArgument, op, "name must not contain slashes", nil)
	}
	if len(name) > maxNodeName {
		return "", utils.E(utils.CodeInvalidArgument, op, "name is too long", nil)
	}
	return name, nil
}

func (s *kbService) Tree(ctx context.Context) ([]*models.KBNode, error) {
	const op = "KBService.Tree"

	rows, err := s.nodes.List(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list knowledge base", err)
	}
	return BuildTree(rows), nil
}

// BuildTree links flat nodes by parent id. Orphans are attached at the root;
// folders sort before files, then by name.
func BuildTree(rows []models.KBNode) []*models.KBNode {
	byID := make(map[string]*models.KBNode, len(rows))
	for i := range rows {
		n := rows[i]
		n.Children = nil
		byID[n.ID] = &n
	}

	roots := []*models.KBNode{}
	for i := range rows {
		n := byID[rows[i].ID]
		parent, ok := byID[n.ParentID]
		if n.ParentID == "" || !ok || parent.Type != models.NodeFolder {
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}

	var sortLevel func(ns []*models.KBNode)
	sortLevel = func(ns []*models.KBNode) {
		sort.SliceStable(ns, func(i, j int) bool {
			if ns[i].Type != ns[j].Type {
				return ns[i].Type == models.NodeFolder
			}
			return strings.ToLower(ns[i].Name) < strings.ToLower(ns[j].Name)
		})
		for _, n := range ns {
			sortLevel(n.Children)
		}
	}
	sortLevel(roots)
	return roots
}

func (s *kbService) checkParent(ctx context.Context, op, parentID string) error {
	if parentID == "" {
		return nil
	}
	parent, err := s.nodes.Get(ctx, parentID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "parent folder not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to load parent folder", err)
	}
	if parent.Type != models.NodeFolder {
		return utils.E(utils.CodeInvalidArgument, op, "parent is not a folder", nil)
	}
	return nil
}

func (s *kbService) CreateFolder(ctx context.Context, parentID, name string) (*models.KBNode, error) {
	const op = "KBService.CreateFolder"

	name, err := cleanName(op, name)
	if err != nil {
		return nil, err
	}
	if err := s.checkParent(ctx, op, parentID); err != nil {
		return nil, err
	}

	n := &models.KBNode{
		ID:        uuid.NewString(),
		ParentID:  parentID,
		Name:      name,
		Type:      models.NodeFolder,
		CreatedAt: s.now().UTC(),
	}
	if err := s.nodes.Insert(ctx, n); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return nil, utils.E(utils.CodeConflict, op, "a node with that name already exists", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to create folder", err)
	}
	return n, nil
}

func (s *kbService) Upload(ctx context.Context, parentID, filename, mimeType, category string, r io.Reader) (*models.KBNode, error) {
	const op = "KBService.Upload"

	name, err := cleanName(op, path.Base(strings.ReplaceAll(filename, "\\", "/")))
	if err != nil {
		return nil, err
	}
	if err := s.checkParent(ctx, op, parentID); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "failed to read upload", err)
	}
	if len(data) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "file is empty", nil)
	}
	if len(data) > MaxUploadBytes {
		return nil, utils.E(utils.CodeInvalidArgument, op, "file exceeds 10MB", nil)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if strings.TrimSpace(category) == "" {
		category = models.DefaultCategory
	}

	id := uuid.NewString()
	objectName := objectsPrefix + id + "/" + name
	if _, err := s.objects.Upload(ctx, objectName, mimeType, bytes.NewReader(data)); err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to store file", err)
	}

	now := s.now().UTC()
	n := &models.KBNode{
		ID:         id,
		ParentID:   parentID,
		Name:       name,
		Type:       models.NodeFile,
		ObjectName: objectName,
		MimeType:   mimeType,
		Size:       int64(len(data)),
		Category:   strings.TrimSpace(category),
		Status:     models.DocStatusProcessing,
		CreatedAt:  now,
		UploadedAt: &now,
	}
	if err := s.nodes.Insert(ctx, n); err != nil {
		_ = s.objects.Delete(ctx, objectName)
		if errors.Is(err, utils.ErrConflict) {
			return nil, utils.E(utils.CodeConflict, op, "a node with that name already exists", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to record file", err)
	}

	if s.async {
		bg := *n
		go func() {
			ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), indexTimeout)
			defer cancel()
			s.index(ictx, &bg, data)
		}()
		return n, nil
	}
	s.index(ctx, n, data)
	return n, nil
}

// index chunks, embeds and stores the document text, then records the outcome
// on the node. n is updated in place.
func (s *kbService) index(ctx context.Context, n *models.KBNode, data []byte) {
	log := s.log.WithFields(logrus.Fields{"document_id": n.ID, "name": n.Name})

	status := models.DocStatusIndexed
	count := 0
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		log.Warn("document is not text; skipping indexing")
		status = models.DocStatusFailed
	} else {
		title := strings.TrimSuffix(n.Name, path.Ext(n.Name))
		pieces := SplitChunks(string(data), chunkChars)
		rows := make([]models.KnowledgeChunk, 0, len(pieces))
		for _, p := range pieces {
			rows = append(rows, models.KnowledgeChunk{
				ID:         uuid.NewString(),
				DocumentID: n.ID,
				Title:      title,
				Content:    p,
				Terms:      embed.UniqueTerms(p, chunkTerms),
				Embedding:  pgvector.NewVector(s.embedder.Embed(p)),
				CreatedAt:  s.now().UTC(),
			})
		}
		if err := s.chunks.InsertBatch(ctx, rows); err != nil {
			log.WithError(err).Error("chunk insert failed")
			status = models.DocStatusFailed
		} else {
			count = len(rows)
		}
	}

	if err := s.nodes.SetStatus(ctx, n.ID, status, count); err != nil {
		log.WithError(err).Error("status update failed")
		return
	}
	n.Status = status
	n.Chunks = count
	log.WithField("chunks", count).Info("document indexed")
}

// SplitChunks groups paragraphs into pieces of at most size characters.
// A single paragraph longer than size is cut on word boundaries.
func SplitChunks(text string, size int) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	var cur strings.Builder

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(para)+2 > size {
			flush()
		}
		if len(para) <= size {
			if cur.Len() > 0 {
				cur.WriteString("\n\n")
			}
			cur.WriteString(para)
			continue
		}
		for _, w := range strings.Fields(para) {
			if cur.Len() > 0 && cur.Len()+len(w)+1 > size {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			cur.WriteString(w)
		}
	}
	flush()
	return out
}

func (s *kbService) file(ctx context.Context, op, id string) (*models.KBNode, error) {
	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "id is required", nil)
	}
	n, err := s.nodes.Get(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "document not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load document", err)
	}
	return n, nil
}

func (s *kbService) Status(ctx context.Context, id string) (*models.DocumentStatus, error) {
	const op = "KBService.Status"

	n, err := s.file(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if n.Type != models.NodeFile {
		return nil, utils.E(utils.CodeInvalidArgument, op, "folders have no status", nil)
	}
	return &models.DocumentStatus{Status: n.Status, Chunks: n.Chunks}, nil
}

func (s *kbService) Rename(ctx context.Context, id, name string) (*models.KBNode, error) {
	const op = "KBService.Rename"

	name, err := cleanName(op, name)
	if err != nil {
		return nil, err
	}
	n, err := s.file(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if err := s.nodes.Rename(ctx, id, name); err != nil {
		switch {
		case errors.Is(err, utils.ErrConflict):
			return nil, utils.E(utils.CodeConflict, op, "a node with that name already exists", err)
		case errors.Is(err, utils.ErrNotFound):
			return nil, utils.E(utils.CodeNotFound, op, "document not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to rename", err)
	}
	n.Name = name
	return n, nil
}

func (s *kbService) Delete(ctx context.Context, id string) error {
	const op = "KBService.Delete"

	root, err := s.file(ctx, op, id)
	if err != nil {
		return err
	}
	all, err := s.nodes.List(ctx)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to list knowledge base", err)
	}

	children := map[string][]models.KBNode{}
	for _, n := range all {
		children[n.ParentID] = append(children[n.ParentID], n)
	}

	var ids, fileIDs []string
	var objects []string
	queue := []models.KBNode{*root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		ids = append(ids, n.ID)
		if n.Type == models.NodeFile {
			fileIDs = append(fileIDs, n.ID)
			if n.ObjectName != "" {
				objects = append(objects, n.ObjectName)
			}
			continue
		}
		queue = append(queue, children[n.ID]...)
	}

	for _, obj := range objects {
		if err := s.objects.Delete(ctx, obj); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			return utils.E(utils.CodeUnavailable, op, "failed to delete stored file", err)
		}
	}
	if err := s.chunks.DeleteByDocuments(ctx, fileIDs); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to delete document index", err)
	}
	if err := s.nodes.DeleteMany(ctx, ids); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to delete nodes", err)
	}
	return nil
}

func (s *kbService) DownloadURL(ctx context.Context, id string) (string, error) {
	const op = "KBService.DownloadURL"

	n, err := s.file(ctx, op, id)
	if err != nil {
		return "", err
	}
	if n.Type != models.NodeFile || n.ObjectName == "" {
		return "", utils.E(utils.CodeInvalidArgument, op, "only files can be downloaded", nil)
	}
	u, err := s.objects.SignedGetURL(ctx, n.ObjectName, downloadTTL)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", utils.E(utils.CodeNotFound, op, "stored file is missing", err)
		}
		return "", utils.E(utils.CodeUnavailable, op, "failed to sign download url", err)
	}
	return u, nil
}

func (s *kbService) Retrieve(ctx context.Context, query string, k int) ([]models.ScoredChunk, error) {
	const op = "KBService.Retrieve"

	terms := embed.UniqueTerms(query, queryTerms)
	if len(terms) == 0 {
		return nil, nil
	}
	vec := s.embedder.Embed(query)

	hits, err := s.chunks.Search(ctx, vec, terms, k)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "knowledge search failed", err)
	}
	if len(hits) > 0 {
		return hits, nil
	}
	hits, err = s.chunks.Search(ctx, vec, nil, k)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "knowledge search failed", err)
	}
	return hits, nil
}

func (s *kbService) CountDocuments(ctx context.Context) (int64, error) {
	return s.nodes.CountFiles(ctx)
}
