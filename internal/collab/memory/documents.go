package memory

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/yoockh/helpdesk/internal/models"
	"github.com/yoockh/helpdesk/internal/services"
)

const chunkChars = 800

// documents is the Backend seen through collab.Documents. Uploads are
// indexed synchronously and kept in a memory object store.
type documents struct{ b *Backend }

// lockAdmin waits the delay and returns with the lock held for an admin caller.
func (d documents) lockAdmin(ctx context.Context, op string) error {
	if err := d.b.delay(ctx); err != nil {
		return err
	}
	d.b.mu.Lock()
	if err := d.b.requireAdmin(op); err != nil {
		d.b.mu.Unlock()
		return err
	}
	return nil
}

func (d documents) GetKnowledgeBase(ctx context.Context) ([]*models.KBNode, error) {
	if err := d.lockAdmin(ctx, "kb.structure"); err != nil {
		return nil, err
	}
	defer d.b.mu.Unlock()

	rows := make([]models.KBNode, 0, len(d.b.nodes))
	for _, n := range d.b.nodes {
		rows = append(rows, n)
	}
	return services.BuildTree(rows), nil
}

// parentOK must be called with the lock held.
func (d documents) parentOK(op, parentID string) error {
	if parentID == "" {
		return nil
	}
	p, ok := d.b.nodes[parentID]
	if !ok {
		return remote(op, http.StatusNotFound, "parent folder not found")
	}
	if p.Type != models.NodeFolder {
		return remote(op, http.StatusBadRequest, "parent is not a folder")
	}
	return nil
}

func (d documents) CreateFolder(ctx context.Context, parentID, name string) (*models.KBNode, error) {
	const op = "kb.create_folder"
	if err := d.lockAdmin(ctx, op); err != nil {
		return nil, err
	}
	defer d.b.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, remote(op, http.StatusBadRequest, "name is required")
	}
	if err := d.parentOK(op, parentID); err != nil {
		return nil, err
	}
	n := models.KBNode{
		ID:        uuid.NewString(),
		ParentID:  parentID,
		Name:      name,
		Type:      models.NodeFolder,
		CreatedAt: d.b.opts.Now().UTC(),
	}
	d.b.nodes[n.ID] = n
	return &n, nil
}

func (d documents) Upload(ctx context.Context, parentID, filename, category string, r io.Reader) (*models.KBNode, error) {
	const op = "kb.upload"
	data, err := io.ReadAll(io.LimitReader(r, services.MaxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > services.MaxUploadBytes {
		return nil, remote(op, http.StatusRequestEntityTooLarge, "file is too large")
	}
	name := path.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == "/" {
		return nil, remote(op, http.StatusBadRequest, "file name is required")
	}

	if err := d.lockAdmin(ctx, op); err != nil {
		return nil, err
	}
	defer d.b.mu.Unlock()

	if err := d.parentOK(op, parentID); err != nil {
		return nil, err
	}
	now := d.b.opts.Now().UTC()
	n := models.KBNode{
		ID:         uuid.NewString(),
		ParentID:   parentID,
		Name:       name,
		Type:       models.NodeFile,
		Size:       int64(len(data)),
		Category:   category,
		CreatedAt:  now,
		UploadedAt: &now,
	}
	n.ObjectName = "kb/" + n.ID + "/" + name
	if _, err := d.b.objects.Upload(ctx, n.ObjectName, "", bytes.NewReader(data)); err != nil {
		return nil, err
	}
	if utf8.Valid(data) && !strings.ContainsRune(string(data), 0) {
		n.Status = models.DocStatusIndexed
		n.Chunks = len(services.SplitChunks(string(data), chunkChars))
	} else {
		n.Status = models.DocStatusFailed
	}
	d.b.nodes[n.ID] = n
	return &n, nil
}

func (d documents) file(op, id string) (models.KBNode, error) {
	n, ok := d.b.nodes[id]
	if !ok || n.Type != models.NodeFile {
		return n, remote(op, http.StatusNotFound, "document not found")
	}
	return n, nil
}

func (d documents) Status(ctx context.Context, documentID string) (*models.DocumentStatus, error) {
	const op = "kb.status"
	if err := d.lockAdmin(ctx, op); err != nil {
		return nil, err
	}
	defer d.b.mu.Unlock()

	n, err := d.file(op, documentID)
	if err != nil {
		return nil, err
	}
	return &models.DocumentStatus{Status: n.Status, Chunks: n.Chunks}, nil
}

func (d documents) Rename(ctx context.Context, documentID, newName string) error {
	const op = "kb.rename"
	if err := d.lockAdmin(ctx, op); err != nil {
		return err
	}
	defer d.b.mu.Unlock()

	newName = strings.TrimSpace(newName)
	if newName == "" {
		return remote(op, http.StatusBadRequest, "name is required")
	}
	n, ok := d.b.nodes[documentID]
	if !ok {
		return remote(op, http.StatusNotFound, "document not found")
	}
	n.Name = newName
	d.b.nodes[documentID] = n
	return nil
}

func (d documents) Delete(ctx context.Context, documentID string) error {
	const op = "kb.delete"
	if err := d.lockAdmin(ctx, op); err != nil {
		return err
	}
	defer d.b.mu.Unlock()

	if _, ok := d.b.nodes[documentID]; !ok {
		return remote(op, http.StatusNotFound, "document not found")
	}
	queue := []string{documentID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for cid, c := range d.b.nodes {
			if c.ParentID == id {
				queue = append(queue, cid)
			}
		}
		if n := d.b.nodes[id]; n.ObjectName != "" {
			_ = d.b.objects.Delete(ctx, n.ObjectName)
		}
		delete(d.b.nodes, id)
	}
	return nil
}

func (d documents) DownloadURL(ctx context.Context, documentID string) (string, error) {
	const op = "kb.download"
	if err := d.lockAdmin(ctx, op); err != nil {
		return "", err
	}
	defer d.b.mu.Unlock()

	n, err := d.file(op, documentID)
	if err != nil {
		return "", err
	}
	return d.b.objects.SignedGetURL(ctx, n.ObjectName, 15*time.Minute)
}
