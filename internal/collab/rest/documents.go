package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/yoockh/helpdesk/internal/collab"
	"github.com/yoockh/helpdesk/internal/models"
)

func docPath(id string) string { return "/kb/documents/" + url.PathEscape(id) }

func (c *Client) GetKnowledgeBase(ctx context.Context) ([]*models.KBNode, error) {
	var out struct {
		KnowledgeBase []*models.KBNode `json:"knowledgeBase"`
	}
	if err := c.doJSON(ctx, "kb.structure", http.MethodGet, "/kb/structure", nil, &out); err != nil {
		return nil, err
	}
	return out.KnowledgeBase, nil
}

func (c *Client) CreateFolder(ctx context.Context, parentID, name string) (*models.KBNode, error) {
	var out struct {
		Folder models.KBNode `json:"folder"`
	}
	err := c.doJSON(ctx, "kb.create_folder", http.MethodPost, "/kb/folders",
		map[string]string{"parentId": parentID, "name": name}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Folder, nil
}

func (c *Client) Upload(ctx context.Context, parentID, filename, category string, r io.Reader) (*models.KBNode, error) {
	const op = "kb.upload"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	_ = mw.WriteField("folderId", parentID)
	_ = mw.WriteField("category", category)
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/kb/upload", &buf, mw.FormDataContentType())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var out struct {
		Document models.KBNode `json:"document"`
	}
	if err := c.send(op, req, &out); err != nil {
		return nil, err
	}
	return &out.Document, nil
}

func (c *Client) Status(ctx context.Context, documentID string) (*models.DocumentStatus, error) {
	var out models.DocumentStatus
	if err := c.doJSON(ctx, "kb.status", http.MethodGet, docPath(documentID)+"/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Rename(ctx context.Context, documentID, newName string) error {
	return c.doJSON(ctx, "kb.rename", http.MethodPut, docPath(documentID)+"/rename",
		map[string]string{"newName": newName}, nil)
}

func (c *Client) Delete(ctx context.Context, documentID string) error {
	return c.doJSON(ctx, "kb.delete", http.MethodDelete, docPath(documentID), nil, nil)
}

// DownloadURL returns the signed location the server redirects to, without following it.
func (c *Client) DownloadURL(ctx context.Context, documentID string) (string, error) {
	const op = "kb.download"

	req, err := c.newRequest(ctx, http.MethodGet, docPath(documentID)+"/download", nil, "")
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	hc := *c.http
	hc.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if loc := resp.Header.Get("Location"); resp.StatusCode/100 == 3 && loc != "" {
		return loc, nil
	}
	return "", &collab.RemoteError{Op: op, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
}
