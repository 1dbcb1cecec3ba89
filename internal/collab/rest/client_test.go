package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/helpdesk/internal/collab"
	"github.com/yoockh/helpdesk/internal/models"
)

func newServer(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api", TokenFunc(func() string { return "tok" }), srv.Client())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLoginMapsUnauthorized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "password123" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "code": "UNAUTHORIZED", "message": "invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"token":   "jwt",
			"user":    map[string]any{"id": "u1", "name": "John Doe", "email": body["email"], "role": "user"},
		})
	})
	c := newServer(t, mux)

	_, err := c.Login(context.Background(), "user@company.com", "nope")
	assert.ErrorIs(t, err, collab.ErrInvalidCredentials)

	res, err := c.Login(context.Background(), "user@company.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "jwt", res.Token)
	assert.Equal(t, models.RoleUser, res.User.Role)
}

func TestChatCallsCarryBearerAndDecode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/send", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "C1", body["conversationId"])
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"message":    "Based on our knowledge base, here's what I found...",
			"confidence": 0.85,
			"sources":    []map[string]any{{"title": "User Guide", "score": 0.92}},
			"metadata":   map[string]any{"tokens": 150, "cost": 0.0045},
		})
	})
	mux.HandleFunc("GET /api/chat/conversations", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "conversations": []map[string]any{{"id": "C1", "topic": "Login Issues with SSO"}}})
	})
	mux.HandleFunc("POST /api/chat/conversations/{id}/resolve", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "code": "CONFLICT", "message": "conversation is already resolved"})
	})
	c := newServer(t, mux)
	ctx := context.Background()

	res, err := c.SendMessage(ctx, "C1", "hi")
	require.NoError(t, err)
	assert.Equal(t, 0.85, res.Confidence)
	assert.Equal(t, 150, res.Metadata.Tokens)
	require.Len(t, res.Sources, 1)

	convs, err := c.GetConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "Login Issues with SSO", convs[0].Topic)

	err = c.ResolveConversation(ctx, "C1", "")
	var re *collab.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusConflict, re.Status)
	assert.Equal(t, "CONFLICT", re.Code)
}

func TestAdminResolveUsesAdminRoute(t *testing.T) {
	var hit string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/admin/conversations/{id}/resolve", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		hit = r.PathValue("id") + ":" + body["resolutionNotes"]
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	c := newServer(t, mux)

	require.NoError(t, c.Backend().Admin.ResolveConversation(context.Background(), "C7", "fixed"))
	assert.Equal(t, "C7:fixed", hit)
}

func TestUploadAndDownload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/kb/upload", func(w http.ResponseWriter, r *http.Request) {
		f, fh, err := r.FormFile("file")
		require.NoError(t, err)
		b, _ := io.ReadAll(f)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "document": map[string]any{
			"id": "doc-1", "name": fh.Filename, "type": "file", "size": len(b), "status": "processing", "category": r.FormValue("category"),
		}})
	})
	mux.HandleFunc("GET /api/kb/documents/{id}/download", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://storage.example/"+r.PathValue("id"), http.StatusFound)
	})
	c := newServer(t, mux)
	ctx := context.Background()

	doc, err := c.Upload(ctx, "", "guide.txt", "Guides", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "guide.txt", doc.Name)
	assert.EqualValues(t, 5, doc.Size)
	assert.Equal(t, "Guides", doc.Category)

	u, err := c.DownloadURL(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "https://storage.example/doc-1", u)
}
