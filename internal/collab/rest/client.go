// Package rest talks to the support API over HTTP.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yoockh/helpdesk/internal/collab"
	"github.com/yoockh/helpdesk/internal/models"
)

// TokenSource supplies the bearer token for each request; "" sends none.
type TokenSource interface {
	Token() string
}

type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

type Client struct {
	base   string
	http   *http.Client
	tokens TokenSource
}

func New(baseURL string, tokens TokenSource, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc, tokens: tokens}
}

// Backend exposes the client through every collaborator interface.
func (c *Client) Backend() collab.Backend {
	return collab.Backend{Auth: c, Chat: c, Admin: adminClient{c}, Documents: c}
}

type envelope struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return c.send(op, req, out)
}

func (c *Client) send(op string, req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("%s: read: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		_ = json.Unmarshal(raw, &env)
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &collab.RemoteError{Op: op, Status: resp.StatusCode, Code: env.Code, Message: msg}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*collab.LoginResult, error) {
	var out collab.LoginResult
	err := c.doJSON(ctx, "auth.login", http.MethodPost, "/auth/login",
		map[string]string{"email": email, "password": password}, &out)
	if collab.StatusOf(err) == http.StatusUnauthorized {
		return nil, collab.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, fmt.Errorf("auth.login: empty token in response")
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, "auth.logout", http.MethodPost, "/auth/logout", nil, nil)
}

func (c *Client) SendMessage(ctx context.Context, conversationID, text string) (*collab.SendResult, error) {
	var out collab.SendResult
	err := c.doJSON(ctx, "chat.send", http.MethodPost, "/chat/send",
		map[string]string{"conversationId": conversationID, "message": text}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetConversations(ctx context.Context) ([]models.Conversation, error) {
	var out struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	if err := c.doJSON(ctx, "chat.conversations", http.MethodGet, "/chat/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (c *Client) CreateConversation(ctx context.Context, topic string) (*models.Conversation, error) {
	var out struct {
		Conversation *models.Conversation `json:"conversation"`
	}
	err := c.doJSON(ctx, "chat.create", http.MethodPost, "/chat/conversations",
		map[string]string{"topic": topic}, &out)
	if err != nil {
		return nil, err
	}
	if out.Conversation == nil {
		return nil, fmt.Errorf("chat.create: missing conversation in response")
	}
	return out.Conversation, nil
}

func (c *Client) ResolveConversation(ctx context.Context, conversationID, notes string) error {
	return c.doJSON(ctx, "chat.resolve", http.MethodPost,
		"/chat/conversations/"+url.PathEscape(conversationID)+"/resolve",
		map[string]string{"resolutionNotes": notes}, nil)
}

func (c *Client) SubmitFeedback(ctx context.Context, conversationID string, rating int, comment string) error {
	return c.doJSON(ctx, "chat.feedback", http.MethodPost,
		"/chat/conversations/"+url.PathEscape(conversationID)+"/feedback",
		map[string]any{"rating": rating, "comment": comment}, nil)
}
