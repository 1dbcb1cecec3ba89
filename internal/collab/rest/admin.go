package rest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/yoockh/helpdesk/internal/models"
)

// adminClient is Client seen through collab.Admin; only ResolveConversation
// differs from the chat endpoint of the same name.
type adminClient struct{ *Client }

func (a adminClient) ResolveConversation(ctx context.Context, conversationID, notes string) error {
	return a.doJSON(ctx, "admin.resolve", http.MethodPost,
		"/admin/conversations/"+url.PathEscape(conversationID)+"/resolve",
		map[string]string{"resolutionNotes": notes}, nil)
}

func (c *Client) GetAllConversations(ctx context.Context) ([]models.Conversation, error) {
	var out struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	if err := c.doJSON(ctx, "admin.conversations", http.MethodGet, "/admin/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (c *Client) GetUsers(ctx context.Context) ([]models.User, error) {
	var out struct {
		Users []models.User `json:"users"`
	}
	if err := c.doJSON(ctx, "admin.users", http.MethodGet, "/admin/users", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) GetStats(ctx context.Context) (*models.Stats, error) {
	var out struct {
		Stats models.Stats `json:"stats"`
	}
	if err := c.doJSON(ctx, "admin.stats", http.MethodGet, "/admin/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out.Stats, nil
}

func (c *Client) AddUser(ctx context.Context, in models.UserInput) (*models.User, error) {
	var out struct {
		User models.User `json:"user"`
	}
	if err := c.doJSON(ctx, "admin.add_user", http.MethodPost, "/admin/users", in, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) UpdateUser(ctx context.Context, id string, in models.UserInput) (*models.User, error) {
	var out struct {
		User models.User `json:"user"`
	}
	if err := c.doJSON(ctx, "admin.update_user", http.MethodPut, "/admin/users/"+url.PathEscape(id), in, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.doJSON(ctx, "admin.delete_user", http.MethodDelete, "/admin/users/"+url.PathEscape(id), nil, nil)
}
