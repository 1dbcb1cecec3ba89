// Package collab defines the remote services the desk core talks to.
package collab

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/yoockh/helpdesk/internal/models"
)

type LoginResult struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

type SendResult = models.SendResult

type Auth interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Logout(ctx context.Context) error
}

type Chat interface {
	SendMessage(ctx context.Context, conversationID, text string) (*SendResult, error)
	GetConversations(ctx context.Context) ([]models.Conversation, error)
	CreateConversation(ctx context.Context, topic string) (*models.Conversation, error)
	ResolveConversation(ctx context.Context, conversationID, notes string) error
	SubmitFeedback(ctx context.Context, conversationID string, rating int, comment string) error
}

type Admin interface {
	GetAllConversations(ctx context.Context) ([]models.Conversation, error)
	GetUsers(ctx context.Context) ([]models.User, error)
	GetStats(ctx context.Context) (*models.Stats, error)
	AddUser(ctx context.Context, in models.UserInput) (*models.User, error)
	UpdateUser(ctx context.Context, id string, in models.UserInput) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
	ResolveConversation(ctx context.Context, conversationID, notes string) error
}

type Documents interface {
	GetKnowledgeBase(ctx context.Context) ([]*models.KBNode, error)
	CreateFolder(ctx context.Context, parentID, name string) (*models.KBNode, error)
	Upload(ctx context.Context, parentID, filename, category string, r io.Reader) (*models.KBNode, error)
	Status(ctx context.Context, documentID string) (*models.DocumentStatus, error)
	Rename(ctx context.Context, documentID, newName string) error
	Delete(ctx context.Context, documentID string) error
	DownloadURL(ctx context.Context, documentID string) (string, error)
}

// Backend bundles the four services a desk needs.
type Backend struct {
	Auth      Auth
	Chat      Chat
	Admin     Admin
	Documents Documents
}

var ErrInvalidCredentials = errors.New("invalid email or password")

// RemoteError is a non-2xx answer from the support API.
type RemoteError struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %d %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Status)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Status
	}
	return 0
}
