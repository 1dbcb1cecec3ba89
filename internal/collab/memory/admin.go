package memory

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/yoockh/helpdesk/internal/models"
	"github.com/yoockh/helpdesk/internal/utils"
)

// admin is the Backend seen through collab.Admin.
type admin struct{ b *Backend }

func (a admin) GetAllConversations(ctx context.Context) ([]models.Conversation, error) {
	b := a.b
	if err := b.delay(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.requireAdmin("admin.conversations"); err != nil {
		return nil, err
	}
	out := make([]models.Conversation, 0, len(b.convs))
	for _, c := range b.convs {
		out = append(out, c.Clone())
	}
	return out, nil
}

func (a admin) GetUsers(ctx context.Context) ([]models.User, error) {
	b := a.b
	if err := b.delay(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.requireAdmin("admin.users"); err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(b.users))
	for _, acc := range b.users {
		out = append(out, acc.user)
	}
	return out, nil
}

func (a admin) GetStats(ctx context.Context) (*models.Stats, error) {
	b := a.b
	if err := b.delay(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.requireAdmin("admin.stats"); err != nil {
		return nil, err
	}
	st := models.Stats{Total: len(b.convs)}
	for _, c := range b.convs {
		if c.IsResolved {
			st.Resolved++
		} else {
			st.Open++
		}
		if n := c.AssistantMessages(); n > 0 {
			st.AIAssisted++
			st.AICost += float64(n) * models.CostPerAssistantMessage
		}
	}
	st.TotalUsers = len(b.users)
	for _, n := range b.nodes {
		if n.Type == models.NodeFile {
			st.TotalDocuments++
		}
	}
	return &st, nil
}

func (b *Backend) validUser(op string, in models.UserInput, create bool, exceptID string) error {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Email) == "" {
		return remote(op, http.StatusBadRequest, "name and email are required")
	}
	if in.Role != "" && !in.Role.Valid() {
		return remote(op, http.StatusBadRequest, "role must be user or admin")
	}
	if create && in.Password == "" {
		return remote(op, http.StatusBadRequest, "password is required")
	}
	for _, acc := range b.users {
		if acc.user.ID != exceptID && utils.SameEmail(acc.user.Email, in.Email) {
			return remote(op, http.StatusConflict, "email already registered")
		}
	}
	return nil
}

func (a admin) AddUser(ctx context.Context, in models.UserInput) (*models.User, error) {
	const op = "admin.add_user"
	b := a.b
	if err := b.delay(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.requireAdmin(op); err != nil {
		return nil, err
	}
	if err := b.validUser(op, in, true, ""); err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	n := len(b.users) + 1
	id := fmt.Sprintf("user-%03d", n)
	for b.userIndex(id) >= 0 {
		n++
		id = fmt.Sprintf("user-%03d", n)
	}
	u := models.User{ID: id, Name: strings.TrimSpace(in.Name), Email: strings.TrimSpace(in.Email), Role: role, CreatedAt: b.opts.Now().UTC()}
	b.users = append(b.users, account{user: u, hash: hash})
	return &u, nil
}

func (b *Backend) userIndex(id string) int {
	for i := range b.users {
		if b.users[i].user.ID == id {
			return i
		}
	}
	return -1
}

func (a admin) UpdateUser(ctx context.Context, id string, in models.UserInput) (*models.User, error) {
	const op = "admin.update_user"
	b := a.b
	if err := b.delay(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.requireAdmin(op); err != nil {
		return nil, err
	}
	i := b.userIndex(id)
	if i < 0 {
		return nil, remote(op, http.StatusNotFound, "user not found")
	}
	if err := b.validUser(op, in, false, id); err != nil {
		return nil, err
	}
	acc := &b.users[i]
	acc.user.Name = strings.TrimSpace(in.Name)
	acc.user.Email = strings.TrimSpace(in.Email)
	if in.Role != "" {
		acc.user.Role = in.Role
	}
	if in.Password != "" {
		hash, err := utils.HashPassword(in.Password)
		if err != nil {
			return nil, err
		}
		acc.hash = hash
	}
	u := acc.user
	return &u, nil
}

func (a admin) DeleteUser(ctx context.Context, id string) error {
	const op = "admin.delete_user"
	b := a.b
	if err := b.delay(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.requireAdmin(op); err != nil {
		return err
	}
	if b.current != nil && b.current.ID == id {
		return remote(op, http.StatusBadRequest, "cannot delete your own account")
	}
	i := b.userIndex(id)
	if i < 0 {
		return remote(op, http.StatusNotFound, "user not found")
	}
	b.users = append(b.users[:i], b.users[i+1:]...)
	return nil
}

func (a admin) ResolveConversation(ctx context.Context, conversationID, notes string) error {
	return a.b.resolve(ctx, "admin.resolve", conversationID, notes, true)
}
