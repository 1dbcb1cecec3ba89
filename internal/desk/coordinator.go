package desk

import (
	"context"
	"errors"
	"strings"

	"github.com/yoockh/helpdesk/internal/models"
)

// DeliveryErrorText is the assistant message appended when a send fails.
const DeliveryErrorText = "Sorry, I encountered an error processing your request. Please try again."

var errMissingID = errors.New("created conversation has no id")

func boolPtr(v bool) *bool { return &v }

func (c *Controller) hold(id string) { c.busy[id]++ }

func (c *Controller) release(id string) {
	if c.busy[id] <= 1 {
		delete(c.busy, id)
		return
	}
	c.busy[id]--
}

func (c *Controller) signedIn(op string) error {
	if !c.sessions.Current().Authenticated {
		return guard(op, "not signed in")
	}
	return nil
}

// stale reports whether a completion belongs to an earlier session and
// settles its action if so.
func (c *Controller) stale(a *Action, epoch uint64, op string) bool {
	if epoch == c.epoch {
		return false
	}
	a.settle("", guard(op, "view was reset before the call completed"))
	return true
}

// SendMessage appends the user's message at once and the assistant's reply,
// or a single error message, when the chat service answers. The user message
// is kept either way.
func (c *Controller) SendMessage(ctx context.Context, conversationID, text string) (*Action, error) {
	const op = "Controller.SendMessage"

	a := newAction(KindSend, conversationID)
	text = strings.TrimSpace(text)
	var epoch uint64
	err := c.do(ctx, func() error {
		if err := c.signedIn(op); err != nil {
			return err
		}
		if text == "" {
			return guard(op, "message is empty")
		}
		if c.role != models.RoleUser {
			return guard(op, "messages are sent from the user view")
		}
		conv, ok := c.store.Get(conversationID)
		if !ok {
			return guard(op, "conversation not found")
		}
		if conv.IsResolved {
			return guard(op, "conversation is resolved")
		}
		now := c.now()
		c.store.AppendMessage(conversationID, models.Message{Sender: models.SenderUser, Text: text, Timestamp: &now})
		c.hold(conversationID)
		a.optimistic()
		epoch = c.epoch
		return nil
	})
	if err != nil {
		return nil, err
	}

	go func() {
		res, err := c.chat.SendMessage(c.base, conversationID, text)
		c.complete(a, func() {
			if c.stale(a, epoch, op) {
				return
			}
			c.release(conversationID)
			now := c.now()
			if err != nil {
				c.log.WithError(err).WithField("conversation_id", conversationID).Warn("send failed")
				c.store.AppendMessage(conversationID, models.Message{
					Sender:    models.SenderAssistant,
					Text:      DeliveryErrorText,
					Timestamp: &now,
					IsError:   true,
				})
				c.notify(LevelError, conversationID, "Failed to send message")
				a.settle("", deliveryFailure(op, err))
				return
			}
			ts := res.Timestamp
			if ts.IsZero() {
				ts = now
			}
			conf := res.Confidence
			c.store.AppendMessage(conversationID, models.Message{
				Sender:     models.SenderAssistant,
				Text:       res.Message,
				Confidence: &conf,
				Sources:    res.Sources,
				Timestamp:  &ts,
			})
			if conf < models.LowConfidence {
				c.notify(LevelWarning, conversationID, "Low confidence response - this may need human review")
			}
			a.settle("", nil)
		})
	}()
	return a, nil
}

// Resolve closes a conversation once. The admin view resolves through the
// admin service and closes its detail view afterwards. A failed call reopens
// the conversation.
func (c *Controller) Resolve(ctx context.Context, conversationID, notes string) (*Action, error) {
	const op = "Controller.Resolve"

	a := newAction(KindResolve, conversationID)
	var (
		epoch     uint64
		adminFlow bool
	)
	notes = strings.TrimSpace(notes)
	err := c.do(ctx, func() error {
		if err := c.signedIn(op); err != nil {
			return err
		}
		conv, ok := c.store.Get(conversationID)
		if !ok {
			return guard(op, "conversation not found")
		}
		if conv.IsResolved || c.resolving[conversationID] {
			return guard(op, "conversation is already resolved")
		}
		adminFlow = c.role == models.RoleAdmin
		if notes == "" {
			notes = models.UserResolvedNotes
			if adminFlow {
				notes = models.AdminResolvedNotes
			}
		}
		now := c.now()
		c.store.Upsert(conversationID, Patch{IsResolved: boolPtr(true), ResolvedDate: &now, ResolutionNotes: &notes})
		c.resolving[conversationID] = true
		c.hold(conversationID)
		a.optimistic()
		epoch = c.epoch
		return nil
	})
	if err != nil {
		return nil, err
	}

	go func() {
		var err error
		if adminFlow {
			err = c.admin.ResolveConversation(c.base, conversationID, notes)
		} else {
			err = c.chat.ResolveConversation(c.base, conversationID, notes)
		}
		c.complete(a, func() {
			if c.stale(a, epoch, op) {
				return
			}
			delete(c.resolving, conversationID)
			c.release(conversationID)
			if err != nil {
				c.log.WithError(err).WithField("conversation_id", conversationID).Warn("resolve failed")
				c.store.Upsert(conversationID, Patch{IsResolved: boolPtr(false)})
				c.notify(LevelError, conversationID, "Failed to resolve conversation")
				a.settle("", fetchFailure(op, err))
				return
			}
			text := models.UserResolvedNotice
			if adminFlow {
				text = models.AdminResolvedNotice(notes)
			}
			now := c.now()
			c.store.AppendMessage(conversationID, models.Message{Sender: models.SenderAssistant, Text: text, Timestamp: &now})
			c.store.Upsert(conversationID, Patch{FeedbackGiven: boolPtr(false)})
			if adminFlow {
				c.adminSel = ""
			}
			c.notify(LevelSuccess, conversationID, "Conversation marked as resolved")
			a.settle("", nil)
		})
	}()
	return a, nil
}

// CreateConversation waits for the server-assigned id before anything is
// stored, then selects the new conversation in the user view.
func (c *Controller) CreateConversation(ctx context.Context, topic string) (*Action, error) {
	const op = "Controller.CreateConversation"

	a := newAction(KindCreate, "")
	var epoch uint64
	err := c.do(ctx, func() error {
		if err := c.signedIn(op); err != nil {
			return err
		}
		c.creating++
		epoch = c.epoch
		return nil
	})
	if err != nil {
		return nil, err
	}

	go func() {
		conv, err := c.chat.CreateConversation(c.base, topic)
		c.complete(a, func() {
			if c.stale(a, epoch, op) {
				return
			}
			c.creating--
			if err == nil && (conv == nil || conv.ID == "") {
				err = errMissingID
			}
			if err != nil {
				c.log.WithError(err).Warn("create failed")
				c.notify(LevelError, "", "Failed to create conversation")
				a.settle("", fetchFailure(op, err))
				return
			}
			c.store.Insert(*conv)
			if c.role == models.RoleUser {
				c.userSel = conv.ID
			}
			c.notify(LevelSuccess, conv.ID, "New conversation started")
			a.settle(conv.ID, nil)
		})
	}()
	return a, nil
}

// SubmitFeedback rates a resolved conversation. It is accepted once; a
// failed call makes it available again.
func (c *Controller) SubmitFeedback(ctx context.Context, conversationID string, rating int, comment string) (*Action, error) {
	const op = "Controller.SubmitFeedback"

	a := newAction(KindFeedback, conversationID)
	var epoch uint64
	err := c.do(ctx, func() error {
		if err := c.signedIn(op); err != nil {
			return err
		}
		if rating < 1 || rating > 5 {
			return guard(op, "rating must be between 1 and 5")
		}
		conv, ok := c.store.Get(conversationID)
		if !ok {
			return guard(op, "conversation not found")
		}
		if !conv.IsResolved || c.resolving[conversationID] {
			return guard(op, "conversation is not resolved")
		}
		if conv.FeedbackGiven {
			return guard(op, "feedback already submitted")
		}
		c.store.Upsert(conversationID, Patch{FeedbackGiven: boolPtr(true)})
		c.hold(conversationID)
		a.optimistic()
		epoch = c.epoch
		return nil
	})
	if err != nil {
		return nil, err
	}

	go func() {
		err := c.chat.SubmitFeedback(c.base, conversationID, rating, comment)
		c.complete(a, func() {
			if c.stale(a, epoch, op) {
				return
			}
			c.release(conversationID)
			if err != nil {
				c.store.Upsert(conversationID, Patch{FeedbackGiven: boolPtr(false)})
				c.notify(LevelError, conversationID, "Failed to submit feedback")
				a.settle("", fetchFailure(op, err))
				return
			}
			c.notify(LevelSuccess, conversationID, "Thank you for your feedback!")
			a.settle("", nil)
		})
	}()
	return a, nil
}

func (c *Controller) requireAdminView(op string) error {
	if !c.sessions.Current().IsAdmin() || c.role != models.RoleAdmin {
		return guard(op, "admin view required")
	}
	return nil
}

// rosterCall runs an admin roster change remotely and applies its result to
// the store once it succeeds.
func (c *Controller) rosterCall(ctx context.Context, op string, a *Action, check func() error, call func(context.Context) (*models.User, error), apply func(*models.User)) (*Action, error) {
	var epoch uint64
	err := c.do(ctx, func() error {
		if err := c.requireAdminView(op); err != nil {
			return err
		}
		if check != nil {
			if err := check(); err != nil {
				return err
			}
		}
		epoch = c.epoch
		return nil
	})
	if err != nil {
		return nil, err
	}

	go func() {
		u, err := call(c.base)
		c.complete(a, func() {
			if c.stale(a, epoch, op) {
				return
			}
			if err != nil {
				c.log.WithError(err).WithField("action", a.Kind).Warn("roster change failed")
				c.notify(LevelError, "", "User update failed")
				a.settle("", fetchFailure(op, err))
				return
			}
			apply(u)
			target := ""
			if u != nil {
				target = u.ID
			}
			c.notify(LevelSuccess, "", "User list updated")
			a.settle(target, nil)
		})
	}()
	return a, nil
}

func (c *Controller) AddUser(ctx context.Context, in models.UserInput) (*Action, error) {
	return c.rosterCall(ctx, "Controller.AddUser", newAction(KindAddUser, ""), nil,
		func(ctx context.Context) (*models.User, error) { return c.admin.AddUser(ctx, in) },
		func(u *models.User) {
			if u != nil {
				c.store.UpsertUser(*u)
			}
		},
	)
}

func (c *Controller) UpdateUser(ctx context.Context, id string, in models.UserInput) (*Action, error) {
	return c.rosterCall(ctx, "Controller.UpdateUser", newAction(KindUpdateUser, id), nil,
		func(ctx context.Context) (*models.User, error) { return c.admin.UpdateUser(ctx, id, in) },
		func(u *models.User) {
			if u != nil {
				c.store.UpsertUser(*u)
			}
		},
	)
}

func (c *Controller) DeleteUser(ctx context.Context, id string) (*Action, error) {
	const op = "Controller.DeleteUser"
	return c.rosterCall(ctx, op, newAction(KindDeleteUser, id),
		func() error {
			if s := c.sessions.Current(); s.User != nil && s.User.ID == id {
				return guard(op, "cannot delete your own account")
			}
			return nil
		},
		func(ctx context.Context) (*models.User, error) { return nil, c.admin.DeleteUser(ctx, id) },
		func(*models.User) { c.store.RemoveUser(id) },
	)
}
