package desk

import (
	"time"

	"github.com/yoockh/helpdesk/internal/models"
)

// Patch is a partial conversation update. Nil fields are left alone.
// Setting IsResolved to false also clears ResolvedDate and ResolutionNotes.
type Patch struct {
	Topic           *string
	Category        *string
	Priority        *string
	IsResolved      *bool
	ResolvedDate    *time.Time
	ResolutionNotes *string
	FeedbackGiven   *bool
	Escalated       *bool
}

func (p Patch) apply(c *models.Conversation) {
	if p.Topic != nil {
		c.Topic = *p.Topic
	}
	if p.Category != nil {
		c.Category = *p.Category
	}
	if p.Priority != nil {
		c.Priority = *p.Priority
	}
	if p.IsResolved != nil {
		c.IsResolved = *p.IsResolved
		if !c.IsResolved {
			c.ResolvedDate = nil
			c.ResolutionNotes = ""
		}
	}
	if p.ResolvedDate != nil {
		t := *p.ResolvedDate
		c.ResolvedDate = &t
	}
	if p.ResolutionNotes != nil {
		c.ResolutionNotes = *p.ResolutionNotes
	}
	if p.FeedbackGiven != nil {
		c.FeedbackGiven = *p.FeedbackGiven
	}
	if p.Escalated != nil {
		c.Escalated = *p.Escalated
	}
}

// Store is the single in-memory set of conversations plus the admin user
// roster. It is not safe for concurrent use; the controller loop owns it.
// Values going in and out are deep copies.
type Store struct {
	order []string
	byID  map[string]*models.Conversation
	users []models.User
}

func NewStore() *Store {
	return &Store{byID: map[string]*models.Conversation{}}
}

// Replace swaps the whole content. Duplicate ids keep their first occurrence.
func (s *Store) Replace(convs []models.Conversation, users []models.User) {
	s.order = make([]string, 0, len(convs))
	s.byID = make(map[string]*models.Conversation, len(convs))
	for _, c := range convs {
		if _, dup := s.byID[c.ID]; dup || c.ID == "" {
			continue
		}
		cp := c.Clone()
		s.byID[c.ID] = &cp
		s.order = append(s.order, c.ID)
	}
	s.users = append([]models.User(nil), users...)
}

// Upsert patches one conversation and reports whether it existed.
func (s *Store) Upsert(id string, p Patch) bool {
	c, ok := s.byID[id]
	if !ok {
		return false
	}
	p.apply(c)
	return true
}

func (s *Store) AppendMessage(id string, m models.Message) bool {
	c, ok := s.byID[id]
	if !ok {
		return false
	}
	c.Messages = append(c.Messages, m.Clone())
	return true
}

// Insert puts c first. A conversation with the same id is replaced in place.
func (s *Store) Insert(c models.Conversation) {
	cp := c.Clone()
	if _, ok := s.byID[c.ID]; ok {
		s.byID[c.ID] = &cp
		return
	}
	s.byID[c.ID] = &cp
	s.order = append([]string{c.ID}, s.order...)
}

func (s *Store) Get(id string) (models.Conversation, bool) {
	c, ok := s.byID[id]
	if !ok {
		return models.Conversation{}, false
	}
	return c.Clone(), true
}

func (s *Store) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

func (s *Store) List() []models.Conversation {
	out := make([]models.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

func (s *Store) Len() int { return len(s.order) }

func (s *Store) Users() []models.User {
	return append([]models.User(nil), s.users...)
}

func (s *Store) UpsertUser(u models.User) {
	for i := range s.users {
		if s.users[i].ID == u.ID {
			s.users[i] = u
			return
		}
	}
	s.users = append(s.users, u)
}

func (s *Store) RemoveUser(id string) {
	for i := range s.users {
		if s.users[i].ID == id {
			s.users = append(s.users[:i], s.users[i+1:]...)
			return
		}
	}
}

func (s *Store) Reset() {
	s.order = nil
	s.byID = map[string]*models.Conversation{}
	s.users = nil
}
