package desk

import (
	"strings"

	"github.com/yoockh/helpdesk/internal/models"
)

// CurrentConversationFor picks the conversation shown in detail for role.
// The user view falls back to the first unresolved conversation, then to the
// first one; the admin view only shows an explicit selection.
func CurrentConversationFor(role models.UserRole, selection string, convs []models.Conversation) *models.Conversation {
	if selection != "" {
		for i := range convs {
			if convs[i].ID == selection {
				return &convs[i]
			}
		}
	}
	if role != models.RoleUser {
		return nil
	}
	for i := range convs {
		if !convs[i].IsResolved {
			return &convs[i]
		}
	}
	if len(convs) > 0 {
		return &convs[0]
	}
	return nil
}

// StatsOf aggregates the dashboard counters. The cost is a flat per-reply
// estimate.
func StatsOf(convs []models.Conversation) models.Stats {
	var st models.Stats
	st.Total = len(convs)
	for _, c := range convs {
		if c.IsResolved {
			st.Resolved++
		} else {
			st.Open++
		}
		if n := c.AssistantMessages(); n > 0 {
			st.AIAssisted++
			st.AICost += models.CostPerAssistantMessage * float64(n)
		}
	}
	return st
}

type Capabilities struct {
	Chat          bool
	SwitchToAdmin bool
	ManageUsers   bool
	ManageKB      bool
	ResolveAny    bool
}

func CapabilitiesOf(s Session) Capabilities {
	if !s.Authenticated {
		return Capabilities{}
	}
	admin := s.IsAdmin()
	return Capabilities{
		Chat:          true,
		SwitchToAdmin: admin,
		ManageUsers:   admin,
		ManageKB:      admin,
		ResolveAny:    admin,
	}
}

// Filter keeps conversations whose id, topic, owner label or category
// contains term, case-insensitively.
func Filter(convs []models.Conversation, term string) []models.Conversation {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return convs
	}
	out := make([]models.Conversation, 0, len(convs))
	for _, c := range convs {
		for _, f := range []string{c.ID, c.Topic, c.User, c.Category} {
			if strings.Contains(strings.ToLower(f), term) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
