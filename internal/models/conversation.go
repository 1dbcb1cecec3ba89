package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

const (
	PriorityLow    = "Low"
	PriorityMedium = "Medium"
	PriorityHigh   = "High"

	DefaultTopic    = "New Chat"
	DefaultCategory = "General"
	GreetingText    = "Hello! How can I help you today?"
)

const (
	UserResolvedNotice = "This conversation has been marked as resolved."
	UserResolvedNotes  = "Resolved by user"
	AdminResolvedNotes = "Resolved by admin"
)

// AdminResolvedNotice is the message appended when an administrator closes a conversation.
func AdminResolvedNotice(notes string) string {
	return fmt.Sprintf("This conversation was marked as resolved by Admin with notes: \"%s\"", notes)
}

// CostPerAssistantMessage is the flat AI cost charged for each assistant reply.
const CostPerAssistantMessage = 0.005

// LowConfidence is the threshold below which a reply is flagged and escalated.
const LowConfidence = 0.7

// Conversation is a support chat between one user and the assistant.
// UserID is the owning user; User is a display label only.
type Conversation struct {
	ID              string     `gorm:"column:id;type:text;primaryKey" json:"id"`
	UserID          string     `gorm:"column:user_id;type:uuid;index" json:"userId"`
	User            string     `gorm:"column:user_name;type:text" json:"user"`
	Topic           string     `gorm:"column:topic;type:text" json:"topic"`
	Category        string     `gorm:"column:category;type:text" json:"category"`
	Priority        string     `gorm:"column:priority;type:text" json:"priority"`
	StartDate       time.Time  `gorm:"column:start_date;type:timestamptz;index" json:"startDate"`
	IsResolved      bool       `gorm:"column:is_resolved;index" json:"isResolved"`
	ResolvedDate    *time.Time `gorm:"column:resolved_date;type:timestamptz" json:"resolvedDate,omitempty"`
	ResolutionNotes string     `gorm:"column:resolution_notes;type:text" json:"resolutionNotes,omitempty"`
	FeedbackGiven   bool       `gorm:"column:feedback_given" json:"feedbackGiven"`
	Escalated       bool       `gorm:"column:escalated" json:"escalated"`
	Messages        []Message  `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages"`
}

func (Conversation) TableName() string { return "conversations" }

// Clone returns a deep copy so callers can never alias another holder's messages.
func (c Conversation) Clone() Conversation {
	out := c
	if c.ResolvedDate != nil {
		t := *c.ResolvedDate
		out.ResolvedDate = &t
	}
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		for i, m := range c.Messages {
			out.Messages[i] = m.Clone()
		}
	}
	return out
}

// AssistantMessages counts messages authored by the assistant.
func (c Conversation) AssistantMessages() int {
	n := 0
	for _, m := range c.Messages {
		if m.Sender == SenderAssistant {
			n++
		}
	}
	return n
}

type Source struct {
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

type Message struct {
	ID             string                      `gorm:"column:id;type:uuid;primaryKey" json:"id,omitempty"`
	ConversationID string                      `gorm:"column:conversation_id;type:text;index:idx_conv_seq,priority:1" json:"-"`
	Seq            int64                       `gorm:"column:seq;index:idx_conv_seq,priority:2" json:"-"`
	Sender         Sender                      `gorm:"column:sender;type:text" json:"sender"`
	Text           string                      `gorm:"column:text;type:text" json:"text"`
	Confidence     *float64                    `gorm:"column:confidence" json:"confidence,omitempty"`
	Sources        datatypes.JSONSlice[Source] `gorm:"column:sources" json:"sources,omitempty"`
	Timestamp      *time.Time                  `gorm:"column:timestamp;type:timestamptz" json:"timestamp,omitempty"`
	IsError        bool                        `gorm:"column:is_error" json:"isError,omitempty"`
}

func (Message) TableName() string { return "messages" }

func (m Message) Clone() Message {
	out := m
	if m.Confidence != nil {
		v := *m.Confidence
		out.Confidence = &v
	}
	if m.Timestamp != nil {
		t := *m.Timestamp
		out.Timestamp = &t
	}
	if m.Sources != nil {
		out.Sources = append(datatypes.JSONSlice[Source](nil), m.Sources...)
	}
	return out
}

type Feedback struct {
	ID             string    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ConversationID string    `gorm:"column:conversation_id;type:text;uniqueIndex" json:"conversationId"`
	UserID         string    `gorm:"column:user_id;type:uuid;index" json:"userId"`
	Rating         int       `gorm:"column:rating" json:"rating"`
	Comment        string    `gorm:"column:comment;type:text" json:"comment"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz" json:"createdAt"`
}

func (Feedback) TableName() string { return "feedback" }

// Stats are the aggregate counters shown on the dashboard.
type Stats struct {
	Open           int     `json:"open"`
	Resolved       int     `json:"resolved"`
	Total          int     `json:"total"`
	AIAssisted     int     `json:"aiAssisted"`
	AICost         float64 `json:"aiCost"`
	TotalUsers     int     `json:"totalUsers,omitempty"`
	TotalDocuments int     `json:"totalDocuments,omitempty"`
}

// ReplyMetadata is the usage report attached to an assistant reply.
type ReplyMetadata struct {
	Tokens int     `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// SendResult is the assistant's answer to one user message.
type SendResult struct {
	Message    string        `json:"message"`
	Confidence float64       `json:"confidence"`
	Sources    []Source      `json:"sources"`
	Metadata   ReplyMetadata `json:"metadata"`
	Timestamp  time.Time     `json:"timestamp"`
}
