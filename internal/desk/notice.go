package desk

import "time"

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a transient, dismissible notification.
type Notice struct {
	Level          Level
	Text           string
	ConversationID string
	At             time.Time
}
