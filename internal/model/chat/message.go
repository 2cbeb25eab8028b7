package chat

import "time"

// Sender identifies who produced a turn in the widget.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Role is the tag used when turns are forwarded to a remote model.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Role maps a sender onto the role tag remote models expect.
func (s Sender) Role() Role {
	if s == SenderAssistant {
		return RoleAssistant
	}
	return RoleUser
}

// Message is a single displayed turn.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId,omitempty"`
	Sender         Sender    `json:"sender"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Turn is a role-tagged history entry.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
