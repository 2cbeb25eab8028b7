package chat

import "time"

// Conversation captures one mounted chat widget. It lives only in memory.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
