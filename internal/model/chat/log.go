package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotRevisable    = errors.New("only the latest assistant message can be revised")
)

// Log is the ordered, append-only record of a conversation. Insertion order is
// display order.
type Log struct {
	mu       sync.RWMutex
	greeting string
	entries  []Message
}

// NewLog returns a log holding a single assistant greeting, or an empty log
// when greeting is blank.
func NewLog(greeting string) *Log {
	l := &Log{greeting: greeting}
	l.reset()
	return l
}

// Append adds msg to the end of the log and returns the stored copy.
func (l *Log) Append(msg Message) Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	l.mu.Lock()
	l.entries = append(l.entries, msg)
	l.mu.Unlock()
	return msg
}

// Revise replaces the text of the latest message. It is used while a reply is
// being revealed incrementally and refuses to touch anything else.
func (l *Log) Revise(id, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return ErrMessageNotFound
	}
	last := &l.entries[len(l.entries)-1]
	if last.ID != id {
		for _, msg := range l.entries {
			if msg.ID == id {
				return ErrNotRevisable
			}
		}
		return ErrMessageNotFound
	}
	if last.Sender != SenderAssistant {
		return ErrNotRevisable
	}
	last.Text = text
	return nil
}

// Clear resets the log to its initial greeting state.
func (l *Log) Clear() {
	l.mu.Lock()
	l.reset()
	l.mu.Unlock()
}

func (l *Log) reset() {
	l.entries = make([]Message, 0, 16)
	if l.greeting != "" {
		l.entries = append(l.entries, Message{
			ID:        uuid.NewString(),
			Sender:    SenderAssistant,
			Text:      l.greeting,
			CreatedAt: time.Now().UTC(),
		})
	}
}

// Len reports the number of stored messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a copy of the stored messages.
func (l *Log) Entries() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	copied := make([]Message, len(l.entries))
	copy(copied, l.entries)
	return copied
}

// AsRoleTaggedHistory returns the log as conversational context for remote
// models, preserving order and count.
func (l *Log) AsRoleTaggedHistory() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := make([]Turn, 0, len(l.entries))
	for _, msg := range l.entries {
		history = append(history, Turn{Role: msg.Sender.Role(), Content: msg.Text})
	}
	return history
}
