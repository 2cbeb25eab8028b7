package ai

import (
	"context"
	"errors"

	"github.com/portfolio-ai/backend/internal/model/chat"
)

var (
	ErrEmptyReply     = errors.New("remote model returned an empty reply")
	ErrMissingAPIKey  = errors.New("api key not configured")
	ErrUnexpectedCode = errors.New("remote model returned a non-success status")
)

// Request is everything a remote model receives for one user utterance.
type Request struct {
	SystemContext string
	History       []chat.Turn
	Message       string
}

// Strategy is one remote generation backend. Implementations must honour ctx
// cancellation and report blank output as ErrEmptyReply.
type Strategy interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Prober is implemented by strategies that can cheaply check reachability.
type Prober interface {
	Probe(ctx context.Context) error
}

// Turns flattens a request into system, history and user turns in the order
// chat-style APIs expect. System and user turns are omitted when blank.
func (r Request) Turns() []chat.Turn {
	turns := make([]chat.Turn, 0, len(r.History)+2)
	if r.SystemContext != "" {
		turns = append(turns, chat.Turn{Role: chat.RoleSystem, Content: r.SystemContext})
	}
	turns = append(turns, r.History...)
	if r.Message != "" {
		turns = append(turns, chat.Turn{Role: chat.RoleUser, Content: r.Message})
	}
	return turns
}
