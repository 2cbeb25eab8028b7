package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/portfolio-ai/backend/internal/model/chat"
	"github.com/portfolio-ai/backend/internal/service/resolver"
	"github.com/portfolio-ai/backend/internal/service/reveal"
	"github.com/portfolio-ai/backend/internal/store"
)

var (
	ErrEmptyMessage         = errors.New("message text is required")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrBusy                 = errors.New("a reply is already being resolved for this conversation")
)

// Resolver produces replies. *resolver.Resolver satisfies it.
type Resolver interface {
	ResolveDetailed(ctx context.Context, message string, history []chat.Turn) resolver.Resolution
	Status() resolver.Status
	Health() []resolver.StrategyHealth
}

// Journal records resolution outcomes. *store.Journal satisfies it.
type Journal interface {
	Record(ctx context.Context, o store.Outcome) error
	Summary(ctx context.Context) (store.Summary, error)
}

// Emitter receives the assistant message each time more of it is revealed.
type Emitter func(partial chat.Message)

// Reply is the result of one submission.
type Reply struct {
	UserMessage chat.Message        `json:"userMessage"`
	Message     chat.Message        `json:"message"`
	Resolution  resolver.Resolution `json:"resolution"`
}

// StatusReport is what the assistant status endpoint shows.
type StatusReport struct {
	Status        resolver.Status           `json:"status"`
	Strategies    []resolver.StrategyHealth `json:"strategies"`
	Conversations int                       `json:"conversations"`
	Audit         *store.Summary            `json:"audit,omitempty"`
}

// Option customises a Service.
type Option func(*Service)

// WithJournal records every resolution outcome.
func WithJournal(j Journal) Option {
	return func(s *Service) { s.journal = j }
}

// WithTypewriter sets the reveal pacing used when an Emitter is supplied.
func WithTypewriter(t reveal.Typewriter) Option {
	return func(s *Service) { s.typewriter = t }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service owns the in-memory conversations of mounted chat widgets.
type Service struct {
	mu            sync.RWMutex
	conversations map[string]*conversation

	resolver   Resolver
	greeting   string
	typewriter reveal.Typewriter
	journal    Journal
	logger     *slog.Logger
}

// NewService creates the service. greeting seeds every new or cleared
// conversation.
func NewService(r Resolver, greeting string, opts ...Option) *Service {
	s := &Service{
		conversations: make(map[string]*conversation),
		resolver:      r,
		greeting:      greeting,
		typewriter:    reveal.Typewriter{Step: 1, Interval: 15 * time.Millisecond},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Greeting returns the assistant's opening line.
func (s *Service) Greeting() string {
	return s.greeting
}

// CreateConversation starts a conversation and returns its initial transcript.
func (s *Service) CreateConversation(_ context.Context) (chat.Conversation, []chat.Message) {
	meta := chat.Conversation{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	conv := &conversation{meta: meta, log: chat.NewLog(s.greeting)}

	s.mu.Lock()
	s.conversations[meta.ID] = conv
	s.mu.Unlock()

	s.logger.Info("conversation created", "conversation_id", meta.ID)
	return meta, conv.transcript()
}

// GetConversation returns conversation metadata.
func (s *Service) GetConversation(_ context.Context, id string) (chat.Conversation, error) {
	conv, err := s.lookup(id)
	if err != nil {
		return chat.Conversation{}, err
	}
	return conv.meta, nil
}

// Transcript returns the conversation's messages in display order.
func (s *Service) Transcript(_ context.Context, id string) ([]chat.Message, error) {
	conv, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return conv.transcript(), nil
}

// Submit appends the visitor's message, resolves a reply and appends it.
// When emit is set the reply is appended empty and revealed incrementally;
// Submit returns once the reveal finishes or is superseded. Only one
// resolution may be in flight per conversation.
func (s *Service) Submit(ctx context.Context, id, text string, emit Emitter) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}

	conv, err := s.lookup(id)
	if err != nil {
		return Reply{}, err
	}

	if !conv.busy.CompareAndSwap(false, true) {
		return Reply{}, ErrBusy
	}
	released := false
	release := func() {
		if !released {
			released = true
			conv.busy.Store(false)
		}
	}
	defer release()

	// A reveal still running belongs to the previous reply; finish it first
	// so the log stays in submission order.
	conv.stopReveal()

	history := conv.log.AsRoleTaggedHistory()
	userMsg := conv.log.Append(chat.Message{
		ConversationID: id,
		Sender:         chat.SenderUser,
		Text:           text,
	})

	res := s.resolver.ResolveDetailed(ctx, text, history)
	s.record(ctx, id, res)

	if emit == nil {
		reply := conv.log.Append(chat.Message{
			ConversationID: id,
			Sender:         chat.SenderAssistant,
			Text:           res.Text,
		})
		return Reply{UserMessage: userMsg, Message: reply, Resolution: res}, nil
	}

	placeholder := conv.log.Append(chat.Message{
		ConversationID: id,
		Sender:         chat.SenderAssistant,
	})

	revealCtx, finish := conv.startReveal(ctx)
	release()

	err = s.typewriter.Reveal(revealCtx, res.Text, func(partial string) {
		if err := conv.log.Revise(placeholder.ID, partial); err != nil {
			return
		}
		msg := placeholder
		msg.Text = partial
		emit(msg)
	})
	// The stored message always ends up complete, even when superseded.
	_ = conv.log.Revise(placeholder.ID, res.Text)
	finish()

	if err != nil {
		s.logger.Debug("reveal interrupted", "conversation_id", id, "error", err)
	}

	placeholder.Text = res.Text
	return Reply{UserMessage: userMsg, Message: placeholder, Resolution: res}, nil
}

// Resolve answers a single message outside of any conversation.
func (s *Service) Resolve(ctx context.Context, text string) (resolver.Resolution, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return resolver.Resolution{}, ErrEmptyMessage
	}
	res := s.resolver.ResolveDetailed(ctx, text, nil)
	s.record(ctx, "", res)
	return res, nil
}

// Clear resets the conversation to its greeting.
func (s *Service) Clear(_ context.Context, id string) ([]chat.Message, error) {
	conv, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if !conv.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer conv.busy.Store(false)

	conv.stopReveal()
	conv.log.Clear()
	return conv.transcript(), nil
}

// Delete drops the conversation when its widget unmounts.
func (s *Service) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	conv, ok := s.conversations[id]
	delete(s.conversations, id)
	s.mu.Unlock()

	if !ok {
		return ErrConversationNotFound
	}
	conv.stopReveal()
	s.logger.Info("conversation deleted", "conversation_id", id)
	return nil
}

// Status reports assistant availability and, when journaling, totals.
func (s *Service) Status(ctx context.Context) StatusReport {
	s.mu.RLock()
	count := len(s.conversations)
	s.mu.RUnlock()

	report := StatusReport{
		Status:        s.resolver.Status(),
		Strategies:    s.resolver.Health(),
		Conversations: count,
	}
	if s.journal != nil {
		summary, err := s.journal.Summary(ctx)
		if err != nil {
			s.logger.Warn("failed to summarise audit journal", "error", err)
		} else {
			report.Audit = &summary
		}
	}
	return report
}

func (s *Service) lookup(id string) (*conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func (s *Service) record(ctx context.Context, conversationID string, res resolver.Resolution) {
	s.logger.Info("reply resolved",
		"conversation_id", conversationID,
		"source", res.Source,
		"strategy", res.Strategy,
		"attempts", res.Attempts,
		"latency_ms", res.Latency.Milliseconds(),
	)
	if s.journal == nil {
		return
	}

	err := s.journal.Record(context.WithoutCancel(ctx), store.Outcome{
		ConversationID: conversationID,
		Source:         string(res.Source),
		Strategy:       res.Strategy,
		Rule:           res.Rule,
		Attempts:       res.Attempts,
		Latency:        res.Latency,
	})
	if err != nil {
		s.logger.Warn("failed to record resolution", "conversation_id", conversationID, "error", err)
	}
}

type conversation struct {
	meta chat.Conversation
	log  *chat.Log
	busy atomic.Bool

	mu     sync.Mutex
	active *revealHandle
}

type revealHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (c *conversation) transcript() []chat.Message {
	entries := c.log.Entries()
	for i := range entries {
		entries[i].ConversationID = c.meta.ID
	}
	return entries
}

func (c *conversation) startReveal(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	h := &revealHandle{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	c.active = h
	c.mu.Unlock()

	return ctx, func() {
		cancel()
		c.mu.Lock()
		if c.active == h {
			c.active = nil
		}
		c.mu.Unlock()
		close(h.done)
	}
}

// stopReveal cancels the running reveal, if any, and waits until its message
// has been finalised.
func (c *conversation) stopReveal() {
	c.mu.Lock()
	h := c.active
	c.mu.Unlock()

	if h != nil {
		h.cancel()
		<-h.done
	}
}
