package stream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/portfolio-ai/backend/internal/service/ai"
	chatservice "github.com/portfolio-ai/backend/internal/service/chat"
	"github.com/portfolio-ai/backend/internal/service/resolver"
	"github.com/portfolio-ai/backend/internal/service/reveal"
	"github.com/portfolio-ai/backend/internal/service/rules"
)

type gatedStrategy struct {
	gate chan struct{}
}

func (g gatedStrategy) Name() string { return "gated" }

func (g gatedStrategy) Generate(ctx context.Context, _ ai.Request) (string, error) {
	select {
	case <-g.gate:
		return "released", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func setup(t *testing.T, strategies ...ai.Strategy) (*chi.Mux, *chatservice.Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	res, err := resolver.New(resolver.Config{
		Strategies: strategies,
		Timeout:    2 * time.Second,
		Rules:      rules.Default(),
	}, resolver.WithLogger(logger))
	if err != nil {
		t.Fatalf("resolver.New err: %v", err)
	}

	chatSvc := chatservice.NewService(res, "System Online.",
		chatservice.WithLogger(logger),
		chatservice.WithTypewriter(reveal.Typewriter{Step: 5}),
	)

	r := chi.NewRouter()
	New(chatSvc, logger).RegisterRoutes(r)
	return r, chatSvc
}

func TestStreamRevealsLocalReply(t *testing.T) {
	r, chatSvc := setup(t)
	conv, _ := chatSvc.CreateConversation(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/stream/"+conv.ID+"?message=projects", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	body := resp.Body.String()
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	for _, want := range []string{"event: start", "event: delta", "event: message", "event: end", "Smart Railway Gate"} {
		if !strings.Contains(body, want) {
			t.Fatalf("stream body missing %q:\n%s", want, body)
		}
	}
	if strings.Index(body, "event: start") > strings.Index(body, "event: end") {
		t.Fatal("start must precede end")
	}
}

func TestStreamReportsBusyConversation(t *testing.T) {
	gate := make(chan struct{})
	r, chatSvc := setup(t, gatedStrategy{gate: gate})
	conv, _ := chatSvc.CreateConversation(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = chatSvc.Submit(context.Background(), conv.ID, "first", nil)
	}()

	// Wait until the first submission holds the conversation.
	deadline := time.Now().Add(time.Second)
	for {
		if _, err := chatSvc.Clear(context.Background(), conv.ID); err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first submission never became busy")
		}
		time.Sleep(5 * time.Millisecond)
	}

	req := httptest.NewRequest(http.MethodGet, "/stream/"+conv.ID+"?message=second", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if !strings.Contains(resp.Body.String(), "event: error") {
		t.Fatalf("expected error event, got:\n%s", resp.Body.String())
	}

	close(gate)
	<-done
}
