package resolver_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/portfolio-ai/backend/internal/model/chat"
	"github.com/portfolio-ai/backend/internal/service/ai"
	"github.com/portfolio-ai/backend/internal/service/resolver"
	"github.com/portfolio-ai/backend/internal/service/rules"
)

type fakeStrategy struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context, req ai.Request) (string, error)
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Generate(ctx context.Context, req ai.Request) (string, error) {
	f.calls.Add(1)
	return f.fn(ctx, req)
}

type probingStrategy struct {
	*fakeStrategy
	probes atomic.Int32
	probe  func(ctx context.Context) error
}

func (p *probingStrategy) Probe(ctx context.Context) error {
	p.probes.Add(1)
	return p.probe(ctx)
}

func reply(text string) func(context.Context, ai.Request) (string, error) {
	return func(context.Context, ai.Request) (string, error) { return text, nil }
}

func fail(err error) func(context.Context, ai.Request) (string, error) {
	return func(context.Context, ai.Request) (string, error) { return "", err }
}

func blockUntilCancelled(ctx context.Context, _ ai.Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newResolver(t *testing.T, cfg resolver.Config, opts ...resolver.Option) *resolver.Resolver {
	t.Helper()
	if cfg.Rules == nil {
		cfg.Rules = rules.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	opts = append([]resolver.Option{resolver.WithLogger(quietLogger())}, opts...)
	r, err := resolver.New(cfg, opts...)
	require.NoError(t, err)
	return r
}

func TestNewValidation(t *testing.T) {
	_, err := resolver.New(resolver.Config{Timeout: time.Second})
	require.ErrorIs(t, err, resolver.ErrNoRules)

	_, err = resolver.New(resolver.Config{Rules: rules.Default()})
	require.ErrorIs(t, err, resolver.ErrInvalidTimeout)
}

func TestResolveRemoteSuccessIsVerbatimTrimmed(t *testing.T) {
	remote := &fakeStrategy{name: "ollama", fn: reply("\n  Usman builds IoT systems.  \n")}
	r := newResolver(t, resolver.Config{Strategies: []ai.Strategy{remote}})

	res := r.ResolveDetailed(context.Background(), "  hello  ", nil)
	assert.Equal(t, "Usman builds IoT systems.", res.Text)
	assert.Equal(t, resolver.SourceRemote, res.Source)
	assert.Equal(t, "ollama", res.Strategy)
	assert.Equal(t, 1, res.Attempts)
}

func TestResolveFallsBackOnFailures(t *testing.T) {
	cases := map[string]func(context.Context, ai.Request) (string, error){
		"error":       fail(errors.New("connection refused")),
		"blank reply": reply("   "),
		"empty reply": fail(ai.ErrEmptyReply),
		"panic": func(context.Context, ai.Request) (string, error) {
			panic("decoder exploded")
		},
	}

	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			remote := &fakeStrategy{name: "ollama", fn: fn}
			r := newResolver(t, resolver.Config{Strategies: []ai.Strategy{remote}})

			res := r.ResolveDetailed(context.Background(), "hello", nil)
			assert.Equal(t, "Hello! Accessing personnel files... How can I assist you?", res.Text)
			assert.Equal(t, resolver.SourceLocal, res.Source)
			assert.Equal(t, "greeting", res.Rule)
			assert.EqualValues(t, 1, remote.calls.Load(), "no retry within one resolve")
		})
	}
}

func TestResolveFallsBackOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	remote := ai.NewOllamaStrategy(srv.URL, "phi:latest", 0.2, 2048, srv.Client())
	r := newResolver(t, resolver.Config{Strategies: []ai.Strategy{remote}})

	got := r.Resolve(context.Background(), "tell me about your projects", nil)
	assert.Contains(t, got, "Smart Railway Gate")
}

func TestResolveTimeoutReturnsWithinBound(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	remote := &fakeStrategy{name: "ollama", fn: blockUntilCancelled}
	r := newResolver(t, resolver.Config{
		Strategies:    []ai.Strategy{remote},
		Timeout:       50 * time.Millisecond,
		FallbackDelay: time.Second,
	})

	start := time.Now()
	res := r.ResolveDetailed(context.Background(), "xyz", nil)
	elapsed := time.Since(start)

	assert.Equal(t, rules.SimulationModeReply, res.Text)
	assert.Equal(t, resolver.SourceLocal, res.Source)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestResolveTimeoutWhenStrategyIgnoresContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	remote := &fakeStrategy{name: "stuck", fn: func(context.Context, ai.Request) (string, error) {
		<-release
		return "too late", nil
	}}
	r := newResolver(t, resolver.Config{Strategies: []ai.Strategy{remote}, Timeout: 30 * time.Millisecond})

	start := time.Now()
	res := r.ResolveDetailed(context.Background(), "hobby?", nil)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, resolver.SourceLocal, res.Source)
	assert.Equal(t, "He enjoys playing Chess and exploring new food cultures.", res.Text)

	close(release)
}

func TestResolveTriesStrategiesInOrder(t *testing.T) {
	first := &fakeStrategy{name: "openai", fn: fail(errors.New("401"))}
	second := &fakeStrategy{name: "ollama", fn: reply("from ollama")}
	third := &fakeStrategy{name: "gemini", fn: reply("from gemini")}
	r := newResolver(t, resolver.Config{Strategies: []ai.Strategy{first, second, third}})

	res := r.ResolveDetailed(context.Background(), "hi", nil)
	assert.Equal(t, "from ollama", res.Text)
	assert.Equal(t, "ollama", res.Strategy)
	assert.Equal(t, 2, res.Attempts)
	assert.EqualValues(t, 1, first.calls.Load())
	assert.EqualValues(t, 0, third.calls.Load())
}

func TestResolveSendsBoundedHistoryAndSystemContext(t *testing.T) {
	var captured ai.Request
	remote := &fakeStrategy{name: "ollama", fn: func(_ context.Context, req ai.Request) (string, error) {
		captured = req
		return "ok", nil
	}}
	r := newResolver(t, resolver.Config{
		Strategies:    []ai.Strategy{remote},
		SystemContext: "You are Usman.AI.",
		HistoryLimit:  3,
	})

	history := []chat.Turn{
		{Role: chat.RoleAssistant, Content: "greeting"},
		{Role: chat.RoleUser, Content: "one"},
		{Role: chat.RoleAssistant, Content: "two"},
		{Role: chat.RoleUser, Content: "three"},
		{Role: chat.RoleAssistant, Content: "four"},
	}
	r.Resolve(context.Background(), "five", history)

	assert.Equal(t, "You are Usman.AI.", captured.SystemContext)
	assert.Equal(t, "five", captured.Message)
	assert.Equal(t, history[2:], captured.History)
	assert.Len(t, history, 5, "caller history untouched")
}

func TestResolveEmptyMessageUsesCatchAll(t *testing.T) {
	remote := &fakeStrategy{name: "ollama", fn: reply("remote")}
	r := newResolver(t, resolver.Config{Strategies: []ai.Strategy{remote}})

	res := r.ResolveDetailed(context.Background(), "   ", nil)
	assert.Equal(t, rules.SimulationModeReply, res.Text)
	assert.Zero(t, res.Attempts)
	assert.EqualValues(t, 0, remote.calls.Load())
}

func TestResolveNeverEmpty(t *testing.T) {
	r := newResolver(t, resolver.Config{})
	for _, msg := range []string{"hi", "who made you", "skills", "projects", "email", "chess", "???", "\t"} {
		assert.NotEmpty(t, r.Resolve(context.Background(), msg, nil), msg)
	}
}

func TestResolveFallbackDelayOnlyWithoutAttempts(t *testing.T) {
	r := newResolver(t, resolver.Config{FallbackDelay: 60 * time.Millisecond})

	res := r.ResolveDetailed(context.Background(), "hi", nil)
	assert.GreaterOrEqual(t, res.Latency, 60*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.NotEmpty(t, r.Resolve(ctx, "hi", nil))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestReachabilityCooldown(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	var healthy atomic.Bool
	remote := &fakeStrategy{name: "ollama", fn: func(context.Context, ai.Request) (string, error) {
		if healthy.Load() {
			return "back online", nil
		}
		return "", errors.New("connection refused")
	}}
	r := newResolver(t, resolver.Config{
		Strategies:       []ai.Strategy{remote},
		FailureThreshold: 2,
		Cooldown:         time.Minute,
	}, resolver.WithClock(clock))

	assert.Equal(t, resolver.StatusOnline, r.Status())
	r.Resolve(context.Background(), "hi", nil)
	r.Resolve(context.Background(), "hi", nil)
	assert.Equal(t, resolver.StatusSimulated, r.Status())

	res := r.ResolveDetailed(context.Background(), "hi", nil)
	assert.Zero(t, res.Attempts)
	assert.EqualValues(t, 2, remote.calls.Load())

	health := r.Health()
	require.Len(t, health, 1)
	assert.False(t, health[0].Reachable)
	assert.Equal(t, 2, health[0].ConsecutiveFailures)
	assert.Equal(t, "connection refused", health[0].LastError)

	advance(time.Minute)
	healthy.Store(true)
	res = r.ResolveDetailed(context.Background(), "hi", nil)
	assert.Equal(t, "back online", res.Text)
	assert.Equal(t, resolver.StatusOnline, r.Status())
}

func TestCallerCancellationKeepsStrategyReachable(t *testing.T) {
	started := make(chan struct{}, 1)
	remote := &fakeStrategy{name: "ollama", fn: func(ctx context.Context, req ai.Request) (string, error) {
		if req.Message == "hello" {
			return "hi there", nil
		}
		started <- struct{}{}
		return blockUntilCancelled(ctx, req)
	}}
	backup := &fakeStrategy{name: "openai", fn: reply("should not run")}
	r := newResolver(t, resolver.Config{
		Strategies:       []ai.Strategy{remote, backup},
		Timeout:          5 * time.Second,
		FailureThreshold: 1,
	})

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-started
			cancel()
		}()
		res := r.ResolveDetailed(ctx, "visitor left", nil)
		cancel()
		assert.Equal(t, resolver.SourceLocal, res.Source)
		assert.NotEmpty(t, res.Text)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	res := r.ResolveDetailed(cancelled, "visitor left", nil)
	assert.Zero(t, res.Attempts)
	assert.Equal(t, resolver.SourceLocal, res.Source)

	assert.Zero(t, backup.calls.Load())
	assert.Equal(t, resolver.StatusOnline, r.Status())
	for _, h := range r.Health() {
		assert.True(t, h.Reachable, h.Strategy)
		assert.Zero(t, h.ConsecutiveFailures, h.Strategy)
	}

	res = r.ResolveDetailed(context.Background(), "hello", nil)
	assert.Equal(t, resolver.SourceRemote, res.Source)
	assert.Equal(t, "hi there", res.Text)
}

func TestStatusWithoutStrategies(t *testing.T) {
	r := newResolver(t, resolver.Config{})
	assert.Equal(t, resolver.StatusSimulated, r.Status())
	assert.Empty(t, r.Probe(context.Background()))
}

func TestProbeUpdatesReachability(t *testing.T) {
	var up atomic.Bool
	remote := &probingStrategy{
		fakeStrategy: &fakeStrategy{name: "ollama", fn: reply("hello from phi")},
		probe: func(context.Context) error {
			if up.Load() {
				return nil
			}
			return errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")
		},
	}
	plain := &fakeStrategy{name: "openai", fn: fail(errors.New("offline"))}
	r := newResolver(t, resolver.Config{Strategies: []ai.Strategy{remote, plain}, FailureThreshold: 1})

	results := r.Probe(context.Background())
	require.Len(t, results, 1)
	assert.False(t, results[0].Reachable)
	assert.NotEmpty(t, results[0].Error)

	res := r.ResolveDetailed(context.Background(), "hi", nil)
	assert.EqualValues(t, 0, remote.calls.Load(), "probed-down strategy is skipped")
	assert.Equal(t, resolver.SourceLocal, res.Source)
	assert.Equal(t, resolver.StatusSimulated, r.Status())

	up.Store(true)
	results = r.Probe(context.Background())
	assert.True(t, results[0].Reachable)
	assert.Equal(t, "hello from phi", r.Resolve(context.Background(), "hi", nil))
}

func TestProbeCollapsesConcurrentCalls(t *testing.T) {
	gate := make(chan struct{})
	remote := &probingStrategy{
		fakeStrategy: &fakeStrategy{name: "ollama", fn: reply("ok")},
		probe: func(context.Context) error {
			<-gate
			return nil
		},
	}
	r := newResolver(t, resolver.Config{Strategies: []ai.Strategy{remote}})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Probe(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return remote.probes.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.LessOrEqual(t, remote.probes.Load(), int32(5))
	assert.GreaterOrEqual(t, remote.probes.Load(), int32(1))
}

func TestSetRulesSwapsFallback(t *testing.T) {
	r := newResolver(t, resolver.Config{})
	custom, err := rules.NewSet([]rules.Rule{{Name: "only", Response: "custom fallback"}})
	require.NoError(t, err)

	r.SetRules(custom)
	r.SetRules(nil)
	assert.Equal(t, "custom fallback", r.Resolve(context.Background(), "hi", nil))
	assert.Same(t, custom, r.Rules())
}

func TestSchedulerProbesPeriodically(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the cron tick")
	}

	remote := &probingStrategy{
		fakeStrategy: &fakeStrategy{name: "ollama", fn: reply("ok")},
		probe:        func(context.Context) error { return nil },
	}
	r := newResolver(t, resolver.Config{Strategies: []ai.Strategy{remote}})

	s := resolver.NewScheduler(r, time.Second, quietLogger())
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool { return remote.probes.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestSchedulerDisabled(t *testing.T) {
	r := newResolver(t, resolver.Config{})
	s := resolver.NewScheduler(r, 0, quietLogger())
	require.NoError(t, s.Start())
	assert.False(t, s.IsRunning())
	s.Stop()
}
