package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/portfolio-ai/backend/internal/model/chat"
	"github.com/portfolio-ai/backend/internal/service/ai"
	"github.com/portfolio-ai/backend/internal/service/rules"
)

// Source tells where a reply came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Status is the assistant availability shown in the widget header.
type Status string

const (
	StatusOnline    Status = "online"
	StatusSimulated Status = "simulated"
)

const (
	DefaultHistoryLimit     = 10
	DefaultFailureThreshold = 3
	DefaultCooldown         = time.Minute
)

var (
	ErrNoRules        = errors.New("resolver: fallback rules are required")
	ErrInvalidTimeout = errors.New("resolver: timeout must be positive")
	errStrategyPanic  = errors.New("strategy panicked")
)

// Config is supplied once at construction.
type Config struct {
	Strategies       []ai.Strategy
	Timeout          time.Duration
	SystemContext    string
	Rules            *rules.Set
	HistoryLimit     int
	FailureThreshold int
	Cooldown         time.Duration
	// FallbackDelay is waited before a local reply when no remote attempt
	// was made, so simulated answers do not appear instantly.
	FallbackDelay time.Duration
}

// Resolution describes how a reply was produced.
type Resolution struct {
	Text     string        `json:"text"`
	Source   Source        `json:"source"`
	Strategy string        `json:"strategy,omitempty"`
	Rule     string        `json:"rule,omitempty"`
	Attempts int           `json:"attempts"`
	Latency  time.Duration `json:"latency"`
}

// Resolver decides how to answer a visitor message: ordered remote attempts,
// each bounded by a timeout, then a deterministic local rule.
type Resolver struct {
	strategies    []ai.Strategy
	timeout       time.Duration
	systemContext string
	historyLimit  int
	fallbackDelay time.Duration

	rules   atomic.Pointer[rules.Set]
	health  *tracker
	probes  singleflight.Group
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
	outcome metric.Int64Counter
	remote  metric.Float64Histogram
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for remote failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracer sets the tracer used for resolve and attempt spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Resolver) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithMeter registers resolution metrics on meter.
func WithMeter(meter metric.Meter) Option {
	return func(r *Resolver) {
		if meter == nil {
			return
		}
		if counter, err := meter.Int64Counter("chat.resolutions",
			metric.WithDescription("Resolved chat replies by source")); err == nil {
			r.outcome = counter
		}
		if hist, err := meter.Float64Histogram("chat.remote.duration",
			metric.WithDescription("Remote attempt duration"),
			metric.WithUnit("ms")); err == nil {
			r.remote = hist
		}
	}
}

// WithClock replaces time.Now for reachability bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// New validates cfg and builds a Resolver.
func New(cfg Config, opts ...Option) (*Resolver, error) {
	if cfg.Rules == nil {
		return nil, ErrNoRules
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimeout, cfg.Timeout)
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}

	strategies := make([]ai.Strategy, 0, len(cfg.Strategies))
	for _, s := range cfg.Strategies {
		if s != nil {
			strategies = append(strategies, s)
		}
	}

	r := &Resolver{
		strategies:    strategies,
		timeout:       cfg.Timeout,
		systemContext: cfg.SystemContext,
		historyLimit:  cfg.HistoryLimit,
		fallbackDelay: cfg.FallbackDelay,
		logger:        slog.Default(),
		tracer:        otel.Tracer("resolver"),
		now:           time.Now,
	}
	r.rules.Store(cfg.Rules)

	for _, opt := range opts {
		opt(r)
	}
	r.health = newTracker(strategyNames(strategies), cfg.FailureThreshold, cfg.Cooldown, r.now)
	return r, nil
}

// Resolve returns a non-empty reply for message. It never fails: remote
// errors, timeouts and blank replies fall through to the local rules.
func (r *Resolver) Resolve(ctx context.Context, message string, history []chat.Turn) string {
	return r.ResolveDetailed(ctx, message, history).Text
}

// ResolveDetailed is Resolve plus provenance.
func (r *Resolver) ResolveDetailed(ctx context.Context, message string, history []chat.Turn) Resolution {
	start := time.Now()
	message = strings.TrimSpace(message)

	ctx, span := r.tracer.Start(ctx, "resolve")
	defer span.End()

	res := Resolution{Source: SourceLocal}
	if message != "" {
		req := ai.Request{
			SystemContext: r.systemContext,
			History:       r.boundHistory(history),
			Message:       message,
		}

		for _, strategy := range r.strategies {
			if ctx.Err() != nil {
				break
			}
			name := strategy.Name()
			if !r.health.reachable(name) {
				r.logger.Debug("skipping unreachable strategy", "strategy", name)
				continue
			}

			res.Attempts++
			text, err := r.attempt(ctx, strategy, req)
			if err != nil && ctx.Err() != nil {
				// The caller went away; that says nothing about the strategy.
				r.logger.Debug("resolve cancelled by caller", "strategy", name, "error", err)
				break
			}
			if err != nil {
				r.health.failure(name, err)
				r.logger.Warn("remote strategy failed, trying next",
					"strategy", name,
					"error", err,
				)
				continue
			}

			r.health.success(name)
			res.Text = text
			res.Source = SourceRemote
			res.Strategy = name
			break
		}
	}

	if res.Source == SourceLocal {
		if res.Attempts == 0 {
			r.wait(ctx, r.fallbackDelay)
		}
		rule, _ := r.rules.Load().MatchRule(message)
		res.Text = rule.Response
		res.Rule = rule.Name
	}

	res.Latency = time.Since(start)
	span.SetAttributes(
		attribute.String("chat.source", string(res.Source)),
		attribute.String("chat.strategy", res.Strategy),
		attribute.Int("chat.attempts", res.Attempts),
	)
	if r.outcome != nil {
		r.outcome.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(res.Source))))
	}
	return res
}

// attempt makes exactly one bounded call. The strategy runs on its own
// goroutine so a call that ignores ctx still cannot hold the caller past the
// timeout.
func (r *Resolver) attempt(parent context.Context, strategy ai.Strategy, req ai.Request) (string, error) {
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, "attempt", trace.WithAttributes(attribute.String("chat.strategy", strategy.Name())))
	defer span.End()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	start := time.Now()

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("%w: %v", errStrategyPanic, p)}
			}
		}()
		text, err := strategy.Generate(ctx, req)
		done <- result{text: text, err: err}
	}()

	var out result
	select {
	case out = <-done:
	case <-ctx.Done():
		out = result{err: ctx.Err()}
	}

	if r.remote != nil {
		r.remote.Record(parent, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("strategy", strategy.Name())))
	}

	if out.err == nil && strings.TrimSpace(out.text) == "" {
		out.err = ai.ErrEmptyReply
	}
	if out.err != nil {
		span.RecordError(out.err)
		span.SetStatus(codes.Error, out.err.Error())
		return "", out.err
	}
	return strings.TrimSpace(out.text), nil
}

func (r *Resolver) boundHistory(history []chat.Turn) []chat.Turn {
	if len(history) > r.historyLimit {
		history = history[len(history)-r.historyLimit:]
	}
	bounded := make([]chat.Turn, len(history))
	copy(bounded, history)
	return bounded
}

func (r *Resolver) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// SetRules swaps the fallback rule set. Nil is ignored.
func (r *Resolver) SetRules(set *rules.Set) {
	if set != nil {
		r.rules.Store(set)
	}
}

// Rules returns the active fallback rule set.
func (r *Resolver) Rules() *rules.Set {
	return r.rules.Load()
}

// Status reports online when at least one remote strategy is currently
// considered reachable.
func (r *Resolver) Status() Status {
	for _, s := range r.strategies {
		if r.health.reachable(s.Name()) {
			return StatusOnline
		}
	}
	return StatusSimulated
}

// Health returns per-strategy reachability in configured order.
func (r *Resolver) Health() []StrategyHealth {
	return r.health.snapshot()
}

// ProbeResult is the outcome of probing one strategy.
type ProbeResult struct {
	Strategy  string `json:"strategy"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// Probe checks every strategy that supports it and updates reachability.
// Concurrent callers share a single round of probes.
func (r *Resolver) Probe(ctx context.Context) []ProbeResult {
	v, _, _ := r.probes.Do("probe", func() (any, error) {
		results := make([]ProbeResult, 0, len(r.strategies))
		for _, strategy := range r.strategies {
			prober, ok := strategy.(ai.Prober)
			if !ok {
				continue
			}

			name := strategy.Name()
			probeCtx, cancel := context.WithTimeout(ctx, r.timeout)
			err := prober.Probe(probeCtx)
			cancel()

			result := ProbeResult{Strategy: name, Reachable: err == nil}
			if err != nil {
				r.health.down(name, err)
				result.Error = err.Error()
				r.logger.Info("strategy probe failed", "strategy", name, "error", err)
			} else {
				r.health.success(name)
			}
			results = append(results, result)
		}
		return results, nil
	})
	return v.([]ProbeResult)
}

func strategyNames(strategies []ai.Strategy) []string {
	names := make([]string, len(strategies))
	for i, s := range strategies {
		names[i] = s.Name()
	}
	return names
}
