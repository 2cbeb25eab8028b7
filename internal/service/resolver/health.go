package resolver

import (
	"sync"
	"time"
)

// StrategyHealth is the reachability view of one remote strategy.
type StrategyHealth struct {
	Strategy            string    `json:"strategy"`
	Reachable           bool      `json:"reachable"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastError           string    `json:"lastError,omitempty"`
	LastSuccess         time.Time `json:"lastSuccess,omitempty"`
	RetryAfter          time.Time `json:"retryAfter,omitempty"`
}

type healthEntry struct {
	failures    int
	lastError   string
	lastSuccess time.Time
	downUntil   time.Time
}

// tracker remembers which strategies were last known reachable. After
// threshold consecutive failures a strategy is skipped until cooldown has
// elapsed; the next attempt after that decides whether it stays down.
type tracker struct {
	mu        sync.Mutex
	order     []string
	entries   map[string]*healthEntry
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

func newTracker(names []string, threshold int, cooldown time.Duration, now func() time.Time) *tracker {
	t := &tracker{
		entries:   make(map[string]*healthEntry, len(names)),
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
	}
	for _, name := range names {
		if _, ok := t.entries[name]; ok {
			continue
		}
		t.order = append(t.order, name)
		t.entries[name] = &healthEntry{}
	}
	return t
}

func (t *tracker) entry(name string) *healthEntry {
	e, ok := t.entries[name]
	if !ok {
		e = &healthEntry{}
		t.entries[name] = e
		t.order = append(t.order, name)
	}
	return e
}

func (t *tracker) reachable(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isReachable(t.entry(name))
}

func (t *tracker) isReachable(e *healthEntry) bool {
	return e.failures < t.threshold || !t.now().Before(e.downUntil)
}

func (t *tracker) success(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entry(name)
	e.failures = 0
	e.lastError = ""
	e.lastSuccess = t.now()
	e.downUntil = time.Time{}
}

func (t *tracker) failure(name string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entry(name)
	e.failures++
	e.lastError = err.Error()
	if e.failures >= t.threshold {
		e.downUntil = t.now().Add(t.cooldown)
	}
}

// down marks a strategy unreachable immediately, as after a failed probe.
func (t *tracker) down(name string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entry(name)
	if e.failures < t.threshold {
		e.failures = t.threshold
	}
	e.lastError = err.Error()
	e.downUntil = t.now().Add(t.cooldown)
}

func (t *tracker) snapshot() []StrategyHealth {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]StrategyHealth, 0, len(t.order))
	for _, name := range t.order {
		e := t.entries[name]
		h := StrategyHealth{
			Strategy:            name,
			Reachable:           t.isReachable(e),
			ConsecutiveFailures: e.failures,
			LastError:           e.lastError,
			LastSuccess:         e.lastSuccess,
		}
		if !h.Reachable {
			h.RetryAfter = e.downUntil
		}
		out = append(out, h)
	}
	return out
}
