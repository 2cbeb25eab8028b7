package rules_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-ai/backend/internal/service/rules"
)

func exampleSet(t *testing.T) *rules.Set {
	t.Helper()
	set, err := rules.NewSet([]rules.Rule{
		{Name: "greeting", Pattern: "hi|hello", Response: "Hello! How can I help?"},
		{Name: "projects", Pattern: "project", Response: "Here are my projects..."},
		{Name: "catch-all", Pattern: ".*", Response: "I don't know."},
	})
	require.NoError(t, err)
	return set
}

func TestSetMatchFirstRuleWins(t *testing.T) {
	set := exampleSet(t)

	assert.Equal(t, "Hello! How can I help?", set.Match("Hi there"))
	assert.Equal(t, "Here are my projects...", set.Match("tell me about your projects"))
	assert.Equal(t, "I don't know.", set.Match("what's the weather"))
	assert.Equal(t, "Hello! How can I help?", set.Match("HELLO, anyone?"))
}

func TestSetMatchKeywordsAreLiteral(t *testing.T) {
	set, err := rules.NewSet([]rules.Rule{
		{Name: "cpp", Keywords: []string{"c++"}, Response: "systems"},
		{Name: "fallback", Response: "other"},
	})
	require.NoError(t, err)

	assert.Equal(t, "systems", set.Match("Do you know C++?"))
	assert.Equal(t, "other", set.Match("c"))
}

func TestNewSetRejectsMissingCatchAll(t *testing.T) {
	cases := map[string][]rules.Rule{
		"plain pattern": {
			{Pattern: "hello", Response: "hi"},
		},
		"anchored empty": {
			{Pattern: "hello", Response: "hi"},
			{Pattern: "^$", Response: "empty"},
		},
		"word boundary": {
			{Pattern: `\b`, Response: "boundary"},
		},
	}

	for name, rs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := rules.NewSet(rs)
			require.ErrorIs(t, err, rules.ErrNoCatchAll)
		})
	}
}

func TestNewSetValidation(t *testing.T) {
	_, err := rules.NewSet(nil)
	require.ErrorIs(t, err, rules.ErrNoRules)

	_, err = rules.NewSet([]rules.Rule{{Response: "  "}})
	require.ErrorIs(t, err, rules.ErrNoResponse)

	_, err = rules.NewSet([]rules.Rule{{Pattern: "(", Response: "x"}, {Response: "y"}})
	require.Error(t, err)
}

func TestNewSetAcceptsCatchAllForms(t *testing.T) {
	for _, pattern := range []string{"", ".*", "(?s).*", "x?", "hello|.*"} {
		_, err := rules.NewSet([]rules.Rule{{Pattern: pattern, Response: "ok"}})
		assert.NoError(t, err, "pattern %q", pattern)
	}
}

func TestDefaultRules(t *testing.T) {
	set := rules.Default()

	assert.Equal(t, "Hello! Accessing personnel files... How can I assist you?", set.Match("hello"))
	assert.Contains(t, set.Match("what tech stack"), "Python")
	assert.Contains(t, set.Match("how can I reach you"), "contact him")
	assert.Equal(t, rules.SimulationModeReply, set.Match("xyz"))

	rule, idx := set.MatchRule("chess?")
	assert.Equal(t, "hobbies", rule.Name)
	assert.Equal(t, 5, idx)
}

func TestParseYAML(t *testing.T) {
	set, err := rules.Parse([]byte(`
rules:
  - name: greeting
    pattern: "hi|hello"
    response: "Hello! How can I help?"
  - name: catch-all
    response: "I don't know."
`))
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, "I don't know.", set.Match("weather"))

	_, err = rules.Parse([]byte("rules:\n  - pattern: hi\n    response: x\n"))
	require.ErrorIs(t, err, rules.ErrNoCatchAll)

	_, err = rules.Parse([]byte("rules:\n  - unknown: field\n"))
	require.Error(t, err)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - response: first\n"), 0o644))

	var latest atomic.Pointer[rules.Set]
	w, err := rules.NewWatcher(path, func(s *rules.Set) { latest.Store(s) }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// An invalid file is ignored.
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - pattern: hi\n    response: x\n"), 0o644))
	time.Sleep(400 * time.Millisecond)
	assert.Nil(t, latest.Load())

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - response: second\n"), 0o644))
	require.Eventually(t, func() bool {
		s := latest.Load()
		return s != nil && s.Match("anything") == "second"
	}, 3*time.Second, 20*time.Millisecond)
}
