package rules

import (
	"errors"
	"fmt"
	"regexp"
	"regexp/syntax"
	"strings"
)

var (
	ErrNoRules    = errors.New("fallback rules are empty")
	ErrNoCatchAll = errors.New("last fallback rule must match every message")
	ErrNoResponse = errors.New("fallback rule has an empty response")
)

// Rule maps a message pattern to a canned response. Pattern is a regular
// expression, Keywords are literal substrings; both match case-insensitively.
// A rule with neither matches everything.
type Rule struct {
	Name     string   `yaml:"name" json:"name"`
	Pattern  string   `yaml:"pattern" json:"pattern,omitempty"`
	Keywords []string `yaml:"keywords" json:"keywords,omitempty"`
	Response string   `yaml:"response" json:"response"`
}

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

func (c compiledRule) matches(message string) bool {
	return c.re == nil || c.re.MatchString(message)
}

// Set is an ordered, validated list of rules whose final entry is a catch-all.
type Set struct {
	rules []compiledRule
}

// NewSet compiles rules and enforces the catch-all invariant.
func NewSet(rules []Rule) (*Set, error) {
	if len(rules) == 0 {
		return nil, ErrNoRules
	}

	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		if strings.TrimSpace(rule.Response) == "" {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Name, ErrNoResponse)
		}
		re, err := compile(rule)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Name, err)
		}
		compiled = append(compiled, compiledRule{rule: rule, re: re})
	}

	if !isCatchAll(compiled[len(compiled)-1].re) {
		return nil, ErrNoCatchAll
	}

	return &Set{rules: compiled}, nil
}

// MustNewSet is NewSet for rule tables known at compile time.
func MustNewSet(rules []Rule) *Set {
	set, err := NewSet(rules)
	if err != nil {
		panic(err)
	}
	return set
}

// Match returns the response of the first rule matching message.
func (s *Set) Match(message string) string {
	rule, _ := s.MatchRule(message)
	return rule.Response
}

// MatchRule returns the first matching rule and its position.
func (s *Set) MatchRule(message string) (Rule, int) {
	for i, c := range s.rules {
		if c.matches(message) {
			return c.rule, i
		}
	}
	// Unreachable while the catch-all invariant holds.
	panic("rules: no fallback rule matched; catch-all invariant violated")
}

// Rules returns a copy of the source rules.
func (s *Set) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	for i, c := range s.rules {
		out[i] = c.rule
	}
	return out
}

// Len reports the number of rules.
func (s *Set) Len() int {
	return len(s.rules)
}

func compile(rule Rule) (*regexp.Regexp, error) {
	var parts []string
	if p := strings.TrimSpace(rule.Pattern); p != "" {
		parts = append(parts, "(?:"+p+")")
	}
	for _, kw := range rule.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			parts = append(parts, regexp.QuoteMeta(kw))
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}

	re, err := regexp.Compile("(?i)" + strings.Join(parts, "|"))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	return re, nil
}

// isCatchAll reports whether an unanchored search with re succeeds on every
// input: the expression must accept the empty string without relying on any
// empty-width assertion.
func isCatchAll(re *regexp.Regexp) bool {
	if re == nil {
		return true
	}
	if !re.MatchString("") {
		return false
	}
	parsed, err := syntax.Parse(re.String(), syntax.Perl)
	if err != nil {
		return false
	}
	return !hasAssertion(parsed.Simplify())
}

func hasAssertion(re *syntax.Regexp) bool {
	switch re.Op {
	case syntax.OpBeginLine, syntax.OpEndLine, syntax.OpBeginText, syntax.OpEndText,
		syntax.OpWordBoundary, syntax.OpNoWordBoundary:
		return true
	}
	for _, sub := range re.Sub {
		if hasAssertion(sub) {
			return true
		}
	}
	return false
}
