package ai

import (
	"fmt"
	"strings"

	"github.com/portfolio-ai/backend/internal/model/persona"
)

// BuildSystemContext renders the system prompt a remote model receives for the
// given assistant persona.
func BuildSystemContext(p persona.Persona) string {
	if p.Name == "" {
		return ""
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "You are %s", p.Name)
	if p.Title != "" {
		fmt.Fprintf(&builder, ", a %s", p.Title)
	}
	builder.WriteString(".")

	facts := append([]string(nil), p.Facts...)
	if len(p.Expertise) > 0 {
		facts = append(facts, "Skills: "+strings.Join(p.Expertise, ", ")+".")
	}
	if len(p.Projects) > 0 {
		facts = append(facts, "Projects: "+strings.Join(p.Projects, ", ")+".")
	}
	if len(facts) > 0 {
		builder.WriteString("\nFACTS:")
		for _, fact := range facts {
			builder.WriteString("\n- ")
			builder.WriteString(fact)
		}
	}

	rules := p.Rules
	if p.Tone != "" {
		rules = append([]string{fmt.Sprintf("Keep a %s tone.", p.Tone)}, rules...)
	}
	if len(rules) > 0 {
		builder.WriteString("\nRULES: ")
		builder.WriteString(strings.Join(rules, " "))
	}

	return builder.String()
}
