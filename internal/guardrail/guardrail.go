// Package guardrail screens inbound text for prompt-injection phrases
// before it reaches the model.
package guardrail

import (
	"strings"
	"unicode"
)

// RefusalMessage is returned to the user for blocked input.
const RefusalMessage = "I cannot process that request due to security policy violations."

// ReasonPromptInjection is the reason recorded for deny-list matches.
const ReasonPromptInjection = "Prompt Injection Detected"

// DefaultPatterns is the built-in deny-list. A trailing space makes the
// pattern match a whole word only.
var DefaultPatterns = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"system prompt",
	"you are now dan",
	"you are now in",
	"you are now a ",
	"you are now an ",
	"bypass mode",
	"developer mode",
	"disregard your instructions",
}

// Verdict is the outcome of screening one message.
type Verdict struct {
	Blocked bool
	Reason  string
	Pattern string
}

// Guard matches text against a lower-cased deny-list.
type Guard struct {
	patterns []string
}

// New builds a guard over the default patterns plus extra. Leading
// whitespace is dropped, trailing whitespace is kept.
func New(extra ...string) *Guard {
	g := &Guard{}
	seen := make(map[string]bool)
	for _, p := range append(append([]string{}, DefaultPatterns...), extra...) {
		p = strings.ToLower(strings.TrimLeftFunc(p, unicode.IsSpace))
		if strings.TrimSpace(p) == "" || seen[p] {
			continue
		}
		seen[p] = true
		g.patterns = append(g.patterns, p)
	}
	return g
}

// Patterns returns the normalised deny-list.
func (g *Guard) Patterns() []string {
	return append([]string(nil), g.patterns...)
}

// Screen reports whether text contains any deny-listed phrase.
func (g *Guard) Screen(text string) Verdict {
	lower := strings.Join(strings.Fields(strings.ToLower(text)), " ") + " "
	for _, p := range g.patterns {
		if strings.Contains(lower, p) {
			return Verdict{Blocked: true, Reason: ReasonPromptInjection, Pattern: strings.TrimSpace(p)}
		}
	}
	return Verdict{}
}

var defaultGuard = New()

// Screen checks text against the default deny-list.
func Screen(text string) Verdict {
	return defaultGuard.Screen(text)
}
