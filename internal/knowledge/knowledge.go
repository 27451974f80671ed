// Package knowledge answers company policy questions with a keyword-ranked
// lookup over a small policy set.
package knowledge

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/soyeahso/roombot/internal/logging"
)

const (
	NoMatchMessage    = "I couldn't find any specific policy regarding that. Please check the company portal."
	EmptyQueryMessage = "Please provide a search query."

	maxResults = 3
)

//go:embed policies.json
var defaultPolicies []byte

// Policy is one question/answer entry.
type Policy struct {
	Category string   `json:"category"`
	Question string   `json:"question"`
	Keywords []string `json:"keywords"`
	Answer   string   `json:"answer"`
}

// Searcher looks up policy text for a free-form query.
type Searcher interface {
	Search(ctx context.Context, query string) string
}

// Base is an in-memory policy set.
type Base struct {
	policies []Policy
}

// New builds a Base over policies.
func New(policies []Policy) *Base {
	for i := range policies {
		for j, kw := range policies[i].Keywords {
			policies[i].Keywords[j] = strings.ToLower(kw)
		}
	}
	return &Base{policies: policies}
}

// Default returns the built-in policy set.
func Default() *Base {
	var ps []Policy
	if err := json.Unmarshal(defaultPolicies, &ps); err != nil {
		panic(fmt.Sprintf("knowledge: embedded policies: %v", err))
	}
	return New(ps)
}

// Load reads policies from a JSON file. An empty path, or a file that does
// not exist, yields the built-in set.
func Load(path string, log *logging.Logger) (*Base, error) {
	log = log.Sub("knowledge")
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Warn().Str("path", path).Msg("policy file not found, using built-in policies")
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading policies: %w", err)
	}
	var ps []Policy
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("parsing policies %s: %w", path, err)
	}
	log.Info().Int("count", len(ps)).Str("path", path).Msg("loaded policies")
	return New(ps), nil
}

// Len returns the number of policies.
func (b *Base) Len() int { return len(b.policies) }

type scored struct {
	policy Policy
	score  float64
}

// Search ranks policies against query and formats the top matches.
func (b *Base) Search(_ context.Context, query string) string {
	if strings.TrimSpace(query) == "" {
		return EmptyQueryMessage
	}

	q := strings.ToLower(query)
	var terms []string
	for _, w := range strings.Split(q, " ") {
		if len(w) > 2 {
			terms = append(terms, w)
		}
	}

	var hits []scored
	for _, p := range b.policies {
		if s := score(p, q, terms); s > 0 {
			hits = append(hits, scored{policy: p, score: s})
		}
	}
	if len(hits) == 0 {
		return NoMatchMessage
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}

	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = fmt.Sprintf("[%s] Q: %s\nA: %s", h.policy.Category, h.policy.Question, h.policy.Answer)
	}
	return strings.Join(parts, "\n---\n")
}

func score(p Policy, q string, terms []string) float64 {
	var s float64
	for _, kw := range p.Keywords {
		if kw != "" && strings.Contains(q, kw) {
			s += 5
		}
	}
	question := strings.ToLower(p.Question)
	answer := strings.ToLower(p.Answer)
	if strings.Contains(question, q) {
		s += 10
	}
	for _, t := range terms {
		if strings.Contains(question, t) {
			s++
		}
		if strings.Contains(answer, t) {
			s += 0.5
		}
	}
	return s
}
