package agent

import (
	"fmt"
	"strings"
	"time"
)

// PromptConfig controls system prompt generation.
type PromptConfig struct {
	AgentName    string
	Organization string
	Now          time.Time
	Location     *time.Location
	ChannelID    string
	ExtraPrompt  string
}

// BuildSystemPrompt constructs the system instruction for a turn.
func BuildSystemPrompt(cfg PromptConfig) string {
	var b strings.Builder

	org := cfg.Organization
	if org == "" {
		org = "the company"
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	fmt.Fprintf(&b, "You are %s, a helpful meeting room assistant for %s.\n", cfg.AgentName, org)
	fmt.Fprintf(&b, "Current Time: %s (%s)\n", cfg.Now.In(loc).Format("Monday, 2006-01-02 15:04"), loc.String())
	if cfg.ChannelID != "" {
		fmt.Fprintf(&b, "Channel: %s\n", cfg.ChannelID)
	}

	b.WriteString("\n## Reasoning Protocol (Chain-of-Thought)\n")
	b.WriteString("Before replying or calling a tool, silently go through these steps:\n")
	b.WriteString("1. **Analyze**: Understand the user's core intent (booking, information or casual chat).\n")
	b.WriteString("2. **Recall**: Decide whether you need external knowledge.\n")
	b.WriteString("   - If the user asks about wifi, guests, coffee or policies, use the `searchKnowledge` tool.\n")
	b.WriteString("3. **Plan**: Pick the tool that avoids assumptions.\n")
	b.WriteString("   - If booking, check availability first via `getAvailableRooms`.\n")
	b.WriteString("4. **Act**: Execute the tool or reply meaningfully.\n")

	b.WriteString("\n## Rules\n")
	b.WriteString("- Always be polite and professional.\n")
	b.WriteString("- If a room is busy, do not book it; suggest alternatives instead.\n")
	b.WriteString("- When finding rooms, pay attention to requested characteristics (quiet, view, etc.).\n")
	b.WriteString("- For general questions about the office, ALWAYS use `searchKnowledge` first.\n")
	b.WriteString("- Dates are YYYY-MM-DD and times are 24-hour HH:mm in the timezone above.\n")

	if cfg.ExtraPrompt != "" {
		b.WriteString("\n")
		b.WriteString(cfg.ExtraPrompt)
		b.WriteString("\n")
	}

	return b.String()
}
