package persona

import (
	"fmt"
	"strings"
)

// ComposePrompt wraps a raw user request in the persona framing that is
// written into a provider's interactive session.
func ComposePrompt(p Persona, providerTitle, userText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dashboard persona mode (%s) for %s:\n", p.Name, providerTitle)
	b.WriteString("Answer the following request in this persona voice while preserving technical accuracy and actionable detail.\n")
	b.WriteString("If writing code or commands, prefer concrete steps and explain assumptions briefly.\n")
	if p.Personality != "" {
		fmt.Fprintf(&b, "\nPersona profile: %s\n", p.Personality)
	}
	b.WriteString("\nUser request:\n")
	b.WriteString(userText)
	return b.String()
}

// StyleGuide renders the persona description used inside LLM summary prompts
// and harness task specs.
func StyleGuide(p Persona) string {
	if p.Personality == "" {
		return fmt.Sprintf("Persona: %s.", p.Name)
	}
	return fmt.Sprintf("Persona: %s. Style: %s", p.Name, p.Personality)
}

// Preview truncates a raw user request for interaction records.
func Preview(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	return text[:max]
}
