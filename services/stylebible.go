package services

import "strings"

// ComposeStyleBible turns the pet description and user intent into the
// fixed-structure style brief every downstream prompt references. Pure
// and deterministic — no external call.
func ComposeStyleBible(description, originPrompt string) string {
	intent := strings.TrimSpace(originPrompt)
	if intent == "" {
		intent = "a whimsical pet short"
	}
	lines := []string{
		"Character & personality: a playful, curious fantasy companion, always wearing its knitted scarf, eyes bright and alert.",
		"Palette & lighting: warm gold and cream white as the base, starlight-blue accents on highlights, soft backlight throughout.",
		"Art style & camera language: smooth cel shading over clean line work, with a preference for slow dolly-ins and gentle pans.",
		"Backgrounds & props: floating stone steps, mirror lakes and stardust flora recur; the scarf and energy orbs are the signature props.",
		"Negative constraints: no modern city elements, no heavy mechanical armor, no photoreal gore.",
		"Description reference: " + description,
		"User intent: " + intent,
	}
	return strings.Join(lines, "\n")
}
