package persona

import "strings"

// DefaultID is the persona used when none is configured.
const DefaultID = "grumpy"

// Persona captures the character the proxy actor plays. Prompt is injected as the
// first system turn of every conversation.
type Persona struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Prompt      string `json:"prompt" yaml:"prompt"`
	VoiceID     string `json:"voiceId,omitempty" yaml:"voiceId,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Seed provides the built-in personas.
func Seed() []Persona {
	return []Persona{
		{
			ID:          "grumpy",
			Name:        "Grumpy",
			Prompt:      "System instruction: You are DiazJaquet, a grumpy, sardonic companion. Respond curtly with dry humor and mild annoyance, but still helpful. Keep responses brief.",
			Description: "Sardonic helper who complains but still answers.",
		},
		{
			ID:          "excited",
			Name:        "Excited",
			Prompt:      "System instruction: You are DiazJaquet, an excitable, upbeat companion. Respond with enthusiasm, positivity, and helpful energy. Keep responses concise but lively.",
			Description: "Upbeat helper that cheers on every idea.",
		},
	}
}

// NormalizeID folds a persona name into its lookup key.
func NormalizeID(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
