package companion

import "strings"

// Messages is the user-facing text catalog. Templates may reference {prompt}
// and {error}.
type Messages struct {
	NoneNearby     string `yaml:"none_nearby"`
	Greeting       string `yaml:"greeting"`
	Farewell       string `yaml:"farewell"`
	Gone           string `yaml:"gone"`
	Busy           string `yaml:"busy"`
	Thinking       string `yaml:"thinking"`
	ResponsePrefix string `yaml:"response_prefix"`
	ChatFailed     string `yaml:"chat_failed"`

	TextNotConfigured  string `yaml:"text_not_configured"`
	ImageNotConfigured string `yaml:"image_not_configured"`
	MusicNotConfigured string `yaml:"music_not_configured"`

	TextQuota  string `yaml:"text_quota"`
	ImageQuota string `yaml:"image_quota"`
	MusicQuota string `yaml:"music_quota"`

	PaintingPromptRequired string `yaml:"painting_prompt_required"`
	PaintingStart          string `yaml:"painting_start"`
	PaintingDone           string `yaml:"painting_done"`
	PaintingFailed         string `yaml:"painting_failed"`
	PaintingTextureFailed  string `yaml:"painting_texture_failed"`

	MusicPromptRequired string `yaml:"music_prompt_required"`
	MusicStart          string `yaml:"music_start"`
	MusicDone           string `yaml:"music_done"`
	MusicFailed         string `yaml:"music_failed"`
}

// DefaultMessages returns the built-in English catalog.
func DefaultMessages() Messages {
	return Messages{
		NoneNearby:     "No Clanker nearby to talk to.",
		Greeting:       "Hello there! What do you want?",
		Farewell:       "Bye! Come back when you need me.",
		Gone:           "Your Clanker is gone. Conversation ended.",
		Busy:           "Hold on, I'm still working on the last thing.",
		Thinking:       "Thinking...",
		ResponsePrefix: "[Clanker] ",
		ChatFailed:     "Clanker could not answer: {error}",

		TextNotConfigured:  "Chat is not configured. Set GEMINI_API_KEY or ARK_API_KEY.",
		ImageNotConfigured: "Painting is not configured. Set GOOGLE_CLOUD_PROJECT_ID and credentials.",
		MusicNotConfigured: "Music is not configured. Set GOOGLE_CLOUD_PROJECT_ID and credentials.",

		TextQuota:  "Chat quota exceeded. Clanker needs a rest.",
		ImageQuota: "Painting quota exceeded. No more paintings for now.",
		MusicQuota: "Music quota exceeded. No more music for now.",

		PaintingPromptRequired: "Tell me what to paint: @makepainting <description>",
		PaintingStart:          "Painting \"{prompt}\"...",
		PaintingDone:           "Your painting is ready!",
		PaintingFailed:         "Painting failed: {error}",
		PaintingTextureFailed:  "Painting generated but the texture could not be applied: {error}",

		MusicPromptRequired: "Tell me what to compose: @makemusic <description>",
		MusicStart:          "Composing \"{prompt}\"...",
		MusicDone:           "Your music disc is ready!",
		MusicFailed:         "Music failed (is ffmpeg installed and on PATH?): {error}",
	}
}

// Merge returns m with every blank field taken from base.
func (m Messages) Merge(base Messages) Messages {
	pick := func(v, fallback string) string {
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	}
	return Messages{
		NoneNearby:             pick(m.NoneNearby, base.NoneNearby),
		Greeting:               pick(m.Greeting, base.Greeting),
		Farewell:               pick(m.Farewell, base.Farewell),
		Gone:                   pick(m.Gone, base.Gone),
		Busy:                   pick(m.Busy, base.Busy),
		Thinking:               pick(m.Thinking, base.Thinking),
		ResponsePrefix:         pick(m.ResponsePrefix, base.ResponsePrefix),
		ChatFailed:             pick(m.ChatFailed, base.ChatFailed),
		TextNotConfigured:      pick(m.TextNotConfigured, base.TextNotConfigured),
		ImageNotConfigured:     pick(m.ImageNotConfigured, base.ImageNotConfigured),
		MusicNotConfigured:     pick(m.MusicNotConfigured, base.MusicNotConfigured),
		TextQuota:              pick(m.TextQuota, base.TextQuota),
		ImageQuota:             pick(m.ImageQuota, base.ImageQuota),
		MusicQuota:             pick(m.MusicQuota, base.MusicQuota),
		PaintingPromptRequired: pick(m.PaintingPromptRequired, base.PaintingPromptRequired),
		PaintingStart:          pick(m.PaintingStart, base.PaintingStart),
		PaintingDone:           pick(m.PaintingDone, base.PaintingDone),
		PaintingFailed:         pick(m.PaintingFailed, base.PaintingFailed),
		PaintingTextureFailed:  pick(m.PaintingTextureFailed, base.PaintingTextureFailed),
		MusicPromptRequired:    pick(m.MusicPromptRequired, base.MusicPromptRequired),
		MusicStart:             pick(m.MusicStart, base.MusicStart),
		MusicDone:              pick(m.MusicDone, base.MusicDone),
		MusicFailed:            pick(m.MusicFailed, base.MusicFailed),
	}
}

func fill(tpl string, kv ...string) string {
	if len(kv) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, "{"+kv[i]+"}", kv[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
