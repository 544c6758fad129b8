package generation

import (
	"context"

	"github.com/zhouzirui/clanker/backend/internal/model/chat"
)

// Artifact points at a generated file persisted by the provider.
type Artifact struct {
	Path     string
	MIMEType string
}

// PCM is raw signed 16-bit little-endian audio.
type PCM struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// TextGenerator produces a model reply for a history plus a new user input.
type TextGenerator interface {
	Enabled() bool
	GenerateText(ctx context.Context, history []chat.Turn, input string) Result[string]
}

// ImageGenerator renders an image for a prompt and persists it.
type ImageGenerator interface {
	Enabled() bool
	GenerateImage(ctx context.Context, prompt string) Result[Artifact]
}

// MusicGenerator renders an audio artifact for a prompt and persists it.
type MusicGenerator interface {
	Enabled() bool
	GenerateMusic(ctx context.Context, prompt string) Result[Artifact]
}

// SpeechSynthesizer turns text into PCM samples.
type SpeechSynthesizer interface {
	Enabled() bool
	SynthesizeSpeech(ctx context.Context, text string) Result[PCM]
}

// Gateway bundles the providers with their breakers. Every call goes through the
// breaker of its kind; a nil provider counts as disabled.
type Gateway struct {
	Text   TextGenerator
	Image  ImageGenerator
	Music  MusicGenerator
	Speech SpeechSynthesizer

	breakers *Breakers
}

// NewGateway wires providers to a fresh breaker set.
func NewGateway(text TextGenerator, image ImageGenerator, music MusicGenerator, speech SpeechSynthesizer) *Gateway {
	return &Gateway{Text: text, Image: image, Music: music, Speech: speech, breakers: NewBreakers()}
}

// Breaker returns the breaker guarding kind.
func (g *Gateway) Breaker(kind Kind) *QuotaBreaker { return g.breakers.For(kind) }

// Enabled reports whether kind has a configured provider.
func (g *Gateway) Enabled(kind Kind) bool {
	switch kind {
	case KindText:
		return g.Text != nil && g.Text.Enabled()
	case KindImage:
		return g.Image != nil && g.Image.Enabled()
	case KindMusic:
		return g.Music != nil && g.Music.Enabled()
	case KindSpeech:
		return g.Speech != nil && g.Speech.Enabled()
	default:
		return false
	}
}

// GenerateText calls the text provider through its breaker.
func (g *Gateway) GenerateText(ctx context.Context, history []chat.Turn, input string) Result[string] {
	if !g.Enabled(KindText) {
		return NotConfigured[string]()
	}
	return Guard(g.Breaker(KindText), func() Result[string] {
		return g.Text.GenerateText(ctx, history, input)
	})
}

// GenerateImage calls the image provider through its breaker.
func (g *Gateway) GenerateImage(ctx context.Context, prompt string) Result[Artifact] {
	if !g.Enabled(KindImage) {
		return NotConfigured[Artifact]()
	}
	return Guard(g.Breaker(KindImage), func() Result[Artifact] {
		return g.Image.GenerateImage(ctx, prompt)
	})
}

// GenerateMusic calls the music provider through its breaker.
func (g *Gateway) GenerateMusic(ctx context.Context, prompt string) Result[Artifact] {
	if !g.Enabled(KindMusic) {
		return NotConfigured[Artifact]()
	}
	return Guard(g.Breaker(KindMusic), func() Result[Artifact] {
		return g.Music.GenerateMusic(ctx, prompt)
	})
}

// SynthesizeSpeech calls the speech provider through its breaker.
func (g *Gateway) SynthesizeSpeech(ctx context.Context, text string) Result[PCM] {
	if !g.Enabled(KindSpeech) {
		return NotConfigured[PCM]()
	}
	return Guard(g.Breaker(KindSpeech), func() Result[PCM] {
		return g.Speech.SynthesizeSpeech(ctx, text)
	})
}
