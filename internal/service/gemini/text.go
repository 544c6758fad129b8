// Package gemini adapts the Google GenAI SDK to the generation capabilities:
// chat replies from Gemini and images from Imagen on Vertex AI.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/zhouzirui/clanker/backend/internal/model/chat"
	"github.com/zhouzirui/clanker/backend/internal/service/generation"
)

// DefaultTextModel is used when no model is configured.
const DefaultTextModel = "gemini-2.5-flash"

// fallbackTextModels are tried in order after the configured model is not found.
var fallbackTextModels = []string{
	"gemini-2.5-flash-latest",
	"gemini-2.0-flash",
	"gemini-1.5-flash-latest",
}

type generateContentFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// TextClient generates chat replies with Gemini.
type TextClient struct {
	model    string
	generate generateContentFunc
	logger   *zap.Logger
}

// NewTextClient creates a Gemini API client. An empty apiKey yields a disabled
// client rather than an error.
func NewTextClient(ctx context.Context, apiKey, model string, logger *zap.Logger) (*TextClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultTextModel
	}
	c := &TextClient{model: model, logger: logger.Named("gemini")}
	if strings.TrimSpace(apiKey) == "" {
		return c, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	c.generate = client.Models.GenerateContent
	return c, nil
}

// Enabled reports whether an API key was supplied.
func (c *TextClient) Enabled() bool { return c.generate != nil }

// Model returns the configured model id.
func (c *TextClient) Model() string { return c.model }

// GenerateText sends history plus input and returns the reply text. When the
// configured model is not found, well-known alternates are tried in order.
func (c *TextClient) GenerateText(ctx context.Context, history []chat.Turn, input string) generation.Result[string] {
	if !c.Enabled() {
		return generation.NotConfigured[string]()
	}
	contents, system := buildContents(history, input)
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	var lastErr error
	for _, model := range textModelCandidates(c.model) {
		resp, err := c.generate(ctx, model, contents, cfg)
		if err != nil {
			lastErr = err
			if isNotFound(err) {
				c.logger.Warn("model not found, trying next", zap.String("model", model))
				continue
			}
			return generation.FromError("", fmt.Errorf("gemini generate (%s): %w", model, err))
		}
		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return generation.Transient[string]("empty response from " + model)
		}
		c.logger.Debug("reply generated", zap.String("model", model), zap.Int("length", len(text)))
		return generation.OK(text)
	}
	return generation.FromError("", fmt.Errorf("gemini generate: no model available: %w", lastErr))
}

// buildContents maps history onto GenAI contents. System turns are folded into
// a single system instruction.
func buildContents(history []chat.Turn, input string) ([]*genai.Content, string) {
	var system []string
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		switch turn.Role {
		case chat.RoleSystem:
			system = append(system, text)
		case chat.RoleModel:
			contents = append(contents, genai.NewContentFromText(text, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		}
	}
	contents = append(contents, genai.NewContentFromText(input, genai.RoleUser))
	return contents, strings.Join(system, "\n\n")
}

func textModelCandidates(model string) []string {
	out := []string{model}
	if !strings.HasSuffix(model, "-latest") {
		out = append(out, model+"-latest")
	}
	out = append(out, fallbackTextModels...)
	return dedupe(out)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "error 404") || strings.Contains(msg, "not_found") ||
		strings.Contains(msg, "status code: 404")
}
