package gemini

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/zhouzirui/clanker/backend/internal/service/generation"
)

const (
	DefaultImageModel = "imagegeneration"
	DefaultLocation   = "us-central1"
)

var fallbackImageModels = []string{
	"imagen-3.0-generate-001",
	"imagen-3.0-fast-generate-001",
	"imagen-2.0-generate-001",
	"imagen-2.0-fast-generate-001",
	"imagegeneration@002",
	"imagegeneration@001",
}

type generateImagesFunc func(ctx context.Context, model, prompt string, cfg *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)

// ImageConfig configures the Imagen client.
type ImageConfig struct {
	ProjectID string
	Location  string
	Model     string
	OutputDir string
}

// ImageClient renders paintings with Imagen on Vertex AI and saves them as PNG.
type ImageClient struct {
	cfg      ImageConfig
	generate generateImagesFunc
	now      func() time.Time
	logger   *zap.Logger
}

// NewImageClient creates a Vertex AI backed client using application default
// credentials. Without a project id the client is disabled.
func NewImageClient(ctx context.Context, cfg ImageConfig, logger *zap.Logger) (*ImageClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Location) == "" {
		cfg.Location = DefaultLocation
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultImageModel
	}
	c := &ImageClient{cfg: cfg, now: time.Now, logger: logger.Named("imagen")}
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return c, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:  genai.BackendVertexAI,
		Project:  cfg.ProjectID,
		Location: cfg.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}
	c.generate = client.Models.GenerateImages
	return c, nil
}

// Enabled reports whether a project is configured.
func (c *ImageClient) Enabled() bool { return c.generate != nil }

// GenerateImage renders prompt and writes the PNG under the output directory.
func (c *ImageClient) GenerateImage(ctx context.Context, prompt string) generation.Result[generation.Artifact] {
	if !c.Enabled() {
		return generation.NotConfigured[generation.Artifact]()
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return generation.Transient[generation.Artifact]("prompt is empty")
	}

	data, model, err := c.render(ctx, prompt)
	if err != nil {
		return generation.FromError(generation.Artifact{}, err)
	}

	path, err := c.save(prompt, data)
	if err != nil {
		return generation.Transient[generation.Artifact](err.Error())
	}
	c.logger.Info("painting generated",
		zap.String("model", model),
		zap.Int("bytes", len(data)),
		zap.String("file", path))
	return generation.OK(generation.Artifact{Path: path, MIMEType: "image/png"})
}

func (c *ImageClient) render(ctx context.Context, prompt string) ([]byte, string, error) {
	cfg := &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: "image/png",
	}
	var lastErr error
	for _, model := range imageModelCandidates(c.cfg.Model) {
		resp, err := c.generate(ctx, model, prompt, cfg)
		if err != nil {
			lastErr = err
			if isNotFound(err) {
				continue
			}
			return nil, model, fmt.Errorf("imagen generate (%s): %w", model, err)
		}
		for _, img := range resp.GeneratedImages {
			if img != nil && img.Image != nil && len(img.Image.ImageBytes) > 0 {
				return img.Image.ImageBytes, model, nil
			}
		}
		return nil, model, fmt.Errorf("imagen response from %s contained no image data", model)
	}
	return nil, "", fmt.Errorf("imagen generate: no model available: %w", lastErr)
}

func (c *ImageClient) save(prompt string, data []byte) (string, error) {
	dir := c.cfg.OutputDir
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	name := "painting-" + c.now().Format("20060102-150405")
	if s := slug(prompt); s != "" {
		name += "-" + s
	}
	path := filepath.Join(dir, name+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write painting: %w", err)
	}
	return path, nil
}

// imageModelCandidates lists revision variants of model followed by the
// well-known Imagen ids.
func imageModelCandidates(model string) []string {
	out := []string{model}
	if !strings.Contains(model, "@") {
		out = append(out, model+"@002", model+"@001")
	}
	out = append(out, fallbackImageModels...)
	return dedupe(out)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	s = nonSlug.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if len(s) > 40 {
		s = strings.TrimRight(s[:40], "-")
	}
	return s
}
