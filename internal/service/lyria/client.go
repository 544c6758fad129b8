// Package lyria generates music clips with the Vertex AI Lyria model over REST.
package lyria

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/zhouzirui/clanker/backend/internal/service/generation"
)

const (
	DefaultModel    = "lyria-002"
	DefaultLocation = "us-central1"

	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
	requestTimeout     = 90 * time.Second
	sampleRateHertz    = 44100
	durationSeconds    = 30
)

var endpoints = []string{":predict", ":generate"}

// audioPaths are the prediction fields known to carry base64 audio, most
// common first.
var audioPaths = []string{
	"predictions.0.audioBytes",
	"predictions.0.bytesBase64Encoded",
	"predictions.0.audio.bytesBase64Encoded",
	"predictions.0.media.bytesBase64Encoded",
	"predictions.0.samples.0.bytesBase64Encoded",
	"predictions.0.audios.0.bytesBase64Encoded",
	"predictions.0.audios.0",
	"predictions.0.audio",
}

// Config configures the client.
type Config struct {
	ProjectID       string
	Location        string
	Model           string
	CredentialsFile string
	OutputDir       string
}

// Client calls the Lyria predict endpoint and stores the WAV result.
type Client struct {
	cfg     Config
	http    *http.Client
	baseURL string
	now     func() time.Time
	logger  *zap.Logger
}

// New builds a client authenticated with Google credentials: the given service
// account file, else application default credentials. Without a project id the
// client is disabled.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Location) == "" {
		cfg.Location = DefaultLocation
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	c := &Client{
		cfg:     cfg,
		baseURL: fmt.Sprintf("https://%s-aiplatform.googleapis.com", cfg.Location),
		now:     time.Now,
		logger:  logger.Named("lyria"),
	}
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return c, nil
	}

	ts, err := tokenSource(ctx, cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("load google credentials: %w", err)
	}
	c.http = oauth2.NewClient(ctx, ts)
	c.http.Timeout = requestTimeout
	return c, nil
}

func tokenSource(ctx context.Context, credentialsFile string) (oauth2.TokenSource, error) {
	if strings.TrimSpace(credentialsFile) == "" {
		return google.DefaultTokenSource(ctx, cloudPlatformScope)
	}
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, err
	}
	creds, err := google.CredentialsFromJSON(ctx, data, cloudPlatformScope)
	if err != nil {
		return nil, err
	}
	return creds.TokenSource, nil
}

// Enabled reports whether the client has a project and credentials.
func (c *Client) Enabled() bool { return c.http != nil }

// GenerateMusic renders prompt to a WAV file under the output directory.
func (c *Client) GenerateMusic(ctx context.Context, prompt string) generation.Result[generation.Artifact] {
	if !c.Enabled() {
		return generation.NotConfigured[generation.Artifact]()
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return generation.Transient[generation.Artifact]("prompt is empty")
	}

	audio, used, err := c.predict(ctx, prompt)
	if err != nil {
		return generation.FromError(generation.Artifact{}, err)
	}
	path, err := c.save(prompt, audio)
	if err != nil {
		return generation.Transient[generation.Artifact](err.Error())
	}
	c.logger.Info("music generated",
		zap.String("model", used),
		zap.Int("bytes", len(audio)),
		zap.String("file", path))
	return generation.OK(generation.Artifact{Path: path, MIMEType: "audio/wav"})
}

// predict walks model variants and endpoints until one returns audio. A quota
// response stops the walk immediately.
func (c *Client) predict(ctx context.Context, prompt string) ([]byte, string, error) {
	body, err := requestBody(prompt)
	if err != nil {
		return nil, "", err
	}

	var lastErr error
	for _, model := range modelVariants(c.cfg.Model) {
		for _, ep := range endpoints {
			url := fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s%s",
				c.baseURL, c.cfg.ProjectID, c.cfg.Location, model, ep)
			status, payload, err := c.post(ctx, url, body)
			if err != nil {
				if ctx.Err() != nil {
					return nil, "", ctx.Err()
				}
				lastErr = err
				continue
			}
			switch {
			case status == http.StatusTooManyRequests:
				return nil, model, &generation.StatusError{Code: status, Body: string(payload)}
			case status/100 != 2:
				lastErr = &generation.StatusError{Code: status, Body: string(payload)}
				continue
			}
			if audio := extractAudio(payload); len(audio) > 0 {
				return audio, model + ep, nil
			}
			lastErr = fmt.Errorf("lyria response from %s%s contained no audio", model, ep)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("lyria request failed")
	}
	return nil, "", lastErr
}

func (c *Client) post(ctx context.Context, url string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, payload, nil
}

func (c *Client) save(prompt string, audio []byte) (string, error) {
	dir := c.cfg.OutputDir
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	name := "lyria-" + c.now().Format("20060102-150405")
	if s := slug(prompt); s != "" {
		name += "-" + s
	}
	path := filepath.Join(dir, name+".wav")
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", fmt.Errorf("write music: %w", err)
	}
	return path, nil
}

func requestBody(prompt string) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	set := func(path string, value any) {
		if err == nil {
			body, err = sjson.SetBytes(body, path, value)
		}
	}
	set("instances.0.prompt", prompt)
	set("instances.0.audioFormat", "wav")
	set("instances.0.sampleRateHertz", sampleRateHertz)
	set("instances.0.durationSeconds", durationSeconds)
	set("parameters.responseMimeType", "audio/wav")
	if err != nil {
		return nil, fmt.Errorf("build lyria request: %w", err)
	}
	return body, nil
}

func extractAudio(payload []byte) []byte {
	for _, path := range audioPaths {
		v := gjson.GetBytes(payload, path)
		if v.Type != gjson.String || v.Str == "" {
			continue
		}
		if data, err := base64.StdEncoding.DecodeString(v.Str); err == nil && len(data) > 0 {
			return data
		}
	}
	return nil
}

func modelVariants(model string) []string {
	if strings.ContainsAny(model, "/@") {
		return []string{model}
	}
	return []string{model, model + "@001", model + "@002"}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	s = strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if len(s) > 40 {
		s = strings.TrimRight(s[:40], "-")
	}
	return s
}
