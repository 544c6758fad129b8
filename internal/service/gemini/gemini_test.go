package gemini

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/zhouzirui/clanker/backend/internal/model/chat"
	"github.com/zhouzirui/clanker/backend/internal/service/generation"
)

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText(text, genai.RoleModel),
		}},
	}
}

func TestBuildContentsFoldsSystemTurns(t *testing.T) {
	history := []chat.Turn{
		chat.SystemTurn("be grumpy"),
		chat.ModelTurn("what?"),
		chat.UserTurn("hi"),
		chat.SystemTurn("answer in English"),
		chat.UserTurn("   "),
	}
	contents, system := buildContents(history, "how are you")

	assert.Equal(t, "be grumpy\n\nanswer in English", system)
	require.Len(t, contents, 3)
	assert.Equal(t, genai.RoleModel, contents[0].Role)
	assert.Equal(t, genai.RoleUser, contents[1].Role)
	assert.Equal(t, "how are you", contents[2].Parts[0].Text)
}

func TestTextFallsBackOnNotFound(t *testing.T) {
	var tried []string
	c := &TextClient{
		model:  "gemini-x",
		logger: zap.NewNop(),
		generate: func(_ context.Context, model string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			tried = append(tried, model)
			if model == "gemini-2.0-flash" {
				return textResponse("  hello  "), nil
			}
			return nil, errors.New("Error 404, Message: model not found, Status: NOT_FOUND")
		},
	}

	res := c.GenerateText(context.Background(), nil, "hi")
	require.True(t, res.Ok())
	assert.Equal(t, "hello", res.Value)
	assert.Equal(t, []string{"gemini-x", "gemini-x-latest", "gemini-2.5-flash-latest", "gemini-2.0-flash"}, tried)
}

func TestTextQuotaIsNotRetried(t *testing.T) {
	calls := 0
	c := &TextClient{
		model:  DefaultTextModel,
		logger: zap.NewNop(),
		generate: func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			calls++
			return nil, errors.New("Error 429, Message: Resource has been exhausted, Status: RESOURCE_EXHAUSTED")
		},
	}

	res := c.GenerateText(context.Background(), nil, "hi")
	assert.Equal(t, generation.StatusQuotaExceeded, res.Status)
	assert.Equal(t, 1, calls)
}

func TestTextDisabledWithoutKey(t *testing.T) {
	c, err := NewTextClient(context.Background(), "", "", nil)
	require.NoError(t, err)
	assert.False(t, c.Enabled())
	assert.Equal(t, DefaultTextModel, c.Model())
	assert.Equal(t, generation.StatusNotConfigured, c.GenerateText(context.Background(), nil, "x").Status)
}

func TestImageModelCandidates(t *testing.T) {
	got := imageModelCandidates("imagegeneration")
	assert.Equal(t, []string{"imagegeneration", "imagegeneration@002", "imagegeneration@001"}, got[:3])
	assert.Equal(t, 1, countOf(got, "imagegeneration@002"))

	pinned := imageModelCandidates("imagen-3.0-generate-001")
	assert.Equal(t, "imagen-3.0-generate-001", pinned[0])
	assert.Equal(t, 1, countOf(pinned, "imagen-3.0-generate-001"))
}

func TestImageSavedUnderOutputDir(t *testing.T) {
	dir := t.TempDir()
	c := &ImageClient{
		cfg:    ImageConfig{Model: "imagegeneration", OutputDir: dir},
		now:    func() time.Time { return time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC) },
		logger: zap.NewNop(),
		generate: func(_ context.Context, model, _ string, _ *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
			if model == "imagegeneration" {
				return nil, errors.New("Error 404, Message: not found, Status: NOT_FOUND")
			}
			return &genai.GenerateImagesResponse{GeneratedImages: []*genai.GeneratedImage{
				{Image: &genai.Image{ImageBytes: []byte("png-bytes")}},
			}}, nil
		},
	}

	res := c.GenerateImage(context.Background(), "A Red Fox!")
	require.True(t, res.Ok(), res.Message)
	assert.Equal(t, filepath.Join(dir, "painting-20240501-123000-a-red-fox.png"), res.Value.Path)
	data, err := os.ReadFile(res.Value.Path)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestImageEmptyResponseIsTransient(t *testing.T) {
	c := &ImageClient{
		cfg:    ImageConfig{Model: "imagegeneration@002", OutputDir: t.TempDir()},
		now:    time.Now,
		logger: zap.NewNop(),
		generate: func(context.Context, string, string, *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
			return &genai.GenerateImagesResponse{}, nil
		},
	}
	res := c.GenerateImage(context.Background(), "fox")
	assert.Equal(t, generation.StatusTransient, res.Status)
	assert.Contains(t, res.Message, "no image data")
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "a-red-fox", slug("  A Red   Fox!! "))
	assert.Equal(t, "", slug("!!!"))
	assert.LessOrEqual(t, len(slug("a very long prompt that keeps going and going and going forever")), 40)
}

func countOf(values []string, v string) int {
	n := 0
	for _, x := range values {
		if x == v {
			n++
		}
	}
	return n
}
