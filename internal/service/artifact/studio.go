// Package artifact turns generated media into resource-pack overrides: paintings
// become the painting texture, music becomes a disc track.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"

	"github.com/zhouzirui/clanker/backend/internal/service/generation"
)

const (
	DefaultPackDir      = "generated-pack"
	DefaultPaintingID   = "pointer"
	DefaultDiscID       = "13"
	PaintingTextureSize = 64
	packFormat          = 34
	packDescription     = "ClankerCraft generated overrides"
	defaultFFmpegBinary = "ffmpeg"
	oggMIMEType         = "audio/ogg"
)

// ErrFFmpegMissing is returned when the ffmpeg binary cannot be found.
var ErrFFmpegMissing = errors.New("ffmpeg not found on PATH")

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Config locates the resource pack and the ffmpeg binary.
type Config struct {
	PackDir    string
	FFmpegPath string
	PaintingID string
	DiscID     string
}

// Studio writes painting textures and disc tracks into a resource pack.
type Studio struct {
	cfg    Config
	runner Runner
	logger *zap.Logger
}

// New creates a studio. A nil runner uses os/exec.
func New(cfg Config, runner Runner, logger *zap.Logger) *Studio {
	if strings.TrimSpace(cfg.PackDir) == "" {
		cfg.PackDir = DefaultPackDir
	}
	if strings.TrimSpace(cfg.FFmpegPath) == "" {
		cfg.FFmpegPath = defaultFFmpegBinary
	}
	if strings.TrimSpace(cfg.PaintingID) == "" {
		cfg.PaintingID = DefaultPaintingID
	}
	if strings.TrimSpace(cfg.DiscID) == "" {
		cfg.DiscID = DefaultDiscID
	}
	if runner == nil {
		runner = execRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Studio{cfg: cfg, runner: runner, logger: logger.Named("studio")}
}

// PackDir returns the root of the generated resource pack.
func (s *Studio) PackDir() string { return s.cfg.PackDir }

// ApplyPainting scales the image to the painting texture size and installs it.
func (s *Studio) ApplyPainting(ctx context.Context, art generation.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(art.Path)
	if err != nil {
		return fmt.Errorf("failed to open painting: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("failed to decode painting: %w", err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, PaintingTextureSize, PaintingTextureSize))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)

	target := filepath.Join(s.cfg.PackDir, "assets", "minecraft", "textures", "painting", s.cfg.PaintingID+".png")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create texture dir: %w", err)
	}
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create texture: %w", err)
	}
	if err := png.Encode(out, dst); err != nil {
		out.Close()
		return fmt.Errorf("failed to encode texture: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to write texture: %w", err)
	}
	if err := s.ensurePackMeta(); err != nil {
		return err
	}
	s.logger.Info("painting texture updated", zap.String("path", target))
	return nil
}

// PackageDisc transcodes the track to OGG Vorbis and installs it as the disc override.
func (s *Studio) PackageDisc(ctx context.Context, art generation.Artifact) (generation.Artifact, error) {
	if _, err := os.Stat(art.Path); err != nil {
		return generation.Artifact{}, fmt.Errorf("input audio not found: %w", err)
	}
	ogg := strings.TrimSuffix(art.Path, filepath.Ext(art.Path)) + ".ogg"
	if err := s.transcode(ctx, art.Path, ogg); err != nil {
		return generation.Artifact{}, err
	}

	target := filepath.Join(s.cfg.PackDir, "assets", "minecraft", "sounds", "records", s.cfg.DiscID+".ogg")
	if err := copyFile(ogg, target); err != nil {
		return generation.Artifact{}, fmt.Errorf("failed to install disc track: %w", err)
	}
	if err := s.ensurePackMeta(); err != nil {
		return generation.Artifact{}, err
	}
	s.logger.Info("disc track updated", zap.String("disc", s.cfg.DiscID), zap.String("path", target))
	return generation.Artifact{Path: target, MIMEType: oggMIMEType}, nil
}

// transcode converts to 44.1kHz stereo OGG Vorbis.
func (s *Studio) transcode(ctx context.Context, in, out string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	args := []string{"-y", "-i", in, "-ac", "2", "-ar", "44100", "-c:a", "libvorbis", out}
	output, err := s.runner.Run(ctx, s.cfg.FFmpegPath, args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrFFmpegMissing, err)
		}
		s.logger.Warn("ffmpeg failed", zap.ByteString("output", tail(output, 512)), zap.Error(err))
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}

type packMeta struct {
	Pack struct {
		PackFormat  int    `json:"pack_format"`
		Description string `json:"description"`
	} `json:"pack"`
}

// ensurePackMeta writes pack.mcmeta unless it already exists.
func (s *Studio) ensurePackMeta() error {
	path := filepath.Join(s.cfg.PackDir, "pack.mcmeta")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	var meta packMeta
	meta.Pack.PackFormat = packFormat
	meta.Pack.Description = packDescription
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pack meta: %w", err)
	}
	if err := os.MkdirAll(s.cfg.PackDir, 0o755); err != nil {
		return fmt.Errorf("failed to create pack dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write pack meta: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}
