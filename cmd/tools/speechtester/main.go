package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/clanker/backend/internal/config"
	"github.com/zhouzirui/clanker/backend/internal/service/generation"
	"github.com/zhouzirui/clanker/backend/internal/service/playback"
	"github.com/zhouzirui/clanker/backend/internal/service/speech"
)

func main() {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	if err := godotenv.Load(); err != nil {
		logger.Debug("无法加载 .env，改用系统环境变量", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("配置加载失败", zap.Error(err))
	}

	text := flag.String("text", "", "TTS 输入文本")
	outputPath := flag.String("out", "", "输出 WAV 路径 (默认自动生成)")
	voice := flag.String("voice", "", "TTS 声音 ID，默认使用 SPEECH_TTS_VOICE")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")
	flag.Parse()

	if strings.TrimSpace(*text) == "" {
		flag.Usage()
		logger.Fatal("请通过 -text 指定要合成的文本")
	}
	if *voice != "" {
		cfg.Speech.Voice = *voice
	}
	if !cfg.Speech.Enabled() {
		logger.Fatal("语音服务未启用，请先配置 SPEECH_APP_ID 与 SPEECH_ACCESS_TOKEN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	synth := speech.NewSynthesizer(cfg.Speech, logger)
	start := time.Now()
	res := synth.SynthesizeSpeech(ctx, *text)
	if res.Status != generation.StatusOK {
		logger.Fatal("TTS 失败", zap.Stringer("status", res.Status), zap.String("message", res.Message))
	}

	out := *outputPath
	if out == "" {
		out = filepath.Join("tmp", fmt.Sprintf("tts-%s.wav", time.Now().Format("20060102-150405")))
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		logger.Fatal("创建输出目录失败", zap.Error(err))
	}
	clip := playback.Clip{Data: res.Value.Data, SampleRate: res.Value.SampleRate, Channels: res.Value.Channels}
	if err := os.WriteFile(out, playback.EncodeWAV(clip), 0o644); err != nil {
		logger.Fatal("写入音频失败", zap.Error(err))
	}

	logger.Info("TTS 完成",
		zap.String("path", out),
		zap.Int("bytes", len(res.Value.Data)),
		zap.Duration("audio", clip.Duration()),
		zap.Duration("elapsed", time.Since(start)))
}
