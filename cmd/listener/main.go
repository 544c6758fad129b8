// Command listener connects to the companion backend as one user, prints chat
// lines and renders synthesized speech to WAV files.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	speechmodel "github.com/zhouzirui/clanker/backend/internal/model/speech"
	"github.com/zhouzirui/clanker/backend/internal/service/playback"
)

func main() {
	server := flag.String("server", "ws://localhost:8080", "backend address")
	user := flag.String("user", "", "监听的玩家 ID")
	outDir := flag.String("out", "listener-audio", "WAV 输出目录，留空则不落盘")
	tick := flag.Duration("tick", 50*time.Millisecond, "播放资源回收间隔")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	if *user == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *server, *user, *outDir, *tick, logger); err != nil {
		logger.Fatal("listener stopped", zap.Error(err))
	}
}

func run(ctx context.Context, server, user, outDir string, tick time.Duration, logger *zap.Logger) error {
	endpoint, err := url.JoinPath(server, "api", "ws", url.PathEscape(user))
	if err != nil {
		return fmt.Errorf("invalid server address: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()
	logger.Info("connected", zap.String("endpoint", endpoint))

	frames := make(chan speechmodel.Frame, 16)
	readErr := make(chan error, 1)
	go func() {
		defer close(frames)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			var f speechmodel.Frame
			if err := json.Unmarshal(data, &f); err != nil {
				logger.Warn("bad frame", zap.Error(err))
				continue
			}
			frames <- f
		}
	}()

	// device and reaper are only touched on this goroutine
	device := playback.NewFileDevice(outDir, logger)
	reaper := playback.NewReaper(device)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case <-ticker.C:
			if n := reaper.Tick(); n > 0 {
				logger.Debug("playback finished", zap.Int("released", n), zap.Int("active", reaper.Active()))
			}
		case f, ok := <-frames:
			if !ok {
				err := <-readErr
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				return err
			}
			handleFrame(f, device, reaper, logger)
		}
	}
}

func handleFrame(f speechmodel.Frame, device *playback.FileDevice, reaper *playback.Reaper, logger *zap.Logger) {
	switch f.Type {
	case speechmodel.FrameMessage:
		fmt.Println(f.Text)
	case speechmodel.FrameSpeech:
		fields := []zap.Field{zap.String("text", f.Text)}
		if f.Position != nil {
			fields = append(fields, zap.String("actor", f.ActorID), zap.Stringer("at", *f.Position))
		}
		logger.Info("speech", fields...)
	case speechmodel.FrameAudio:
		pcm, err := base64.StdEncoding.DecodeString(f.PCM)
		if err != nil {
			logger.Warn("bad audio payload", zap.Error(err))
			return
		}
		clip := playback.Clip{Data: pcm, SampleRate: f.SampleRate, Channels: f.Channels}
		src, buf, err := device.Play(clip, "speech")
		if err != nil {
			logger.Warn("playback failed", zap.Error(err))
			return
		}
		reaper.Track(src, buf)
		logger.Debug("playing", zap.Duration("duration", clip.Duration()), zap.Int("active", reaper.Active()))
	default:
		logger.Debug("unknown frame", zap.String("type", string(f.Type)))
	}
}
