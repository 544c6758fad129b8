package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/clanker/backend/internal/config"
	"github.com/zhouzirui/clanker/backend/internal/handler"
	"github.com/zhouzirui/clanker/backend/internal/model/persona"
	"github.com/zhouzirui/clanker/backend/internal/service/ai"
	"github.com/zhouzirui/clanker/backend/internal/service/artifact"
	"github.com/zhouzirui/clanker/backend/internal/service/companion"
	"github.com/zhouzirui/clanker/backend/internal/service/dispatch"
	"github.com/zhouzirui/clanker/backend/internal/service/gemini"
	"github.com/zhouzirui/clanker/backend/internal/service/generation"
	"github.com/zhouzirui/clanker/backend/internal/service/lyria"
	"github.com/zhouzirui/clanker/backend/internal/service/presentation"
	"github.com/zhouzirui/clanker/backend/internal/service/speech"
	"github.com/zhouzirui/clanker/backend/internal/service/world"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 加载 .env 文件
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Debug("no .env file loaded, using system environment only", zap.Error(envErr))
	}
	if cfg.File != "" {
		logger.Info("configuration file loaded", zap.String("path", cfg.File))
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	personas, active := loadPersona(cfg, logger)

	gateway, err := buildGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}

	sim := world.NewSim(logger)
	hub := presentation.NewHub(gateway, cfg.Notices, logger)
	studio := artifact.New(artifact.Config{
		PackDir:    cfg.Artifacts.PackDir,
		FFmpegPath: cfg.Artifacts.FFmpegPath,
	}, nil, logger)

	engine := companion.New(companion.Deps{
		Actors:     sim,
		Presenter:  hub,
		Gateway:    gateway,
		Studio:     studio,
		Simulation: sim,
	}, companion.Options{
		TickRate:         cfg.Engine.TickRate,
		SearchRadius:     cfg.Engine.SearchRadius,
		MoveSpeed:        cfg.Engine.MoveSpeed,
		ArriveDistance:   cfg.Engine.ArriveDistance,
		PathRefreshTicks: cfg.Engine.PathRefreshTicks,
		SystemPrompt:     active.Prompt,
		Triggers:         cfg.Triggers,
		Messages:         cfg.Messages,
		Dispatch: dispatch.Options{
			Workers:    cfg.Engine.Workers,
			QueueSize:  cfg.Engine.QueueSize,
			JobTimeout: cfg.Engine.JobTimeout,
		},
	}, logger)

	router := handler.NewRouter(handler.Deps{
		Engine:        engine,
		Hub:           hub,
		Personas:      personas,
		ActivePersona: active.ID,
		World:         sim,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error {
		logger.Info("Clanker backend listening", zap.String("addr", cfg.Server.Addr))
		return runServer(gctx, srv)
	})
	return g.Wait()
}

// loadPersona 加载内置人设与目录覆盖，并附加语言指令
func loadPersona(cfg *config.Config, logger *zap.Logger) (*persona.MemoryStore, persona.Persona) {
	store := persona.NewMemoryStore(persona.Seed())
	for _, p := range cfg.Personas {
		p.ID = persona.NormalizeID(p.ID)
		store.Upsert(p)
	}
	if n, err := store.LoadDir(cfg.Persona.Dir); err != nil {
		logger.Warn("failed to load persona directory", zap.String("dir", cfg.Persona.Dir), zap.Error(err))
	} else if n > 0 {
		logger.Info("persona overrides loaded", zap.String("dir", cfg.Persona.Dir), zap.Int("count", n))
	}

	active := persona.Resolve(store, persona.NormalizeID(cfg.Persona.Name))
	if lang := strings.TrimSpace(cfg.Persona.Language); lang != "" {
		active.Prompt = strings.TrimSpace(active.Prompt + "\n\nAlways respond in " + lang + ".")
	}
	logger.Info("persona selected", zap.String("persona", active.ID), zap.String("language", cfg.Persona.Language))
	return store, active
}

// buildGateway 初始化各生成能力，缺少凭证的能力保持禁用
func buildGateway(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*generation.Gateway, error) {
	text, err := buildTextGenerator(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var image generation.ImageGenerator
	if client, err := gemini.NewImageClient(ctx, gemini.ImageConfig{
		ProjectID: cfg.Vertex.ProjectID,
		Location:  cfg.Vertex.Location,
		Model:     cfg.Vertex.ImageModel,
		OutputDir: cfg.Artifacts.OutputDir,
	}, logger); err != nil {
		logger.Warn("image generation disabled", zap.Error(err))
	} else {
		image = client
	}

	var music generation.MusicGenerator
	if client, err := lyria.New(ctx, lyria.Config{
		ProjectID:       cfg.Vertex.ProjectID,
		Location:        cfg.Vertex.Location,
		Model:           cfg.Vertex.MusicModel,
		CredentialsFile: cfg.Vertex.CredentialsFile,
		OutputDir:       cfg.Artifacts.OutputDir,
	}, logger); err != nil {
		logger.Warn("music generation disabled", zap.Error(err))
	} else {
		music = client
	}

	gw := generation.NewGateway(text, image, music, speech.NewSynthesizer(cfg.Speech, logger))
	for _, kind := range []generation.Kind{generation.KindText, generation.KindImage, generation.KindMusic, generation.KindSpeech} {
		logger.Info("capability", zap.String("kind", string(kind)), zap.Bool("enabled", gw.Enabled(kind)))
	}
	return gw, nil
}

func buildTextGenerator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (generation.TextGenerator, error) {
	useGemini := cfg.AI.Provider == config.TextProviderGemini ||
		(cfg.AI.Provider == config.TextProviderAuto && cfg.Gemini.Enabled())
	if useGemini {
		client, err := gemini.NewTextClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	svc, err := ai.NewService(ctx, cfg.AI, logger)
	if err != nil {
		logger.Warn("failed to initialize Ark text service, continuing without chat", zap.Error(err))
		return nil, nil
	}
	return svc, nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
