package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/clanker/backend/internal/model/persona"
	"github.com/zhouzirui/clanker/backend/internal/service/companion"
	"github.com/zhouzirui/clanker/backend/internal/service/presentation"
)

// fileConfig is the optional YAML layer. Credentials are only read from the
// environment.
type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Engine struct {
		TickRate         int     `yaml:"tick_rate"`
		SearchRadius     float64 `yaml:"search_radius"`
		MoveSpeed        float64 `yaml:"move_speed"`
		ArriveDistance   float64 `yaml:"arrive_distance"`
		PathRefreshTicks int64   `yaml:"path_refresh_ticks"`
		Workers          int     `yaml:"workers"`
		QueueSize        int     `yaml:"queue_size"`
		JobTimeout       string  `yaml:"job_timeout"`
	} `yaml:"engine"`
	TextProvider string `yaml:"text_provider"`
	Gemini       struct {
		Model string `yaml:"model"`
	} `yaml:"gemini"`
	Vertex struct {
		Location   string `yaml:"location"`
		ImageModel string `yaml:"image_model"`
		MusicModel string `yaml:"music_model"`
	} `yaml:"vertex"`
	Speech struct {
		Voice    string  `yaml:"voice"`
		Language string  `yaml:"language"`
		Speed    float32 `yaml:"speed"`
		Volume   float32 `yaml:"volume"`
	} `yaml:"speech"`
	Persona struct {
		Name     string `yaml:"name"`
		Dir      string `yaml:"dir"`
		Language string `yaml:"language"`
	} `yaml:"persona"`
	Artifacts struct {
		OutputDir  string `yaml:"output_dir"`
		PackDir    string `yaml:"pack_dir"`
		FFmpegPath string `yaml:"ffmpeg_path"`
	} `yaml:"artifacts"`

	Triggers companion.Triggers   `yaml:"triggers"`
	Messages companion.Messages   `yaml:"messages"`
	Notices  presentation.Notices `yaml:"notices"`
	Personas []persona.Persona    `yaml:"personas"`

	jobTimeout time.Duration
}

func readFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if f.Engine.JobTimeout != "" {
		d, err := time.ParseDuration(f.Engine.JobTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid engine.job_timeout %q: %w", f.Engine.JobTimeout, err)
		}
		f.jobTimeout = d
	}
	if f.Server.Port != "" {
		if _, err := parseAddr(f.Server.Port); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

// apply overrides cfg with every non-zero field.
func (f *fileConfig) apply(cfg *Config) {
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setFloat := func(dst *float64, v float64) {
		if v > 0 {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}

	if f.Server.Port != "" {
		cfg.Server.Addr, _ = parseAddr(f.Server.Port)
	}
	setString(&cfg.Log.Level, f.Log.Level)

	e := &cfg.Engine
	setInt(&e.TickRate, f.Engine.TickRate)
	setFloat(&e.SearchRadius, f.Engine.SearchRadius)
	setFloat(&e.MoveSpeed, f.Engine.MoveSpeed)
	setFloat(&e.ArriveDistance, f.Engine.ArriveDistance)
	if f.Engine.PathRefreshTicks > 0 {
		e.PathRefreshTicks = f.Engine.PathRefreshTicks
	}
	setInt(&e.Workers, f.Engine.Workers)
	setInt(&e.QueueSize, f.Engine.QueueSize)
	if f.jobTimeout > 0 {
		e.JobTimeout = f.jobTimeout
	}

	setString(&cfg.AI.Provider, f.TextProvider)
	setString(&cfg.Gemini.Model, f.Gemini.Model)
	setString(&cfg.Vertex.Location, f.Vertex.Location)
	setString(&cfg.Vertex.ImageModel, f.Vertex.ImageModel)
	setString(&cfg.Vertex.MusicModel, f.Vertex.MusicModel)

	setString(&cfg.Speech.Voice, f.Speech.Voice)
	setString(&cfg.Speech.Language, f.Speech.Language)
	if f.Speech.Speed > 0 {
		cfg.Speech.Speed = f.Speech.Speed
	}
	if f.Speech.Volume > 0 {
		cfg.Speech.Volume = f.Speech.Volume
	}

	setString(&cfg.Persona.Name, f.Persona.Name)
	setString(&cfg.Persona.Dir, f.Persona.Dir)
	setString(&cfg.Persona.Language, f.Persona.Language)

	setString(&cfg.Artifacts.OutputDir, f.Artifacts.OutputDir)
	setString(&cfg.Artifacts.PackDir, f.Artifacts.PackDir)
	setString(&cfg.Artifacts.FFmpegPath, f.Artifacts.FFmpegPath)

	t := &cfg.Triggers
	setString(&t.CommandPrefix, f.Triggers.CommandPrefix)
	setString(&t.Start, f.Triggers.Start)
	setString(&t.End, f.Triggers.End)
	setString(&t.Image, f.Triggers.Image)
	setString(&t.Music, f.Triggers.Music)

	cfg.Messages = f.Messages.Merge(cfg.Messages)

	setString(&cfg.Notices.Quota, f.Notices.Quota)
	setString(&cfg.Notices.Unavailable, f.Notices.Unavailable)
	setString(&cfg.Notices.Failed, f.Notices.Failed)

	cfg.Personas = append(cfg.Personas, f.Personas...)
}
