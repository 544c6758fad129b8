// Package speech synthesizes spoken lines through the Volcengine TTS websocket
// API and returns raw PCM for listeners to play.
package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	speechmodel "github.com/zhouzirui/clanker/backend/internal/model/speech"
	"github.com/zhouzirui/clanker/backend/internal/service/generation"
)

const (
	DefaultEndpoint   = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"
	DefaultSampleRate = 24000
	DefaultTimeout    = 30
)

// quotaCodes are service codes the TTS API uses for exhausted quota or rate limits.
var quotaCodes = map[int]struct{}{
	429:      {},
	45000292: {},
	55000031: {},
}

// Synthesizer is the Volcengine TTS websocket client.
type Synthesizer struct {
	cfg    speechmodel.TTSConfig
	dialer *websocket.Dialer
	logger *zap.Logger
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
}

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string         `json:"speaker"`
		Text        string         `json:"text"`
		AudioParams ttsAudioParams `json:"audio_params"`
		Additions   string         `json:"additions,omitempty"`
		Language    string         `json:"language,omitempty"`
	} `json:"req_params"`
}

type ttsAudioParams struct {
	Format      string  `json:"format"`
	SampleRate  int     `json:"sample_rate"`
	SpeedRatio  float32 `json:"speed_ratio,omitempty"`
	VolumeRatio float32 `json:"volume_ratio,omitempty"`
}

// NewSynthesizer creates the client. Enabled is false without credentials.
func NewSynthesizer(cfg speechmodel.TTSConfig, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Synthesizer{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		logger: logger.Named("tts"),
	}
}

// Enabled reports whether credentials are configured.
func (s *Synthesizer) Enabled() bool { return s.cfg.Enabled() }

// SynthesizeSpeech sanitizes text and returns mono 16-bit PCM.
func (s *Synthesizer) SynthesizeSpeech(ctx context.Context, text string) generation.Result[generation.PCM] {
	if !s.Enabled() {
		return generation.NotConfigured[generation.PCM]()
	}
	clean := Sanitize(text)
	if clean == "" {
		return generation.Transient[generation.PCM]("nothing to speak")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.Timeout)*time.Second)
	defer cancel()

	audio, err := s.synthesize(ctx, clean)
	if err != nil {
		return generation.FromError(generation.PCM{}, err)
	}
	return generation.OK(generation.PCM{Data: audio, SampleRate: s.cfg.SampleRate, Channels: 1})
}

// synthesize tries each resource id in turn, moving on when the resource does
// not match the voice.
func (s *Synthesizer) synthesize(ctx context.Context, text string) ([]byte, error) {
	speaker := strings.TrimSpace(s.cfg.Voice)
	var mismatch error
	for idx, resourceID := range resolveTTSResourceCandidates(speaker) {
		audio, err := s.synthesizeWithResource(ctx, text, speaker, resourceID)
		if err == nil {
			if idx > 0 {
				s.logger.Info("fallback resource succeeded", zap.String("voice", speaker), zap.String("resource", resourceID))
			}
			return audio, nil
		}
		if !isResourceMismatchError(err) {
			return nil, err
		}
		s.logger.Warn("resource mismatch", zap.String("voice", speaker), zap.String("resource", resourceID), zap.Error(err))
		mismatch = err
	}
	return nil, mismatch
}

func (s *Synthesizer) synthesizeWithResource(ctx context.Context, text, speaker, resourceID string) ([]byte, error) {
	connectID := uuid.New().String()

	header := http.Header{}
	header.Set("X-Api-App-Key", s.cfg.AppID)
	header.Set("X-Api-Access-Key", s.cfg.AccessToken)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.Endpoint, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return nil, &generation.StatusError{Code: resp.StatusCode, Body: "tts handshake rejected"}
		}
		return nil, fmt.Errorf("failed to connect to TTS WebSocket: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			s.logger.Debug("connected", zap.String("logid", logid))
		}
	}

	payload, err := json.Marshal(s.buildRequest(text, speaker))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}
	message, err := encodeRequest(payload, noCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}

	var audio bytes.Buffer
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read TTS response: %w", err)
		}
		f, err := decodeFrame(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode TTS message: %w", err)
		}

		switch f.kind {
		case errorMessage:
			return nil, serviceError(int(f.errorCode), string(f.payload))

		case audioOnlyServerResponse:
			audio.Write(f.payload)
			if f.last() {
				return finish(&audio)
			}

		case fullServerResponse:
			var msg ttsServerMessage
			if len(f.payload) > 0 {
				if err := json.Unmarshal(f.payload, &msg); err != nil {
					s.logger.Debug("unparsed response payload", zap.Error(err))
				} else {
					if msg.Code != 0 && msg.Code != 3000 {
						return nil, serviceError(msg.Code, msg.Message)
					}
					if msg.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(msg.Data)
						if err != nil {
							return nil, fmt.Errorf("failed to decode base64 audio chunk: %w", err)
						}
						audio.Write(chunk)
					}
				}
			}
			if (f.hasEvent() && f.event == eventSessionFinished) || f.last() || msg.Sequence < 0 {
				return finish(&audio)
			}

		default:
			s.logger.Debug("unexpected message type", zap.Uint8("type", uint8(f.kind)))
		}
	}
}

func finish(audio *bytes.Buffer) ([]byte, error) {
	if audio.Len() == 0 {
		return nil, fmt.Errorf("TTS audio is empty")
	}
	return audio.Bytes(), nil
}

// buildRequest always asks for PCM so listeners can play it directly.
func (s *Synthesizer) buildRequest(text, speaker string) *ttsRequest {
	req := &ttsRequest{}
	req.User.UID = uuid.New().String()
	req.ReqParams.Speaker = speaker
	req.ReqParams.Text = text
	req.ReqParams.AudioParams.Format = "pcm"
	req.ReqParams.AudioParams.SampleRate = s.cfg.SampleRate
	if s.cfg.Speed > 0 && s.cfg.Speed != 1.0 {
		req.ReqParams.AudioParams.SpeedRatio = s.cfg.Speed
	}
	if s.cfg.Volume > 0 && s.cfg.Volume != 1.0 {
		req.ReqParams.AudioParams.VolumeRatio = s.cfg.Volume
	}
	if lang := strings.TrimSpace(s.cfg.Language); lang != "" {
		req.ReqParams.Language = lang
	}
	req.ReqParams.Additions = `{"disable_markdown_filter":false}`
	return req
}

func serviceError(code int, message string) error {
	if _, ok := quotaCodes[code]; ok {
		return fmt.Errorf("TTS API error %d: %s: %w", code, message, generation.ErrQuotaExceeded)
	}
	if strings.Contains(strings.ToLower(message), "quota") {
		return fmt.Errorf("TTS API error %d: %s: %w", code, message, generation.ErrQuotaExceeded)
	}
	return fmt.Errorf("TTS API error %d: %s", code, message)
}

func resolveTTSResourceCandidates(voice string) []string {
	const (
		defaultResource = "volc.service_type.10029"
		megaResource    = "volc.megatts.default"
		seedResource    = "seed-tts-2.0"
	)

	voice = strings.TrimSpace(voice)
	if voice == "" {
		return []string{defaultResource, seedResource}
	}
	if strings.HasPrefix(voice, "S_") {
		return []string{megaResource}
	}

	normalized := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "saturn", "neptune", "mercury", "pluto", "mars"} {
		if strings.Contains(normalized, hint) {
			return []string{seedResource, defaultResource}
		}
	}
	return []string{defaultResource, seedResource}
}

func isResourceMismatchError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}
