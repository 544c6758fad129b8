// Package presentation delivers companion output to connected listeners over
// websocket: chat lines, speech cues and synthesized audio.
package presentation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	speechmodel "github.com/zhouzirui/clanker/backend/internal/model/speech"
	"github.com/zhouzirui/clanker/backend/internal/service/companion"
	"github.com/zhouzirui/clanker/backend/internal/service/generation"
)

const (
	sendBuffer   = 64
	speechBuffer = 32
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
)

// SpeechGateway is the subset of the generation gateway the hub needs.
type SpeechGateway interface {
	Enabled(kind generation.Kind) bool
	SynthesizeSpeech(ctx context.Context, text string) generation.Result[generation.PCM]
}

// Notices are the speech status lines sent to users.
type Notices struct {
	Quota       string `yaml:"tts_quota"`
	Unavailable string `yaml:"tts_unavailable"`
	Failed      string `yaml:"tts_error"`
}

// DefaultNotices returns the built-in speech notices.
func DefaultNotices() Notices {
	return Notices{
		Quota:       "[Clanker] TTS quota exceeded; replies will be text only.",
		Unavailable: "[Clanker] TTS unavailable.",
		Failed:      "[Clanker] TTS error.",
	}
}

type speechJob struct {
	userID string
	source *companion.SpeechSource
	text   string
}

// client is one listener connection.
type client struct {
	userID string
	send   chan []byte
}

// Hub fans frames out to listeners and runs the speech worker.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}

	speech  SpeechGateway
	jobs    chan speechJob
	notices Notices
	quota   atomic.Bool
	logger  *zap.Logger

	done     chan struct{}
	doneOnce sync.Once
}

var _ companion.Presenter = (*Hub)(nil)

// NewHub creates a hub. speech may be nil, in which case only text frames are sent.
func NewHub(speech SpeechGateway, notices Notices, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultNotices()
	if notices.Quota == "" {
		notices.Quota = defaults.Quota
	}
	if notices.Unavailable == "" {
		notices.Unavailable = defaults.Unavailable
	}
	if notices.Failed == "" {
		notices.Failed = defaults.Failed
	}
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		speech:  speech,
		jobs:    make(chan speechJob, speechBuffer),
		notices: notices,
		logger:  logger.Named("hub"),
		done:    make(chan struct{}),
	}
}

// SendMessage pushes a chat line to the user's listeners.
func (h *Hub) SendMessage(userID, text string) {
	h.broadcast(userID, speechmodel.Frame{Type: speechmodel.FrameMessage, UserID: userID, Text: text})
}

// PlaySpeechAt pushes a speech cue and queues synthesis when speech is available.
// It never blocks: a full synthesis queue drops the line.
func (h *Hub) PlaySpeechAt(userID string, source *companion.SpeechSource, text string) {
	frame := speechmodel.Frame{Type: speechmodel.FrameSpeech, UserID: userID, Text: text}
	applySource(&frame, source)
	h.broadcast(userID, frame)

	if !h.speechEnabled() || !h.connected(userID) {
		return
	}
	select {
	case h.jobs <- speechJob{userID: userID, source: source, text: text}:
	default:
		h.logger.Warn("speech queue full, dropping line", zap.String("user", userID))
	}
}

func (h *Hub) speechEnabled() bool {
	return h.speech != nil && h.speech.Enabled(generation.KindSpeech) && !h.quota.Load()
}

// Run is the speech worker. It returns when ctx is done and then closes every
// listener.
func (h *Hub) Run(ctx context.Context) error {
	defer h.doneOnce.Do(func() { close(h.done) })
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-h.jobs:
			h.synthesize(ctx, job)
		}
	}
}

func (h *Hub) synthesize(ctx context.Context, job speechJob) {
	res := h.callSpeech(ctx, job)
	switch res.Status {
	case generation.StatusOK:
		frame := speechmodel.Frame{
			Type:       speechmodel.FrameAudio,
			UserID:     job.userID,
			Text:       job.text,
			PCM:        base64.StdEncoding.EncodeToString(res.Value.Data),
			SampleRate: res.Value.SampleRate,
			Channels:   res.Value.Channels,
		}
		applySource(&frame, job.source)
		h.broadcast(job.userID, frame)
	case generation.StatusQuotaExceeded:
		if h.quota.CompareAndSwap(false, true) {
			h.logger.Warn("speech quota exceeded, disabling synthesis")
			h.SendMessage(job.userID, h.notices.Quota)
		}
	case generation.StatusNotConfigured:
		h.SendMessage(job.userID, h.notices.Unavailable)
	default:
		h.logger.Warn("speech synthesis failed", zap.String("user", job.userID), zap.String("error", res.Message))
		h.SendMessage(job.userID, h.notices.Failed)
	}
}

// callSpeech reports a panicking synthesizer as a transient failure.
func (h *Hub) callSpeech(ctx context.Context, job speechJob) (res generation.Result[generation.PCM]) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("speech synthesis panicked",
				zap.String("user", job.userID),
				zap.Any("panic", r))
			res = generation.Transient[generation.PCM](fmt.Sprintf("synthesizer panic: %v", r))
		}
	}()
	return h.speech.SynthesizeSpeech(ctx, job.text)
}

func applySource(frame *speechmodel.Frame, source *companion.SpeechSource) {
	if source == nil {
		return
	}
	pos := source.Position
	frame.ActorID = string(source.Actor)
	frame.Position = &pos
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Subscribe registers a listener without a websocket. Frames arrive as JSON on
// the returned channel until cancel is called.
func (h *Hub) Subscribe(userID string) (<-chan []byte, func()) {
	c := &client{userID: userID, send: make(chan []byte, sendBuffer)}
	h.register(c)
	var once sync.Once
	return c.send, func() { once.Do(func() { h.unregister(c) }) }
}

// Attach serves an upgraded connection until it closes or ctx is done.
func (h *Hub) Attach(ctx context.Context, userID string, conn *websocket.Conn) {
	c := &client{userID: userID, send: make(chan []byte, sendBuffer)}
	h.register(c)
	defer h.unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.logger.Info("listener connected", zap.String("user", userID))
	go h.readPump(cancel, conn)
	h.writePump(ctx, c, conn)
	h.logger.Info("listener disconnected", zap.String("user", userID))
}

// readPump only handles control frames; listeners send no data.
func (h *Hub) readPump(cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(ctx context.Context, c *client, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-h.done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("write error", zap.String("user", c.userID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.userID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
}

func (h *Hub) connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// Listeners returns how many connections are attached for userID.
func (h *Hub) Listeners(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) broadcast(userID string, frame speechmodel.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to marshal frame", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("listener too slow, dropping frame", zap.String("user", userID), zap.String("type", string(frame.Type)))
		}
	}
}
