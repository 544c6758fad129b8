package companion

import (
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/clanker/backend/internal/model/world"
	"github.com/zhouzirui/clanker/backend/internal/service/generation"
	"github.com/zhouzirui/clanker/backend/internal/service/session"
)

// Router matches inbound chat lines against the trigger prefixes and runs the
// first matching handler. It runs on the authoritative loop.
type Router struct {
	*core
	log *zap.Logger
}

// Handle routes one inbound line. Panics are recovered and logged here so one
// bad event cannot affect other users.
func (r *Router) Handle(userID, raw string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("event handling failed",
				zap.String("user", userID),
				zap.Any("panic", rec))
		}
	}()

	if raw == "" || strings.HasPrefix(raw, r.opts.Triggers.CommandPrefix) {
		return
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return
	}

	t := r.opts.Triggers
	switch {
	case hasPrefixFold(text, t.Start):
		r.handleStart(userID)
		return
	case hasPrefixFold(text, t.End):
		r.handleEnd(userID)
		return
	}

	s, ok := r.registry.Get(userID)
	if !ok {
		return
	}
	if !r.actors.IsAlive(s.ActorID) {
		r.endGone(s)
		return
	}

	switch {
	case hasPrefixFold(text, t.Image):
		r.handleImage(s, strings.TrimSpace(text[len(t.Image):]))
	case hasPrefixFold(text, t.Music):
		r.handleMusic(s, strings.TrimSpace(text[len(t.Music):]))
	default:
		r.handleChat(s, text)
	}
}

func (r *Router) handleStart(userID string) {
	origin, ok := r.actors.UserPosition(userID)
	if !ok {
		r.sink.SendMessage(userID, r.opts.Messages.NoneNearby)
		return
	}
	actor, found := r.actors.FindNearestLiveActor(origin, r.opts.SearchRadius)
	if !found {
		r.sink.SendMessage(userID, r.opts.Messages.NoneNearby)
		return
	}

	if prev, ok := r.registry.Get(userID); ok {
		r.releaseActor(prev.ActorID)
	}

	s := session.New(userID, actor, r.tick.Load())
	if strings.TrimSpace(r.opts.SystemPrompt) != "" {
		s.History.AppendSystem(r.opts.SystemPrompt)
	}
	greeting := r.opts.Messages.Greeting
	s.History.AppendModel(greeting)
	r.registry.CreateOrReplace(s)

	r.actors.Seek(actor, origin, r.opts.MoveSpeed)
	r.sink.SendMessage(userID, greeting)
	r.sink.PlaySpeechAt(userID, r.speechSource(actor), greeting)

	r.log.Info("conversation started",
		zap.String("user", userID),
		zap.String("actor", string(actor)),
		zap.Float64("distance_sq", r.distanceSq(actor, origin)))
}

func (r *Router) handleEnd(userID string) {
	s, ok := r.registry.Remove(userID)
	if !ok {
		return
	}
	source := r.speechSource(s.ActorID)
	r.releaseActor(s.ActorID)

	farewell := r.opts.Messages.Farewell
	r.sink.SendMessage(userID, farewell)
	r.sink.PlaySpeechAt(userID, source, farewell)
	r.log.Info("conversation ended", zap.String("user", userID), zap.String("actor", string(s.ActorID)))
}

func (r *Router) handleImage(s *session.Session, prompt string) {
	m := r.opts.Messages
	switch {
	case !r.gateway.Enabled(generation.KindImage):
		r.sink.SendMessage(s.UserID, m.ImageNotConfigured)
	case prompt == "":
		r.sink.SendMessage(s.UserID, m.PaintingPromptRequired)
	case s.Busy():
		r.sink.SendMessage(s.UserID, m.Busy)
	case r.gateway.Breaker(generation.KindImage).Tripped():
		r.sink.SendMessage(s.UserID, m.ImageQuota)
	default:
		notice := fill(m.PaintingStart, "prompt", prompt)
		r.submitImage(s, prompt, func() {
			r.sink.SendMessage(s.UserID, notice)
			r.sink.PlaySpeechAt(s.UserID, r.speechSource(s.ActorID), notice)
		})
	}
}

func (r *Router) handleMusic(s *session.Session, prompt string) {
	m := r.opts.Messages
	switch {
	case !r.gateway.Enabled(generation.KindMusic):
		r.sink.SendMessage(s.UserID, m.MusicNotConfigured)
	case prompt == "":
		r.sink.SendMessage(s.UserID, m.MusicPromptRequired)
	case s.Busy():
		r.sink.SendMessage(s.UserID, m.Busy)
	case r.gateway.Breaker(generation.KindMusic).Tripped():
		r.sink.SendMessage(s.UserID, m.MusicQuota)
	default:
		notice := fill(m.MusicStart, "prompt", prompt)
		r.submitMusic(s, prompt, func() {
			r.sink.SendMessage(s.UserID, notice)
			r.sink.PlaySpeechAt(s.UserID, r.speechSource(s.ActorID), notice)
		})
	}
}

func (r *Router) handleChat(s *session.Session, text string) {
	m := r.opts.Messages
	history := s.History.Snapshot()
	s.History.AppendUser(text)

	switch {
	case !r.gateway.Enabled(generation.KindText):
		r.sink.SendMessage(s.UserID, m.TextNotConfigured)
	case s.Busy():
		r.sink.SendMessage(s.UserID, m.Thinking)
	case r.gateway.Breaker(generation.KindText).Tripped():
		r.sink.SendMessage(s.UserID, m.TextQuota)
	default:
		r.submitText(s, history, text)
	}
}

// endGone force-ends a session whose actor is missing or dead.
func (c *core) endGone(s *session.Session) {
	if !c.registry.RemoveIf(s) {
		return
	}
	c.releaseActor(s.ActorID)
	c.sink.SendMessage(s.UserID, c.opts.Messages.Gone)
	c.logger.Named("router").Info("conversation ended, actor unavailable",
		zap.String("user", s.UserID),
		zap.String("actor", string(s.ActorID)))
}

// releaseActor unfreezes the actor if it still exists in the world.
func (c *core) releaseActor(actor world.ActorID) {
	if _, ok := c.actors.ActorPosition(actor); ok {
		c.actors.Freeze(actor, false)
	}
}

// speechSource returns nil when the actor vanished.
func (c *core) speechSource(actor world.ActorID) *SpeechSource {
	if !c.actors.IsAlive(actor) {
		return nil
	}
	pos, ok := c.actors.ActorPosition(actor)
	if !ok {
		return nil
	}
	return &SpeechSource{Actor: actor, Position: pos}
}

func (c *core) distanceSq(actor world.ActorID, target world.Vec3) float64 {
	pos, ok := c.actors.ActorPosition(actor)
	if !ok {
		return -1
	}
	return pos.DistanceSq(target)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
