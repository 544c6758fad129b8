package companion

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/clanker/backend/internal/model/chat"
	"github.com/zhouzirui/clanker/backend/internal/model/world"
	"github.com/zhouzirui/clanker/backend/internal/service/dispatch"
	"github.com/zhouzirui/clanker/backend/internal/service/generation"
	"github.com/zhouzirui/clanker/backend/internal/service/session"
)

// imageOutcome is what an image job hands back to the loop.
type imageOutcome struct {
	result   generation.Result[generation.Artifact]
	applyErr error
}

// musicOutcome is what a music job hands back to the loop.
type musicOutcome struct {
	result generation.Result[generation.Artifact]
	disc   generation.Artifact
	err    error
}

// submit marks s busy with a fresh task id and hands job to the dispatcher.
// Busy is cleared again if the submission fails for any reason.
func (c *core) submit(s *session.Session, kind generation.Kind, announce func(), job func(taskID string) dispatch.Job) {
	taskID := uuid.NewString()
	if !s.Acquire(taskID) {
		return
	}
	submitted := false
	defer func() {
		if !submitted {
			s.Release(taskID)
		}
	}()

	if announce != nil {
		announce()
	}
	if err := c.dispatcher.Submit(string(kind)+":"+s.UserID, c.recovering(s, kind, taskID, job(taskID))); err != nil {
		c.logger.Warn("job rejected",
			zap.String("user", s.UserID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return
	}
	submitted = true
}

// recovering wraps job so that a panic anywhere in it still yields a
// continuation that settles taskID and reports the failure.
func (c *core) recovering(s *session.Session, kind generation.Kind, taskID string, job dispatch.Job) dispatch.Job {
	return func(ctx context.Context) (cont func()) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("job panicked",
					zap.String("user", s.UserID),
					zap.String("kind", string(kind)),
					zap.Any("panic", r))
				msg := fmt.Sprintf("job panic: %v", r)
				cont = func() { c.abandon(s, kind, taskID, msg) }
			}
		}()
		return job(ctx)
	}
}

// abandon settles a task whose job failed without producing a result.
func (c *core) abandon(s *session.Session, kind generation.Kind, taskID, reason string) {
	if !c.settle(s, taskID) {
		return
	}
	m := c.opts.Messages
	tpl := m.ChatFailed
	switch kind {
	case generation.KindImage:
		tpl = m.PaintingFailed
	case generation.KindMusic:
		tpl = m.MusicFailed
	}
	c.sink.SendMessage(s.UserID, fill(tpl, "error", reason))
}

// settle clears busy for taskID and reports whether the continuation may still
// touch the session. Results for replaced or removed sessions are discarded.
func (c *core) settle(s *session.Session, taskID string) bool {
	released := s.Release(taskID)
	if !released {
		return false
	}
	return c.registry.Current(s)
}

func (c *core) submitText(s *session.Session, history []chat.Turn, input string) {
	c.submit(s, generation.KindText, nil, func(taskID string) dispatch.Job {
		return func(ctx context.Context) func() {
			res := guarded(ctx, func() generation.Result[string] {
				return c.gateway.GenerateText(ctx, history, input)
			})
			return func() { c.applyText(s, taskID, res) }
		}
	})
}

func (c *core) applyText(s *session.Session, taskID string, res generation.Result[string]) {
	if !c.settle(s, taskID) {
		return
	}
	m := c.opts.Messages
	switch res.Status {
	case generation.StatusOK:
		s.History.AppendModel(res.Value)
		c.sink.SendMessage(s.UserID, m.ResponsePrefix+res.Value)
		c.sink.PlaySpeechAt(s.UserID, c.speechSource(s.ActorID), res.Value)
	case generation.StatusQuotaExceeded:
		c.sink.SendMessage(s.UserID, m.TextQuota)
	case generation.StatusNotConfigured:
		c.sink.SendMessage(s.UserID, m.TextNotConfigured)
	default:
		c.sink.SendMessage(s.UserID, fill(m.ChatFailed, "error", res.Message))
	}
}

func (c *core) submitImage(s *session.Session, prompt string, announce func()) {
	c.submit(s, generation.KindImage, announce, func(taskID string) dispatch.Job {
		return func(ctx context.Context) func() {
			out := imageOutcome{result: guarded(ctx, func() generation.Result[generation.Artifact] {
				return c.gateway.GenerateImage(ctx, prompt)
			})}
			if out.result.Ok() && c.studio != nil {
				out.applyErr = protect(func() error {
					return c.studio.ApplyPainting(ctx, out.result.Value)
				})
			}
			return func() { c.applyImage(s, taskID, out) }
		}
	})
}

func (c *core) applyImage(s *session.Session, taskID string, out imageOutcome) {
	if !c.settle(s, taskID) {
		return
	}
	m := c.opts.Messages
	switch out.result.Status {
	case generation.StatusOK:
		if out.applyErr != nil {
			c.sink.SendMessage(s.UserID, fill(m.PaintingTextureFailed, "error", out.applyErr.Error()))
			return
		}
		if !c.actors.IsAlive(s.ActorID) {
			return
		}
		c.actors.DropItem(s.ActorID, world.ItemPainting)
		c.sink.SendMessage(s.UserID, m.PaintingDone)
		c.sink.PlaySpeechAt(s.UserID, c.speechSource(s.ActorID), m.PaintingDone)
	case generation.StatusQuotaExceeded:
		c.sink.SendMessage(s.UserID, m.ImageQuota)
	case generation.StatusNotConfigured:
		c.sink.SendMessage(s.UserID, m.ImageNotConfigured)
	default:
		c.sink.SendMessage(s.UserID, fill(m.PaintingFailed, "error", out.result.Message))
	}
}

func (c *core) submitMusic(s *session.Session, prompt string, announce func()) {
	c.submit(s, generation.KindMusic, announce, func(taskID string) dispatch.Job {
		return func(ctx context.Context) func() {
			out := musicOutcome{result: guarded(ctx, func() generation.Result[generation.Artifact] {
				return c.gateway.GenerateMusic(ctx, prompt)
			})}
			if out.result.Ok() {
				out.disc = out.result.Value
				if c.studio != nil {
					out.err = protect(func() (err error) {
						out.disc, err = c.studio.PackageDisc(ctx, out.result.Value)
						return err
					})
				}
			}
			return func() { c.applyMusic(s, taskID, out) }
		}
	})
}

func (c *core) applyMusic(s *session.Session, taskID string, out musicOutcome) {
	if !c.settle(s, taskID) {
		return
	}
	m := c.opts.Messages
	switch out.result.Status {
	case generation.StatusOK:
		if out.err != nil {
			c.sink.SendMessage(s.UserID, fill(m.MusicFailed, "error", out.err.Error()))
			return
		}
		if !c.actors.IsAlive(s.ActorID) {
			return
		}
		c.actors.DropItem(s.ActorID, world.ItemMusicDisc13)
		c.sink.SendMessage(s.UserID, m.MusicDone)
		c.sink.PlaySpeechAt(s.UserID, c.speechSource(s.ActorID), m.MusicDone)
	case generation.StatusQuotaExceeded:
		c.sink.SendMessage(s.UserID, m.MusicQuota)
	case generation.StatusNotConfigured:
		c.sink.SendMessage(s.UserID, m.MusicNotConfigured)
	default:
		c.sink.SendMessage(s.UserID, fill(m.MusicFailed, "error", out.result.Message))
	}
}

// guarded runs one gateway call, turning panics and an expired job deadline
// into Transient results.
func guarded[T any](ctx context.Context, call func() generation.Result[T]) (res generation.Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = generation.Transient[T](fmt.Sprintf("provider panic: %v", r))
		}
	}()
	res = call()
	if !res.Ok() && res.Status == generation.StatusTransient && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res = generation.Transient[T]("deadline exceeded")
	}
	return res
}

// protect runs fn and reports a panic as an error.
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
