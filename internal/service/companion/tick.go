package companion

import (
	"go.uber.org/zap"

	"github.com/zhouzirui/clanker/backend/internal/service/session"
)

// TickDriver advances the navigation state of every session once per loop
// step: seeking actors get their path refreshed, arrived actors stay frozen and
// keep facing their user.
type TickDriver struct {
	*core
	log *zap.Logger
}

// Tick runs one navigation pass for tick.
func (d *TickDriver) Tick(tick int64) {
	if d.registry.Len() == 0 {
		return
	}
	for _, s := range d.registry.Snapshot() {
		d.step(s, tick)
	}
}

func (d *TickDriver) step(s *session.Session, tick int64) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("navigation step failed",
				zap.String("user", s.UserID),
				zap.Int64("tick", tick),
				zap.Any("panic", r))
		}
	}()

	userPos, online := d.actors.UserPosition(s.UserID)
	if !online {
		return
	}
	if !d.actors.IsAlive(s.ActorID) {
		d.endGone(s)
		return
	}
	actorPos, ok := d.actors.ActorPosition(s.ActorID)
	if !ok {
		d.endGone(s)
		return
	}

	switch s.Nav {
	case session.Seeking:
		arrive := d.opts.ArriveDistance
		if actorPos.DistanceSq(userPos) <= arrive*arrive {
			s.Nav = session.Arrived
			d.actors.Freeze(s.ActorID, true)
			d.actors.LookAt(s.ActorID, userPos)
			d.log.Debug("actor arrived",
				zap.String("user", s.UserID),
				zap.String("actor", string(s.ActorID)),
				zap.Int64("tick", tick))
			return
		}
		if tick-s.LastPathIssuedTick >= d.opts.PathRefreshTicks {
			d.actors.Seek(s.ActorID, userPos, d.opts.MoveSpeed)
			s.LastPathIssuedTick = tick
		}
	case session.Arrived:
		d.actors.LookAt(s.ActorID, userPos)
	}
}
