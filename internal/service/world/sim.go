// Package world is an in-memory stand-in for the simulated world: actors that
// walk towards targets, users with positions, and dropped items.
package world

import (
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	model "github.com/zhouzirui/clanker/backend/internal/model/world"
)

const (
	// DefaultBlocksPerSpeed converts a seek speed into distance per tick.
	DefaultBlocksPerSpeed = 0.25
	// DefaultStopDistance is how close a walking actor gets before stopping.
	DefaultStopDistance = 1.5
)

// Actor is a snapshot of one actor.
type Actor struct {
	ID     model.ActorID `json:"id"`
	Pos    model.Vec3    `json:"position"`
	Yaw    float64       `json:"yaw"`
	Alive  bool          `json:"alive"`
	Frozen bool          `json:"frozen"`
}

// Drop records an item dropped by an actor.
type Drop struct {
	Actor model.ActorID  `json:"actorId"`
	Kind  model.ItemKind `json:"kind"`
	Pos   model.Vec3     `json:"position"`
	Tick  int64          `json:"tick"`
}

type actorState struct {
	Actor
	target *model.Vec3
	speed  float64
}

// Sim is a minimal world simulation. Seek sets a walk target that Step follows
// until the actor is frozen or close enough.
type Sim struct {
	mu     sync.RWMutex
	actors map[model.ActorID]*actorState
	users  map[string]model.Vec3
	drops  []Drop
	tick   int64

	blocksPerSpeed float64
	stopDistance   float64
	logger         *zap.Logger
}

// NewSim returns an empty world.
func NewSim(logger *zap.Logger) *Sim {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sim{
		actors:         make(map[model.ActorID]*actorState),
		users:          make(map[string]model.Vec3),
		blocksPerSpeed: DefaultBlocksPerSpeed,
		stopDistance:   DefaultStopDistance,
		logger:         logger.Named("world"),
	}
}

// Spawn adds a live actor at pos and returns its id.
func (s *Sim) Spawn(pos model.Vec3) model.ActorID {
	id := model.ActorID(uuid.NewString())
	s.mu.Lock()
	s.actors[id] = &actorState{Actor: Actor{ID: id, Pos: pos, Alive: true}}
	s.mu.Unlock()
	s.logger.Info("actor spawned", zap.String("actor", string(id)), zap.Stringer("pos", pos))
	return id
}

// Kill marks the actor dead but keeps it addressable.
func (s *Sim) Kill(id model.ActorID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[id]
	if !ok {
		return false
	}
	a.Alive = false
	a.target = nil
	return true
}

// Despawn removes the actor from the world.
func (s *Sim) Despawn(id model.ActorID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actors[id]; !ok {
		return false
	}
	delete(s.actors, id)
	return true
}

// SetUserPosition places or moves a user.
func (s *Sim) SetUserPosition(userID string, pos model.Vec3) {
	s.mu.Lock()
	s.users[userID] = pos
	s.mu.Unlock()
}

// RemoveUser takes a user offline.
func (s *Sim) RemoveUser(userID string) {
	s.mu.Lock()
	delete(s.users, userID)
	s.mu.Unlock()
}

// Actors returns a snapshot of every actor ordered by id.
func (s *Sim) Actors() []Actor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Actor, 0, len(s.actors))
	for _, a := range s.actors {
		out = append(out, a.Actor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Drops returns every item dropped so far.
func (s *Sim) Drops() []Drop {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Drop(nil), s.drops...)
}

// Step moves every walking actor one tick towards its target.
func (s *Sim) Step(tick int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick = tick
	for _, a := range s.actors {
		if !a.Alive || a.Frozen || a.target == nil {
			continue
		}
		delta := a.target.Sub(a.Pos)
		dist := math.Sqrt(delta.LengthSq())
		if dist <= s.stopDistance {
			a.target = nil
			continue
		}
		stride := a.speed * s.blocksPerSpeed
		if remaining := dist - s.stopDistance; stride > remaining {
			stride = remaining
		}
		a.Pos = a.Pos.Add(delta.Scale(stride / dist))
		a.Yaw = a.Pos.Yaw(*a.target)
	}
}

// FindNearestLiveActor returns the closest live actor within radius of origin.
func (s *Sim) FindNearestLiveActor(origin model.Vec3, radius float64) (model.ActorID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best  model.ActorID
		bestD = math.MaxFloat64
	)
	limit := radius * radius
	for id, a := range s.actors {
		if !a.Alive {
			continue
		}
		d := a.Pos.DistanceSq(origin)
		if d > limit {
			continue
		}
		if d < bestD || (d == bestD && id < best) {
			best, bestD = id, d
		}
	}
	return best, best != ""
}

// Seek starts the actor walking towards target.
func (s *Sim) Seek(id model.ActorID, target model.Vec3, speed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.actors[id]; ok && a.Alive {
		t := target
		a.target = &t
		a.speed = speed
	}
}

// LookAt turns the actor towards target.
func (s *Sim) LookAt(id model.ActorID, target model.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.actors[id]; ok {
		a.Yaw = a.Pos.Yaw(target)
	}
}

// Freeze stops or resumes autonomous motion.
func (s *Sim) Freeze(id model.ActorID, frozen bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.actors[id]; ok {
		a.Frozen = frozen
		if frozen {
			a.target = nil
		}
	}
}

// IsAlive reports whether the actor exists and is alive.
func (s *Sim) IsAlive(id model.ActorID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[id]
	return ok && a.Alive
}

// DropItem records an item at the actor's position.
func (s *Sim) DropItem(id model.ActorID, kind model.ItemKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[id]
	if !ok {
		return
	}
	s.drops = append(s.drops, Drop{Actor: id, Kind: kind, Pos: a.Pos, Tick: s.tick})
	s.logger.Info("item dropped", zap.String("actor", string(id)), zap.String("kind", string(kind)))
}

// ActorPosition returns the actor's position if it exists.
func (s *Sim) ActorPosition(id model.ActorID) (model.Vec3, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[id]
	if !ok {
		return model.Vec3{}, false
	}
	return a.Pos, true
}

// UserPosition returns the user's position if online.
func (s *Sim) UserPosition(userID string) (model.Vec3, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.users[userID]
	return p, ok
}
