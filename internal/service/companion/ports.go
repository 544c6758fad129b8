// Package companion orchestrates conversations between users and proxy actors:
// trigger routing, single-flight generation jobs and the navigation tick.
package companion

import (
	"context"

	"github.com/zhouzirui/clanker/backend/internal/model/world"
	"github.com/zhouzirui/clanker/backend/internal/service/generation"
)

// ActorController moves and queries actors in the simulated world. Every method
// is called from the authoritative loop only.
type ActorController interface {
	FindNearestLiveActor(origin world.Vec3, radius float64) (world.ActorID, bool)
	Seek(actor world.ActorID, target world.Vec3, speed float64)
	LookAt(actor world.ActorID, target world.Vec3)
	Freeze(actor world.ActorID, frozen bool)
	IsAlive(actor world.ActorID) bool
	DropItem(actor world.ActorID, kind world.ItemKind)

	ActorPosition(actor world.ActorID) (world.Vec3, bool)
	UserPosition(userID string) (world.Vec3, bool)
}

// Simulation advances the world by one step before the queue is drained.
type Simulation interface {
	Step(tick int64)
}

// SpeechSource locates a spoken line in the world. A nil source means the
// speaker vanished and the client should play it without position.
type SpeechSource struct {
	Actor    world.ActorID
	Position world.Vec3
}

// Presenter is the presentation sink. Calls must not block the loop.
type Presenter interface {
	SendMessage(userID, text string)
	PlaySpeechAt(userID string, source *SpeechSource, text string)
}

// Studio post-processes generated artifacts. It runs on worker goroutines.
type Studio interface {
	ApplyPainting(ctx context.Context, art generation.Artifact) error
	PackageDisc(ctx context.Context, art generation.Artifact) (generation.Artifact, error)
}
