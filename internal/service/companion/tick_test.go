package companion_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/clanker/backend/internal/model/world"
	"github.com/zhouzirui/clanker/backend/internal/service/companion"
	"github.com/zhouzirui/clanker/backend/internal/service/session"
	worldsvc "github.com/zhouzirui/clanker/backend/internal/service/world"
)

func TestArrivalFromDistanceTen(t *testing.T) {
	h := newHarness(t)
	s := h.start()
	require.Equal(t, session.Seeking, s.Nav)

	for i := 0; i < 5; i++ {
		h.engine.Step()
	}
	assert.Equal(t, session.Seeking, s.Nav)
	assert.Empty(t, h.world.freezes[bot])

	h.world.actors[bot].pos = world.Vec3{X: 2}
	h.engine.Step()

	assert.Equal(t, session.Arrived, s.Nav)
	assert.Equal(t, []bool{true}, h.world.freezes[bot])
	assert.Equal(t, 1, h.world.lookAts[bot])

	for i := 0; i < 10; i++ {
		h.engine.Step()
	}
	assert.Equal(t, []bool{true}, h.world.freezes[bot], "freeze fires once per arrival")
	assert.Equal(t, 11, h.world.lookAts[bot], "look-at every arrived tick")
}

func TestArrivalThresholdIsInclusive(t *testing.T) {
	h := newHarness(t)
	s := h.start()

	h.world.actors[bot].pos = world.Vec3{X: 2.51}
	h.engine.Step()
	assert.Equal(t, session.Seeking, s.Nav)

	h.world.actors[bot].pos = world.Vec3{X: 2.5}
	h.engine.Step()
	assert.Equal(t, session.Arrived, s.Nav)
}

func TestSeekRefreshInterval(t *testing.T) {
	h := newHarness(t)
	s := h.start()
	startTick := s.LastPathIssuedTick
	require.Equal(t, 1, h.world.seeks[bot])

	for h.engine.CurrentTick() < startTick+19 {
		h.engine.Step()
	}
	assert.Equal(t, 1, h.world.seeks[bot])

	h.engine.Step()
	assert.Equal(t, 2, h.world.seeks[bot])
	assert.Equal(t, startTick+20, s.LastPathIssuedTick)

	for i := 0; i < 19; i++ {
		h.engine.Step()
	}
	assert.Equal(t, 2, h.world.seeks[bot])
	h.engine.Step()
	assert.Equal(t, 3, h.world.seeks[bot])
}

func TestOfflineUserIsSkipped(t *testing.T) {
	h := newHarness(t)
	s := h.start()
	delete(h.world.users, alice)
	h.world.actors[bot].pos = world.Vec3{X: 1}

	for i := 0; i < 30; i++ {
		h.engine.Step()
	}
	assert.Equal(t, session.Seeking, s.Nav)
	assert.Equal(t, 1, h.world.seeks[bot])
	assert.Equal(t, 1, h.engine.Registry().Len())
}

func TestDeadActorEndsSessionOnTick(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.world.actors[bot].alive = false

	h.engine.Step()

	assert.Equal(t, 0, h.engine.Registry().Len())
	assert.Equal(t, h.msgs.Gone, h.sink.last(alice))
	assert.Equal(t, []bool{false}, h.world.freezes[bot])
}

func TestEmptyRegistryDoesNotTouchWorld(t *testing.T) {
	h := newHarness(t)
	h.world.addActor(bot, world.Vec3{X: 1})

	for i := 0; i < 50; i++ {
		h.engine.Step()
	}
	assert.Empty(t, h.world.seeks)
	assert.Empty(t, h.world.lookAts)
	assert.Empty(t, h.world.freezes)
}

func TestWalksToUserInSimulatedWorld(t *testing.T) {
	sim := worldsvc.NewSim(nil)
	sim.SetUserPosition(alice, world.Vec3{})
	actor := sim.Spawn(world.Vec3{X: 10})
	sink := newFakeSink()
	engine := companion.New(companion.Deps{
		Actors:     sim,
		Presenter:  sink,
		Simulation: sim,
	}, companion.Options{}, zap.NewNop())

	engine.HandleEvent(alice, "@clanker")
	engine.Step()
	s, ok := engine.Registry().Get(alice)
	require.True(t, ok)
	require.Equal(t, actor, s.ActorID)

	for i := 0; i < 60 && s.Nav == session.Seeking; i++ {
		engine.Step()
	}
	require.Equal(t, session.Arrived, s.Nav)

	snap := sim.Actors()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].Frozen)
	pos, _ := sim.ActorPosition(actor)
	assert.LessOrEqual(t, pos.DistanceSq(world.Vec3{}), 2.5*2.5)

	engine.HandleEvent(alice, "@bye")
	engine.Step()
	assert.False(t, sim.Actors()[0].Frozen)
}
