package companion_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/clanker/backend/internal/model/chat"
	"github.com/zhouzirui/clanker/backend/internal/model/world"
	"github.com/zhouzirui/clanker/backend/internal/service/companion"
	"github.com/zhouzirui/clanker/backend/internal/service/generation"
	"github.com/zhouzirui/clanker/backend/internal/service/session"
)

const (
	alice = "alice"
	bot   = world.ActorID("bot-1")
)

type harness struct {
	t      *testing.T
	engine *companion.Engine
	world  *fakeWorld
	sink   *fakeSink
	text   *fakeText
	image  *fakeArtifacts
	music  *fakeArtifacts
	studio *fakeStudio
	msgs   companion.Messages
}

// newHarness builds an engine whose dispatcher is never started, so every job
// runs inline on submission and its continuation is applied on the next Step.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		world:  newFakeWorld(),
		sink:   newFakeSink(),
		text:   &fakeText{enabled: true},
		image:  &fakeArtifacts{enabled: true, result: generation.OK(generation.Artifact{Path: "painting.png", MIMEType: "image/png"})},
		music:  &fakeArtifacts{enabled: true, result: generation.OK(generation.Artifact{Path: "track.wav", MIMEType: "audio/wav"})},
		studio: &fakeStudio{},
		msgs:   companion.DefaultMessages(),
	}
	h.world.users[alice] = world.Vec3{}
	gw := generation.NewGateway(h.text, h.image, h.music, nil)
	h.engine = companion.New(companion.Deps{
		Actors:    h.world,
		Presenter: h.sink,
		Gateway:   gw,
		Studio:    h.studio,
	}, companion.Options{SystemPrompt: "You are grumpy."}, zap.NewNop())
	return h
}

func (h *harness) say(text string) {
	h.engine.HandleEvent(alice, text)
	h.engine.Step()
}

// settle applies continuations posted by the previous step.
func (h *harness) settle() { h.engine.Step() }

func (h *harness) session() *session.Session {
	s, ok := h.engine.Registry().Get(alice)
	require.True(h.t, ok, "expected a live session")
	return s
}

func (h *harness) start() *session.Session {
	h.world.addActor(bot, world.Vec3{X: 10})
	h.say("@clanker")
	return h.session()
}

func TestStartWithNoActorNearby(t *testing.T) {
	h := newHarness(t)
	h.world.addActor(bot, world.Vec3{X: 1000})

	h.say("@Clanker hello")

	assert.Equal(t, 0, h.engine.Registry().Len())
	assert.Equal(t, []string{h.msgs.NoneNearby}, h.sink.messages[alice])
}

func TestStartWithUnknownUserPosition(t *testing.T) {
	h := newHarness(t)
	h.world.addActor(bot, world.Vec3{X: 1})
	delete(h.world.users, alice)

	h.say("@clanker")

	assert.Equal(t, 0, h.engine.Registry().Len())
	assert.Equal(t, h.msgs.NoneNearby, h.sink.last(alice))
}

func TestStartSeedsHistoryAndGreets(t *testing.T) {
	h := newHarness(t)
	s := h.start()

	assert.Equal(t, bot, s.ActorID)
	assert.Equal(t, session.Seeking, s.Nav)
	assert.False(t, s.Busy())

	turns := s.History.Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, chat.RoleSystem, turns[0].Role)
	assert.Equal(t, "You are grumpy.", turns[0].Text)
	assert.Equal(t, chat.RoleModel, turns[1].Role)
	assert.Equal(t, h.msgs.Greeting, turns[1].Text)

	assert.Equal(t, []string{h.msgs.Greeting}, h.sink.messages[alice])
	require.Len(t, h.sink.speech[alice], 1)
	require.NotNil(t, h.sink.speech[alice][0].source)
	assert.Equal(t, bot, h.sink.speech[alice][0].source.Actor)
	assert.Equal(t, 1, h.world.seeks[bot])
}

func TestStartPicksNearestLiveActor(t *testing.T) {
	h := newHarness(t)
	h.world.addActor("far", world.Vec3{X: 50})
	h.world.addActor("near", world.Vec3{X: 5})
	h.world.addActor("dead", world.Vec3{X: 1})
	h.world.actors["dead"].alive = false

	h.say("@clanker")

	assert.Equal(t, world.ActorID("near"), h.session().ActorID)
}

func TestRestartReleasesPreviousActor(t *testing.T) {
	h := newHarness(t)
	first := h.start()
	h.world.addActor("bot-2", world.Vec3{X: 3})

	h.say("@clanker again")

	second := h.session()
	assert.NotSame(t, first, second)
	assert.Equal(t, world.ActorID("bot-2"), second.ActorID)
	assert.Equal(t, []bool{false}, h.world.freezes[bot])
	assert.Equal(t, 1, h.engine.Registry().Len())
}

func TestEndWithoutSessionIsNoop(t *testing.T) {
	h := newHarness(t)

	h.say("@bye")

	assert.Empty(t, h.sink.messages[alice])
	assert.Empty(t, h.sink.speech[alice])
	assert.Equal(t, 0, h.engine.Registry().Len())
}

func TestEndRemovesSessionAndReleasesActor(t *testing.T) {
	h := newHarness(t)
	h.start()

	h.say("  @BYE see you")

	assert.Equal(t, 0, h.engine.Registry().Len())
	assert.Equal(t, []bool{false}, h.world.freezes[bot])
	assert.Equal(t, h.msgs.Farewell, h.sink.last(alice))
	speech := h.sink.speech[alice]
	require.NotEmpty(t, speech)
	assert.Equal(t, h.msgs.Farewell, speech[len(speech)-1].text)
	assert.NotNil(t, speech[len(speech)-1].source)
}

func TestEndAfterActorVanishedSpeaksWithoutPosition(t *testing.T) {
	h := newHarness(t)
	h.start()
	delete(h.world.actors, bot)

	h.say("@bye")

	speech := h.sink.speech[alice]
	assert.Nil(t, speech[len(speech)-1].source)
	assert.Empty(t, h.world.freezes[bot])
}

func TestIgnoresCommandsAndUnmatchedText(t *testing.T) {
	h := newHarness(t)
	h.world.addActor(bot, world.Vec3{X: 1})

	h.say("/clanker")
	h.say("")
	h.say("hello nobody")
	h.settle()

	assert.Equal(t, 0, h.engine.Registry().Len())
	assert.Empty(t, h.sink.messages[alice])
	assert.Equal(t, 0, h.text.calls)
}

func TestChatRoundTrip(t *testing.T) {
	h := newHarness(t)
	s := h.start()

	h.say("How are you?")
	assert.True(t, s.Busy(), "busy until the continuation runs")
	assert.Equal(t, 1, h.text.calls)
	assert.Equal(t, "How are you?", h.text.inputs[0])
	assert.Len(t, h.text.history[0], 2, "history snapshot excludes the new input")

	h.settle()
	assert.False(t, s.Busy())
	assert.Equal(t, h.msgs.ResponsePrefix+"reply to How are you?", h.sink.last(alice))

	turns := s.History.Snapshot()
	require.Len(t, turns, 4)
	assert.Equal(t, chat.UserTurn("How are you?"), turns[2])
	assert.Equal(t, chat.ModelTurn("reply to How are you?"), turns[3])

	speech := h.sink.speech[alice]
	assert.Equal(t, "reply to How are you?", speech[len(speech)-1].text)
}

func TestChatWithTextDisabled(t *testing.T) {
	h := newHarness(t)
	h.text.enabled = false
	s := h.start()

	h.say("anyone there?")
	h.settle()

	assert.Equal(t, h.msgs.TextNotConfigured, h.sink.last(alice))
	assert.Equal(t, 0, h.text.calls)
	assert.False(t, s.Busy())
	assert.Equal(t, 3, s.History.Len(), "the user turn is still recorded")
}

func TestChatWhileBusyReportsThinking(t *testing.T) {
	h := newHarness(t)
	s := h.start()

	h.engine.HandleEvent(alice, "first")
	h.engine.HandleEvent(alice, "second")
	h.engine.Step()

	assert.Equal(t, 1, h.text.calls)
	assert.Equal(t, h.msgs.Thinking, h.sink.last(alice))
	assert.True(t, s.Busy())

	h.settle()
	assert.False(t, s.Busy())
}

func TestQuotaTripsBreakerAndShortCircuits(t *testing.T) {
	h := newHarness(t)
	h.text.results = []generation.Result[string]{generation.QuotaExceeded[string]()}
	s := h.start()

	h.say("one")
	h.settle()
	assert.Equal(t, h.msgs.TextQuota, h.sink.last(alice))
	assert.True(t, h.engine.Gateway().Breaker(generation.KindText).Tripped())
	assert.False(t, s.Busy())

	h.say("two")
	h.settle()
	assert.Equal(t, h.msgs.TextQuota, h.sink.last(alice))
	assert.Equal(t, 1, h.text.calls, "tripped breaker must not reach the gateway")
	assert.False(t, s.Busy())
}

func TestTransientChatFailureReportsMessage(t *testing.T) {
	h := newHarness(t)
	h.text.results = []generation.Result[string]{generation.Transient[string]("HTTP 500: boom")}
	s := h.start()

	h.say("hi")
	h.settle()

	assert.Contains(t, h.sink.last(alice), "HTTP 500: boom")
	assert.False(t, s.Busy())
	assert.Equal(t, chat.RoleUser, s.History.Snapshot()[s.History.Len()-1].Role)
}

func TestProviderPanicDoesNotLeaveBusyStuck(t *testing.T) {
	h := newHarness(t)
	h.text.panicMsg = "kaboom"
	s := h.start()

	h.say("hi")
	h.settle()

	assert.False(t, s.Busy())
	assert.Contains(t, h.sink.last(alice), "kaboom")
}

func TestStaleContinuationIsDiscarded(t *testing.T) {
	h := newHarness(t)
	s := h.start()

	h.engine.HandleEvent(alice, "hello")
	h.engine.HandleEvent(alice, "@bye")
	h.engine.Step()
	before := len(h.sink.messages[alice])

	h.settle()

	assert.Equal(t, before, len(h.sink.messages[alice]), "no message for a removed session")
	assert.False(t, s.Busy())
	assert.Equal(t, 0, h.engine.Registry().Len())
}

func TestChatAfterActorDiedEndsSession(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.world.actors[bot].alive = false

	h.say("still there?")

	assert.Equal(t, 0, h.engine.Registry().Len())
	assert.Equal(t, h.msgs.Gone, h.sink.last(alice))
	assert.Equal(t, 0, h.text.calls)
}

func TestImageFlow(t *testing.T) {
	h := newHarness(t)
	s := h.start()

	h.say("@makepainting A Red Fox")
	assert.True(t, s.Busy())
	assert.Equal(t, `Painting "A Red Fox"...`, h.sink.last(alice))

	h.settle()
	assert.False(t, s.Busy())
	assert.Equal(t, 1, h.studio.applied)
	assert.Equal(t, []world.ItemKind{world.ItemPainting}, h.world.drops)
	assert.Equal(t, h.msgs.PaintingDone, h.sink.last(alice))
}

func TestImageRequiresPromptAndCapability(t *testing.T) {
	h := newHarness(t)
	s := h.start()

	h.say("@makepainting   ")
	assert.Equal(t, h.msgs.PaintingPromptRequired, h.sink.last(alice))

	h.image.enabled = false
	h.say("@makepainting a cat")
	assert.Equal(t, h.msgs.ImageNotConfigured, h.sink.last(alice))

	assert.Equal(t, 0, h.image.calls)
	assert.False(t, s.Busy())
}

func TestSecondGenerationWhileBusyIsRejected(t *testing.T) {
	h := newHarness(t)
	s := h.start()

	h.engine.HandleEvent(alice, "@makepainting a cat")
	h.engine.HandleEvent(alice, "@makemusic a song")
	h.engine.Step()

	assert.Equal(t, 1, h.image.calls)
	assert.Equal(t, 0, h.music.calls)
	assert.Equal(t, h.msgs.Busy, h.sink.last(alice))
	assert.True(t, s.Busy())
}

func TestImageTextureFailure(t *testing.T) {
	h := newHarness(t)
	h.studio.applyErr = assert.AnError
	h.start()

	h.say("@makepainting a boat")
	h.settle()

	assert.Contains(t, h.sink.last(alice), assert.AnError.Error())
	assert.Empty(t, h.world.drops)
}

func TestMusicFlowAndTranscoderFailure(t *testing.T) {
	h := newHarness(t)
	s := h.start()

	h.say("@makemusic calm piano")
	h.settle()
	assert.Equal(t, 1, h.studio.packaged)
	assert.Equal(t, []world.ItemKind{world.ItemMusicDisc13}, h.world.drops)
	assert.Equal(t, h.msgs.MusicDone, h.sink.last(alice))
	assert.False(t, s.Busy())

	h.studio.discErr = errNoFFmpeg
	h.say("@makemusic loud drums")
	h.settle()
	assert.Contains(t, h.sink.last(alice), "ffmpeg")
	assert.Len(t, h.world.drops, 1)
}

func TestImageQuotaBreakerIsPerCapability(t *testing.T) {
	h := newHarness(t)
	h.image.result = generation.QuotaExceeded[generation.Artifact]()
	h.start()

	h.say("@makepainting a tree")
	h.settle()
	assert.Equal(t, h.msgs.ImageQuota, h.sink.last(alice))

	h.say("@makepainting another tree")
	assert.Equal(t, h.msgs.ImageQuota, h.sink.last(alice))
	assert.Equal(t, 1, h.image.calls)

	h.say("hello")
	h.settle()
	assert.Equal(t, 1, h.text.calls, "text capability is unaffected")
}

func TestContinuationPanicDoesNotStallOtherUsers(t *testing.T) {
	h := newHarness(t)
	const bob = "bob"
	bobBot := world.ActorID("bot-2")
	h.start()
	h.world.users[bob] = world.Vec3{Z: 50}
	h.world.addActor(bobBot, world.Vec3{Z: 52})
	h.engine.HandleEvent(bob, "@clanker")
	h.engine.Step()
	bobSession, ok := h.engine.Registry().Get(bob)
	require.True(t, ok)
	require.Equal(t, bobBot, bobSession.ActorID)

	h.sink.panicUser = alice
	h.sink.panicText = "reply to"
	h.engine.HandleEvent(alice, "hello")
	h.engine.HandleEvent(bob, "hello")
	h.engine.Step()
	require.True(t, bobSession.Busy())

	h.settle()
	assert.False(t, h.session().Busy(), "busy is cleared before the reply is presented")
	assert.False(t, bobSession.Busy())
	assert.Equal(t, h.msgs.ResponsePrefix+"reply to hello", h.sink.last(bob))
}

func TestContinuationPanicStillRunsNavigation(t *testing.T) {
	h := newHarness(t)
	h.world.addActor(bot, world.Vec3{X: 1})
	h.say("@clanker")
	require.Equal(t, session.Arrived, h.session().Nav)

	h.sink.panicUser = alice
	h.sink.panicText = "reply to"
	h.say("hello")
	before := h.world.lookAts[bot]

	h.settle()
	assert.Equal(t, before+1, h.world.lookAts[bot], "navigation runs in the step whose continuation panicked")
}

func TestStudioPanicDoesNotLeaveBusyStuck(t *testing.T) {
	h := newHarness(t)
	h.studio.applyPanic = "texture writer exploded"
	s := h.start()

	h.say("@makepainting fox")
	h.settle()
	assert.False(t, s.Busy())
	assert.Contains(t, h.sink.last(alice), "texture writer exploded")
	assert.Empty(t, h.world.drops)

	h.say("still there?")
	h.settle()
	assert.Equal(t, h.msgs.ResponsePrefix+"reply to still there?", h.sink.last(alice))
}

func TestDiscPanicDoesNotLeaveBusyStuck(t *testing.T) {
	h := newHarness(t)
	h.studio.discPanic = "transcoder exploded"
	s := h.start()

	h.say("@makemusic drums")
	h.settle()
	assert.False(t, s.Busy())
	assert.Contains(t, h.sink.last(alice), "transcoder exploded")
	assert.Empty(t, h.world.drops)
}
