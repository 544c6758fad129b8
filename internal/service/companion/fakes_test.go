package companion_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"

	"github.com/zhouzirui/clanker/backend/internal/model/chat"
	"github.com/zhouzirui/clanker/backend/internal/model/world"
	"github.com/zhouzirui/clanker/backend/internal/service/companion"
	"github.com/zhouzirui/clanker/backend/internal/service/generation"
)

type fakeActor struct {
	pos    world.Vec3
	alive  bool
	frozen bool
}

type fakeWorld struct {
	actors map[world.ActorID]*fakeActor
	users  map[string]world.Vec3

	seeks   map[world.ActorID]int
	lookAts map[world.ActorID]int
	freezes map[world.ActorID][]bool
	drops   []world.ItemKind
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		actors:  map[world.ActorID]*fakeActor{},
		users:   map[string]world.Vec3{},
		seeks:   map[world.ActorID]int{},
		lookAts: map[world.ActorID]int{},
		freezes: map[world.ActorID][]bool{},
	}
}

func (w *fakeWorld) addActor(id world.ActorID, pos world.Vec3) {
	w.actors[id] = &fakeActor{pos: pos, alive: true}
}

func (w *fakeWorld) FindNearestLiveActor(origin world.Vec3, radius float64) (world.ActorID, bool) {
	best, bestD := world.ActorID(""), math.MaxFloat64
	for id, a := range w.actors {
		if !a.alive {
			continue
		}
		d := a.pos.DistanceSq(origin)
		if d <= radius*radius && d < bestD {
			best, bestD = id, d
		}
	}
	return best, best != ""
}

func (w *fakeWorld) Seek(actor world.ActorID, _ world.Vec3, _ float64) { w.seeks[actor]++ }

func (w *fakeWorld) LookAt(actor world.ActorID, _ world.Vec3) { w.lookAts[actor]++ }

func (w *fakeWorld) Freeze(actor world.ActorID, frozen bool) {
	w.freezes[actor] = append(w.freezes[actor], frozen)
	if a, ok := w.actors[actor]; ok {
		a.frozen = frozen
	}
}

func (w *fakeWorld) IsAlive(actor world.ActorID) bool {
	a, ok := w.actors[actor]
	return ok && a.alive
}

func (w *fakeWorld) DropItem(_ world.ActorID, kind world.ItemKind) { w.drops = append(w.drops, kind) }

func (w *fakeWorld) ActorPosition(actor world.ActorID) (world.Vec3, bool) {
	a, ok := w.actors[actor]
	if !ok {
		return world.Vec3{}, false
	}
	return a.pos, true
}

func (w *fakeWorld) UserPosition(userID string) (world.Vec3, bool) {
	p, ok := w.users[userID]
	return p, ok
}

type spoken struct {
	text   string
	source *companion.SpeechSource
}

type fakeSink struct {
	messages map[string][]string
	speech   map[string][]spoken

	// panicUser and panicText make SendMessage panic for a matching message.
	panicUser string
	panicText string
}

func newFakeSink() *fakeSink {
	return &fakeSink{messages: map[string][]string{}, speech: map[string][]spoken{}}
}

func (s *fakeSink) SendMessage(userID, text string) {
	if s.panicUser != "" && userID == s.panicUser && strings.Contains(text, s.panicText) {
		panic("presenter exploded for " + userID)
	}
	s.messages[userID] = append(s.messages[userID], text)
}

func (s *fakeSink) PlaySpeechAt(userID string, source *companion.SpeechSource, text string) {
	s.speech[userID] = append(s.speech[userID], spoken{text: text, source: source})
}

func (s *fakeSink) last(userID string) string {
	msgs := s.messages[userID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

type fakeText struct {
	mu       sync.Mutex
	enabled  bool
	calls    int
	inputs   []string
	history  [][]chat.Turn
	results  []generation.Result[string]
	panicMsg string
}

func (f *fakeText) Enabled() bool { return f.enabled }

func (f *fakeText) GenerateText(_ context.Context, history []chat.Turn, input string) generation.Result[string] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.inputs = append(f.inputs, input)
	f.history = append(f.history, history)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if len(f.results) == 0 {
		return generation.OK("reply to " + input)
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r
}

type fakeArtifacts struct {
	enabled bool
	calls   int
	result  generation.Result[generation.Artifact]
}

func (f *fakeArtifacts) Enabled() bool { return f.enabled }

func (f *fakeArtifacts) GenerateImage(_ context.Context, _ string) generation.Result[generation.Artifact] {
	f.calls++
	return f.result
}

func (f *fakeArtifacts) GenerateMusic(_ context.Context, _ string) generation.Result[generation.Artifact] {
	f.calls++
	return f.result
}

type fakeStudio struct {
	applied    int
	packaged   int
	applyErr   error
	discErr    error
	applyPanic string
	discPanic  string
}

func (f *fakeStudio) ApplyPainting(_ context.Context, _ generation.Artifact) error {
	f.applied++
	if f.applyPanic != "" {
		panic(f.applyPanic)
	}
	return f.applyErr
}

func (f *fakeStudio) PackageDisc(_ context.Context, art generation.Artifact) (generation.Artifact, error) {
	f.packaged++
	if f.discPanic != "" {
		panic(f.discPanic)
	}
	if f.discErr != nil {
		return generation.Artifact{}, f.discErr
	}
	return generation.Artifact{Path: art.Path + ".ogg", MIMEType: "audio/ogg"}, nil
}

var errNoFFmpeg = errors.New(`exec: "ffmpeg": executable file not found in $PATH`)
