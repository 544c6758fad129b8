package companion

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/clanker/backend/internal/model/chat"
	"github.com/zhouzirui/clanker/backend/internal/service/dispatch"
	"github.com/zhouzirui/clanker/backend/internal/service/generation"
	"github.com/zhouzirui/clanker/backend/internal/service/session"
)

const (
	DefaultTickRate         = 20
	DefaultSearchRadius     = 256.0
	DefaultMoveSpeed        = 1.0
	DefaultArriveDistance   = 2.5
	DefaultPathRefreshTicks = 20
)

// ErrEngineStopped is returned by Query once the loop has exited.
var ErrEngineStopped = errors.New("engine stopped")

// Triggers are the case-insensitive command prefixes the router recognises.
type Triggers struct {
	CommandPrefix string `yaml:"command_prefix"`
	Start         string `yaml:"start"`
	End           string `yaml:"end"`
	Image         string `yaml:"image"`
	Music         string `yaml:"music"`
}

// DefaultTriggers returns the built-in command set.
func DefaultTriggers() Triggers {
	return Triggers{
		CommandPrefix: "/",
		Start:         "@clanker",
		End:           "@bye",
		Image:         "@makepainting",
		Music:         "@makemusic",
	}
}

func (t Triggers) normalize() Triggers {
	def := DefaultTriggers()
	pick := func(v, fallback string) string {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			return fallback
		}
		return v
	}
	return Triggers{
		// command prefix is matched verbatim, not lower-cased
		CommandPrefix: firstNonEmpty(t.CommandPrefix, def.CommandPrefix),
		Start:         pick(t.Start, def.Start),
		End:           pick(t.End, def.End),
		Image:         pick(t.Image, def.Image),
		Music:         pick(t.Music, def.Music),
	}
}

// Options tunes the engine.
type Options struct {
	TickRate         int
	SearchRadius     float64
	MoveSpeed        float64
	ArriveDistance   float64
	PathRefreshTicks int64

	// SystemPrompt seeds every new session's history when non-blank.
	SystemPrompt string

	Triggers Triggers
	Messages Messages
	Dispatch dispatch.Options
}

func (o Options) withDefaults() Options {
	if o.TickRate <= 0 {
		o.TickRate = DefaultTickRate
	}
	if o.SearchRadius <= 0 {
		o.SearchRadius = DefaultSearchRadius
	}
	if o.MoveSpeed <= 0 {
		o.MoveSpeed = DefaultMoveSpeed
	}
	if o.ArriveDistance <= 0 {
		o.ArriveDistance = DefaultArriveDistance
	}
	if o.PathRefreshTicks <= 0 {
		o.PathRefreshTicks = DefaultPathRefreshTicks
	}
	o.Triggers = o.Triggers.normalize()
	o.Messages = o.Messages.Merge(DefaultMessages())
	return o
}

// Deps are the collaborators the engine drives.
type Deps struct {
	Actors    ActorController
	Presenter Presenter
	Gateway   *generation.Gateway
	// Studio and Simulation are optional.
	Studio     Studio
	Simulation Simulation
}

// core is the state shared by the router, the tick driver and continuations.
type core struct {
	opts       Options
	logger     *zap.Logger
	registry   *session.Registry
	queue      *dispatch.Queue
	dispatcher *dispatch.Dispatcher
	gateway    *generation.Gateway
	actors     ActorController
	sink       Presenter
	studio     Studio
	tick       atomic.Int64
}

// Engine is the orchestrator context object. It owns the session registry, the
// main-thread queue and the worker pool, and runs the authoritative loop.
type Engine struct {
	*core

	router *Router
	driver *TickDriver
	sim    Simulation

	done chan struct{}
}

// New wires an engine. The gateway may be nil, in which case every capability
// is reported as not configured.
func New(deps Deps, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Gateway == nil {
		deps.Gateway = generation.NewGateway(nil, nil, nil, nil)
	}
	opts = opts.withDefaults()
	queue := dispatch.NewQueue()
	queue.OnPanic(func(r any) {
		logger.Error("continuation panicked", zap.Any("panic", r))
	})
	c := &core{
		opts:       opts,
		logger:     logger,
		registry:   session.NewRegistry(),
		queue:      queue,
		dispatcher: dispatch.New(opts.Dispatch, queue, logger),
		gateway:    deps.Gateway,
		actors:     deps.Actors,
		sink:       deps.Presenter,
		studio:     deps.Studio,
	}
	return &Engine{
		core:   c,
		router: &Router{core: c, log: logger.Named("router")},
		driver: &TickDriver{core: c, log: logger.Named("tick")},
		sim:    deps.Simulation,
		done:   make(chan struct{}),
	}
}

// Registry exposes the session registry for read-only inspection.
func (e *Engine) Registry() *session.Registry { return e.registry }

// Gateway returns the guarded generation gateway.
func (e *Engine) Gateway() *generation.Gateway { return e.gateway }

// CurrentTick returns the number of completed loop steps.
func (e *Engine) CurrentTick() int64 { return e.tick.Load() }

// Post schedules fn on the authoritative loop.
func (e *Engine) Post(fn func()) { e.queue.Post(fn) }

// HandleEvent schedules an inbound chat line for routing.
func (e *Engine) HandleEvent(userID, text string) {
	e.queue.Post(func() { e.router.Handle(userID, text) })
}

// Start launches the worker pool.
func (e *Engine) Start() { e.dispatcher.Start() }

// Close stops the worker pool. Continuations still queued are dropped.
func (e *Engine) Close() { e.dispatcher.Stop() }

// Step runs one loop iteration: advance the world, drain the main-thread queue,
// then drive navigation.
func (e *Engine) Step() {
	tick := e.tick.Add(1)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("loop step panicked", zap.Int64("tick", tick), zap.Any("panic", r))
		}
	}()
	if e.sim != nil {
		e.sim.Step(tick)
	}
	e.queue.Drain()
	e.driver.Tick(tick)
}

// Run drives Step at the configured tick rate until ctx is done. It must be
// called at most once.
func (e *Engine) Run(ctx context.Context) error {
	e.Start()
	defer e.Close()
	defer close(e.done)

	interval := time.Second / time.Duration(e.opts.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("authoritative loop started",
		zap.Int("tick_rate", e.opts.TickRate),
		zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("authoritative loop stopped", zap.Int64("tick", e.tick.Load()))
			return nil
		case <-ticker.C:
			e.Step()
		}
	}
}

// Query runs fn on the authoritative loop and waits for its result.
func Query[T any](ctx context.Context, e *Engine, fn func() T) (T, error) {
	out := make(chan T, 1)
	e.queue.Post(func() { out <- fn() })

	var zero T
	select {
	case v := <-out:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-e.done:
		return zero, ErrEngineStopped
	}
}

// Sessions returns a view of every live session ordered by user id.
func (e *Engine) Sessions(ctx context.Context, withTurns bool) ([]chat.SessionView, error) {
	return Query(ctx, e, func() []chat.SessionView {
		list := e.registry.Snapshot()
		views := make([]chat.SessionView, 0, len(list))
		for _, s := range list {
			views = append(views, s.View(withTurns))
		}
		sort.Slice(views, func(i, j int) bool { return views[i].UserID < views[j].UserID })
		return views
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
