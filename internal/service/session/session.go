package session

import (
	"github.com/zhouzirui/clanker/backend/internal/model/chat"
	"github.com/zhouzirui/clanker/backend/internal/model/world"
)

// MaxTurns bounds the conversation history of a session.
const MaxTurns = 20

// NavState is the navigation sub-state of a session's actor.
type NavState int

const (
	// Seeking: the actor is walking towards the user.
	Seeking NavState = iota
	// Arrived: the actor is frozen and faces the user until the session ends.
	Arrived
)

func (s NavState) String() string {
	switch s {
	case Seeking:
		return "SEEKING"
	case Arrived:
		return "ARRIVED"
	default:
		return "UNKNOWN"
	}
}

// Session is the per-user conversation and navigation state bound to one actor.
//
// Fields other than UserID and ActorID are owned by the authoritative loop; nothing
// running on a worker goroutine may touch them.
type Session struct {
	UserID  string
	ActorID world.ActorID

	History *History
	Nav     NavState

	// LastPathIssuedTick is the loop tick at which Seek was last issued.
	LastPathIssuedTick int64

	busy        bool
	pendingTask string
}

// New creates a session in the Seeking state.
func New(userID string, actor world.ActorID, tick int64) *Session {
	return &Session{
		UserID:             userID,
		ActorID:            actor,
		History:            NewHistory(MaxTurns),
		Nav:                Seeking,
		LastPathIssuedTick: tick,
	}
}

// Busy reports whether a generation task is outstanding.
func (s *Session) Busy() bool { return s.busy }

// PendingTask returns the id of the outstanding task, or "" when idle.
func (s *Session) PendingTask() string { return s.pendingTask }

// Acquire marks the session busy with the given task. It returns false if another
// task is already outstanding.
func (s *Session) Acquire(taskID string) bool {
	if s.busy {
		return false
	}
	s.busy = true
	s.pendingTask = taskID
	return true
}

// Release clears the busy flag if taskID is the outstanding task. It returns false
// for stale or duplicate releases so that busy is cleared exactly once per task.
func (s *Session) Release(taskID string) bool {
	if !s.busy || s.pendingTask != taskID {
		return false
	}
	s.busy = false
	s.pendingTask = ""
	return true
}

// View returns a copy of the session for read-only consumers.
func (s *Session) View(withTurns bool) chat.SessionView {
	v := chat.SessionView{
		UserID:      s.UserID,
		ActorID:     string(s.ActorID),
		NavState:    s.Nav.String(),
		Busy:        s.busy,
		HistorySize: s.History.Len(),
	}
	if withTurns {
		v.Turns = s.History.Snapshot()
	}
	return v
}
