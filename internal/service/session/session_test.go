package session_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/clanker/backend/internal/model/chat"
	"github.com/zhouzirui/clanker/backend/internal/service/session"
)

func TestHistoryEvictsOldestFirst(t *testing.T) {
	h := session.NewHistory(session.MaxTurns)
	for i := 0; i < 25; i++ {
		h.AppendUser(fmt.Sprintf("turn-%d", i))
		require.LessOrEqual(t, h.Len(), session.MaxTurns)
	}

	turns := h.Snapshot()
	require.Len(t, turns, session.MaxTurns)
	assert.Equal(t, "turn-5", turns[0].Text)
	assert.Equal(t, "turn-24", turns[len(turns)-1].Text)
}

func TestHistoryKeepsInsertionOrderAndRoles(t *testing.T) {
	h := session.NewHistory(3)
	h.AppendSystem("persona")
	h.AppendModel("hello")
	h.AppendUser("hi")
	h.AppendModel("what now")

	assert.Equal(t, []chat.Turn{
		chat.ModelTurn("hello"),
		chat.UserTurn("hi"),
		chat.ModelTurn("what now"),
	}, h.Snapshot())
}

func TestSnapshotIsACopy(t *testing.T) {
	h := session.NewHistory(4)
	h.AppendUser("a")
	snap := h.Snapshot()
	snap[0].Text = "mutated"
	assert.Equal(t, "a", h.Snapshot()[0].Text)
}

func TestAcquireIsSingleFlight(t *testing.T) {
	s := session.New("alice", "actor-1", 0)
	require.True(t, s.Acquire("task-1"))
	assert.False(t, s.Acquire("task-2"), "second acquire must be rejected while busy")
	assert.Equal(t, "task-1", s.PendingTask())

	assert.False(t, s.Release("task-2"), "stale task must not clear busy")
	assert.True(t, s.Busy())
	assert.True(t, s.Release("task-1"))
	assert.False(t, s.Release("task-1"), "busy is cleared exactly once")
	assert.False(t, s.Busy())
}

func TestRegistryCreateOrReplaceReturnsPrior(t *testing.T) {
	r := session.NewRegistry()
	first := session.New("alice", "actor-1", 0)
	_, replaced := r.CreateOrReplace(first)
	assert.False(t, replaced)

	second := session.New("alice", "actor-2", 5)
	prev, replaced := r.CreateOrReplace(second)
	require.True(t, replaced)
	assert.Same(t, first, prev)
	assert.Equal(t, 1, r.Len())
	assert.False(t, r.Current(first))
	assert.True(t, r.Current(second))

	assert.False(t, r.RemoveIf(first))
	assert.True(t, r.RemoveIf(second))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryRemoveMissing(t *testing.T) {
	r := session.NewRegistry()
	_, ok := r.Remove("nobody")
	assert.False(t, ok)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := session.NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i)
			for j := 0; j < 200; j++ {
				r.CreateOrReplace(session.New(user, "actor", int64(j)))
				for _, s := range r.Snapshot() {
					_ = s.UserID
				}
				if j%3 == 0 {
					r.Remove(user)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, r.Len(), 8)
}
