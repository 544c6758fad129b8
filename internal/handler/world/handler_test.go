package world

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/clanker/backend/internal/model/world"
	worldsvc "github.com/zhouzirui/clanker/backend/internal/service/world"
)

func setupRouter() (*chi.Mux, *worldsvc.Sim) {
	sim := worldsvc.NewSim(nil)
	r := chi.NewRouter()
	New(sim).RegisterRoutes(r)
	return r, sim
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestPutUserPosition(t *testing.T) {
	r, sim := setupRouter()

	resp := do(r, http.MethodPut, "/world/users/alice", `{"x":1,"y":64,"z":-3}`)
	require.Equal(t, http.StatusOK, resp.Code)

	pos, ok := sim.UserPosition("alice")
	require.True(t, ok)
	assert.Equal(t, model.Vec3{X: 1, Y: 64, Z: -3}, pos)

	resp = do(r, http.MethodDelete, "/world/users/alice", "")
	assert.Equal(t, http.StatusNoContent, resp.Code)
	_, ok = sim.UserPosition("alice")
	assert.False(t, ok)
}

func TestPutUserRejectsBadBody(t *testing.T) {
	r, _ := setupRouter()
	resp := do(r, http.MethodPut, "/world/users/alice", `{"x":"left"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSpawnAndKillActor(t *testing.T) {
	r, sim := setupRouter()

	resp := do(r, http.MethodPost, "/world/actors", `{"position":{"x":10,"y":0,"z":0}}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	assert.True(t, sim.IsAlive(model.ActorID(created.ID)))

	resp = do(r, http.MethodDelete, "/world/actors/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.False(t, sim.IsAlive(model.ActorID(created.ID)))

	resp = do(r, http.MethodDelete, "/world/actors/missing?despawn=true", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSnapshot(t *testing.T) {
	r, sim := setupRouter()
	sim.Spawn(model.Vec3{})

	resp := do(r, http.MethodGet, "/world/", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Actors []worldsvc.Actor `json:"actors"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Len(t, body.Actors, 1)
}
