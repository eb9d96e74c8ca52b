package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddlab/luckchain/core"
	"github.com/ddlab/luckchain/events"
	"github.com/ddlab/luckchain/indexer"
	"github.com/ddlab/luckchain/internal/testutil"
)

func newTestServer(t *testing.T) (*Server, core.State) {
	t.Helper()
	state := testutil.NewStateDB()
	require.NoError(t, state.SetLotteryConfig(&core.LotteryConfig{
		Admin:      "admin",
		FeeRateBps: 1000,
		MinBet:     1,
		MaxBet:     100,
		BetDenom:   "luck",
	}))
	bc := core.NewBlockchain(testutil.NewMemBlockStore())
	require.NoError(t, bc.Init())
	idx := indexer.New(testutil.NewMemDB(), events.NewEmitter())
	return New(":0", bc, state, idx), state
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestPhaseEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/api/v1/phase")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Phase  core.Phase `json:"phase"`
		Height int64      `json:"height"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, core.PhaseCommitment, body.Phase)
	assert.Equal(t, int64(1), body.Height) // next block on a fresh chain
}

func TestConfigEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/api/v1/config")
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg core.LotteryConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, uint64(1000), cfg.FeeRateBps)
	assert.Equal(t, "luck", cfg.BetDenom)
}

func TestSessionEndpoints(t *testing.T) {
	s, state := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/session").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/participants/alice").Code)

	// Participants of a missing session are an empty list, not an error.
	rec := get(t, s, "/api/v1/participants")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	require.NoError(t, state.SetCurrentSession(&core.Session{
		ID:    "session_5",
		Phase: core.PhaseCommitment,
		Participants: []core.Participant{
			{Address: "alice", BetAmount: 2},
		},
	}))

	rec = get(t, s, "/api/v1/session")
	require.Equal(t, http.StatusOK, rec.Code)
	var sess core.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Equal(t, "session_5", sess.ID)

	assert.Equal(t, http.StatusOK, get(t, s, "/api/v1/participants/alice").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/participants/bob").Code)
}

func TestResultEndpoints(t *testing.T) {
	s, state := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/results/session_1").Code)

	require.NoError(t, state.SetResult(&core.LotteryResult{
		SessionID:     "session_1",
		WinningNumber: 42,
	}))
	rec := get(t, s, "/api/v1/results/session_1")
	require.Equal(t, http.StatusOK, rec.Code)
	var result core.LotteryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, uint16(42), result.WinningNumber)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/results?limit=abc").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/api/v1/results?limit=5").Code)
}

func TestStatsAndVersion(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, s, "/api/v1/version")
	require.Equal(t, http.StatusOK, rec.Code)
	var v map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, core.BuildName, v["name"])
}
