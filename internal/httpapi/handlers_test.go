package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/piste-live-backend/internal/bout"
	"github.com/DoyleJ11/piste-live-backend/internal/engine"
	"github.com/DoyleJ11/piste-live-backend/internal/hub"
	"github.com/DoyleJ11/piste-live-backend/internal/match"
	"github.com/DoyleJ11/piste-live-backend/internal/piste"
	"github.com/DoyleJ11/piste-live-backend/internal/tournament"
	api "github.com/DoyleJ11/piste-live-backend/pkg/types"
)

type client struct {
	t       *testing.T
	handler http.Handler
}

func newClient(t *testing.T) client {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := hub.NewHub(ctx, hub.Config{BoutRules: bout.DefaultRules(), Clock: clockwork.NewFakeClock()})
	return client{t: t, handler: SetupRoutes(Deps{Hub: h, Rules: engine.DefaultRules()})}
}

func (c client) do(method, path, role string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if role != "" {
		req.Header.Set(headerRole, role)
		req.Header.Set(headerActorID, role+"-1")
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[api.ErrorEnvelope](t, rec).Error.Code
}

func (c client) create(pistes int, ms ...api.MatchInput) string {
	c.t.Helper()
	rec := c.do(http.MethodPost, "/tournaments", "", api.CreateTournamentRequest{
		Stage:   api.StageView{Name: "pools", Pistes: pistes},
		Matches: ms,
	})
	require.Equal(c.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[api.CreateTournamentResponse](c.t, rec).Code
}

func intp(v int) *int { return &v }

func TestCreateTournamentAndReadViews(t *testing.T) {
	c := newClient(t)
	code := c.create(2,
		api.MatchInput{Red: "a", Green: "b", Group: intp(1)},
		api.MatchInput{Red: "c", Green: "d", Group: intp(1), Priority: 1},
	)

	rec := c.do(http.MethodGet, "/tournaments/"+code+"/pistes", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pistes := decodeBody[[]api.PisteView](t, rec)
	require.Len(t, pistes, 2)
	assert.Equal(t, string(piste.StatusFree), pistes[0].Status)

	rec = c.do(http.MethodGet, "/tournaments/"+code+"/matches?pending=true&group=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]api.MatchView](t, rec), 2)

	rec = c.do(http.MethodGet, "/tournaments/"+code+"/proposals", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	props := decodeBody[[]api.ProposalView](t, rec)
	require.Len(t, props, 2)
	assert.Equal(t, 2, props[0].MatchID, "high priority match is offered first")

	rec = c.do(http.MethodGet, "/tournaments/"+code+"/matches-left", "", nil)
	assert.Equal(t, 2, decodeBody[api.CountResponse](t, rec).Count)
}

func TestCreateTournamentValidation(t *testing.T) {
	c := newClient(t)

	rec := c.do(http.MethodPost, "/tournaments", "", api.CreateTournamentRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidRequest", errorCode(t, rec))

	rec = c.do(http.MethodPost, "/tournaments", "", api.CreateTournamentRequest{
		Stage:   api.StageView{Pistes: 1},
		Matches: []api.MatchInput{{Red: "a", Green: "a"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do(http.MethodPost, "/tournaments", "", api.CreateTournamentRequest{
		Stage:   api.StageView{Pistes: 1},
		Matches: []api.MatchInput{{Red: "a", Green: "b", Priority: 7}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidPriority", errorCode(t, rec))
}

func TestMatchLifecycleOverHTTP(t *testing.T) {
	c := newClient(t)
	code := c.create(1, api.MatchInput{Red: "a", Green: "b", Group: intp(1)})
	base := "/tournaments/" + code + "/matches/1"

	rec := c.do(http.MethodPost, base+"/set-active", "fencer", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden", errorCode(t, rec))

	rec = c.do(http.MethodPost, base+"/push-score", "referee", map[string]int{"red_score": 5, "green_score": 3})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "InvalidTransition", errorCode(t, rec))

	rec = c.do(http.MethodPost, base+"/set-active", "referee", api.SetActiveRequest{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[api.CommandResponse](t, rec)
	assert.Equal(t, []string{"MatchStarted"}, res.Events)
	assert.Equal(t, 1, res.Version)

	rec = c.do(http.MethodGet, base+"/bout", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	b := decodeBody[api.BoutSnapshot](t, rec)
	assert.Equal(t, 180, b.TimeRemaining)
	assert.True(t, b.Running)

	rec = c.do(http.MethodPost, base+"/bout/pause", "referee", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[api.BoutSnapshot](t, rec).Running)

	rec = c.do(http.MethodPost, base+"/bout/adjust", "referee", api.AdjustRequest{Delta: -500})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[api.BoutSnapshot](t, rec).TimeRemaining)

	rec = c.do(http.MethodPost, base+"/live-score", "referee", map[string]int{"red_score": 3, "green_score": 3})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = c.do(http.MethodPost, base+"/push-score", "referee", map[string]int{"red_score": 0, "green_score": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidScore", errorCode(t, rec))

	rec = c.do(http.MethodPost, base+"/push-score", "referee", map[string]int{"red_score": 4})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do(http.MethodPost, base+"/push-score", "referee", map[string]int{"red_score": 5, "green_score": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"MatchCompleted", "StandingsDirty"}, decodeBody[api.CommandResponse](t, rec).Events)

	rec = c.do(http.MethodPost, base+"/push-score", "referee", map[string]int{"red_score": 5, "green_score": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ScoreCorrected", "StandingsDirty"}, decodeBody[api.CommandResponse](t, rec).Events)

	rec = c.do(http.MethodPost, base+"/push-score", "referee", map[string]int{"red_score": 2, "green_score": 5})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "AlreadyComplete", errorCode(t, rec))

	rec = c.do(http.MethodPost, base+"/push-score", "master", map[string]int{"red_score": 2, "green_score": 5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ScoreCorrected", "StandingsDirty"}, decodeBody[api.CommandResponse](t, rec).Events)

	rec = c.do(http.MethodGet, base, "", nil)
	m := decodeBody[api.MatchView](t, rec)
	assert.Equal(t, string(match.StateComplete), m.State)
	assert.Equal(t, "b", m.Winner)

	rec = c.do(http.MethodGet, base+"/bout", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "BoutNotFound", errorCode(t, rec))
}

func TestAssignAndRemovePiste(t *testing.T) {
	c := newClient(t)
	code := c.create(3, api.MatchInput{Red: "a", Green: "b"}, api.MatchInput{Red: "c", Green: "d"})
	base := "/tournaments/" + code

	rec := c.do(http.MethodPost, base+"/matches/1/assign-piste", "referee", api.AssignPisteRequest{Piste: 3})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = c.do(http.MethodPost, base+"/matches/1/assign-piste", "master", api.AssignPisteRequest{Piste: 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	pistes := decodeBody[[]api.PisteView](t, c.do(http.MethodGet, base+"/pistes", "", nil))
	assert.Equal(t, string(piste.StatusStaged), pistes[2].Status)
	require.NotNil(t, pistes[2].Match)
	assert.Equal(t, 1, *pistes[2].Match)

	rec = c.do(http.MethodPost, base+"/matches/2/assign-piste", "master", api.AssignPisteRequest{Piste: 3})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "PisteConflict", errorCode(t, rec))

	rec = c.do(http.MethodPost, base+"/matches/2/assign-piste", "master", api.AssignPisteRequest{Piste: 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidPisteNumber", errorCode(t, rec))

	rec = c.do(http.MethodPost, base+"/pistes/3/toggle", "master", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "PisteBusy", errorCode(t, rec))

	rec = c.do(http.MethodPost, base+"/matches/1/remove-piste-assignment", "master", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pistes = decodeBody[[]api.PisteView](t, c.do(http.MethodGet, base+"/pistes", "", nil))
	assert.Equal(t, string(piste.StatusFree), pistes[2].Status)
	assert.Nil(t, pistes[2].Match)
}

func TestDisqualifyAndDelete(t *testing.T) {
	c := newClient(t)
	code := c.create(2,
		api.MatchInput{Red: "x", Green: "y", Group: intp(1)},
		api.MatchInput{Red: "x", Green: "z", Group: intp(1)},
	)
	base := "/tournaments/" + code

	rec := c.do(http.MethodPost, base+"/matches/1/set-active", "referee", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = c.do(http.MethodPost, base+"/fencers/nobody/disqualify", "master", api.DisqualifyRequest{Reason: "black card"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "FencerNotFound", errorCode(t, rec))

	rec = c.do(http.MethodPost, base+"/fencers/x/disqualify", "master", api.DisqualifyRequest{Reason: "black card"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	m1 := decodeBody[api.MatchView](t, c.do(http.MethodGet, base+"/matches/1", "", nil))
	assert.Equal(t, string(match.StateComplete), m1.State)
	assert.Equal(t, "y", m1.Winner)
	m2 := decodeBody[api.MatchView](t, c.do(http.MethodGet, base+"/matches/2", "", nil))
	assert.Equal(t, string(match.StateDisqualified), m2.State)
	assert.True(t, m2.Walkover)

	rec = c.do(http.MethodDelete, base, "referee", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = c.do(http.MethodDelete, base, "master", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = c.do(http.MethodGet, base+"/pistes", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "TournamentNotFound", errorCode(t, rec))
}

func TestBadParams(t *testing.T) {
	c := newClient(t)
	code := c.create(1, api.MatchInput{Red: "a", Green: "b"})

	rec := c.do(http.MethodGet, "/tournaments/"+code+"/matches/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = c.do(http.MethodGet, "/tournaments/"+code+"/matches/42", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "MatchNotFound", errorCode(t, rec))
	rec = c.do(http.MethodGet, "/tournaments/"+code+"/matches?round=x", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = c.do(http.MethodPost, "/tournaments/"+code+"/matches/1/prioritize", "master", map[string]int{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = c.do(http.MethodPost, "/tournaments/"+code+"/matches/1/bout/pause", "referee", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "BoutNotFound", errorCode(t, rec))
}

func TestRecovererWritesFatalEnvelope(t *testing.T) {
	h := recoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeBody[api.ErrorEnvelope](t, rec)
	assert.Equal(t, "Internal", env.Error.Code)
	assert.Contains(t, env.Error.Detail, "boom")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		code   string
		status int
	}{
		{fmt.Errorf("%w: %w", engine.ErrPisteConflict, piste.ErrAlreadyOccupied), "PisteConflict", http.StatusConflict},
		{fmt.Errorf("%w: %w", engine.ErrPisteConflict, piste.ErrPisteDisabled), "PisteConflict", http.StatusConflict},
		{fmt.Errorf("%w: x", tournament.ErrNoBout), "BoutNotFound", http.StatusNotFound},
		{tournament.ErrClosed, "Unavailable", http.StatusServiceUnavailable},
		{fmt.Errorf("%w: db down", tournament.ErrPersist), "Internal", http.StatusInternalServerError},
		{bout.ErrNotAdjustable, "NotAdjustable", http.StatusBadRequest},
	}
	for _, tc := range tests {
		k := classify(tc.err)
		assert.Equal(t, tc.code, k.code, tc.err.Error())
		assert.Equal(t, tc.status, k.status, tc.err.Error())
	}
}
