package hub

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/piste-live-backend/internal/actor"
	"github.com/DoyleJ11/piste-live-backend/internal/bout"
	"github.com/DoyleJ11/piste-live-backend/internal/engine"
	"github.com/DoyleJ11/piste-live-backend/internal/match"
	"github.com/DoyleJ11/piste-live-backend/internal/store"
	"github.com/DoyleJ11/piste-live-backend/internal/tournament"
)

func newState(t *testing.T) engine.State {
	t.Helper()
	s := engine.NewState(engine.Stage{Name: "pools", Pistes: 2}, engine.DefaultRules())
	_, err := s.Matches.Add(
		match.Match{Red: "a", Green: "b", Group: match.IntPtr(1)},
		match.Match{Red: "c", Green: "d", Group: match.IntPtr(1)},
	)
	require.NoError(t, err)
	return s
}

func newHub(t *testing.T, st store.Store) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, Config{Store: st, BoutRules: bout.DefaultRules(), Clock: clockwork.NewFakeClock()})
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := newHub(t, store.NewMemoryStore())
	ctx := context.Background()

	t1, err := h.Create(ctx, newState(t))
	require.NoError(t, err)
	assert.Len(t, t1.Code(), 6)

	t2, err := h.Get(ctx, t1.Code())
	require.NoError(t, err)
	if t1 != t2 {
		t.Fatalf("expected same tournament pointer")
	}
}

func TestHub_CreateDuplicateCode(t *testing.T) {
	h := newHub(t, store.NewMemoryStore())
	reply := make(chan Created, 1)

	h.Inbox() <- CreateTournament{Code: "ZED123", State: newState(t), Reply: reply}
	first := <-reply
	require.NoError(t, first.Err)

	h.Inbox() <- CreateTournament{Code: "ZED123", State: newState(t), Reply: reply}
	second := <-reply
	assert.ErrorIs(t, second.Err, ErrCodeTaken)
}

func TestHub_RemoveStopsTournamentAndDeletesRows(t *testing.T) {
	st := store.NewMemoryStore()
	h := newHub(t, st)
	ctx := context.Background()

	tr, err := h.Create(ctx, newState(t))
	require.NoError(t, err)

	require.NoError(t, h.Remove(ctx, tr.Code()))
	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("tournament still running after remove")
	}

	_, err = h.Get(ctx, tr.Code())
	assert.ErrorIs(t, err, ErrTournamentNotFound)
	states, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, states)

	assert.ErrorIs(t, h.Remove(ctx, tr.Code()), ErrTournamentNotFound)
}

func TestHub_RestoreAllBringsBackCommittedState(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	first := newHub(t, st)
	tr, err := first.Create(ctx, newState(t))
	require.NoError(t, err)
	_, err = tr.Do(ctx, engine.Command{Type: engine.CmdAssignPiste, Actor: actor.System, MatchID: 1, Piste: 2})
	require.NoError(t, err)

	first.Inbox() <- ShutdownHub{}
	<-first.Done()

	second := newHub(t, st)
	require.NoError(t, second.RestoreAll(ctx))
	back, err := second.Get(ctx, tr.Code())
	require.NoError(t, err)

	m, err := back.Snapshot().State.Matches.Get(1)
	require.NoError(t, err)
	assert.Equal(t, match.StateStaged, m.State)
	require.NotNil(t, m.Piste)
	assert.Equal(t, 2, *m.Piste)
}

func TestHub_ShutdownStopsEverything(t *testing.T) {
	h := newHub(t, store.NewMemoryStore())
	ctx := context.Background()
	tr, err := h.Create(ctx, newState(t))
	require.NoError(t, err)

	h.Inbox() <- ShutdownHub{}
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	<-tr.Done()

	_, err = h.Get(ctx, "ANY")
	assert.ErrorIs(t, err, ErrHubClosed)
	_, err = tr.Do(ctx, engine.Command{Type: engine.CmdTogglePiste, Actor: actor.System, Piste: 1})
	assert.ErrorIs(t, err, tournament.ErrClosed)
}

func TestGenerateCode(t *testing.T) {
	seen := map[string]bool{}
	for range 50 {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[A-Z0-9]{6}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}
