package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/DoyleJ11/piste-live-backend/internal/actor"
	"github.com/DoyleJ11/piste-live-backend/internal/engine"
	"github.com/DoyleJ11/piste-live-backend/internal/match"
	"github.com/DoyleJ11/piste-live-backend/internal/piste"
)

func seeded(t *testing.T) engine.State {
	t.Helper()
	s := engine.NewState(engine.Stage{Name: "pools", Pistes: 3}, engine.DefaultRules())
	_, err := s.Matches.Add(
		match.Match{ID: 4, Red: "a", Green: "b", Group: match.IntPtr(1), Round: match.IntPtr(1)},
		match.Match{ID: 2, Red: "c", Green: "d", Group: match.IntPtr(1), Round: match.IntPtr(1)},
		match.Match{ID: 9, Red: "a", Green: "c"},
	)
	require.NoError(t, err)
	return s
}

func apply(t *testing.T, s engine.State, cmd engine.Command) ([]engine.Event, engine.State) {
	t.Helper()
	cmd.Actor = actor.System
	cmd.At = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events, ns, err := engine.Apply(s, cmd)
	require.NoError(t, err)
	return events, ns
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	s := seeded(t)
	require.NoError(t, st.Create(ctx, "ABC123", s))

	events, s := apply(t, s, engine.Command{Type: engine.CmdSetActive, MatchID: 4})
	require.NoError(t, st.Commit(ctx, "ABC123", s, engine.Touched(events)))
	events, s = apply(t, s, engine.Command{Type: engine.CmdAssignPiste, MatchID: 2, Piste: 3})
	require.NoError(t, st.Commit(ctx, "ABC123", s, engine.Touched(events)))
	events, s = apply(t, s, engine.Command{Type: engine.CmdDisqualify, Fencer: "d", Reason: "no show"})
	require.NoError(t, st.Commit(ctx, "ABC123", s, engine.Touched(events)))

	loaded, err := st.Load(ctx)
	require.NoError(t, err)
	got, ok := loaded["ABC123"]
	require.True(t, ok)

	assert.Equal(t, s.Stage, got.Stage)
	assert.Equal(t, s.Rules, got.Rules)
	assert.Equal(t, s.Pistes.Snapshot(), got.Pistes.Snapshot())
	assert.Equal(t, map[string]string{"d": "no show"}, got.Ineligible)
	assert.Equal(t, slices.Collect(s.Matches.List(match.Filter{})), slices.Collect(got.Matches.List(match.Filter{})))

	m2, err := got.Matches.Get(2)
	require.NoError(t, err)
	assert.Equal(t, match.StateComplete, m2.State)
	p3, err := got.Pistes.Get(3)
	require.NoError(t, err)
	assert.Equal(t, piste.StatusFree, p3.Status)
}

func TestMemoryStore_FailNextCommit(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	s := seeded(t)
	require.NoError(t, st.Create(ctx, "X", s))

	boom := errors.New("disk full")
	st.FailNextCommit(boom)
	events, ns := apply(t, s, engine.Command{Type: engine.CmdSetActive, MatchID: 4})
	assert.ErrorIs(t, st.Commit(ctx, "X", ns, engine.Touched(events)), boom)

	loaded, err := st.Load(ctx)
	require.NoError(t, err)
	m, _ := loaded["X"].Matches.Get(4)
	assert.Equal(t, match.StateNotStarted, m.State)

	require.NoError(t, st.Commit(ctx, "X", ns, engine.Touched(events)))
}

func TestMemoryStore_CreateAndDelete(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.Create(ctx, "X", seeded(t)))
	assert.ErrorIs(t, st.Create(ctx, "X", seeded(t)), ErrConflict)

	require.NoError(t, st.Delete(ctx, "X"))
	assert.ErrorIs(t, st.Delete(ctx, "X"), ErrNotFound)
	assert.ErrorIs(t, st.Commit(ctx, "X", seeded(t), engine.Changes{Stage: true}), ErrNotFound)
}

func TestMapErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: ErrConflict},
		{name: "serialization", err: fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), want: ErrConflict},
		{name: "not found", err: gorm.ErrRecordNotFound, want: ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, mapErr(tc.err), tc.want)
		})
	}
	assert.NoError(t, mapErr(nil))

	other := &pgconn.PgError{Code: "22001"}
	assert.Same(t, other, mapErr(other))
}
