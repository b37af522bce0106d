package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DoyleJ11/piste-live-backend/internal/match"
	"github.com/DoyleJ11/piste-live-backend/internal/piste"
)

func pending(ms ...match.Match) []match.Match {
	for i := range ms {
		if ms[i].State == "" {
			ms[i].State = match.StateNotStarted
		}
	}
	return ms
}

func TestPropose_HighPriorityJumpsQueue(t *testing.T) {
	ms := pending(
		match.Match{ID: 1, Red: "a1", Green: "a2"},
		match.Match{ID: 2, Red: "b1", Green: "b2", Priority: match.PriorityHigh},
		match.Match{ID: 3, Red: "c1", Green: "c2"},
	)
	got := Propose(ms, piste.NewPool(1).Snapshot())
	assert.Equal(t, []Proposal{{MatchID: 2, Piste: 1}}, got)
}

func TestPropose_LowPriorityGoesLast(t *testing.T) {
	ms := pending(
		match.Match{ID: 1, Red: "a1", Green: "a2", Priority: match.PriorityLow},
		match.Match{ID: 2, Red: "b1", Green: "b2"},
		match.Match{ID: 3, Red: "c1", Green: "c2"},
	)
	got := Propose(ms, piste.NewPool(3).Snapshot())
	assert.Equal(t, []Proposal{
		{MatchID: 2, Piste: 1},
		{MatchID: 3, Piste: 2},
		{MatchID: 1, Piste: 3},
	}, got)
}

func TestPropose_SkipsBusyFencers(t *testing.T) {
	pool := piste.NewPool(3)
	_, _ = pool.Assign(1, 9, "a1", "z", false)

	ms := pending(
		match.Match{ID: 1, Red: "a1", Green: "a2"},
		match.Match{ID: 2, Red: "b1", Green: "a2"},
		match.Match{ID: 3, Red: "b1", Green: "c2"},
		match.Match{ID: 4, Red: "d1", Green: "d2"},
	)
	got := Propose(ms, pool.Snapshot())
	// match 1 has a busy fencer, match 3 shares b1 with match 2
	assert.Equal(t, []Proposal{
		{MatchID: 2, Piste: 2},
		{MatchID: 4, Piste: 3},
	}, got)
}

func TestPropose_StagedMatchesAreReadyOnTheirOwnPiste(t *testing.T) {
	pool := piste.NewPool(2)
	_, _ = pool.Assign(2, 5, "s1", "s2", true)
	_, _ = pool.ToggleDisabled(1)

	ms := pending(
		match.Match{ID: 1, Red: "a1", Green: "a2", Priority: match.PriorityHigh},
		match.Match{ID: 5, Red: "s1", Green: "s2", State: match.StateStaged, Piste: match.IntPtr(2)},
	)
	got := Propose(ms, pool.Snapshot())
	assert.Equal(t, []Proposal{{MatchID: 5, Piste: 2, Ready: true}}, got)

	p, ok := For(got, 5)
	assert.True(t, ok)
	assert.True(t, p.Ready)
	_, ok = For(got, 1)
	assert.False(t, ok)
}

func TestPropose_NoFreePistes(t *testing.T) {
	pool := piste.NewPool(1)
	_, _ = pool.Assign(1, 9, "x", "y", false)
	got := Propose(pending(match.Match{ID: 1, Red: "a", Green: "b"}), pool.Snapshot())
	assert.Empty(t, got)
}
