package piste

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Assign(t *testing.T) {
	cases := []struct {
		name    string
		setup   func(p *Pool)
		number  int
		match   int
		red     string
		green   string
		stage   bool
		wantErr error
	}{
		{name: "free piste", number: 1, match: 1, red: "a", green: "b"},
		{name: "stage free piste", number: 2, match: 1, red: "a", green: "b", stage: true},
		{name: "out of range", number: 9, match: 1, red: "a", green: "b", wantErr: ErrInvalidPisteNumber},
		{name: "zero", number: 0, match: 1, red: "a", green: "b", wantErr: ErrInvalidPisteNumber},
		{
			name:    "occupied by another match",
			setup:   func(p *Pool) { _, _ = p.Assign(1, 7, "x", "y", false) },
			number:  1, match: 1, red: "a", green: "b",
			wantErr: ErrAlreadyOccupied,
		},
		{
			name:    "staged for another match",
			setup:   func(p *Pool) { _, _ = p.Assign(1, 7, "x", "y", true) },
			number:  1, match: 1, red: "a", green: "b",
			wantErr: ErrAlreadyOccupied,
		},
		{
			name:   "promote own staged piste",
			setup:  func(p *Pool) { _, _ = p.Assign(1, 1, "a", "b", true) },
			number: 1, match: 1, red: "a", green: "b",
		},
		{
			name:    "disabled",
			setup:   func(p *Pool) { _, _ = p.ToggleDisabled(1) },
			number:  1, match: 1, red: "a", green: "b",
			wantErr: ErrPisteDisabled,
		},
		{
			name:    "fencer busy elsewhere",
			setup:   func(p *Pool) { _, _ = p.Assign(2, 7, "a", "z", false) },
			number:  1, match: 1, red: "a", green: "b",
			wantErr: ErrMatchAlreadyAssigned,
		},
		{
			name:    "match already on another piste",
			setup:   func(p *Pool) { _, _ = p.Assign(2, 1, "a", "b", true) },
			number:  1, match: 1, red: "a", green: "b",
			wantErr: ErrMatchAlreadyAssigned,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPool(3)
			if tc.setup != nil {
				tc.setup(p)
			}
			before := p.Snapshot()
			got, err := p.Assign(tc.number, tc.match, tc.red, tc.green, tc.stage)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				assert.Equal(t, before, p.Snapshot(), "failed assign must not mutate the pool")
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got.Match)
			assert.Equal(t, tc.match, *got.Match)
			if tc.stage {
				assert.Equal(t, StatusStaged, got.Status)
			} else {
				assert.Equal(t, StatusOccupied, got.Status)
			}
		})
	}
}

func TestPool_ReleaseAndFree(t *testing.T) {
	p := NewPool(3)
	_, err := p.Assign(3, 5, "a", "b", true)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, p.Free())
	assert.Equal(t, map[string]int{"a": 3, "b": 3}, p.BusyFencers())

	ps, err := p.Release(3)
	require.NoError(t, err)
	assert.Equal(t, StatusFree, ps.Status)
	assert.Nil(t, ps.Match)
	assert.Equal(t, []int{1, 2, 3}, p.Free())
}

func TestPool_ToggleDisabled(t *testing.T) {
	p := NewPool(2)

	ps, err := p.ToggleDisabled(1)
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, ps.Status)
	assert.Equal(t, []int{2}, p.Free())

	ps, err = p.ToggleDisabled(1)
	require.NoError(t, err)
	assert.Equal(t, StatusFree, ps.Status)

	_, err = p.Assign(2, 1, "a", "b", false)
	require.NoError(t, err)
	_, err = p.ToggleDisabled(2)
	assert.ErrorIs(t, err, ErrPisteBusy)
}

func TestPool_Snapshot_IsACopy(t *testing.T) {
	p := NewPool(1)
	_, err := p.Assign(1, 4, "a", "b", false)
	require.NoError(t, err)

	snap := p.Snapshot()
	*snap[0].Match = 99
	snap[0].Status = StatusFree

	got, _ := p.Get(1)
	assert.Equal(t, 4, *got.Match)
	assert.Equal(t, StatusOccupied, got.Status)
}

func TestRestore(t *testing.T) {
	m := 2
	p := Restore([]Piste{
		{Number: 1, Status: StatusFree},
		{Number: 2, Status: StatusOccupied, Match: &m, Fencers: [2]string{"a", "b"}},
	})
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, []int{1}, p.Free())
}
