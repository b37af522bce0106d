package schedule

import (
	"slices"

	"github.com/DoyleJ11/piste-live-backend/internal/match"
	"github.com/DoyleJ11/piste-live-backend/internal/piste"
)

// Proposal offers a piste to a match. Ready proposals are matches already
// staged on their piste and waiting only for the referee.
type Proposal struct {
	MatchID int
	Piste   int
	Ready   bool
}

// Propose computes which pending matches should go to which pistes next.
// pending must be in bracket order (as returned by Registry.ListPending).
// Nothing is mutated; the result is advisory.
func Propose(pending []match.Match, pistes []piste.Piste) []Proposal {
	var out []Proposal
	busy := make(map[string]bool)
	var free []int

	for _, ps := range pistes {
		switch ps.Status {
		case piste.StatusFree:
			free = append(free, ps.Number)
		case piste.StatusStaged, piste.StatusOccupied:
			for _, f := range ps.Fencers {
				if f != "" {
					busy[f] = true
				}
			}
		}
	}
	slices.Sort(free)

	for _, m := range pending {
		if m.State != match.StateStaged || m.Piste == nil {
			continue
		}
		if stagedFor(pistes, *m.Piste, m.ID) {
			out = append(out, Proposal{MatchID: m.ID, Piste: *m.Piste, Ready: true})
		}
	}

	candidates := make([]match.Match, 0, len(pending))
	for _, m := range pending {
		if m.State == match.StateNotStarted {
			candidates = append(candidates, m)
		}
	}
	slices.SortStableFunc(candidates, func(a, b match.Match) int {
		return int(b.Priority) - int(a.Priority)
	})

	for _, m := range candidates {
		if len(free) == 0 {
			break
		}
		if busy[m.Red] || busy[m.Green] {
			continue
		}
		out = append(out, Proposal{MatchID: m.ID, Piste: free[0]})
		free = free[1:]
		busy[m.Red] = true
		busy[m.Green] = true
	}
	return out
}

// For returns the proposal for one match, if any.
func For(proposals []Proposal, matchID int) (Proposal, bool) {
	for _, p := range proposals {
		if p.MatchID == matchID {
			return p, true
		}
	}
	return Proposal{}, false
}

func stagedFor(pistes []piste.Piste, number, matchID int) bool {
	for _, ps := range pistes {
		if ps.Number == number {
			return ps.Status == piste.StatusStaged && ps.Match != nil && *ps.Match == matchID
		}
	}
	return false
}
