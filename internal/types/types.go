package types

import (
	"slices"

	"github.com/DoyleJ11/piste-live-backend/internal/bout"
	"github.com/DoyleJ11/piste-live-backend/internal/engine"
	"github.com/DoyleJ11/piste-live-backend/internal/match"
	"github.com/DoyleJ11/piste-live-backend/internal/piste"
	"github.com/DoyleJ11/piste-live-backend/internal/schedule"
	"github.com/DoyleJ11/piste-live-backend/internal/tournament"
	api "github.com/DoyleJ11/piste-live-backend/pkg/types"
)

func Snapshot(s tournament.Snapshot) api.StateSnapshot {
	return api.StateSnapshot{
		Code:      s.Code,
		Version:   s.Version,
		Stage:     Stage(s.State.Stage),
		Remaining: engine.Remaining(s.State),
		Pistes:    Pistes(s.State.Pistes.Snapshot()),
		Matches:   Matches(slices.Collect(s.State.Matches.List(match.Filter{}))),
	}
}

func Stage(s engine.Stage) api.StageView {
	return api.StageView{Name: s.Name, Pistes: s.Pistes, EliminationThreshold: s.EliminationThreshold}
}

func ToStage(v api.StageView) engine.Stage {
	return engine.Stage{Name: v.Name, Pistes: v.Pistes, EliminationThreshold: v.EliminationThreshold}
}

func Match(m match.Match) api.MatchView {
	return api.MatchView{
		ID:             m.ID,
		Red:            m.Red,
		Green:          m.Green,
		Group:          m.Group,
		Round:          m.Round,
		Piste:          m.Piste,
		RedScore:       m.RedScore,
		GreenScore:     m.GreenScore,
		State:          string(m.State),
		Priority:       int(m.Priority),
		SuddenDeath:    m.SuddenDeath,
		PriorityHolder: string(m.PriorityHolder),
		Winner:         m.WinnerID(),
		Forfeited:      m.Forfeited,
		Reason:         m.Reason,
		Walkover:       m.Walkover,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
	}
}

func Matches(ms []match.Match) []api.MatchView {
	out := make([]api.MatchView, len(ms))
	for i, m := range ms {
		out[i] = Match(m)
	}
	return out
}

// ToMatches only checks priorities; the engine validates the rest.
func ToMatches(in []api.MatchInput) ([]match.Match, error) {
	out := make([]match.Match, len(in))
	for i, m := range in {
		p, err := match.ParsePriority(m.Priority)
		if err != nil {
			return nil, err
		}
		out[i] = match.Match{ID: m.ID, Red: m.Red, Green: m.Green, Group: m.Group, Round: m.Round, Priority: p}
	}
	return out, nil
}

func Pistes(ps []piste.Piste) []api.PisteView {
	out := make([]api.PisteView, len(ps))
	for i, p := range ps {
		out[i] = api.PisteView{Number: p.Number, Status: string(p.Status), Match: p.Match}
	}
	return out
}

func Proposals(ps []schedule.Proposal) []api.ProposalView {
	out := make([]api.ProposalView, len(ps))
	for i, p := range ps {
		out[i] = api.ProposalView{MatchID: p.MatchID, Piste: p.Piste, Ready: p.Ready}
	}
	return out
}

func Bout(s bout.Snapshot) api.BoutSnapshot {
	t := s.Timer
	return api.BoutSnapshot{
		MatchID:            s.MatchID,
		Version:            s.Version,
		Phase:              string(t.Phase),
		Period:             t.Period,
		TimeRemaining:      t.TimeRemaining,
		PassivityRemaining: t.PassivityRemaining,
		PassivityEnabled:   t.PassivityEnabled,
		Running:            t.Running,
		PausedForPassivity: t.PausedForPassivity,
	}
}

func EventNames(events []engine.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e.Type)
	}
	return out
}
