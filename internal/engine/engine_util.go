package engine

import (
	"slices"

	"github.com/DoyleJ11/piste-live-backend/internal/match"
	"github.com/DoyleJ11/piste-live-backend/internal/piste"
)

func NewState(stage Stage, rules Rules) State {
	return State{
		Stage:      stage,
		Rules:      rules,
		Matches:    match.NewRegistry(),
		Pistes:     piste.NewPool(stage.Pistes),
		Ineligible: map[string]string{},
	}
}

func (s State) Clone() State {
	c := s
	c.Matches = s.Matches.Clone()
	c.Pistes = s.Pistes.Clone()
	c.Ineligible = make(map[string]string, len(s.Ineligible))
	for k, v := range s.Ineligible {
		c.Ineligible[k] = v
	}
	return c
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// Changes names the rows a batch of events touched.
type Changes struct {
	Matches []int
	Pistes  []int
	Fencers []string // newly ineligible
	Stage   bool
}

func (c Changes) Empty() bool {
	return len(c.Matches) == 0 && len(c.Pistes) == 0 && len(c.Fencers) == 0 && !c.Stage
}

// Touched collects what a batch of events changed, so callers persist only
// those rows.
func Touched(events []Event) Changes {
	var c Changes
	for _, e := range events {
		if e.MatchID != 0 {
			c.Matches = append(c.Matches, e.MatchID)
		}
		if e.Piste != 0 {
			c.Pistes = append(c.Pistes, e.Piste)
		}
		switch e.Type {
		case EvtStageChanged:
			c.Stage = true
		case EvtFencerDisqualified:
			c.Fencers = append(c.Fencers, e.Fencer)
		}
	}
	slices.Sort(c.Matches)
	slices.Sort(c.Pistes)
	c.Matches = slices.Compact(c.Matches)
	c.Pistes = slices.Compact(c.Pistes)
	return c
}

// Remaining counts matches that still have to be fenced or resolved.
func Remaining(s State) int { return s.Matches.Remaining() }
