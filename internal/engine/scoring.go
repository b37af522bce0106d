package engine

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/piste-live-backend/internal/match"
)

var ErrInvalidScore = errors.New("invalid score")

// ValidateResult checks a final score. Ties are only legal once a sudden-death
// priority holder decides the bout.
func ValidateResult(r Rules, red, green int, suddenDeath bool) error {
	if err := validateRange(r, red, green); err != nil {
		return err
	}
	if red == 0 && green == 0 {
		return fmt.Errorf("%w: 0:0 is not a result", ErrInvalidScore)
	}
	if red == green && !suddenDeath {
		return fmt.Errorf("%w: scores must differ", ErrInvalidScore)
	}
	return nil
}

func validateRange(r Rules, red, green int) error {
	if red < 0 || green < 0 || red > r.MaxScore || green > r.MaxScore {
		return fmt.Errorf("%w: scores must be within 0..%d", ErrInvalidScore, r.MaxScore)
	}
	return nil
}

func resultEvents(s *State, m match.Match, first EventType) []Event {
	events := []Event{
		{Type: first, MatchID: m.ID, RedScore: m.RedScore, GreenScore: m.GreenScore, Reason: m.Reason},
		{Type: EvtStandingsDirty, MatchID: m.ID, Stage: s.Stage.Name},
	}
	if m.Elimination() {
		events = append(events, Event{Type: EvtTableauDirty, MatchID: m.ID, Stage: s.Stage.Name})
	}
	if first == EvtMatchCompleted && m.Piste != nil {
		events[0].Piste = *m.Piste
	}
	return events
}

func pushScore(s *State, cmd Command) ([]Event, error) {
	m, err := s.Matches.Get(cmd.MatchID)
	if err != nil {
		return nil, err
	}

	switch m.State {
	case match.StateOngoing:
		if err := ValidateResult(s.Rules, cmd.Red, cmd.Green, m.SuddenDeath); err != nil {
			return nil, err
		}
		if err := s.Matches.SetScores(m.ID, cmd.Red, cmd.Green); err != nil {
			return nil, err
		}
		done, err := s.Matches.Transition(m.ID, match.StateComplete, cmd.At)
		if err != nil {
			return nil, err
		}
		if done.Piste != nil {
			if _, err := s.Pistes.Release(*done.Piste); err != nil {
				return nil, err
			}
		}
		return resultEvents(s, done, EvtMatchCompleted), nil

	case match.StateComplete:
		// Resubmitting the recorded result re-announces it.
		if cmd.Red == m.RedScore && cmd.Green == m.GreenScore {
			return resultEvents(s, m, EvtScoreCorrected), nil
		}
		// Only the tournament master may overwrite a recorded result.
		if cmd.Actor.Administer() != nil {
			return nil, fmt.Errorf("%w: match %d", match.ErrAlreadyComplete, m.ID)
		}
		if err := ValidateResult(s.Rules, cmd.Red, cmd.Green, m.SuddenDeath); err != nil {
			return nil, err
		}
		fixed, err := s.Matches.Correct(m.ID, cmd.Red, cmd.Green)
		if err != nil {
			return nil, err
		}
		return resultEvents(s, fixed, EvtScoreCorrected), nil

	case match.StateDisqualified:
		return nil, fmt.Errorf("%w: match %d was forfeited", match.ErrAlreadyComplete, m.ID)

	default:
		return nil, fmt.Errorf("%w: match %d is %s", match.ErrInvalidTransition, m.ID, m.State)
	}
}

func liveScore(s *State, cmd Command) ([]Event, error) {
	m, err := s.Matches.Get(cmd.MatchID)
	if err != nil {
		return nil, err
	}
	if m.State != match.StateOngoing {
		return nil, fmt.Errorf("%w: live scoring needs an ongoing match, got %s", match.ErrInvalidTransition, m.State)
	}
	if err := validateRange(s.Rules, cmd.Red, cmd.Green); err != nil {
		return nil, err
	}
	if m.RedScore == cmd.Red && m.GreenScore == cmd.Green {
		return nil, nil
	}
	if err := s.Matches.SetScores(m.ID, cmd.Red, cmd.Green); err != nil {
		return nil, err
	}
	return []Event{{Type: EvtScoreChanged, MatchID: m.ID, RedScore: cmd.Red, GreenScore: cmd.Green}}, nil
}

func suddenDeath(s *State, cmd Command) ([]Event, error) {
	side, ok := match.ParseSide(cmd.Side)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSide, cmd.Side)
	}
	m, err := s.Matches.Get(cmd.MatchID)
	if err != nil {
		return nil, err
	}
	if m.State != match.StateOngoing {
		return nil, fmt.Errorf("%w: sudden death needs an ongoing match, got %s", match.ErrInvalidTransition, m.State)
	}
	if m.RedScore != m.GreenScore {
		return nil, fmt.Errorf("%w: sudden death needs a tie, score is %d:%d", ErrInvalidScore, m.RedScore, m.GreenScore)
	}
	if !cmd.RegulationOver {
		return nil, fmt.Errorf("%w: sudden death only after regulation time", match.ErrInvalidTransition)
	}
	if err := s.Matches.MarkSuddenDeath(m.ID, side); err != nil {
		return nil, err
	}
	return []Event{{Type: EvtSuddenDeath, MatchID: m.ID, Fencer: string(side)}}, nil
}

func resetBout(s *State, cmd Command) ([]Event, error) {
	if err := s.Matches.ResetLive(cmd.MatchID); err != nil {
		return nil, err
	}
	return []Event{{Type: EvtBoutReset, MatchID: cmd.MatchID}}, nil
}

// disqualify forfeits every unfinished match of a fencer. Bouts already on a
// piste are completed in the opponent's favour; the rest become walkovers
// for the bracket to resolve.
func disqualify(s *State, cmd Command) ([]Event, error) {
	if cmd.Fencer == "" || !s.Matches.Fencers()[cmd.Fencer] {
		return nil, fmt.Errorf("%w: %q", ErrFencerNotFound, cmd.Fencer)
	}

	var events []Event
	for m := range s.Matches.List(match.Filter{}) {
		if !m.Involves(cmd.Fencer) || m.Complete() {
			continue
		}
		onPiste := m.State == match.StateOngoing || m.State == match.StateStaged
		done, err := s.Matches.Forfeit(m.ID, cmd.Fencer, cmd.Reason, s.Rules.ForfeitScore, cmd.At)
		if err != nil {
			return nil, err
		}
		if onPiste {
			if done.Piste != nil {
				if _, err := s.Pistes.Release(*done.Piste); err != nil {
					return nil, err
				}
			}
			events = append(events, resultEvents(s, done, EvtMatchCompleted)...)
			continue
		}
		events = append(events, Event{Type: EvtWalkoverRequired, MatchID: done.ID, Fencer: cmd.Fencer, Reason: cmd.Reason})
	}

	s.Ineligible[cmd.Fencer] = cmd.Reason
	events = append(events, Event{Type: EvtFencerDisqualified, Fencer: cmd.Fencer, Reason: cmd.Reason})
	return events, nil
}
