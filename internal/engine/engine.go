package engine

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/DoyleJ11/piste-live-backend/internal/actor"
	"github.com/DoyleJ11/piste-live-backend/internal/match"
	"github.com/DoyleJ11/piste-live-backend/internal/piste"
	"github.com/DoyleJ11/piste-live-backend/internal/schedule"
)

var ErrPisteConflict = errors.New("piste conflict")
var ErrFencerNotFound = errors.New("fencer not found")
var ErrInvalidMatch = errors.New("invalid match")
var ErrInvalidStage = errors.New("invalid stage")
var ErrInvalidSide = errors.New("invalid side")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Stage struct {
	Name                 string
	Pistes               int
	EliminationThreshold int
}

type Rules struct {
	MaxScore           int
	ForfeitScore       int
	SuddenDeathSeconds int
}

func DefaultRules() Rules {
	return Rules{MaxScore: 15, ForfeitScore: 5, SuddenDeathSeconds: 60}
}

// State is everything one tournament stage needs to schedule and score
// matches. Apply never mutates the State it is given.
type State struct {
	Stage      Stage
	Rules      Rules
	Matches    *match.Registry
	Pistes     *piste.Pool
	Ineligible map[string]string // fencer -> disqualification reason
}

type CommandType string

const (
	CmdSetActive             CommandType = "SetActive"
	CmdPushScore             CommandType = "PushScore"
	CmdAssignPiste           CommandType = "AssignPiste"
	CmdRemovePisteAssignment CommandType = "RemovePisteAssignment"
	CmdPrioritize            CommandType = "Prioritize"
	CmdTogglePiste           CommandType = "TogglePiste"
	CmdDisqualify            CommandType = "Disqualify"
	CmdLiveScore             CommandType = "LiveScore"
	CmdSuddenDeath           CommandType = "SuddenDeath"
	CmdResetBout             CommandType = "ResetBout"
	CmdAddMatches            CommandType = "AddMatches"
	CmdSetStage              CommandType = "SetStage"
)

/*
	CmdSetActive             -> EvtMatchStarted
	CmdPushScore (ongoing)   -> EvtMatchCompleted -> EvtStandingsDirty (-> EvtTableauDirty)
	CmdPushScore (complete)  -> EvtScoreCorrected -> EvtStandingsDirty (-> EvtTableauDirty)
	CmdAssignPiste           -> EvtMatchStaged
	CmdRemovePisteAssignment -> EvtMatchUnstaged
	CmdDisqualify            -> EvtMatchCompleted / EvtWalkoverRequired per match -> EvtFencerDisqualified
	CmdLiveScore             -> EvtScoreChanged
	CmdSuddenDeath           -> EvtSuddenDeath
	CmdResetBout             -> EvtBoutReset
*/

type Command struct {
	Type     CommandType
	Actor    actor.Actor
	At       time.Time
	MatchID  int
	Piste    int
	Override bool
	Red      int
	Green    int
	Priority int
	Side     string
	Fencer   string
	// RegulationOver is set by the owner of the bout timer once every
	// regulation period has run out.
	RegulationOver bool
	Reason   string
	Matches  []match.Match
	Stage    Stage
}

type EventType string

const (
	EvtMatchStarted       EventType = "MatchStarted"
	EvtMatchCompleted     EventType = "MatchCompleted"
	EvtScoreCorrected     EventType = "ScoreCorrected"
	EvtScoreChanged       EventType = "ScoreChanged"
	EvtMatchStaged        EventType = "MatchStaged"
	EvtMatchUnstaged      EventType = "MatchUnstaged"
	EvtPriorityChanged    EventType = "PriorityChanged"
	EvtPisteToggled       EventType = "PisteToggled"
	EvtFencerDisqualified EventType = "FencerDisqualified"
	EvtWalkoverRequired   EventType = "WalkoverRequired"
	EvtStandingsDirty     EventType = "StandingsDirty"
	EvtTableauDirty       EventType = "TableauDirty"
	EvtSuddenDeath        EventType = "SuddenDeath"
	EvtBoutReset          EventType = "BoutReset"
	EvtMatchAdded         EventType = "MatchAdded"
	EvtStageChanged       EventType = "StageChanged"
)

type Event struct {
	Type       EventType
	MatchID    int
	Piste      int
	Fencer     string
	Reason     string
	RedScore   int
	GreenScore int
	Stage      string // on StandingsDirty and TableauDirty
}

func Apply(s State, cmd Command) ([]Event, State, error) {
	if err := authorize(cmd); err != nil {
		return nil, s, err
	}
	if cmd.At.IsZero() {
		cmd.At = time.Now().UTC()
	}

	ns := s.Clone()
	var events []Event
	var err error

	switch cmd.Type {
	case CmdSetActive:
		events, err = setActive(&ns, cmd)
	case CmdPushScore:
		events, err = pushScore(&ns, cmd)
	case CmdAssignPiste:
		events, err = assignPiste(&ns, cmd)
	case CmdRemovePisteAssignment:
		events, err = removePisteAssignment(&ns, cmd)
	case CmdPrioritize:
		events, err = prioritize(&ns, cmd)
	case CmdTogglePiste:
		events, err = togglePiste(&ns, cmd)
	case CmdDisqualify:
		events, err = disqualify(&ns, cmd)
	case CmdLiveScore:
		events, err = liveScore(&ns, cmd)
	case CmdSuddenDeath:
		events, err = suddenDeath(&ns, cmd)
	case CmdResetBout:
		events, err = resetBout(&ns, cmd)
	case CmdAddMatches:
		events, err = addMatches(&ns, cmd)
	case CmdSetStage:
		events, err = setStage(&ns, cmd)
	default:
		err = ErrUnsupportedCommand
	}
	if err != nil {
		return nil, s, err
	}
	return events, ns, nil
}

func authorize(cmd Command) error {
	switch cmd.Type {
	case CmdSetActive, CmdPushScore, CmdLiveScore, CmdSuddenDeath, CmdResetBout:
		return cmd.Actor.Officiate()
	default:
		return cmd.Actor.Administer()
	}
}

func setActive(s *State, cmd Command) ([]Event, error) {
	m, err := s.Matches.Get(cmd.MatchID)
	if err != nil {
		return nil, err
	}
	if m.Complete() {
		return nil, fmt.Errorf("%w: match %d", match.ErrAlreadyComplete, m.ID)
	}

	var number int
	switch m.State {
	case match.StateStaged:
		number = *m.Piste
	case match.StateNotStarted:
		number, err = pickPiste(s, m, cmd.Override)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: match %d is %s", match.ErrInvalidTransition, m.ID, m.State)
	}

	if _, err := s.Pistes.Assign(number, m.ID, m.Red, m.Green, false); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPisteConflict, err)
	}
	if err := s.Matches.Bind(m.ID, &number); err != nil {
		return nil, err
	}
	if _, err := s.Matches.Transition(m.ID, match.StateOngoing, cmd.At); err != nil {
		return nil, err
	}
	return []Event{{Type: EvtMatchStarted, MatchID: m.ID, Piste: number}}, nil
}

// pickPiste chooses the piste a not-yet-staged match starts on. Without
// override the match must be one the scheduler would offer a piste to.
func pickPiste(s *State, m match.Match, override bool) (int, error) {
	if override {
		busy := s.Pistes.BusyFencers()
		if n, ok := busy[m.Red]; ok {
			return 0, fmt.Errorf("%w: fencer %s is on piste %d", ErrPisteConflict, m.Red, n)
		}
		if n, ok := busy[m.Green]; ok {
			return 0, fmt.Errorf("%w: fencer %s is on piste %d", ErrPisteConflict, m.Green, n)
		}
		free := s.Pistes.Free()
		if len(free) == 0 {
			return 0, fmt.Errorf("%w: no free piste", ErrPisteConflict)
		}
		return free[0], nil
	}

	proposals := schedule.Propose(slices.Collect(s.Matches.ListPending(match.Filter{})), s.Pistes.Snapshot())
	p, ok := schedule.For(proposals, m.ID)
	if !ok {
		return 0, fmt.Errorf("%w: match %d is not next in line for a piste", ErrPisteConflict, m.ID)
	}
	return p.Piste, nil
}

func assignPiste(s *State, cmd Command) ([]Event, error) {
	m, err := s.Matches.Get(cmd.MatchID)
	if err != nil {
		return nil, err
	}
	if m.Complete() {
		return nil, fmt.Errorf("%w: match %d", match.ErrAlreadyComplete, m.ID)
	}
	if m.State == match.StateStaged {
		return nil, fmt.Errorf("%w: %w", ErrPisteConflict, piste.ErrMatchAlreadyAssigned)
	}
	if !match.CanTransition(m.State, match.StateStaged) {
		return nil, fmt.Errorf("%w: %s -> %s", match.ErrInvalidTransition, m.State, match.StateStaged)
	}
	if _, err := s.Pistes.Assign(cmd.Piste, m.ID, m.Red, m.Green, true); err != nil {
		if errors.Is(err, piste.ErrInvalidPisteNumber) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrPisteConflict, err)
	}
	number := cmd.Piste
	if err := s.Matches.Bind(m.ID, &number); err != nil {
		return nil, err
	}
	if _, err := s.Matches.Transition(m.ID, match.StateStaged, cmd.At); err != nil {
		return nil, err
	}
	return []Event{{Type: EvtMatchStaged, MatchID: m.ID, Piste: number}}, nil
}

func removePisteAssignment(s *State, cmd Command) ([]Event, error) {
	m, err := s.Matches.Get(cmd.MatchID)
	if err != nil {
		return nil, err
	}
	if m.State != match.StateStaged || m.Piste == nil {
		return nil, fmt.Errorf("%w: match %d is %s, not staged", match.ErrInvalidTransition, m.ID, m.State)
	}
	number := *m.Piste
	if _, err := s.Pistes.Release(number); err != nil {
		return nil, err
	}
	if _, err := s.Matches.Transition(m.ID, match.StateNotStarted, cmd.At); err != nil {
		return nil, err
	}
	return []Event{{Type: EvtMatchUnstaged, MatchID: m.ID, Piste: number}}, nil
}

func prioritize(s *State, cmd Command) ([]Event, error) {
	p, err := match.ParsePriority(cmd.Priority)
	if err != nil {
		return nil, err
	}
	if _, err := s.Matches.SetPriority(cmd.MatchID, p); err != nil {
		return nil, err
	}
	return []Event{{Type: EvtPriorityChanged, MatchID: cmd.MatchID}}, nil
}

func togglePiste(s *State, cmd Command) ([]Event, error) {
	if _, err := s.Pistes.ToggleDisabled(cmd.Piste); err != nil {
		return nil, err
	}
	return []Event{{Type: EvtPisteToggled, Piste: cmd.Piste}}, nil
}

func addMatches(s *State, cmd Command) ([]Event, error) {
	ms := make([]match.Match, 0, len(cmd.Matches))
	for _, m := range cmd.Matches {
		if m.Red == "" || m.Green == "" || m.Red == m.Green {
			return nil, fmt.Errorf("%w: needs two distinct fencers", ErrInvalidMatch)
		}
		m.State = match.StateNotStarted
		m.Piste = nil
		m.RedScore, m.GreenScore = 0, 0
		for _, f := range []string{m.Red, m.Green} {
			if reason, out := s.Ineligible[f]; out {
				m.State = match.StateDisqualified
				m.Walkover = true
				m.Forfeited = f
				m.Reason = reason
				at := cmd.At
				m.CompletedAt = &at
				break
			}
		}
		ms = append(ms, m)
	}

	added, err := s.Matches.Add(ms...)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(added))
	for _, m := range added {
		events = append(events, Event{Type: EvtMatchAdded, MatchID: m.ID})
		if m.Walkover {
			events = append(events, Event{Type: EvtWalkoverRequired, MatchID: m.ID, Fencer: m.Forfeited, Reason: m.Reason})
		}
	}
	return events, nil
}

func setStage(s *State, cmd Command) ([]Event, error) {
	if cmd.Stage.Pistes != s.Pistes.Len() {
		return nil, fmt.Errorf("%w: piste count is fixed at %d", ErrInvalidStage, s.Pistes.Len())
	}
	if cmd.Stage.EliminationThreshold < 0 {
		return nil, fmt.Errorf("%w: negative elimination threshold", ErrInvalidStage)
	}
	s.Stage = cmd.Stage
	return []Event{{Type: EvtStageChanged}}, nil
}
