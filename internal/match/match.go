package match

import (
	"errors"
	"fmt"
	"time"
)

var ErrMatchNotFound = errors.New("match not found")
var ErrInvalidTransition = errors.New("invalid transition")
var ErrAlreadyComplete = errors.New("match already complete")
var ErrInvalidPriority = errors.New("invalid priority")
var ErrDuplicateMatch = errors.New("duplicate match id")

type State string

const (
	StateNotStarted   State = "not_started"
	StateStaged       State = "staged"
	StateOngoing      State = "ongoing"
	StateComplete     State = "complete"
	StateDisqualified State = "disqualified"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateDisqualified
}

// Pending matches still wait for a piste or for the referee.
func (s State) Pending() bool {
	return s == StateNotStarted || s == StateStaged
}

type Priority int

const (
	PriorityLow    Priority = -1
	PriorityNormal Priority = 0
	PriorityHigh   Priority = 1
)

func ParsePriority(v int) (Priority, error) {
	switch Priority(v) {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return Priority(v), nil
	default:
		return PriorityNormal, fmt.Errorf("%w: %d", ErrInvalidPriority, v)
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

type Side string

const (
	SideNone  Side = ""
	SideRed   Side = "red"
	SideGreen Side = "green"
)

func ParseSide(s string) (Side, bool) {
	switch s {
	case "red":
		return SideRed, true
	case "green":
		return SideGreen, true
	default:
		return SideNone, false
	}
}

type Match struct {
	ID         int
	Red        string
	Green      string
	Group      *int // nil for elimination bouts
	Round      *int
	Piste      *int
	RedScore   int
	GreenScore int
	State      State
	Priority   Priority
	Seq        int

	SuddenDeath    bool
	PriorityHolder Side

	// Set when a side forfeits through disqualification.
	Forfeited string
	Reason    string
	Walkover  bool

	StartedAt   *time.Time
	CompletedAt *time.Time
}

func (m Match) Complete() bool { return m.State.Terminal() }

// Elimination bouts feed the tableau rather than pool standings.
func (m Match) Elimination() bool { return m.Group == nil }

func (m Match) Involves(fencer string) bool {
	return m.Red == fencer || m.Green == fencer
}

func (m Match) Opponent(fencer string) string {
	if m.Red == fencer {
		return m.Green
	}
	return m.Red
}

func (m Match) SideOf(fencer string) Side {
	switch fencer {
	case m.Red:
		return SideRed
	case m.Green:
		return SideGreen
	default:
		return SideNone
	}
}

func (m Match) Winner() Side {
	switch {
	case m.RedScore > m.GreenScore:
		return SideRed
	case m.GreenScore > m.RedScore:
		return SideGreen
	case m.SuddenDeath:
		return m.PriorityHolder
	default:
		return SideNone
	}
}

func (m Match) WinnerID() string {
	switch m.Winner() {
	case SideRed:
		return m.Red
	case SideGreen:
		return m.Green
	default:
		return ""
	}
}

// clone copies pointer fields so a cloned registry never aliases the original.
func (m Match) clone() Match {
	c := m
	c.Group = copyInt(m.Group)
	c.Round = copyInt(m.Round)
	c.Piste = copyInt(m.Piste)
	c.StartedAt = copyTime(m.StartedAt)
	c.CompletedAt = copyTime(m.CompletedAt)
	return c
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func IntPtr(v int) *int { return &v }

var transitions = map[State][]State{
	StateNotStarted: {StateStaged, StateOngoing, StateDisqualified},
	StateStaged:     {StateOngoing, StateNotStarted, StateDisqualified},
	StateOngoing:    {StateComplete, StateDisqualified},
}

func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
