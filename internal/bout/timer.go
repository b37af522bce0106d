package bout

import (
	"errors"
	"fmt"
)

var ErrNotAdjustable = errors.New("timer can only be adjusted while paused or between periods")
var ErrBoutFinished = errors.New("bout finished")

type Phase string

const (
	PhaseFencing  Phase = "fencing"
	PhaseBreak    Phase = "break"
	PhaseFinished Phase = "finished"
)

type Signal string

const (
	SignalPeriodEnded      Signal = "PeriodEnded"
	SignalBreakEnded       Signal = "BreakEnded"
	SignalPassivityExpired Signal = "PassivityExpired"
	SignalBoutFinished     Signal = "BoutFinished"
)

// Rules are the bout timings in whole seconds.
type Rules struct {
	Periods          int
	PeriodSeconds    int
	BreakSeconds     int
	PassivitySeconds int
	Passivity        bool // passivity clock enabled at bout start
}

func DefaultRules() Rules {
	return Rules{
		Periods:          3,
		PeriodSeconds:    180,
		BreakSeconds:     60,
		PassivitySeconds: 60,
		Passivity:        true,
	}
}

// Timer is the period and passivity state machine of one bout. It does not
// keep time itself; the owner calls Tick once per second.
type Timer struct {
	Rules              Rules
	Phase              Phase
	Period             int
	TimeRemaining      int
	PassivityRemaining int
	PassivityEnabled   bool
	Running            bool
	PausedForPassivity bool
}

func NewTimer(r Rules) Timer {
	return Timer{
		Rules:              r,
		Phase:              PhaseFencing,
		Period:             1,
		TimeRemaining:      r.PeriodSeconds,
		PassivityRemaining: r.PassivitySeconds,
		PassivityEnabled:   r.Passivity,
		Running:            true,
	}
}

func (t *Timer) Tick() []Signal {
	if !t.Running || t.Phase == PhaseFinished {
		return nil
	}

	switch t.Phase {
	case PhaseFencing:
		t.TimeRemaining--
		if t.PassivityEnabled {
			t.PassivityRemaining--
		}
		if t.TimeRemaining <= 0 {
			t.TimeRemaining = 0
			if t.Period >= t.Rules.Periods {
				t.Phase = PhaseFinished
				t.Running = false
				return []Signal{SignalBoutFinished}
			}
			t.Phase = PhaseBreak
			t.TimeRemaining = t.Rules.BreakSeconds
			t.PassivityRemaining = t.Rules.PassivitySeconds
			return []Signal{SignalPeriodEnded}
		}
		if t.PassivityEnabled && t.PassivityRemaining <= 0 {
			t.PassivityRemaining = 0
			t.Running = false
			t.PausedForPassivity = true
			return []Signal{SignalPassivityExpired}
		}

	case PhaseBreak:
		t.TimeRemaining--
		if t.TimeRemaining <= 0 {
			// The next period waits for the referee.
			t.Period++
			t.Phase = PhaseFencing
			t.TimeRemaining = t.Rules.PeriodSeconds
			t.PassivityRemaining = t.Rules.PassivitySeconds
			t.Running = false
			return []Signal{SignalBreakEnded}
		}
	}
	return nil
}

func (t *Timer) Pause() {
	t.Running = false
}

func (t *Timer) Resume() error {
	if t.Phase == PhaseFinished {
		return ErrBoutFinished
	}
	if t.PausedForPassivity {
		t.PausedForPassivity = false
		t.PassivityRemaining = t.Rules.PassivitySeconds
	}
	t.Running = true
	return nil
}

// Adjust shifts the remaining time by delta seconds, never below one second.
func (t *Timer) Adjust(delta int) error {
	if t.Phase == PhaseFinished {
		return ErrBoutFinished
	}
	if t.Running && t.Phase != PhaseBreak {
		return ErrNotAdjustable
	}
	t.TimeRemaining = max(t.TimeRemaining+delta, 1)
	return nil
}

// ScoreChanged restarts the passivity countdown.
func (t *Timer) ScoreChanged() {
	t.PassivityRemaining = t.Rules.PassivitySeconds
}

func (t *Timer) TogglePassivity() {
	t.PassivityEnabled = !t.PassivityEnabled
	t.PassivityRemaining = t.Rules.PassivitySeconds
	if !t.PassivityEnabled {
		t.PausedForPassivity = false
	}
}

func (t *Timer) Reset() {
	*t = NewTimer(t.Rules)
}

// Extend reopens a finished bout for a sudden-death period of the given
// length. The passivity clock is off and the referee starts the clock.
func (t *Timer) Extend(seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("%w: extension must be positive", ErrNotAdjustable)
	}
	if t.Phase != PhaseFinished {
		return fmt.Errorf("%w: regulation time is not over", ErrNotAdjustable)
	}
	t.Phase = PhaseFencing
	t.TimeRemaining = seconds
	t.PassivityEnabled = false
	t.PassivityRemaining = t.Rules.PassivitySeconds
	t.PausedForPassivity = false
	t.Running = false
	return nil
}
