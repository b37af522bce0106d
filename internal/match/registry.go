package match

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"time"
)

// Filter narrows listings by pool group and/or round. Nil fields match all.
type Filter struct {
	Group *int
	Round *int
}

func (f Filter) matches(m Match) bool {
	if f.Group != nil && (m.Group == nil || *m.Group != *f.Group) {
		return false
	}
	if f.Round != nil && (m.Round == nil || *m.Round != *f.Round) {
		return false
	}
	return true
}

// Registry is the set of matches of one tournament stage. It is not safe for
// concurrent use; the owning tournament serializes access.
type Registry struct {
	matches []Match
	index   map[int]int
	nextSeq int
	nextID  int
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[int]int), nextID: 1}
}

// Add appends matches in bracket order. A zero ID is replaced by the next free id.
func (r *Registry) Add(ms ...Match) ([]Match, error) {
	added := make([]Match, 0, len(ms))
	seen := make(map[int]bool, len(ms))
	for _, m := range ms {
		if m.ID != 0 {
			if _, ok := r.index[m.ID]; ok || seen[m.ID] {
				return nil, fmt.Errorf("%w: %d", ErrDuplicateMatch, m.ID)
			}
			seen[m.ID] = true
		}
	}
	for _, m := range ms {
		if m.ID == 0 {
			for r.has(r.nextID) || seen[r.nextID] {
				r.nextID++
			}
			m.ID = r.nextID
		}
		if m.ID >= r.nextID {
			r.nextID = m.ID + 1
		}
		if m.State == "" {
			m.State = StateNotStarted
		}
		m.Seq = r.nextSeq
		r.nextSeq++
		r.index[m.ID] = len(r.matches)
		r.matches = append(r.matches, m.clone())
		added = append(added, m.clone())
	}
	return added, nil
}

func (r *Registry) has(id int) bool {
	_, ok := r.index[id]
	return ok
}

func (r *Registry) Get(id int) (Match, error) {
	i, ok := r.index[id]
	if !ok {
		return Match{}, fmt.Errorf("%w: %d", ErrMatchNotFound, id)
	}
	return r.matches[i].clone(), nil
}

func (r *Registry) ref(id int) (*Match, error) {
	i, ok := r.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrMatchNotFound, id)
	}
	return &r.matches[i], nil
}

// List yields matches by round (elimination rounds last) then insertion order.
func (r *Registry) List(f Filter) iter.Seq[Match] {
	return r.list(f, func(Match) bool { return true })
}

// ListPending is List restricted to NotStarted and Staged matches.
func (r *Registry) ListPending(f Filter) iter.Seq[Match] {
	return r.list(f, func(m Match) bool { return m.State.Pending() })
}

func (r *Registry) list(f Filter, keep func(Match) bool) iter.Seq[Match] {
	ordered := r.ordered()
	return func(yield func(Match) bool) {
		for _, m := range ordered {
			if !f.matches(m) || !keep(m) {
				continue
			}
			if !yield(m.clone()) {
				return
			}
		}
	}
}

func (r *Registry) ordered() []Match {
	out := slices.Clone(r.matches)
	slices.SortStableFunc(out, func(a, b Match) int {
		if c := compareRound(a.Round, b.Round); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out
}

func compareRound(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return cmp.Compare(*a, *b)
	}
}

// Transition moves a match along the lifecycle graph.
func (r *Registry) Transition(id int, to State, at time.Time) (Match, error) {
	m, err := r.ref(id)
	if err != nil {
		return Match{}, err
	}
	if m.State.Terminal() {
		return Match{}, fmt.Errorf("%w: match %d is %s", ErrAlreadyComplete, id, m.State)
	}
	if !CanTransition(m.State, to) {
		return Match{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.State, to)
	}
	if to == StateComplete && m.Winner() == SideNone {
		return Match{}, fmt.Errorf("%w: match %d has no winner", ErrInvalidTransition, id)
	}

	switch to {
	case StateOngoing:
		m.StartedAt = &at
	case StateComplete, StateDisqualified:
		m.CompletedAt = &at
	case StateNotStarted:
		m.Piste = nil
	}
	m.State = to
	return m.clone(), nil
}

// Bind records the piste a match sits on; nil unbinds.
func (r *Registry) Bind(id int, piste *int) error {
	m, err := r.ref(id)
	if err != nil {
		return err
	}
	m.Piste = copyInt(piste)
	return nil
}

func (r *Registry) SetScores(id, red, green int) error {
	m, err := r.ref(id)
	if err != nil {
		return err
	}
	m.RedScore, m.GreenScore = red, green
	return nil
}

func (r *Registry) SetPriority(id int, p Priority) (Match, error) {
	m, err := r.ref(id)
	if err != nil {
		return Match{}, err
	}
	if m.State.Terminal() {
		return Match{}, fmt.Errorf("%w: match %d", ErrAlreadyComplete, id)
	}
	m.Priority = p
	return m.clone(), nil
}

func (r *Registry) MarkSuddenDeath(id int, holder Side) error {
	m, err := r.ref(id)
	if err != nil {
		return err
	}
	if m.State != StateOngoing {
		return fmt.Errorf("%w: sudden death needs an ongoing match, got %s", ErrInvalidTransition, m.State)
	}
	m.SuddenDeath = true
	m.PriorityHolder = holder
	return nil
}

// ResetLive clears the provisional score and any tie-break of an ongoing bout.
func (r *Registry) ResetLive(id int) error {
	m, err := r.ref(id)
	if err != nil {
		return err
	}
	if m.State != StateOngoing {
		return fmt.Errorf("%w: cannot reset a %s match", ErrInvalidTransition, m.State)
	}
	m.RedScore, m.GreenScore = 0, 0
	m.SuddenDeath = false
	m.PriorityHolder = SideNone
	return nil
}

// Correct overwrites the result of a completed match. Disqualified matches are
// final.
func (r *Registry) Correct(id, red, green int) (Match, error) {
	m, err := r.ref(id)
	if err != nil {
		return Match{}, err
	}
	if m.State != StateComplete {
		if m.State == StateDisqualified {
			return Match{}, fmt.Errorf("%w: match %d was forfeited", ErrAlreadyComplete, id)
		}
		return Match{}, fmt.Errorf("%w: cannot correct a %s match", ErrInvalidTransition, m.State)
	}
	m.RedScore, m.GreenScore = red, green
	return m.clone(), nil
}

// Forfeit ends a match against fencer. Matches already on a piste complete with
// the opponent winning by score; untouched ones are disqualified as walkovers.
func (r *Registry) Forfeit(id int, fencer, reason string, score int, at time.Time) (Match, error) {
	m, err := r.ref(id)
	if err != nil {
		return Match{}, err
	}
	if m.State.Terminal() {
		return Match{}, fmt.Errorf("%w: match %d", ErrAlreadyComplete, id)
	}
	side := m.SideOf(fencer)
	if side == SideNone {
		return Match{}, fmt.Errorf("%w: fencer %s not in match %d", ErrInvalidTransition, fencer, id)
	}

	m.Forfeited = fencer
	m.Reason = reason
	m.CompletedAt = &at
	if m.State == StateNotStarted {
		m.State = StateDisqualified
		m.Walkover = true
		return m.clone(), nil
	}

	if side == SideRed {
		m.RedScore, m.GreenScore = 0, score
	} else {
		m.RedScore, m.GreenScore = score, 0
	}
	m.SuddenDeath = false
	m.State = StateComplete
	return m.clone(), nil
}

func (r *Registry) Fencers() map[string]bool {
	out := make(map[string]bool)
	for _, m := range r.matches {
		out[m.Red] = true
		out[m.Green] = true
	}
	return out
}

// Remaining counts matches not yet completed or forfeited.
func (r *Registry) Remaining() int {
	n := 0
	for _, m := range r.matches {
		if !m.Complete() {
			n++
		}
	}
	return n
}

func (r *Registry) Len() int { return len(r.matches) }

func (r *Registry) Clone() *Registry {
	c := &Registry{
		matches: make([]Match, len(r.matches)),
		index:   make(map[int]int, len(r.index)),
		nextSeq: r.nextSeq,
		nextID:  r.nextID,
	}
	for i, m := range r.matches {
		c.matches[i] = m.clone()
	}
	for k, v := range r.index {
		c.index[k] = v
	}
	return c
}
