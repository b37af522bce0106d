package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/DoyleJ11/piste-live-backend/internal/engine"
)

// MemoryStore keeps rows in process. It stores the same models as GormStore
// so a round trip through it exercises the same conversions.
type MemoryStore struct {
	mu          sync.Mutex
	tournaments map[string]*memTournament
	failNext    error
}

type memTournament struct {
	t          Tournament
	matches    map[int]Match
	pistes     map[int]Piste
	ineligible map[string]Ineligible
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tournaments: make(map[string]*memTournament)}
}

func (m *MemoryStore) Create(_ context.Context, code string, s engine.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tournaments[code]; ok {
		return fmt.Errorf("%w: tournament %s exists", ErrConflict, code)
	}
	mt := &memTournament{
		t:          fromStage(code, s),
		matches:    make(map[int]Match),
		pistes:     make(map[int]Piste),
		ineligible: make(map[string]Ineligible),
	}
	mt.apply(rows(code, s, allChanges(s)))
	m.tournaments[code] = mt
	return nil
}

func (m *MemoryStore) Commit(_ context.Context, code string, s engine.State, c engine.Changes) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext; err != nil {
		m.failNext = nil
		return err
	}
	mt, ok := m.tournaments[code]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	if c.Stage {
		mt.t.StageName = s.Stage.Name
		mt.t.EliminationThreshold = s.Stage.EliminationThreshold
	}
	mt.apply(rows(code, s, c))
	return nil
}

func (mt *memTournament) apply(ms []Match, ps []Piste, in []Ineligible) {
	for _, r := range ms {
		mt.matches[r.ID] = r
	}
	for _, r := range ps {
		mt.pistes[r.Number] = r
	}
	for _, r := range in {
		mt.ineligible[r.Fencer] = r
	}
}

func (m *MemoryStore) Load(_ context.Context) (map[string]engine.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]engine.State, len(m.tournaments))
	for code, mt := range m.tournaments {
		ms := make([]Match, 0, len(mt.matches))
		for _, r := range mt.matches {
			ms = append(ms, r)
		}
		slices.SortFunc(ms, func(a, b Match) int { return cmp.Compare(a.Seq, b.Seq) })
		ps := make([]Piste, 0, len(mt.pistes))
		for _, r := range mt.pistes {
			ps = append(ps, r)
		}
		in := make([]Ineligible, 0, len(mt.ineligible))
		for _, r := range mt.ineligible {
			in = append(in, r)
		}
		s, err := assemble(mt.t, ms, ps, in)
		if err != nil {
			return nil, fmt.Errorf("rebuild %s: %w", code, err)
		}
		out[code] = s
	}
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tournaments[code]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	delete(m.tournaments, code)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// FailNextCommit makes the next Commit return err.
func (m *MemoryStore) FailNextCommit(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}
