package store

import (
	"time"

	"github.com/DoyleJ11/piste-live-backend/internal/engine"
	"github.com/DoyleJ11/piste-live-backend/internal/match"
	"github.com/DoyleJ11/piste-live-backend/internal/piste"
)

type Tournament struct {
	Code                 string `gorm:"primaryKey;type:varchar(16)"`
	StageName            string
	Pistes               int `gorm:"not null"`
	EliminationThreshold int
	MaxScore             int
	ForfeitScore         int
	SuddenDeathSeconds   int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Match struct {
	TournamentCode string `gorm:"primaryKey;type:varchar(16)"`
	ID             int    `gorm:"primaryKey;autoIncrement:false"`
	Seq            int    `gorm:"index"`
	Red            string `gorm:"not null"`
	Green          string `gorm:"not null"`
	GroupNo        *int
	RoundNo        *int
	Piste          *int
	RedScore       int
	GreenScore     int
	State          string `gorm:"type:varchar(16);not null"`
	Priority       int
	SuddenDeath    bool
	PriorityHolder string `gorm:"type:varchar(8)"`
	Forfeited      string
	Reason         string
	Walkover       bool
	StartedAt      *time.Time
	CompletedAt    *time.Time
	UpdatedAt      time.Time
}

type Piste struct {
	TournamentCode string `gorm:"primaryKey;type:varchar(16)"`
	Number         int    `gorm:"primaryKey;autoIncrement:false"`
	Status         string `gorm:"type:varchar(16);not null"`
	MatchID        *int
	RedFencer      string
	GreenFencer    string
}

type Ineligible struct {
	TournamentCode string `gorm:"primaryKey;type:varchar(16)"`
	Fencer         string `gorm:"primaryKey"`
	Reason         string
}

func fromStage(code string, s engine.State) Tournament {
	return Tournament{
		Code:                 code,
		StageName:            s.Stage.Name,
		Pistes:               s.Stage.Pistes,
		EliminationThreshold: s.Stage.EliminationThreshold,
		MaxScore:             s.Rules.MaxScore,
		ForfeitScore:         s.Rules.ForfeitScore,
		SuddenDeathSeconds:   s.Rules.SuddenDeathSeconds,
	}
}

func fromMatch(code string, m match.Match) Match {
	return Match{
		TournamentCode: code,
		ID:             m.ID,
		Seq:            m.Seq,
		Red:            m.Red,
		Green:          m.Green,
		GroupNo:        m.Group,
		RoundNo:        m.Round,
		Piste:          m.Piste,
		RedScore:       m.RedScore,
		GreenScore:     m.GreenScore,
		State:          string(m.State),
		Priority:       int(m.Priority),
		SuddenDeath:    m.SuddenDeath,
		PriorityHolder: string(m.PriorityHolder),
		Forfeited:      m.Forfeited,
		Reason:         m.Reason,
		Walkover:       m.Walkover,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
	}
}

func (m Match) toDomain() match.Match {
	return match.Match{
		ID:             m.ID,
		Seq:            m.Seq,
		Red:            m.Red,
		Green:          m.Green,
		Group:          m.GroupNo,
		Round:          m.RoundNo,
		Piste:          m.Piste,
		RedScore:       m.RedScore,
		GreenScore:     m.GreenScore,
		State:          match.State(m.State),
		Priority:       match.Priority(m.Priority),
		SuddenDeath:    m.SuddenDeath,
		PriorityHolder: match.Side(m.PriorityHolder),
		Forfeited:      m.Forfeited,
		Reason:         m.Reason,
		Walkover:       m.Walkover,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
	}
}

func fromPiste(code string, p piste.Piste) Piste {
	return Piste{
		TournamentCode: code,
		Number:         p.Number,
		Status:         string(p.Status),
		MatchID:        p.Match,
		RedFencer:      p.Fencers[0],
		GreenFencer:    p.Fencers[1],
	}
}

func (p Piste) toDomain() piste.Piste {
	return piste.Piste{
		Number:  p.Number,
		Status:  piste.Status(p.Status),
		Match:   p.MatchID,
		Fencers: [2]string{p.RedFencer, p.GreenFencer},
	}
}

// rows turns the changed part of a state into models.
func rows(code string, s engine.State, c engine.Changes) ([]Match, []Piste, []Ineligible) {
	ms := make([]Match, 0, len(c.Matches))
	for _, id := range c.Matches {
		if m, err := s.Matches.Get(id); err == nil {
			ms = append(ms, fromMatch(code, m))
		}
	}
	ps := make([]Piste, 0, len(c.Pistes))
	for _, n := range c.Pistes {
		if p, err := s.Pistes.Get(n); err == nil {
			ps = append(ps, fromPiste(code, p))
		}
	}
	in := make([]Ineligible, 0, len(c.Fencers))
	for _, f := range c.Fencers {
		in = append(in, Ineligible{TournamentCode: code, Fencer: f, Reason: s.Ineligible[f]})
	}
	return ms, ps, in
}

// allChanges marks every row of a state, used on creation.
func allChanges(s engine.State) engine.Changes {
	var c engine.Changes
	for m := range s.Matches.List(match.Filter{}) {
		c.Matches = append(c.Matches, m.ID)
	}
	for _, p := range s.Pistes.Snapshot() {
		c.Pistes = append(c.Pistes, p.Number)
	}
	for f := range s.Ineligible {
		c.Fencers = append(c.Fencers, f)
	}
	c.Stage = true
	return c
}

// assemble rebuilds an engine state from stored rows. Matches must be in Seq order.
func assemble(t Tournament, ms []Match, ps []Piste, in []Ineligible) (engine.State, error) {
	s := engine.State{
		Stage: engine.Stage{
			Name:                 t.StageName,
			Pistes:               t.Pistes,
			EliminationThreshold: t.EliminationThreshold,
		},
		Rules: engine.Rules{
			MaxScore:           t.MaxScore,
			ForfeitScore:       t.ForfeitScore,
			SuddenDeathSeconds: t.SuddenDeathSeconds,
		},
		Matches:    match.NewRegistry(),
		Ineligible: make(map[string]string, len(in)),
	}

	domain := make([]match.Match, len(ms))
	for i, m := range ms {
		domain[i] = m.toDomain()
	}
	if _, err := s.Matches.Add(domain...); err != nil {
		return engine.State{}, err
	}

	pistes := make([]piste.Piste, t.Pistes)
	for i := range pistes {
		pistes[i] = piste.Piste{Number: i + 1, Status: piste.StatusFree}
	}
	for _, p := range ps {
		if p.Number >= 1 && p.Number <= t.Pistes {
			pistes[p.Number-1] = p.toDomain()
		}
	}
	s.Pistes = piste.Restore(pistes)

	for _, f := range in {
		s.Ineligible[f.Fencer] = f.Reason
	}
	return s, nil
}
