package types

import "time"

// StateSnapshot is pushed to tournament viewers after every committed change.
type StateSnapshot struct {
	Code      string      `json:"code"`
	Version   int         `json:"version"`
	Stage     StageView   `json:"stage"`
	Remaining int         `json:"matches_left"`
	Pistes    []PisteView `json:"pistes"`
	Matches   []MatchView `json:"matches"`
}

type StageView struct {
	Name                 string `json:"name"`
	Pistes               int    `json:"pistes"`
	EliminationThreshold int    `json:"elimination_threshold"`
}

type MatchView struct {
	ID             int        `json:"id"`
	Red            string     `json:"red"`
	Green          string     `json:"green"`
	Group          *int       `json:"group,omitempty"`
	Round          *int       `json:"round,omitempty"`
	Piste          *int       `json:"piste,omitempty"`
	RedScore       int        `json:"red_score"`
	GreenScore     int        `json:"green_score"`
	State          string     `json:"state"`
	Priority       int        `json:"priority"`
	SuddenDeath    bool       `json:"sudden_death,omitempty"`
	PriorityHolder string     `json:"priority_holder,omitempty"`
	Winner         string     `json:"winner,omitempty"`
	Forfeited      string     `json:"forfeited,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	Walkover       bool       `json:"walkover,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

type PisteView struct {
	Number int    `json:"number"`
	Status string `json:"status"`
	Match  *int   `json:"match,omitempty"`
}

type ProposalView struct {
	MatchID int  `json:"match_id"`
	Piste   int  `json:"piste"`
	Ready   bool `json:"ready"`
}

// BoutSnapshot is the authoritative timer of one ongoing match.
type BoutSnapshot struct {
	MatchID            int    `json:"match_id"`
	Version            int    `json:"version"`
	Phase              string `json:"phase"`
	Period             int    `json:"period"`
	TimeRemaining      int    `json:"time_remaining"`
	PassivityRemaining int    `json:"passivity_remaining"`
	PassivityEnabled   bool   `json:"passivity_enabled"`
	Running            bool   `json:"running"`
	PausedForPassivity bool   `json:"paused_for_passivity"`
}
