package types

// Requests

type MatchInput struct {
	ID       int    `json:"id,omitempty"`
	Red      string `json:"red"`
	Green    string `json:"green"`
	Group    *int   `json:"group,omitempty"`
	Round    *int   `json:"round,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

type CreateTournamentRequest struct {
	Stage   StageView    `json:"stage"`
	Matches []MatchInput `json:"matches"`
}

type CreateTournamentResponse struct {
	Code string `json:"code"`
}

type AddMatchesRequest struct {
	Matches []MatchInput `json:"matches"`
}

type SetActiveRequest struct {
	Override bool `json:"override_flag"`
}

type ScoreRequest struct {
	RedScore   *int `json:"red_score"`
	GreenScore *int `json:"green_score"`
}

type AssignPisteRequest struct {
	Piste int `json:"piste"`
}

type PrioritizeRequest struct {
	Value *int `json:"value"`
}

type SuddenDeathRequest struct {
	Priority string `json:"priority"` // "red" | "green"
}

type AdjustRequest struct {
	Delta int `json:"delta"`
}

type DisqualifyRequest struct {
	Reason string `json:"reason"`
}

type CommandResponse struct {
	Version int      `json:"version"`
	Events  []string `json:"events"`
}

type CountResponse struct {
	Count int `json:"count"`
}

// Errors

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// Websocket

// ClientMessage is the only thing a viewer sends: a keepalive or a request
// for a fresh snapshot.
type ClientMessage struct {
	Type string `json:"type"` // "Ping" | "Resync"
}

type ServerMessage struct {
	Type    string         `json:"type"` // "StateSnapshot" | "BoutSnapshot" | "Pong" | "Error"
	Version int            `json:"version,omitempty"`
	State   *StateSnapshot `json:"state,omitempty"`
	Bout    *BoutSnapshot  `json:"bout,omitempty"`
	Error   *ErrorBody     `json:"error,omitempty"`
}
