package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/piste-live-backend/internal/actor"
	"github.com/DoyleJ11/piste-live-backend/internal/bout"
	"github.com/DoyleJ11/piste-live-backend/internal/engine"
	"github.com/DoyleJ11/piste-live-backend/internal/match"
	"github.com/DoyleJ11/piste-live-backend/internal/schedule"
	"github.com/DoyleJ11/piste-live-backend/internal/tournament"
	"github.com/DoyleJ11/piste-live-backend/internal/types"
	api "github.com/DoyleJ11/piste-live-backend/pkg/types"
)

const (
	headerRole    = "X-Actor-Role"
	headerActorID = "X-Actor-ID"
)

func actorFrom(r *http.Request) actor.Actor {
	return actor.Actor{
		ID:   r.Header.Get(headerActorID),
		Role: actor.ParseRole(r.Header.Get(headerRole)),
	}
}

// decode reads an optional JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return invalid("bad json: %v", err)
}

func intParam(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, invalid("%s must be an integer", name)
	}
	return v, nil
}

func intQuery(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, invalid("%s must be an integer", name)
	}
	return &v, nil
}

func tournamentFor(d Deps, r *http.Request) (*tournament.Tournament, error) {
	return d.Hub.Get(r.Context(), chi.URLParam(r, "code"))
}

// run applies one engine command to the tournament named in the path and
// replies with the new version and the events it produced.
func run(d Deps, build func(r *http.Request, cmd *engine.Command) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := tournamentFor(d, r)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		cmd := engine.Command{Actor: actorFrom(r)}
		if err := build(r, &cmd); err != nil {
			writeError(w, d.Log, err)
			return
		}
		res, err := t.Do(r.Context(), cmd)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, api.CommandResponse{Version: res.Version, Events: types.EventNames(res.Events)})
	}
}

func matchCommand(d Deps, typ engine.CommandType, body func(r *http.Request, cmd *engine.Command) error) http.HandlerFunc {
	return run(d, func(r *http.Request, cmd *engine.Command) error {
		id, err := intParam(r, "id")
		if err != nil {
			return err
		}
		cmd.Type = typ
		cmd.MatchID = id
		if body == nil {
			return nil
		}
		return body(r, cmd)
	})
}

func CreateTournament(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.CreateTournamentRequest
		if err := decode(r, &req); err != nil {
			writeError(w, d.Log, err)
			return
		}
		if req.Stage.Pistes < 1 {
			writeError(w, d.Log, invalid("stage needs at least one piste"))
			return
		}
		ms, err := types.ToMatches(req.Matches)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}

		s := engine.NewState(types.ToStage(req.Stage), d.Rules)
		if len(ms) > 0 {
			_, s, err = engine.Apply(s, engine.Command{Type: engine.CmdAddMatches, Actor: actor.System, Matches: ms})
			if err != nil {
				writeError(w, d.Log, err)
				return
			}
		}

		t, err := d.Hub.Create(r.Context(), s)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		writeJSON(w, http.StatusCreated, api.CreateTournamentResponse{Code: t.Code()})
	}
}

func DeleteTournament(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := actorFrom(r).Administer(); err != nil {
			writeError(w, d.Log, err)
			return
		}
		if err := d.Hub.Remove(r.Context(), chi.URLParam(r, "code")); err != nil {
			writeError(w, d.Log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SetStage(d Deps) http.HandlerFunc {
	return run(d, func(r *http.Request, cmd *engine.Command) error {
		var req api.StageView
		if err := decode(r, &req); err != nil {
			return err
		}
		cmd.Type = engine.CmdSetStage
		cmd.Stage = types.ToStage(req)
		return nil
	})
}

func AddMatches(d Deps) http.HandlerFunc {
	return run(d, func(r *http.Request, cmd *engine.Command) error {
		var req api.AddMatchesRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		if len(req.Matches) == 0 {
			return invalid("no matches given")
		}
		ms, err := types.ToMatches(req.Matches)
		if err != nil {
			return err
		}
		cmd.Type = engine.CmdAddMatches
		cmd.Matches = ms
		return nil
	})
}

func ListMatches(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := tournamentFor(d, r)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		var f match.Filter
		if f.Group, err = intQuery(r, "group"); err != nil {
			writeError(w, d.Log, err)
			return
		}
		if f.Round, err = intQuery(r, "round"); err != nil {
			writeError(w, d.Log, err)
			return
		}

		reg := t.Snapshot().State.Matches
		seq := reg.List(f)
		if r.URL.Query().Get("pending") == "true" {
			seq = reg.ListPending(f)
		}
		writeJSON(w, http.StatusOK, types.Matches(slices.Collect(seq)))
	}
}

func GetMatch(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := tournamentFor(d, r)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		id, err := intParam(r, "id")
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		m, err := t.Snapshot().State.Matches.Get(id)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, types.Match(m))
	}
}

func MatchesLeft(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := tournamentFor(d, r)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, api.CountResponse{Count: engine.Remaining(t.Snapshot().State)})
	}
}

func ListPistes(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := tournamentFor(d, r)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, types.Pistes(t.Snapshot().State.Pistes.Snapshot()))
	}
}

func ListProposals(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := tournamentFor(d, r)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		s := t.Snapshot().State
		pending := slices.Collect(s.Matches.ListPending(match.Filter{}))
		writeJSON(w, http.StatusOK, types.Proposals(schedule.Propose(pending, s.Pistes.Snapshot())))
	}
}

func SetActive(d Deps) http.HandlerFunc {
	return matchCommand(d, engine.CmdSetActive, func(r *http.Request, cmd *engine.Command) error {
		var req api.SetActiveRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		cmd.Override = req.Override
		return nil
	})
}

func scores(r *http.Request, cmd *engine.Command) error {
	var req api.ScoreRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if req.RedScore == nil || req.GreenScore == nil {
		return invalid("red_score and green_score are required")
	}
	cmd.Red, cmd.Green = *req.RedScore, *req.GreenScore
	return nil
}

func PushScore(d Deps) http.HandlerFunc {
	return matchCommand(d, engine.CmdPushScore, scores)
}

func LiveScore(d Deps) http.HandlerFunc {
	return matchCommand(d, engine.CmdLiveScore, scores)
}

func AssignPiste(d Deps) http.HandlerFunc {
	return matchCommand(d, engine.CmdAssignPiste, func(r *http.Request, cmd *engine.Command) error {
		var req api.AssignPisteRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		cmd.Piste = req.Piste
		return nil
	})
}

func RemovePisteAssignment(d Deps) http.HandlerFunc {
	return matchCommand(d, engine.CmdRemovePisteAssignment, nil)
}

func Prioritize(d Deps) http.HandlerFunc {
	return matchCommand(d, engine.CmdPrioritize, func(r *http.Request, cmd *engine.Command) error {
		var req api.PrioritizeRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		if req.Value == nil {
			return invalid("value is required")
		}
		cmd.Priority = *req.Value
		return nil
	})
}

func SuddenDeath(d Deps) http.HandlerFunc {
	return matchCommand(d, engine.CmdSuddenDeath, func(r *http.Request, cmd *engine.Command) error {
		var req api.SuddenDeathRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		cmd.Side = req.Priority
		return nil
	})
}

// ResetBout reverts both the timer and the live score of an ongoing match.
func ResetBout(d Deps) http.HandlerFunc {
	return matchCommand(d, engine.CmdResetBout, nil)
}

func TogglePiste(d Deps) http.HandlerFunc {
	return run(d, func(r *http.Request, cmd *engine.Command) error {
		n, err := intParam(r, "number")
		if err != nil {
			return err
		}
		cmd.Type = engine.CmdTogglePiste
		cmd.Piste = n
		return nil
	})
}

func Disqualify(d Deps) http.HandlerFunc {
	return run(d, func(r *http.Request, cmd *engine.Command) error {
		var req api.DisqualifyRequest
		if err := decode(r, &req); err != nil {
			return err
		}
		cmd.Type = engine.CmdDisqualify
		cmd.Fencer = chi.URLParam(r, "fencer")
		cmd.Reason = req.Reason
		return nil
	})
}

func GetBout(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := tournamentFor(d, r)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		id, err := intParam(r, "id")
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		b, ok := t.Bout(id)
		if !ok {
			if _, err := t.Snapshot().State.Matches.Get(id); err != nil {
				writeError(w, d.Log, err)
				return
			}
			writeError(w, d.Log, fmt.Errorf("%w: %d", tournament.ErrNoBout, id))
			return
		}
		writeJSON(w, http.StatusOK, types.Bout(b.Snapshot()))
	}
}

// control forwards a timer message to the bout of the match in the path.
func control(d Deps, build func(r *http.Request) (func(chan error) bout.Msg, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := tournamentFor(d, r)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		id, err := intParam(r, "id")
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		msg, err := build(r)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		if err := t.Control(r.Context(), actorFrom(r), id, msg); err != nil {
			writeError(w, d.Log, err)
			return
		}
		b, ok := t.Bout(id)
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, types.Bout(b.Snapshot()))
	}
}

func PauseBout(d Deps) http.HandlerFunc {
	return control(d, func(*http.Request) (func(chan error) bout.Msg, error) {
		return func(ch chan error) bout.Msg { return bout.Pause{Reply: ch} }, nil
	})
}

func ResumeBout(d Deps) http.HandlerFunc {
	return control(d, func(*http.Request) (func(chan error) bout.Msg, error) {
		return func(ch chan error) bout.Msg { return bout.Resume{Reply: ch} }, nil
	})
}

func TogglePassivity(d Deps) http.HandlerFunc {
	return control(d, func(*http.Request) (func(chan error) bout.Msg, error) {
		return func(ch chan error) bout.Msg { return bout.TogglePassivity{Reply: ch} }, nil
	})
}

func AdjustBout(d Deps) http.HandlerFunc {
	return control(d, func(r *http.Request) (func(chan error) bout.Msg, error) {
		var req api.AdjustRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		if req.Delta == 0 {
			return nil, invalid("delta must not be zero")
		}
		return func(ch chan error) bout.Msg { return bout.Adjust{Delta: req.Delta, Reply: ch} }, nil
	})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
