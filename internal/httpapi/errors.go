package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/DoyleJ11/piste-live-backend/internal/actor"
	"github.com/DoyleJ11/piste-live-backend/internal/bout"
	"github.com/DoyleJ11/piste-live-backend/internal/engine"
	"github.com/DoyleJ11/piste-live-backend/internal/hub"
	"github.com/DoyleJ11/piste-live-backend/internal/match"
	"github.com/DoyleJ11/piste-live-backend/internal/piste"
	"github.com/DoyleJ11/piste-live-backend/internal/store"
	"github.com/DoyleJ11/piste-live-backend/internal/tournament"
	api "github.com/DoyleJ11/piste-live-backend/pkg/types"
)

var ErrInvalidRequest = errors.New("invalid request")

type errorKind struct {
	err    error
	code   string
	status int
}

// First match wins, so wrapped errors list their outermost sentinel first.
var errorKinds = []errorKind{
	{actor.ErrForbidden, "Forbidden", http.StatusForbidden},

	{engine.ErrPisteConflict, "PisteConflict", http.StatusConflict},
	{match.ErrAlreadyComplete, "AlreadyComplete", http.StatusConflict},
	{piste.ErrPisteBusy, "PisteBusy", http.StatusConflict},
	{match.ErrDuplicateMatch, "DuplicateMatch", http.StatusConflict},
	{store.ErrConflict, "Conflict", http.StatusConflict},

	{engine.ErrInvalidScore, "InvalidScore", http.StatusBadRequest},
	{piste.ErrInvalidPisteNumber, "InvalidPisteNumber", http.StatusBadRequest},
	{match.ErrInvalidPriority, "InvalidPriority", http.StatusBadRequest},
	{bout.ErrNotAdjustable, "NotAdjustable", http.StatusBadRequest},
	{engine.ErrInvalidMatch, "InvalidRequest", http.StatusBadRequest},
	{engine.ErrInvalidStage, "InvalidRequest", http.StatusBadRequest},
	{engine.ErrInvalidSide, "InvalidRequest", http.StatusBadRequest},
	{ErrInvalidRequest, "InvalidRequest", http.StatusBadRequest},

	{match.ErrMatchNotFound, "MatchNotFound", http.StatusNotFound},
	{engine.ErrFencerNotFound, "FencerNotFound", http.StatusNotFound},
	{hub.ErrTournamentNotFound, "TournamentNotFound", http.StatusNotFound},
	{tournament.ErrNoBout, "BoutNotFound", http.StatusNotFound},

	{match.ErrInvalidTransition, "InvalidTransition", http.StatusUnprocessableEntity},
	{piste.ErrPisteDisabled, "InvalidTransition", http.StatusUnprocessableEntity},
	{bout.ErrBoutFinished, "InvalidTransition", http.StatusUnprocessableEntity},

	{tournament.ErrClosed, "Unavailable", http.StatusServiceUnavailable},
	{hub.ErrHubClosed, "Unavailable", http.StatusServiceUnavailable},
}

var internal = errorKind{errors.New("internal error"), "Internal", http.StatusInternalServerError}

func classify(err error) errorKind {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k
		}
	}
	return internal
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	k := classify(err)
	if k.status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, k.status, api.ErrorEnvelope{Error: api.ErrorBody{
		Code:    k.code,
		Message: k.err.Error(),
		Detail:  err.Error(),
	}})
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
