package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/DoyleJ11/piste-live-backend/internal/engine"
	"github.com/DoyleJ11/piste-live-backend/internal/hub"
	"github.com/DoyleJ11/piste-live-backend/internal/ws"
)

type Deps struct {
	Hub         *hub.Hub
	Log         *zap.Logger
	Rules       engine.Rules
	CORSOrigins []string
}

func SetupRoutes(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(d.Log))
	r.Use(recoverer(d.Log))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Hub, d.Log))

	r.Post("/tournaments", CreateTournament(d))
	r.Route("/tournaments/{code}", func(r chi.Router) {
		r.Delete("/", DeleteTournament(d))
		r.Put("/stage", SetStage(d))
		r.Get("/pistes", ListPistes(d))
		r.Post("/pistes/{number}/toggle", TogglePiste(d))
		r.Get("/proposals", ListProposals(d))
		r.Get("/matches-left", MatchesLeft(d))
		r.Post("/fencers/{fencer}/disqualify", Disqualify(d))

		r.Get("/matches", ListMatches(d))
		r.Post("/matches", AddMatches(d))
		r.Route("/matches/{id}", func(r chi.Router) {
			r.Get("/", GetMatch(d))
			r.Post("/set-active", SetActive(d))
			r.Post("/push-score", PushScore(d))
			r.Post("/assign-piste", AssignPiste(d))
			r.Post("/remove-piste-assignment", RemovePisteAssignment(d))
			r.Post("/prioritize", Prioritize(d))
			r.Post("/live-score", LiveScore(d))
			r.Post("/sudden-death", SuddenDeath(d))

			r.Get("/bout", GetBout(d))
			r.Post("/bout/pause", PauseBout(d))
			r.Post("/bout/resume", ResumeBout(d))
			r.Post("/bout/reset", ResetBout(d))
			r.Post("/bout/toggle-passivity", TogglePassivity(d))
			r.Post("/bout/adjust", AdjustBout(d))
		})
	})

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowedHeaders: []string{"Content-Type", headerRole, headerActorID},
	})
	return c.Handler(r)
}

func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

// recoverer turns a handler panic into a Fatal error envelope.
func recoverer(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error("handler panic",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("request_id", middleware.GetReqID(r.Context())))
				writeError(w, log, fmt.Errorf("panic: %v", rec))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
