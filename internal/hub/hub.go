package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/piste-live-backend/internal/bout"
	"github.com/DoyleJ11/piste-live-backend/internal/engine"
	"github.com/DoyleJ11/piste-live-backend/internal/store"
	"github.com/DoyleJ11/piste-live-backend/internal/tournament"
)

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrCodeTaken          = errors.New("tournament code already in use")
	ErrHubClosed          = errors.New("hub closed")
)

type HubMsg interface{ isHubMsg() }

type CreateTournament struct {
	Code  string
	State engine.State
	Reply chan Created
}

type Created struct {
	Tournament *tournament.Tournament
	Err        error
}

type GetTournament struct {
	Code  string
	Reply chan *tournament.Tournament // nil when unknown
}

type RemoveTournament struct {
	Code  string
	Reply chan error
}

type ListTournaments struct {
	Reply chan []string
}

type RestoreAll struct {
	Reply chan error
}

type ShutdownHub struct{}

func (CreateTournament) isHubMsg() {}
func (GetTournament) isHubMsg()    {}
func (RemoveTournament) isHubMsg() {}
func (ListTournaments) isHubMsg()  {}
func (RestoreAll) isHubMsg()       {}
func (ShutdownHub) isHubMsg()      {}

type Config struct {
	Store        store.Store
	Events       tournament.Events
	BoutRules    bout.Rules
	Clock        clockwork.Clock
	TickInterval time.Duration
	Logger       *zap.Logger
}

// Hub owns the set of live tournaments. Creation and removal go through the
// store so a restarted process can bring them back with RestoreAll.
type Hub struct {
	cfg         Config
	log         *zap.Logger
	inbox       chan HubMsg
	tournaments map[string]*tournament.Tournament
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

func NewHub(parent context.Context, cfg Config) *Hub {
	if cfg.Store == nil {
		cfg.Store = store.NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		cfg:         cfg,
		log:         cfg.Logger,
		inbox:       make(chan HubMsg, 64),
		tournaments: make(map[string]*tournament.Tournament),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed after every tournament has stopped.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateTournament:
				if h.tournaments[msg.Code] != nil {
					msg.Reply <- Created{Err: fmt.Errorf("%w: %s", ErrCodeTaken, msg.Code)}
					break
				}
				if err := h.cfg.Store.Create(h.ctx, msg.Code, msg.State); err != nil {
					msg.Reply <- Created{Err: err}
					break
				}
				t := h.spawn(msg.Code, msg.State)
				h.log.Info("tournament created",
					zap.String("tournament", msg.Code),
					zap.Int("pistes", msg.State.Stage.Pistes),
					zap.Int("matches", msg.State.Matches.Len()))
				msg.Reply <- Created{Tournament: t}

			case GetTournament:
				msg.Reply <- h.tournaments[msg.Code]

			case RemoveTournament:
				t := h.tournaments[msg.Code]
				if t == nil {
					msg.Reply <- fmt.Errorf("%w: %s", ErrTournamentNotFound, msg.Code)
					break
				}
				delete(h.tournaments, msg.Code)
				stop(t)
				err := h.cfg.Store.Delete(h.ctx, msg.Code)
				if errors.Is(err, store.ErrNotFound) {
					err = nil
				}
				h.log.Info("tournament removed", zap.String("tournament", msg.Code), zap.Error(err))
				msg.Reply <- err

			case ListTournaments:
				codes := make([]string, 0, len(h.tournaments))
				for code := range h.tournaments {
					codes = append(codes, code)
				}
				msg.Reply <- codes

			case RestoreAll:
				msg.Reply <- h.restore()

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) spawn(code string, s engine.State) *tournament.Tournament {
	t := tournament.New(h.ctx, tournament.Config{
		Code:         code,
		Initial:      s,
		Store:        h.cfg.Store,
		Events:       h.cfg.Events,
		BoutRules:    h.cfg.BoutRules,
		Clock:        h.cfg.Clock,
		TickInterval: h.cfg.TickInterval,
		Logger:       h.log,
	})
	h.tournaments[code] = t
	return t
}

func (h *Hub) restore() error {
	states, err := h.cfg.Store.Load(h.ctx)
	if err != nil {
		return err
	}
	for code, s := range states {
		if h.tournaments[code] != nil {
			continue
		}
		h.spawn(code, s)
		h.log.Info("tournament restored", zap.String("tournament", code), zap.Int("remaining", engine.Remaining(s)))
	}
	return nil
}

func stop(t *tournament.Tournament) {
	select {
	case t.Inbox() <- tournament.Shutdown{}:
	case <-t.Done():
		return
	}
	<-t.Done()
}

func (h *Hub) shutdown() {
	for code, t := range h.tournaments {
		stop(t)
		delete(h.tournaments, code)
	}
	h.cancel()
}

// Create registers a tournament under a fresh code, retrying on collisions.
func (h *Hub) Create(ctx context.Context, s engine.State) (*tournament.Tournament, error) {
	for range 8 {
		code, err := GenerateCode()
		if err != nil {
			return nil, err
		}
		reply := make(chan Created, 1)
		if err := h.send(ctx, CreateTournament{Code: code, State: s, Reply: reply}); err != nil {
			return nil, err
		}
		select {
		case res := <-reply:
			if errors.Is(res.Err, ErrCodeTaken) || errors.Is(res.Err, store.ErrConflict) {
				h.log.Debug("collision on code, regenerating", zap.String("code", code))
				continue
			}
			return res.Tournament, res.Err
		case <-h.done:
			return nil, ErrHubClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: could not find a free code", ErrCodeTaken)
}

func (h *Hub) Get(ctx context.Context, code string) (*tournament.Tournament, error) {
	reply := make(chan *tournament.Tournament, 1)
	if err := h.send(ctx, GetTournament{Code: code, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case t := <-reply:
		if t == nil {
			return nil, fmt.Errorf("%w: %s", ErrTournamentNotFound, code)
		}
		return t, nil
	case <-h.done:
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) Remove(ctx context.Context, code string) error {
	reply := make(chan error, 1)
	if err := h.send(ctx, RemoveTournament{Code: code, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) RestoreAll(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := h.send(ctx, RestoreAll{Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.inbox <- m:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}
