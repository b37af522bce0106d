package tournament

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/piste-live-backend/internal/actor"
	"github.com/DoyleJ11/piste-live-backend/internal/bout"
	"github.com/DoyleJ11/piste-live-backend/internal/engine"
	"github.com/DoyleJ11/piste-live-backend/internal/match"
	"github.com/DoyleJ11/piste-live-backend/internal/notify"
	"github.com/DoyleJ11/piste-live-backend/internal/store"
)

var ErrClosed = errors.New("tournament closed")
var ErrPersist = errors.New("persist tournament state")
var ErrNoBout = errors.New("no running bout for match")

type Msg interface{ isTournamentMsg() }

// Do runs one engine command. Reply is buffered by the caller.
type Do struct {
	Cmd   engine.Command
	Reply chan Result
}

func (Do) isTournamentMsg() {}

type Result struct {
	Events  []engine.Event
	Version int
	Err     error
}

type Join struct {
	ClientID string
	Outbox   chan Snapshot
}

func (Join) isTournamentMsg() {}

type Leave struct{ ClientID string }

func (Leave) isTournamentMsg() {}

type Shutdown struct{}

func (Shutdown) isTournamentMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isTournamentMsg() {}

type boutSignal struct {
	MatchID int
	Signal  bout.Signal
	Timer   bout.Timer
}

func (boutSignal) isTournamentMsg() {}

// Snapshot is an immutable view of the tournament. The State it carries is
// never mutated after publication.
type Snapshot struct {
	Code    string
	Version int
	State   engine.State
}

type View struct {
	Version    int
	NumClients int
	NumBouts   int
	State      engine.State
}

// Events is where external notifications go.
type Events interface {
	Enqueue(notify.Event)
}

type Config struct {
	Code          string
	Initial       engine.State
	Store         store.Store
	Events        Events
	BoutRules     bout.Rules
	Clock         clockwork.Clock
	TickInterval  time.Duration
	CommitTimeout time.Duration
	Logger        *zap.Logger
}

// Tournament serializes every mutation of one tournament through its inbox.
// That single goroutine is the critical section for all pistes and matches of
// the tournament; reads go through the published snapshot instead.
type Tournament struct {
	cfg     Config
	log     *zap.Logger
	inbox   chan Msg
	state   engine.State
	version int
	clients map[string]chan Snapshot
	current atomic.Pointer[Snapshot]

	runnersMu sync.RWMutex
	runners   map[int]*bout.Runner

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(parent context.Context, cfg Config) *Tournament {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(parent)
	if cfg.Store == nil {
		mem := store.NewMemoryStore()
		if err := mem.Create(ctx, cfg.Code, cfg.Initial); err != nil {
			cfg.Logger.Error("seed memory store", zap.String("tournament", cfg.Code), zap.Error(err))
		}
		cfg.Store = mem
	}

	t := &Tournament{
		cfg:     cfg,
		log:     cfg.Logger.With(zap.String("tournament", cfg.Code)),
		inbox:   make(chan Msg, 64),
		state:   cfg.Initial,
		clients: make(map[string]chan Snapshot),
		runners: make(map[int]*bout.Runner),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	t.publish()

	// Bouts that were running before a restart resume paused.
	for m := range t.state.Matches.List(match.Filter{}) {
		if m.State == match.StateOngoing {
			r := t.startRunner(m.ID)
			r.Inbox() <- bout.Pause{}
		}
	}

	go t.loop()
	return t
}

func (t *Tournament) loop() {
	defer close(t.done)
	for {
		select {
		case <-t.ctx.Done():
			t.shutdown()
			return

		case m := <-t.inbox:
			switch msg := m.(type) {
			case Join:
				t.clients[msg.ClientID] = msg.Outbox
				msg.Outbox <- t.snapshot()

			case Leave:
				if ch, ok := t.clients[msg.ClientID]; ok {
					close(ch)
					delete(t.clients, msg.ClientID)
				}

			case Do:
				msg.Reply <- t.apply(msg.Cmd)

			case boutSignal:
				t.onSignal(msg)

			case GetState:
				t.runnersMu.RLock()
				n := len(t.runners)
				t.runnersMu.RUnlock()
				msg.Reply <- View{
					Version:    t.version,
					NumClients: len(t.clients),
					NumBouts:   n,
					State:      t.state,
				}

			case Shutdown:
				t.shutdown()
				return
			}
		}
	}
}

// apply runs a command against a copy of the state, persists the rows it
// touched and only then installs the copy.
func (t *Tournament) apply(cmd engine.Command) Result {
	if cmd.At.IsZero() {
		cmd.At = t.cfg.Clock.Now().UTC()
	}
	if cmd.Type == engine.CmdSuddenDeath {
		cmd.RegulationOver = t.regulationOver(cmd.MatchID)
	}
	events, next, err := engine.Apply(t.state, cmd)
	if err != nil {
		t.log.Debug("command rejected",
			zap.String("command", string(cmd.Type)),
			zap.Int("match", cmd.MatchID),
			zap.Stringer("actor", cmd.Actor),
			zap.Error(err))
		return Result{Err: err, Version: t.version}
	}

	if changes := engine.Touched(events); !changes.Empty() {
		ctx, cancel := context.WithTimeout(t.ctx, t.cfg.CommitTimeout)
		err := t.cfg.Store.Commit(ctx, t.cfg.Code, next, changes)
		cancel()
		if err != nil {
			t.log.Error("commit failed, state unchanged",
				zap.String("command", string(cmd.Type)),
				zap.Int("match", cmd.MatchID),
				zap.Error(err))
			return Result{Err: fmt.Errorf("%w: %w", ErrPersist, err), Version: t.version}
		}
	}

	t.state = next
	t.react(events)
	if len(events) > 0 {
		t.version++
		t.publish()
		t.broadcast(t.snapshot())
	}

	t.log.Info("command applied",
		zap.String("command", string(cmd.Type)),
		zap.Int("match", cmd.MatchID),
		zap.Stringer("actor", cmd.Actor),
		zap.Int("version", t.version))
	return Result{Events: events, Version: t.version}
}

// react drives bout timers and external notifications from committed events.
func (t *Tournament) react(events []engine.Event) {
	for _, e := range events {
		switch e.Type {
		case engine.EvtMatchStarted:
			t.startRunner(e.MatchID)
		case engine.EvtMatchCompleted:
			t.stopRunner(e.MatchID)
		case engine.EvtScoreChanged:
			t.toRunner(e.MatchID, bout.ScoreChanged{})
		case engine.EvtBoutReset:
			t.toRunner(e.MatchID, bout.Reset{})
		case engine.EvtSuddenDeath:
			t.toRunner(e.MatchID, bout.Extend{Seconds: t.state.Rules.SuddenDeathSeconds})
		}

		if external(e.Type) {
			ev := notify.NewEvent(t.cfg.Code, string(e.Type))
			ev.MatchID = e.MatchID
			ev.Fencer = e.Fencer
			ev.Reason = e.Reason
			if e.Type == engine.EvtMatchCompleted || e.Type == engine.EvtScoreCorrected {
				ev.Data = map[string]any{"red_score": e.RedScore, "green_score": e.GreenScore}
			}
			if e.Stage != "" {
				ev.Data = map[string]any{"stage": e.Stage}
			}
			t.emit(ev)
		}
	}
}

func external(typ engine.EventType) bool {
	switch typ {
	case engine.EvtMatchStarted, engine.EvtMatchCompleted, engine.EvtScoreCorrected,
		engine.EvtStandingsDirty, engine.EvtTableauDirty, engine.EvtWalkoverRequired,
		engine.EvtFencerDisqualified:
		return true
	}
	return false
}

func (t *Tournament) emit(ev notify.Event) {
	if t.cfg.Events != nil {
		t.cfg.Events.Enqueue(ev)
	}
}

func (t *Tournament) onSignal(s boutSignal) {
	ev := notify.NewEvent(t.cfg.Code, string(s.Signal))
	ev.MatchID = s.MatchID
	ev.Data = map[string]any{"period": s.Timer.Period, "time_remaining": s.Timer.TimeRemaining}
	t.emit(ev)

	if s.Signal != bout.SignalBoutFinished {
		return
	}
	m, err := t.state.Matches.Get(s.MatchID)
	if err != nil || m.State != match.StateOngoing {
		return
	}
	if m.RedScore == m.GreenScore && !m.SuddenDeath {
		tie := notify.NewEvent(t.cfg.Code, "TieAfterRegulation")
		tie.MatchID = m.ID
		t.emit(tie)
	}
}

// regulationOver reports whether the bout timer of a match has run through
// its last period. Timers are not persisted, so a restored bout has to be run
// out again before it can go to sudden death.
func (t *Tournament) regulationOver(matchID int) bool {
	r, ok := t.Bout(matchID)
	return ok && r.Snapshot().Timer.Phase == bout.PhaseFinished
}

func (t *Tournament) startRunner(matchID int) *bout.Runner {
	t.runnersMu.Lock()
	defer t.runnersMu.Unlock()
	if r, ok := t.runners[matchID]; ok {
		return r
	}
	r := bout.NewRunner(t.ctx, bout.Config{
		MatchID:      matchID,
		Rules:        t.cfg.BoutRules,
		Clock:        t.cfg.Clock,
		TickInterval: t.cfg.TickInterval,
		OnSignal:     t.signal,
		Logger:       t.log,
	})
	t.runners[matchID] = r
	return r
}

func (t *Tournament) stopRunner(matchID int) {
	t.runnersMu.Lock()
	r, ok := t.runners[matchID]
	delete(t.runners, matchID)
	t.runnersMu.Unlock()
	if ok {
		stop(r)
	}
}

func stop(r *bout.Runner) {
	select {
	case r.Inbox() <- bout.Shutdown{}:
	case <-r.Done():
	}
}

func (t *Tournament) toRunner(matchID int, msg bout.Msg) {
	if r, ok := t.Bout(matchID); ok {
		select {
		case r.Inbox() <- msg:
		case <-r.Done():
		}
	}
}

// signal is the runner callback. It runs on the runner goroutine, so the hop
// into the inbox happens on its own goroutine.
func (t *Tournament) signal(matchID int, s bout.Signal, tm bout.Timer) {
	go func() {
		select {
		case t.inbox <- boutSignal{MatchID: matchID, Signal: s, Timer: tm}:
		case <-t.ctx.Done():
		}
	}()
}

func (t *Tournament) snapshot() Snapshot {
	return Snapshot{Code: t.cfg.Code, Version: t.version, State: t.state}
}

func (t *Tournament) publish() {
	s := t.snapshot()
	t.current.Store(&s)
}

func (t *Tournament) shutdown() {
	t.runnersMu.Lock()
	for id, r := range t.runners {
		stop(r)
		delete(t.runners, id)
	}
	t.runnersMu.Unlock()

	for id, ch := range t.clients {
		close(ch) // Tell client no more snapshots
		delete(t.clients, id)
	}
	t.cancel()
}

func (t *Tournament) broadcast(snap Snapshot) {
	for id, ch := range t.clients {
		select {
		case ch <- snap:
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(t.clients, id)
		}
	}
}

func (t *Tournament) Inbox() chan<- Msg { return t.inbox }

func (t *Tournament) Code() string { return t.cfg.Code }

func (t *Tournament) Done() <-chan struct{} { return t.done }

// Snapshot returns the latest committed state without waiting on writers.
func (t *Tournament) Snapshot() Snapshot { return *t.current.Load() }

func (t *Tournament) Bout(matchID int) (*bout.Runner, bool) {
	t.runnersMu.RLock()
	defer t.runnersMu.RUnlock()
	r, ok := t.runners[matchID]
	return r, ok
}

// Do submits a command and waits for it to be applied.
func (t *Tournament) Do(ctx context.Context, cmd engine.Command) (Result, error) {
	reply := make(chan Result, 1)
	select {
	case t.inbox <- Do{Cmd: cmd, Reply: reply}:
	case <-t.done:
		return Result{}, ErrClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res, res.Err
	case <-t.done:
		return Result{}, ErrClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Control forwards a timer command to the bout of an ongoing match.
func (t *Tournament) Control(ctx context.Context, a actor.Actor, matchID int, build func(chan error) bout.Msg) error {
	if err := a.Officiate(); err != nil {
		return err
	}
	r, ok := t.Bout(matchID)
	if !ok {
		if _, err := t.Snapshot().State.Matches.Get(matchID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %d", ErrNoBout, matchID)
	}
	return r.Send(ctx, build)
}
