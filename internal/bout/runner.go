package bout

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type Msg interface{ isBoutMsg() }

type Pause struct{ Reply chan error }

func (Pause) isBoutMsg() {}

type Resume struct{ Reply chan error }

func (Resume) isBoutMsg() {}

type Adjust struct {
	Delta int
	Reply chan error
}

func (Adjust) isBoutMsg() {}

type TogglePassivity struct{ Reply chan error }

func (TogglePassivity) isBoutMsg() {}

type Reset struct{ Reply chan error }

func (Reset) isBoutMsg() {}

type Extend struct {
	Seconds int
	Reply   chan error
}

func (Extend) isBoutMsg() {}

// ScoreChanged is sent when the live score of the bout moves.
type ScoreChanged struct{}

func (ScoreChanged) isBoutMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Snapshot
}

func (Join) isBoutMsg() {}

type Leave struct{ ClientID string }

func (Leave) isBoutMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isBoutMsg() {}

type Shutdown struct{}

func (Shutdown) isBoutMsg() {}

type Snapshot struct {
	MatchID int
	Version int
	Timer   Timer
}

type View struct {
	Version    int
	NumClients int
	Timer      Timer
}

type Config struct {
	MatchID      int
	Rules        Rules
	Clock        clockwork.Clock
	TickInterval time.Duration
	// OnSignal runs on the runner goroutine and must not block.
	OnSignal func(matchID int, sig Signal, t Timer)
	Logger   *zap.Logger
}

// Runner drives one bout timer from the server clock. Viewers come and go
// without affecting the clock.
type Runner struct {
	cfg     Config
	inbox   chan Msg
	timer   Timer
	version int
	clients map[string]chan Snapshot
	current atomic.Pointer[Snapshot]
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewRunner(parent context.Context, cfg Config) *Runner {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)

	r := &Runner{
		cfg:     cfg,
		inbox:   make(chan Msg, 64),
		timer:   NewTimer(cfg.Rules),
		clients: make(map[string]chan Snapshot),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	r.publish()

	go r.loop()
	return r
}

func (r *Runner) loop() {
	defer close(r.done)
	ticker := r.cfg.Clock.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case <-ticker.Chan():
			if !r.timer.Running {
				continue
			}
			sigs := r.timer.Tick()
			for _, s := range sigs {
				r.cfg.Logger.Debug("bout signal",
					zap.Int("match", r.cfg.MatchID),
					zap.String("signal", string(s)),
					zap.Int("period", r.timer.Period))
				if r.cfg.OnSignal != nil {
					r.cfg.OnSignal(r.cfg.MatchID, s, r.timer)
				}
			}
			r.changed()

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.clients[msg.ClientID] = msg.Outbox
				msg.Outbox <- r.snapshot()

			case Leave:
				if ch, ok := r.clients[msg.ClientID]; ok {
					close(ch)
					delete(r.clients, msg.ClientID)
				}

			case Pause:
				r.timer.Pause()
				r.changed()
				reply(msg.Reply, nil)

			case Resume:
				err := r.timer.Resume()
				if err == nil {
					r.changed()
				}
				reply(msg.Reply, err)

			case Adjust:
				err := r.timer.Adjust(msg.Delta)
				if err == nil {
					r.changed()
				}
				reply(msg.Reply, err)

			case TogglePassivity:
				r.timer.TogglePassivity()
				r.changed()
				reply(msg.Reply, nil)

			case Reset:
				r.timer.Reset()
				r.changed()
				reply(msg.Reply, nil)

			case Extend:
				err := r.timer.Extend(msg.Seconds)
				if err == nil {
					r.changed()
				}
				reply(msg.Reply, err)

			case ScoreChanged:
				r.timer.ScoreChanged()
				r.changed()

			case GetState:
				msg.Reply <- View{
					Version:    r.version,
					NumClients: len(r.clients),
					Timer:      r.timer,
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func reply(ch chan error, err error) {
	if ch != nil {
		ch <- err
	}
}

func (r *Runner) changed() {
	r.version++
	r.publish()
	r.broadcast(r.snapshot())
}

func (r *Runner) snapshot() Snapshot {
	return Snapshot{MatchID: r.cfg.MatchID, Version: r.version, Timer: r.timer}
}

func (r *Runner) publish() {
	s := r.snapshot()
	r.current.Store(&s)
}

func (r *Runner) shutdown() {
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.cancel()
}

func (r *Runner) broadcast(snap Snapshot) {
	for id, ch := range r.clients {
		select {
		case ch <- snap:
		default:
			// Slow viewer; the clock keeps running without it.
			close(ch)
			delete(r.clients, id)
		}
	}
}

func (r *Runner) Inbox() chan<- Msg { return r.inbox }

// Snapshot returns the latest published timer state without touching the inbox.
func (r *Runner) Snapshot() Snapshot { return *r.current.Load() }

// Done is closed once the runner goroutine has exited.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Send delivers a control message and waits for its reply.
func (r *Runner) Send(ctx context.Context, build func(chan error) Msg) error {
	ch := make(chan error, 1)
	select {
	case r.inbox <- build(ch):
	case <-r.done:
		return ErrBoutFinished
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-ch:
		return err
	case <-r.done:
		return ErrBoutFinished
	case <-ctx.Done():
		return ctx.Err()
	}
}
