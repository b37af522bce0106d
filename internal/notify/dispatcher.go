package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher publishes events off the request path. Enqueue never blocks;
// when the buffer is full the event is dropped and logged.
type Dispatcher struct {
	pub     Publisher
	log     *zap.Logger
	queue   chan Event
	timeout time.Duration
	once    sync.Once
	done    chan struct{}
}

func NewDispatcher(pub Publisher, buffer int, log *zap.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		pub:     pub,
		log:     log,
		queue:   make(chan Event, buffer),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
}

func (d *Dispatcher) Enqueue(e Event) {
	select {
	case d.queue <- e:
	default:
		d.log.Warn("event queue full, dropping event",
			zap.String("type", e.Type),
			zap.String("tournament", e.Tournament),
			zap.Int("match", e.MatchID))
	}
}

// Run publishes until ctx is cancelled, then drains what is already queued.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.once.Do(func() { close(d.done) })
	for {
		select {
		case e := <-d.queue:
			d.publish(context.WithoutCancel(ctx), e)
		case <-ctx.Done():
			for {
				select {
				case e := <-d.queue:
					d.publish(context.WithoutCancel(ctx), e)
				default:
					return nil
				}
			}
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, e Event) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.pub.Publish(ctx, e); err != nil {
		d.log.Error("publish event",
			zap.String("type", e.Type),
			zap.String("tournament", e.Tournament),
			zap.String("event_id", e.ID.String()),
			zap.Error(err))
	}
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }
