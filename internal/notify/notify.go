package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Event is what leaves the process: dirty standings, walkovers for the
// bracket engine, and bout alerts.
type Event struct {
	ID         uuid.UUID      `json:"eventId"`
	Type       string         `json:"eventType"`
	Tournament string         `json:"tournamentId"`
	MatchID    int            `json:"matchId,omitempty"`
	Fencer     string         `json:"fencer,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Data       map[string]any `json:"payload,omitempty"`
	At         time.Time      `json:"timestamp"`
}

func NewEvent(tournament, typ string) Event {
	return Event{ID: uuid.New(), Type: typ, Tournament: tournament, At: time.Now().UTC()}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Multi fans an event out to every publisher and reports all failures.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var err error
	for _, p := range m {
		err = multierr.Append(err, p.Publish(ctx, e))
	}
	return err
}

func (m Multi) Close() error {
	var err error
	for _, p := range m {
		err = multierr.Append(err, p.Close())
	}
	return err
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	Log *zap.Logger
}

func (l LogPublisher) Publish(_ context.Context, e Event) error {
	l.Log.Info("event",
		zap.String("event_id", e.ID.String()),
		zap.String("type", e.Type),
		zap.String("tournament", e.Tournament),
		zap.Int("match", e.MatchID),
		zap.String("fencer", e.Fencer),
		zap.Any("payload", e.Data))
	return nil
}

func (LogPublisher) Close() error { return nil }
