package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
	block  chan struct{}
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recorder) Close() error { return r.err }

func (r *recorder) got() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestMulti_CombinesErrors(t *testing.T) {
	a := &recorder{err: errors.New("a down")}
	b := &recorder{}
	c := &recorder{err: errors.New("c down")}

	err := Multi{a, b, c}.Publish(context.Background(), NewEvent("T1", "StandingsDirty"))
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Len(t, b.got(), 1, "healthy publisher still receives the event")
}

func TestDispatcher_PublishesInOrderAndDrains(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, 8, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	go func() { _ = d.Run(ctx) }()
	for _, typ := range []string{"MatchStarted", "MatchCompleted", "StandingsDirty"} {
		d.Enqueue(NewEvent("T1", typ))
	}

	assert.Eventually(t, func() bool { return len(rec.got()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}

	got := rec.got()
	assert.Equal(t, "MatchStarted", got[0].Type)
	assert.Equal(t, "StandingsDirty", got[2].Type)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rec := &recorder{block: make(chan struct{})}
	d := NewDispatcher(rec, 1, zap.New(core))

	// nothing is consuming yet, so the second enqueue overflows
	d.Enqueue(NewEvent("T1", "A"))
	d.Enqueue(NewEvent("T1", "B"))

	assert.Equal(t, 1, logs.FilterMessage("event queue full, dropping event").Len())
	close(rec.block)
}

func TestDispatcher_LogsPublishErrors(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	rec := &recorder{err: errors.New("broker down")}
	d := NewDispatcher(rec, 4, zap.New(core))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	d.Enqueue(NewEvent("T1", "WalkoverRequired"))
	assert.Eventually(t, func() bool {
		return logs.FilterMessage("publish event").Len() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestJetStreamConfig_Subject(t *testing.T) {
	cfg := DefaultJetStreamConfig()
	e := NewEvent("AB12CD", "TableauDirty")
	assert.Equal(t, "piste.events.ab12cd.TableauDirty", cfg.Subject(e))
}
