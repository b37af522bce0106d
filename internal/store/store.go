package store

import (
	"context"
	"errors"

	"github.com/DoyleJ11/piste-live-backend/internal/engine"
)

var ErrNotFound = errors.New("tournament not found")
var ErrConflict = errors.New("write conflict")

// Store persists tournament state. Commit must apply every changed row or
// none of them.
type Store interface {
	Create(ctx context.Context, code string, s engine.State) error
	Commit(ctx context.Context, code string, s engine.State, c engine.Changes) error
	Load(ctx context.Context) (map[string]engine.State, error)
	Delete(ctx context.Context, code string) error
	Close() error
}
