package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/piste-live-backend/internal/engine"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// GormStore keeps tournaments in Postgres.
type GormStore struct {
	db  *gorm.DB
	log *zap.Logger
}

func OpenPostgres(dsn string, log *zap.Logger) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewGormStore(db, log)
}

func NewGormStore(db *gorm.DB, log *zap.Logger) (*GormStore, error) {
	if err := db.AutoMigrate(&Tournament{}, &Match{}, &Piste{}, &Ineligible{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormStore{db: db, log: log}, nil
}

func (g *GormStore) Create(ctx context.Context, code string, s engine.State) error {
	t := fromStage(code, s)
	ms, ps, in := rows(code, s, allChanges(s))

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&t).Error; err != nil {
			return fmt.Errorf("create tournament: %w", err)
		}
		return upsert(tx, ms, ps, in)
	})
	return mapErr(err)
}

func (g *GormStore) Commit(ctx context.Context, code string, s engine.State, c engine.Changes) error {
	if c.Empty() {
		return nil
	}
	ms, ps, in := rows(code, s, c)

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t Tournament
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ?", code).
			First(&t).Error; err != nil {
			return fmt.Errorf("lock tournament %s: %w", code, err)
		}
		if c.Stage {
			if err := tx.Model(&t).Updates(map[string]interface{}{
				"stage_name":            s.Stage.Name,
				"elimination_threshold": s.Stage.EliminationThreshold,
			}).Error; err != nil {
				return fmt.Errorf("update stage: %w", err)
			}
		}
		return upsert(tx, ms, ps, in)
	})
	if err != nil {
		g.log.Error("commit failed",
			zap.String("tournament", code),
			zap.Ints("matches", c.Matches),
			zap.Ints("pistes", c.Pistes),
			zap.Error(err))
	}
	return mapErr(err)
}

func upsert(tx *gorm.DB, ms []Match, ps []Piste, in []Ineligible) error {
	if len(ms) > 0 {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&ms).Error; err != nil {
			return fmt.Errorf("save matches: %w", err)
		}
	}
	if len(ps) > 0 {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&ps).Error; err != nil {
			return fmt.Errorf("save pistes: %w", err)
		}
	}
	if len(in) > 0 {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&in).Error; err != nil {
			return fmt.Errorf("save ineligible fencers: %w", err)
		}
	}
	return nil
}

func (g *GormStore) Load(ctx context.Context) (map[string]engine.State, error) {
	db := g.db.WithContext(ctx)

	var ts []Tournament
	if err := db.Find(&ts).Error; err != nil {
		return nil, fmt.Errorf("load tournaments: %w", err)
	}

	out := make(map[string]engine.State, len(ts))
	for _, t := range ts {
		var ms []Match
		var ps []Piste
		var in []Ineligible
		if err := db.Where("tournament_code = ?", t.Code).Order("seq").Find(&ms).Error; err != nil {
			return nil, fmt.Errorf("load matches of %s: %w", t.Code, err)
		}
		if err := db.Where("tournament_code = ?", t.Code).Order("number").Find(&ps).Error; err != nil {
			return nil, fmt.Errorf("load pistes of %s: %w", t.Code, err)
		}
		if err := db.Where("tournament_code = ?", t.Code).Find(&in).Error; err != nil {
			return nil, fmt.Errorf("load ineligible fencers of %s: %w", t.Code, err)
		}
		s, err := assemble(t, ms, ps, in)
		if err != nil {
			return nil, fmt.Errorf("rebuild %s: %w", t.Code, err)
		}
		out[t.Code] = s
	}
	return out, nil
}

func (g *GormStore) Delete(ctx context.Context, code string) error {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{&Match{}, &Piste{}, &Ineligible{}} {
			if err := tx.Where("tournament_code = ?", code).Delete(model).Error; err != nil {
				return err
			}
		}
		res := tx.Where("code = ?", code).Delete(&Tournament{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	return mapErr(err)
}

func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// mapErr folds driver errors into the package sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
	}
	return err
}
