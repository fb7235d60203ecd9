// Package relica provides a SQL-backed dead-letter repository using the
// Relica query builder over MySQL, PostgreSQL, or SQLite.
package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/relica"

	"github.com/coregx/mqttbridge"
	"github.com/coregx/mqttbridge/model"
)

// DeadLetterRepository implements mqttbridge.DeadLetterRepository using
// Relica. Apply mqttbridge.MigrationFiles before first use.
type DeadLetterRepository struct {
	db *relica.DB
}

// NewDeadLetterRepository creates a repository over an open *sql.DB.
// driverName should be "mysql", "postgres", or "sqlite3".
func NewDeadLetterRepository(sqlDB *sql.DB, driverName string) *DeadLetterRepository {
	return &DeadLetterRepository{db: relica.WrapDB(sqlDB, driverName)}
}

func (r *DeadLetterRepository) tableName() string {
	return model.DeadLetter{}.TableName()
}

// Save persists a dead-letter record, inserting when ID is zero and
// updating otherwise.
func (r *DeadLetterRepository) Save(ctx context.Context, dl model.DeadLetter) (model.DeadLetter, error) {
	if dl.ID == 0 {
		err := r.db.WithContext(ctx).Model(&dl).Table(r.tableName()).Insert()
		if err != nil {
			return dl, mqttbridge.NewErrorWithCause(mqttbridge.ErrCodeStorage, "failed to insert dead letter", err)
		}
		return dl, nil
	}

	err := r.db.WithContext(ctx).Model(&dl).Table(r.tableName()).Update()
	if err != nil {
		return dl, mqttbridge.NewErrorWithCause(mqttbridge.ErrCodeStorage, "failed to update dead letter", err)
	}
	return dl, nil
}

// Load retrieves a record by ID.
func (r *DeadLetterRepository) Load(ctx context.Context, id int64) (model.DeadLetter, error) {
	var dl model.DeadLetter
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&dl)
	if errors.Is(err, sql.ErrNoRows) {
		return dl, mqttbridge.NewError(mqttbridge.ErrCodeStorage, "dead letter not found")
	}
	if err != nil {
		return dl, mqttbridge.NewErrorWithCause(mqttbridge.ErrCodeStorage, "failed to load dead letter", err)
	}
	return dl, nil
}

// FindUnresolved retrieves up to limit unresolved records, oldest first.
func (r *DeadLetterRepository) FindUnresolved(ctx context.Context, limit int) ([]model.DeadLetter, error) {
	var dls []model.DeadLetter
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("is_resolved = ?", false).
		OrderBy("abandoned_at ASC").
		Limit(int64(limit)).
		All(&dls)
	if err != nil {
		return nil, mqttbridge.NewErrorWithCause(mqttbridge.ErrCodeStorage, "failed to find unresolved dead letters", err)
	}
	return dls, nil
}

// Resolve marks a record as handled by an operator.
func (r *DeadLetterRepository) Resolve(ctx context.Context, id int64, note string) error {
	dl, err := r.Load(ctx, id)
	if err != nil {
		return err
	}
	dl.Resolve(note)
	_, err = r.Save(ctx, dl)
	return err
}

// Stats returns aggregate dead-letter counts.
func (r *DeadLetterRepository) Stats(ctx context.Context) (model.DeadLetterStats, error) {
	stats := model.DeadLetterStats{LastUpdated: time.Now()}

	var total struct {
		Count int `db:"count"`
	}
	err := r.db.WithContext(ctx).Select("COUNT(*) AS count").From(r.tableName()).One(&total)
	if err != nil {
		return stats, mqttbridge.NewErrorWithCause(mqttbridge.ErrCodeStorage, "failed to count dead letters", err)
	}
	stats.TotalItems = total.Count

	var resolved struct {
		Count int `db:"count"`
	}
	err = r.db.WithContext(ctx).Select("COUNT(*) AS count").
		From(r.tableName()).
		Where("is_resolved = ?", true).
		One(&resolved)
	if err != nil {
		return stats, mqttbridge.NewErrorWithCause(mqttbridge.ErrCodeStorage, "failed to count resolved dead letters", err)
	}
	stats.ResolvedItems = resolved.Count
	stats.UnresolvedItems = stats.TotalItems - stats.ResolvedItems

	return stats, nil
}
