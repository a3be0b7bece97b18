package viewcount

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Counter applies an additive update to the persistent counter of an
// entity.
type Counter interface {
	Add(ctx context.Context, entityID string, delta int64) error
}

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresCounter adds to stories.read_count in a single statement, so
// concurrent adds never lose updates. updated_at is left alone: a view is
// not an edit.
type PostgresCounter struct {
	db pgExecutor
}

func NewPostgresCounter(db pgExecutor) *PostgresCounter {
	return &PostgresCounter{db: db}
}

const addReadCountSQL = `UPDATE stories SET read_count = read_count + $1 WHERE id = $2`

func (c *PostgresCounter) Add(ctx context.Context, entityID string, delta int64) error {
	if entityID == "" {
		return ErrEntityIDRequired
	}
	if delta == 0 {
		return nil
	}

	tag, err := c.db.Exec(ctx, addReadCountSQL, delta, entityID)
	if err != nil {
		return fmt.Errorf("add read count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntityNotFound
	}
	return nil
}
