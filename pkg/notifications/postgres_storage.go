package notifications

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/inkpress/coord/pkg/pg"
)

// pgExecutor is satisfied by *pgxpool.Pool and by pgxmock pools.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var notificationColumns = []string{
	"id", "user_id", "type", "title", "message", "content", "actor_id", "read", "created_at",
}

// PostgresStorage stores notifications in the notifications table and the
// unread counter in users.unread_notifications.
type PostgresStorage struct {
	db      pgExecutor
	builder squirrel.StatementBuilderType
}

func NewPostgresStorage(db pgExecutor) *PostgresStorage {
	return &PostgresStorage{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (s *PostgresStorage) Insert(ctx context.Context, userID string, notifs []Notification) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	if len(notifs) == 0 {
		return nil
	}

	insert := s.builder.Insert("notifications").Columns(notificationColumns...)
	unread := 0
	for _, n := range notifs {
		if n.UserID != userID {
			return ErrUserIDRequired
		}
		content, err := marshalContent(n.Content)
		if err != nil {
			return errors.Join(ErrInvalidContent, err)
		}
		insert = insert.Values(n.ID, n.UserID, string(n.Type), n.Title, n.Message, []byte(content), nullable(n.ActorID), n.Read, n.CreatedAt)
		if !n.Read {
			unread++
		}
	}

	sql, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build insert notifications sql: %w", err)
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert notifications: %w", err)
		}
		if unread == 0 {
			return nil
		}
		return s.addUnread(ctx, tx, userID, unread)
	})
}

func (s *PostgresStorage) Get(ctx context.Context, userID, id string) (Notification, error) {
	sql, args, err := s.builder.Select(notificationColumns...).
		From("notifications").
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return Notification{}, fmt.Errorf("build select notification sql: %w", err)
	}

	n, err := scanNotification(s.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return Notification{}, ErrNotificationNotFound
		}
		return Notification{}, fmt.Errorf("select notification: %w", err)
	}
	return n, nil
}

func (s *PostgresStorage) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, int, error) {
	opts = opts.Normalize()

	filter := squirrel.Eq{"user_id": userID}
	if opts.Type != "" {
		filter["type"] = string(opts.Type)
	}
	if opts.Read != nil {
		filter["read"] = *opts.Read
	}

	countSQL, countArgs, err := s.builder.Select("count(*)").From("notifications").Where(filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count notifications sql: %w", err)
	}

	var total int
	if err := s.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	if total == 0 {
		return []Notification{}, 0, nil
	}

	sql, args, err := s.builder.Select(notificationColumns...).
		From("notifications").
		Where(filter).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(opts.Limit)).
		Offset(uint64(opts.Offset())).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list notifications sql: %w", err)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0, opts.Limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate notifications: %w", err)
	}

	return items, total, nil
}

func (s *PostgresStorage) MarkRead(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	sql, args, err := s.builder.Update("notifications").
		Set("read", true).
		Where(squirrel.Eq{"user_id": userID, "id": ids, "read": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build mark read sql: %w", err)
	}

	var changed int
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("mark notifications read: %w", err)
		}
		changed = int(tag.RowsAffected())
		if changed == 0 {
			return nil
		}
		return s.addUnread(ctx, tx, userID, -changed)
	})
	return changed, err
}

func (s *PostgresStorage) MarkAllRead(ctx context.Context, userID string) (int, error) {
	sql, args, err := s.builder.Update("notifications").
		Set("read", true).
		Where(squirrel.Eq{"user_id": userID, "read": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build mark all read sql: %w", err)
	}

	var changed int
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("mark all notifications read: %w", err)
		}
		changed = int(tag.RowsAffected())
		if _, err := tx.Exec(ctx, "UPDATE users SET unread_notifications = 0 WHERE id = $1", userID); err != nil {
			return fmt.Errorf("reset unread counter: %w", err)
		}
		return nil
	})
	return changed, err
}

func (s *PostgresStorage) Delete(ctx context.Context, userID, id string) (bool, error) {
	sql, args, err := s.builder.Delete("notifications").
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		Suffix("RETURNING read").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete notification sql: %w", err)
	}

	var wasUnread bool
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		var read bool
		if err := tx.QueryRow(ctx, sql, args...).Scan(&read); err != nil {
			if pg.IsNotFoundError(err) {
				return ErrNotificationNotFound
			}
			return fmt.Errorf("delete notification: %w", err)
		}
		wasUnread = !read
		if !wasUnread {
			return nil
		}
		return s.addUnread(ctx, tx, userID, -1)
	})
	return wasUnread, err
}

func (s *PostgresStorage) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, "SELECT unread_notifications FROM users WHERE id = $1", userID).Scan(&n)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("select unread counter: %w", err)
	}
	return n, nil
}

func (s *PostgresStorage) Recount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `UPDATE users SET unread_notifications = (
		SELECT count(*) FROM notifications WHERE user_id = $1 AND read = false
	) WHERE id = $1 RETURNING unread_notifications`, userID).Scan(&n)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("recount unread notifications: %w", err)
	}
	return n, nil
}

// addUnread adjusts the counter by delta, never below zero.
func (s *PostgresStorage) addUnread(ctx context.Context, tx pgx.Tx, userID string, delta int) error {
	_, err := tx.Exec(ctx,
		"UPDATE users SET unread_notifications = GREATEST(unread_notifications + $1, 0) WHERE id = $2",
		delta, userID,
	)
	if err != nil {
		return fmt.Errorf("update unread counter: %w", err)
	}
	return nil
}

func (s *PostgresStorage) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func scanNotification(row pgx.Row) (Notification, error) {
	var (
		n       Notification
		typ     string
		content []byte
		actorID *string
	)
	if err := row.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Message, &content, &actorID, &n.Read, &n.CreatedAt); err != nil {
		return Notification{}, err
	}

	n.Type = Type(typ)
	if actorID != nil {
		n.ActorID = *actorID
	}

	c, err := DecodeContent(n.Type, content)
	if err != nil {
		return Notification{}, err
	}
	n.Content = c
	return n, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ Storage = (*PostgresStorage)(nil)
