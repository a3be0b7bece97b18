package notifications

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStorage(t *testing.T) (*PostgresStorage, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStorage(mock), mock
}

var notificationRowColumns = []string{
	"id", "user_id", "type", "title", "message", "content", "actor_id", "read", "created_at",
}

func TestPostgresStorage_Insert(t *testing.T) {
	t.Parallel()

	s, mock := newMockStorage(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := Notification{
		ID:        "n1",
		UserID:    "u",
		Type:      TypeLike,
		Title:     "New like",
		Content:   LikeContent{StoryID: "s1"},
		CreatedAt: created,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications (id,user_id,type,title,message,content,actor_id,read,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)")).
		WithArgs("n1", "u", "like", "New like", "", pgxmock.AnyArg(), pgxmock.AnyArg(), false, created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET unread_notifications = GREATEST(unread_notifications + $1, 0) WHERE id = $2")).
		WithArgs(1, "u").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, s.Insert(context.Background(), "u", []Notification{n}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_InsertRollsBackOnCounterFailure(t *testing.T) {
	t.Parallel()

	s, mock := newMockStorage(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO notifications").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec("UPDATE users SET unread_notifications").
		WithArgs(2, "u").
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	err := s.Insert(context.Background(), "u", []Notification{
		{ID: "a", UserID: "u", Type: TypeSystem, Title: "a"},
		{ID: "b", UserID: "u", Type: TypeSystem, Title: "b"},
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_Get(t *testing.T) {
	t.Parallel()

	s, mock := newMockStorage(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	actor := "actor-1"

	mock.ExpectQuery(regexp.QuoteMeta("FROM notifications WHERE id = $1 AND user_id = $2")).
		WithArgs("n1", "u").
		WillReturnRows(pgxmock.NewRows(notificationRowColumns).
			AddRow("n1", "u", "follow", "New follower", "", []byte(`{"followerId":"f1"}`), &actor, true, created))

	n, err := s.Get(context.Background(), "u", "n1")
	require.NoError(t, err)
	assert.Equal(t, TypeFollow, n.Type)
	assert.Equal(t, FollowContent{FollowerID: "f1"}, n.Content)
	assert.Equal(t, "actor-1", n.ActorID)
	assert.True(t, n.Read)

	mock.ExpectQuery("FROM notifications WHERE id").
		WithArgs("missing", "u").
		WillReturnError(pgx.ErrNoRows)

	_, err = s.Get(context.Background(), "u", "missing")
	assert.ErrorIs(t, err, ErrNotificationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_List(t *testing.T) {
	t.Parallel()

	s, mock := newMockStorage(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	actor := "a"
	unread := false

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM notifications WHERE read = $1 AND type = $2 AND user_id = $3")).
		WithArgs(false, "comment", "u").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE read = $1 AND type = $2 AND user_id = $3 ORDER BY created_at DESC, id DESC LIMIT 5 OFFSET 5")).
		WithArgs(false, "comment", "u").
		WillReturnRows(pgxmock.NewRows(notificationRowColumns).
			AddRow("n6", "u", "comment", "t", "m", []byte(`{"storyId":"s","commentId":"c"}`), &actor, false, created).
			AddRow("n7", "u", "comment", "t", "m", []byte(nil), &actor, false, created))

	items, total, err := s.List(context.Background(), "u", ListOptions{Page: 2, Limit: 5, Type: TypeComment, Read: &unread})
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	require.Len(t, items, 2)
	assert.Equal(t, CommentContent{StoryID: "s", CommentID: "c"}, items[0].Content)
	assert.Nil(t, items[1].Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_ListEmptySkipsSelect(t *testing.T) {
	t.Parallel()

	s, mock := newMockStorage(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM notifications WHERE user_id = $1")).
		WithArgs("u").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	items, total, err := s.List(context.Background(), "u", ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_MarkReadDecrementsChangedRows(t *testing.T) {
	t.Parallel()

	s, mock := newMockStorage(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET read = $1 WHERE id IN ($2,$3) AND read = $4 AND user_id = $5")).
		WithArgs(true, "n1", "n2", false, "u").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE users SET unread_notifications = GREATEST").
		WithArgs(-1, "u").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	n, err := s.MarkRead(context.Background(), "u", []string{"n1", "n2"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_MarkReadNothingChanged(t *testing.T) {
	t.Parallel()

	s, mock := newMockStorage(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE notifications SET read").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectCommit()

	n, err := s.MarkRead(context.Background(), "u", []string{"n1"})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_MarkAllReadResetsCounter(t *testing.T) {
	t.Parallel()

	s, mock := newMockStorage(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET read = $1 WHERE read = $2 AND user_id = $3")).
		WithArgs(true, false, "u").
		WillReturnResult(pgxmock.NewResult("UPDATE", 7))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET unread_notifications = 0 WHERE id = $1")).
		WithArgs("u").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	n, err := s.MarkAllRead(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_Delete(t *testing.T) {
	t.Parallel()

	s, mock := newMockStorage(t)
	deleteSQL := regexp.QuoteMeta("DELETE FROM notifications WHERE id = $1 AND user_id = $2 RETURNING read")

	// Unread row decrements the counter.
	mock.ExpectBegin()
	mock.ExpectQuery(deleteSQL).
		WithArgs("n1", "u").
		WillReturnRows(pgxmock.NewRows([]string{"read"}).AddRow(false))
	mock.ExpectExec("UPDATE users SET unread_notifications = GREATEST").
		WithArgs(-1, "u").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	wasUnread, err := s.Delete(context.Background(), "u", "n1")
	require.NoError(t, err)
	assert.True(t, wasUnread)

	// Read row leaves it alone.
	mock.ExpectBegin()
	mock.ExpectQuery(deleteSQL).
		WithArgs("n2", "u").
		WillReturnRows(pgxmock.NewRows([]string{"read"}).AddRow(true))
	mock.ExpectCommit()

	wasUnread, err = s.Delete(context.Background(), "u", "n2")
	require.NoError(t, err)
	assert.False(t, wasUnread)

	// Missing row.
	mock.ExpectBegin()
	mock.ExpectQuery(deleteSQL).
		WithArgs("n3", "u").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err = s.Delete(context.Background(), "u", "n3")
	assert.ErrorIs(t, err, ErrNotificationNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_UnreadCountAndRecount(t *testing.T) {
	t.Parallel()

	s, mock := newMockStorage(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT unread_notifications FROM users WHERE id = $1")).
		WithArgs("u").
		WillReturnRows(pgxmock.NewRows([]string{"unread_notifications"}).AddRow(9))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT unread_notifications FROM users WHERE id = $1")).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET unread_notifications = (")).
		WithArgs("u").
		WillReturnRows(pgxmock.NewRows([]string{"unread_notifications"}).AddRow(4))

	ctx := context.Background()

	n, err := s.UnreadCount(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	n, err = s.UnreadCount(ctx, "ghost")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.Recount(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}
