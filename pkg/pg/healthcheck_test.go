package pg_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/coord/pkg/pg"
)

func TestHealthcheck(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewConn(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	check := pg.Healthcheck(mock)
	assert.NoError(t, check(context.Background()))
	assert.ErrorIs(t, check(context.Background()), pg.ErrHealthcheckFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
