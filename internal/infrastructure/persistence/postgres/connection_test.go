package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_PoolConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "postgres://salon:secret@db:5432/salon?sslmode=disable"
	cfg.MaxConns = 20

	pc, err := cfg.poolConfig()
	require.NoError(t, err)

	assert.Equal(t, int32(20), pc.MaxConns)
	assert.Equal(t, int32(2), pc.MinConns)
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)
	assert.Equal(t, "salon-notifier", pc.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "30000", pc.ConnConfig.RuntimeParams["statement_timeout"])
	assert.Equal(t, "db", pc.ConnConfig.Host)
}

func TestConfig_PoolConfigRejectsBadURL(t *testing.T) {
	_, err := Config{URL: "postgres://%zz"}.poolConfig()
	assert.Error(t, err)
}

func TestConnection_ClosedRejectsQueries(t *testing.T) {
	c := &Connection{}
	c.closed.Store(true)
	ctx := context.Background()

	assert.ErrorIs(t, c.Ping(ctx), ErrConnectionClosed)

	_, err := c.Exec(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrConnectionClosed)

	_, err = c.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrConnectionClosed)

	var n int
	assert.ErrorIs(t, c.QueryRow(ctx, "SELECT 1").Scan(&n), ErrConnectionClosed)
}

func TestErrorHelpers(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	assert.True(t, IsUniqueViolation(dup))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))

	assert.True(t, IsNoRows(fmt.Errorf("scan: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(ErrConnectionClosed))
}
