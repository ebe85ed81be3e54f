package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Name string `json:"name"`
	PTS  int    `json:"pts"`
}

func TestRedisCache_GetJSON(t *testing.T) {
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		c := NewFromClient(db)

		mock.ExpectGet("flooorgang:log:P:2025-11-12").SetVal(`{"name":"LeBron James","pts":31}`)

		var got entry
		ok, err := c.GetJSON(ctx, "log:P:2025-11-12", &got)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, entry{Name: "LeBron James", PTS: 31}, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		c := NewFromClient(db)

		mock.ExpectGet("flooorgang:log:P:2025-11-12").RedisNil()

		var got entry
		ok, err := c.GetJSON(ctx, "log:P:2025-11-12", &got)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt entry is a miss", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		c := NewFromClient(db)

		mock.ExpectGet("flooorgang:k").SetVal(`{not json`)

		var got entry
		ok, err := c.GetJSON(ctx, "k", &got)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("redis error", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		c := NewFromClient(db)

		mock.ExpectGet("flooorgang:k").SetErr(errors.New("connection refused"))

		var got entry
		_, err := c.GetJSON(ctx, "k", &got)
		assert.Error(t, err)
	})
}

func TestRedisCache_SetJSON(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	c := NewFromClient(db)

	mock.ExpectSet("flooorgang:k", []byte(`{"name":"Jalen Brunson","pts":27}`), time.Hour).SetVal("OK")

	err := c.SetJSON(ctx, "k", entry{Name: "Jalen Brunson", PTS: 27}, time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
