package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_Set(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	cache := NewRedisCache(client)

	value := []PointRecord{{ID: 1, Name: "Artium"}}
	data, _ := json.Marshal(value)
	mock.ExpectSet("k", data, time.Minute).SetVal("OK")

	require.NoError(t, cache.Set(ctx, "k", value, time.Minute))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_SetMarshalError(t *testing.T) {
	client, _ := redismock.NewClientMock()
	cache := NewRedisCache(client)

	err := cache.Set(context.Background(), "k", make(chan int), time.Minute)
	var typeErr *json.UnsupportedTypeError
	assert.ErrorAs(t, err, &typeErr)
}

func TestRedisCache_Get(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name      string
		setupMock func(mock redismock.ClientMock)
		want      string
		wantErr   error
	}{
		{
			name:      "Hit",
			setupMock: func(mock redismock.ClientMock) { mock.ExpectGet("k").SetVal(`[{"id":1}]`) },
			want:      `[{"id":1}]`,
		},
		{
			name:      "Miss",
			setupMock: func(mock redismock.ClientMock) { mock.ExpectGet("k").RedisNil() },
			wantErr:   ErrCacheMiss,
		},
		{
			name:      "Redis error",
			setupMock: func(mock redismock.ClientMock) { mock.ExpectGet("k").SetErr(errors.New("redis down")) },
			wantErr:   errors.New("redis down"),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client, mock := redismock.NewClientMock()
			tc.setupMock(mock)

			got, err := NewRedisCache(client).Get(ctx, "k")
			if tc.wantErr != nil {
				assert.EqualError(t, err, tc.wantErr.Error())
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRedisCache_Flush(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectFlushDB().SetVal("OK")

	require.NoError(t, NewRedisCache(client).Flush(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, "k", "v", time.Minute))
	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `"v"`, got)

	now = now.Add(time.Minute)
	_, err = cache.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Flush(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()
	require.NoError(t, cache.Set(ctx, "k", 1, 0))
	require.NoError(t, cache.Flush(ctx))

	_, err := cache.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
