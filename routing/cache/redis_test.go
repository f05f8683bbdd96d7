// SPDX-License-Identifier: jobmesh License 1.0

package cache

import (
	"testing"
	stdlibtime "time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCacheGetHit(t *testing.T) {
	t.Parallel()
	db, mock := redismock.NewClientMock()
	cache := NewRedisFromClient(db, "segments:", stdlibtime.Hour, false)
	defer func() { require.NoError(t, cache.Close()) }()

	mock.ExpectGet("segments:es:routes.jobs").SetVal("empleos")

	value, found := cache.Get("es:routes.jobs")
	require.True(t, found)
	assert.Equal(t, "empleos", value)
	assert.EqualValues(t, 1, cache.Stats().Hits)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheGetMiss(t *testing.T) {
	t.Parallel()
	db, mock := redismock.NewClientMock()
	cache := NewRedisFromClient(db, "segments:", stdlibtime.Hour, false)
	defer func() { require.NoError(t, cache.Close()) }()

	mock.ExpectGet("segments:es:routes.bogus").RedisNil()

	value, found := cache.Get("es:routes.bogus")
	require.False(t, found)
	assert.Empty(t, value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheGetSlidingTTL(t *testing.T) {
	t.Parallel()
	db, mock := redismock.NewClientMock()
	cache := NewRedisFromClient(db, "segments:", stdlibtime.Hour, true)
	defer func() { require.NoError(t, cache.Close()) }()

	mock.ExpectGetEx("segments:es:routes.jobs", stdlibtime.Hour).SetVal("empleos")

	value, found := cache.Get("es:routes.jobs")
	require.True(t, found)
	assert.Equal(t, "empleos", value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheSet(t *testing.T) {
	t.Parallel()
	db, mock := redismock.NewClientMock()
	cache := NewRedisFromClient(db, "segments:", stdlibtime.Hour, false)
	defer func() { require.NoError(t, cache.Close()) }()

	mock.ExpectSet("segments:es:routes.jobs", "empleos", stdlibtime.Hour).SetVal("OK")

	cache.Set("es:routes.jobs", "empleos")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheTransportErrorsCountAsMisses(t *testing.T) {
	t.Parallel()
	db, mock := redismock.NewClientMock()
	cache := NewRedisFromClient(db, "segments:", stdlibtime.Hour, false)
	defer func() { require.NoError(t, cache.Close()) }()

	mock.ExpectGet("segments:es:routes.jobs").SetErr(assert.AnError)

	value, found := cache.Get("es:routes.jobs")
	require.False(t, found)
	assert.Empty(t, value)
	assert.EqualValues(t, 1, cache.Stats().Misses)
}

func TestRedisCacheLenAndClear(t *testing.T) {
	t.Parallel()
	db, mock := redismock.NewClientMock()
	cache := NewRedisFromClient(db, "segments:", stdlibtime.Hour, false)
	defer func() { require.NoError(t, cache.Close()) }()

	mock.ExpectScan(0, "segments:*", scanBatchSize).SetVal([]string{"segments:a", "segments:b"}, 0)
	assert.Equal(t, 2, cache.Len())

	mock.ExpectScan(0, "segments:*", scanBatchSize).SetVal([]string{"segments:a", "segments:b"}, 0)
	mock.ExpectDel("segments:a", "segments:b").SetVal(2)
	cache.Clear()
	require.NoError(t, mock.ExpectationsWereMet())
}
