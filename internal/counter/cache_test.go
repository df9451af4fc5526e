package counter

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"transferdesk/internal/errors"
)

type fixedSource struct {
	count uint64
	err   error
}

func (s fixedSource) TransactionCount(context.Context) (uint64, error) {
	return s.count, s.err
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cache, err := NewCache(filepath.Join(t.TempDir(), "data", "desk.db"), "", errors.NewErrorHandler(logger), logger)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestLoad_Absent(t *testing.T) {
	cache := newTestCache(t)

	count, err := cache.Load()
	require.NoError(t, err)
	assert.Nil(t, count)
}

func TestStoreAndLoad(t *testing.T) {
	cache := newTestCache(t)

	require.NoError(t, cache.Store(0))
	count, err := cache.Load()
	require.NoError(t, err)
	require.NotNil(t, count)
	assert.Equal(t, uint64(0), *count)

	require.NoError(t, cache.Store(17))
	count, err = cache.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(17), *count)

	require.NoError(t, cache.Reset())
	count, err = cache.Load()
	require.NoError(t, err)
	assert.Nil(t, count)
}

func TestLoad_Unparsable(t *testing.T) {
	cache := newTestCache(t)

	require.NoError(t, cache.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(CounterBucket)).Put([]byte(DefaultKey), []byte("[object Object]"))
	}))

	count, err := cache.Load()
	require.NoError(t, err)
	assert.Nil(t, count)
}

func TestSyncFromChain(t *testing.T) {
	cache := newTestCache(t)

	count, err := cache.SyncFromChain(context.Background(), fixedSource{count: 5})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), count)

	stored, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), *stored)
}

func TestSyncFromChain_Failure(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, cache.Store(3))

	_, err := cache.SyncFromChain(context.Background(), fixedSource{err: errors.ErrWalletNotInjected})
	assert.Equal(t, errors.KindWalletUnavailable, errors.KindOf(err))

	stored, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), *stored)
}

func TestPersistsAcrossReopen(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	path := filepath.Join(t.TempDir(), "desk.db")

	cache, err := NewCache(path, "count", errors.NewErrorHandler(logger), logger)
	require.NoError(t, err)
	require.NoError(t, cache.Store(9))
	require.NoError(t, cache.Close())

	cache, err = NewCache(path, "count", errors.NewErrorHandler(logger), logger)
	require.NoError(t, err)
	defer cache.Close()

	count, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), *count)
}

func countGauge(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "transferdesk_counter_transaction_count" {
			require.Len(t, mf.GetMetric(), 1)
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatal("transaction_count gauge not registered")
	return 0
}

func TestStore_SetsGauge(t *testing.T) {
	cache := newTestCache(t)

	require.NoError(t, cache.Store(42))
	assert.Equal(t, float64(42), countGauge(t))

	_, err := cache.SyncFromChain(context.Background(), fixedSource{count: 7})
	require.NoError(t, err)
	assert.Equal(t, float64(7), countGauge(t))
}
