package reaper

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signbridge/internal/confirmation/ports"
)

func ledgers(t *testing.T) map[string]ports.OrphanLedger {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]ports.OrphanLedger{
		"redis":  NewRedisLedger(client),
		"memory": NewInMemoryLedger(),
	}
}

func TestOrphanLedgers(t *testing.T) {
	for name, ledger := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, ledger.Add(ctx, "id-b"))
			require.NoError(t, ledger.Add(ctx, "id-a"))
			require.NoError(t, ledger.Add(ctx, "id-b"))

			ids, err := ledger.List(ctx, 0)
			require.NoError(t, err)
			assert.Equal(t, []string{"id-a", "id-b"}, ids)

			ids, err = ledger.List(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, []string{"id-a"}, ids)

			require.NoError(t, ledger.Remove(ctx, "id-a"))
			require.NoError(t, ledger.Remove(ctx, "id-a"))
			ids, err = ledger.List(ctx, 0)
			require.NoError(t, err)
			assert.Equal(t, []string{"id-b"}, ids)
		})
	}
}

func TestRedisLedgerSurfacesErrors(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	ledger := NewRedisLedger(client)
	assert.Error(t, ledger.Add(context.Background(), "id-1"))
	_, err = ledger.List(context.Background(), 10)
	assert.Error(t, err)
}
