package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"MidgardPull/internal/domain/models"
	pgpkg "MidgardPull/pkg/postgres"
)

// setupTestStore starts a disposable Postgres, applies the schema and returns
// a ready store. Skipped under -short.
func setupTestStore(t *testing.T) (*PGIntervalStore, *pgpkg.Client) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres-backed test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("midgard"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := pgpkg.NewClient(ctx, dsn, pgpkg.WithPoolSize(4, 1))
	require.NoError(t, err)
	t.Cleanup(client.Close)

	store := NewPGIntervalStore(client, nil)
	require.NoError(t, store.Init(ctx))
	// schema is idempotent
	require.NoError(t, store.Init(ctx))
	return store, client
}

func countRows(t *testing.T, db *pgpkg.Client, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(context.Background(), "SELECT count(*) FROM "+table).Scan(&n))
	return n
}

func depthAt(start, end int64) models.DepthInterval {
	return models.DepthInterval{
		AssetDepth:     "1000",
		AssetPrice:     "12.5",
		AssetPriceUSD:  "61234.123456789012345678",
		EndTime:        fmt.Sprint(end),
		LiquidityUnits: "42",
		Luvi:           "0.01",
		MembersCount:   "7",
		RuneDepth:      fmt.Sprint(end - start),
		StartTime:      fmt.Sprint(start),
		SynthSupply:    "0",
		SynthUnits:     "0",
		Units:          "42",
	}
}

func earningsAt(start, end int64, pools ...string) models.EarningInterval {
	e := models.EarningInterval{
		AvgNodeCount:      "100",
		BlockRewards:      "5",
		BondingEarnings:   "3",
		Earnings:          fmt.Sprint(end),
		EndTime:           fmt.Sprint(end),
		LiquidityEarnings: "2",
		LiquidityFees:     "1",
		RunePriceUSD:      "1.5",
		StartTime:         fmt.Sprint(start),
	}
	for _, p := range pools {
		e.Pools = append(e.Pools, models.Pool{
			AssetLiquidityFees:     "1",
			Earnings:               "2",
			Pool:                   p,
			Rewards:                "3",
			RuneLiquidityFees:      "4",
			SaverEarning:           "5",
			TotalLiquidityFeesRune: "6",
		})
	}
	return e
}

func hourlyDepth(from int64, n int) []models.DepthInterval {
	out := make([]models.DepthInterval, n)
	for i := 0; i < n; i++ {
		start := from + int64(i)*3600
		out[i] = depthAt(start, start+3600)
	}
	return out
}
