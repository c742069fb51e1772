package midgard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	drepo "MidgardPull/internal/domain/repository"
	"MidgardPull/internal/service/ratelimit"
)

func newTestServer(t *testing.T, status int, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_FetchDepth(t *testing.T) {
	body := `{"intervals":[
		{"assetDepth":"100","assetPrice":"1.5","assetPriceUSD":"61000.123456789","endTime":"1700003600","liquidityUnits":"10","luvi":"NaN","membersCount":"3","runeDepth":"150","startTime":"1700000000","synthSupply":"0","synthUnits":"0","units":"10"},
		{"assetDepth":"101","assetPrice":"1.6","assetPriceUSD":"61001","endTime":"1700007200","liquidityUnits":"10","luvi":"0.5","membersCount":"3","runeDepth":"151","startTime":"1700003600","synthSupply":"0","synthUnits":"0","units":"10"}
	],"meta":{}}`

	srv := newTestServer(t, http.StatusOK, body, func(r *http.Request) {
		assert.Equal(t, "/v2/history/depths/ETH.ETH", r.URL.Path)
		assert.Equal(t, "hour", r.URL.Query().Get("interval"))
		assert.Equal(t, "400", r.URL.Query().Get("count"))
		assert.Equal(t, "1700000000", r.URL.Query().Get("from"))
	})

	c := New(srv.URL+"/", 5*time.Second, WithPool("ETH.ETH"))
	got, err := c.FetchDepth(context.Background(), 1700000000, 400)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "61000.123456789", got[0].AssetPriceUSD)
	assert.Equal(t, "NaN", got[0].Luvi)
	assert.Equal(t, "1700007200", got[1].EndTime)
}

func TestClient_FetchEarningsWithPools(t *testing.T) {
	body := `{"intervals":[{"avgNodeCount":"90","blockRewards":"1","bondingEarnings":"2","earnings":"3","endTime":"200","liquidityEarnings":"4","liquidityFees":"5","runePriceUSD":"1.2","startTime":"100",
		"pools":[{"assetLiquidityFees":"1","earnings":"2","pool":"BTC.BTC","rewards":"3","runeLiquidityFees":"4","saverEarning":"5","totalLiquidityFeesRune":"6"}]}]}`

	srv := newTestServer(t, http.StatusOK, body, func(r *http.Request) {
		assert.Equal(t, "/v2/history/earnings", r.URL.Path)
		assert.Equal(t, "day", r.URL.Query().Get("interval"))
	})

	got, err := New(srv.URL, time.Second, WithInterval("day")).FetchEarnings(context.Background(), 100, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Pools, 1)
	assert.Equal(t, "BTC.BTC", got[0].Pools[0].Pool)
	assert.Equal(t, "6", got[0].Pools[0].TotalLiquidityFeesRune)
}

func TestClient_EmptyBatch(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"intervals":[]}`, nil)

	got, err := New(srv.URL, time.Second).FetchSwaps(context.Background(), 1, 400)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	srv = newTestServer(t, http.StatusOK, `{}`, nil)
	rp, err := New(srv.URL, time.Second).FetchRunePool(context.Background(), 1, 400)
	require.NoError(t, err)
	assert.Empty(t, rp)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", http.StatusBadGateway, "upstream down", drepo.ErrSourceUnavailable},
		{"not found", http.StatusNotFound, "", drepo.ErrSourceUnavailable},
		{"not json", http.StatusOK, "<html>", drepo.ErrMalformedPayload},
		{"wrong shape", http.StatusOK, `{"intervals":{"a":1}}`, drepo.ErrMalformedPayload},
		{"bad epoch", http.StatusOK, `{"intervals":[{"startTime":"yesterday","endTime":"2","count":"1","units":"1"}]}`, drepo.ErrMalformedPayload},
		{"end before start", http.StatusOK, `{"intervals":[{"startTime":"5","endTime":"2","count":"1","units":"1"}]}`, drepo.ErrMalformedPayload},
		{"bad number", http.StatusOK, `{"intervals":[{"startTime":"1","endTime":"2","count":"1.2.3","units":"1"}]}`, drepo.ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.status, tt.body, nil)
			_, err := New(srv.URL, time.Second).FetchRunePool(context.Background(), 1, 400)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"intervals":[]}`, nil)
	addr := srv.URL
	srv.Close()

	_, err := New(addr, time.Second).FetchDepth(context.Background(), 1, 1)
	assert.ErrorIs(t, err, drepo.ErrSourceUnavailable)
}

func TestClient_Canceled(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"intervals":[]}`, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(srv.URL, time.Second).FetchDepth(ctx, 1, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, drepo.ErrSourceUnavailable)
}

func TestClient_PoolWithoutName(t *testing.T) {
	body := `{"intervals":[{"startTime":"1","endTime":"2","earnings":"1","pools":[{"pool":"","earnings":"1"}]}]}`
	srv := newTestServer(t, http.StatusOK, body, nil)

	_, err := New(srv.URL, time.Second).FetchEarnings(context.Background(), 1, 1)
	assert.ErrorIs(t, err, drepo.ErrMalformedPayload)
}

func TestClient_RateLimited(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, http.StatusOK, `{"intervals":[]}`, func(*http.Request) { hits.Add(1) })
	c := New(srv.URL, time.Second, WithRateLimit(ratelimit.New(0.001, 1)))

	_, err := c.FetchSwaps(context.Background(), 1, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.FetchSwaps(ctx, 1, 1)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, drepo.ErrSourceUnavailable)
	assert.Equal(t, int32(1), hits.Load(), "the second request never left the client")
}
