package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3vault/internal/api"
	"github.com/Mohsinsiddi/w3vault/internal/events"
	"github.com/Mohsinsiddi/w3vault/internal/indexer"
	"github.com/Mohsinsiddi/w3vault/internal/scenario"
	"github.com/Mohsinsiddi/w3vault/test/fixtures"
)

const channel = "w3vault:test"

// pipeline replays a fixture through Redis into a fresh index and returns
// the API over it together with the run's report.
func pipeline(t *testing.T, name string) (*api.Server, *scenario.Report) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store, err := indexer.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	stream, err := events.NewRedisSource(client, channel).Stream(ctx)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- indexer.NewHandler(store, nil).Run(ctx, stream) }()

	sink := events.NewRedisSink(client, channel)
	rep, err := scenario.Run(ctx, fixtures.LoadScenario(t, name), scenario.WithSink(sink))
	sink.Close()
	require.NoError(t, err)
	require.NotEmpty(t, rep.Envelopes)

	want := rep.Envelopes[len(rep.Envelopes)-1].Seq
	require.Eventually(t, func() bool {
		seq, err := store.Checkpoint(ctx)
		return err == nil && seq == want
	}, 5*time.Second, 20*time.Millisecond, "indexer did not catch up")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("indexer did not stop")
	}
	return api.New(store, nil), rep
}

func getJSON(t *testing.T, s *api.Server, path string, out any) int {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out), string(body))
	return resp.StatusCode
}

func TestMarketplaceReachesTheIndex(t *testing.T) {
	srv, rep := pipeline(t, "marketplace")
	require.False(t, rep.Failed())

	var listed []indexer.ListingRecord
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/listings?status=listed", &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, scenario.DeriveAddress("carol").Hex(), listed[0].Seller)
	assert.Equal(t, "120000000000000000000", listed[0].Price)

	var cancelled []indexer.ListingRecord
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/listings?status=cancelled", &cancelled))
	require.Len(t, cancelled, 1)
	assert.Equal(t, scenario.DeriveAddress("alice").Hex(), cancelled[0].Seller)

	var evs []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/events?limit=500", &evs))
	assert.Len(t, evs, len(rep.Envelopes))

	var health struct {
		OK         bool   `json:"ok"`
		Checkpoint uint64 `json:"checkpoint"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/healthz", &health))
	assert.True(t, health.OK)
	assert.Equal(t, uint64(len(rep.Envelopes)), health.Checkpoint)
}

func TestVestingReachesTheIndex(t *testing.T) {
	srv, rep := pipeline(t, "vesting")
	require.False(t, rep.Failed())

	alice := scenario.DeriveAddress("alice")
	var g indexer.GrantRecord
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/grants/"+alice.Hex(), &g))
	assert.Equal(t, "1200000000000000000000", g.Amount)
	assert.Equal(t, "1200000000000000000000", g.Claimed)
	assert.Equal(t, uint64(12), g.MonthsClaimed)
	assert.Equal(t, uint64(2), g.CliffMonths)
	assert.False(t, g.Revoked)

	var all []indexer.GrantRecord
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/grants", &all))
	assert.Len(t, all, 1)
}

func TestEveryFixtureRunsClean(t *testing.T) {
	for _, name := range fixtures.Scenarios(t) {
		t.Run(name, func(t *testing.T) {
			rep, err := scenario.Run(context.Background(), fixtures.LoadScenario(t, name))
			require.NoError(t, err)
			assert.False(t, rep.Failed())
		})
	}
}
