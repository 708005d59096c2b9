package leaderboard_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pkgcommon "github.com/vreid/chogrunner/internal/pkg/common"
	"github.com/vreid/chogrunner/internal/pkg/leaderboard"
	"github.com/vreid/chogrunner/internal/pkg/relay"
)

const entriesJSON = `[
	{"userId": 2, "username": "", "walletAddress": "0x2222222222222222222222222222222222222222", "score": 900, "gameId": 1, "gameName": "Chog Runner", "rank": 2},
	{"userId": 1, "username": "chog", "walletAddress": "0x1111111111111111111111111111111111111111", "score": 1500, "gameId": 1, "gameName": "Chog Runner", "rank": 1}
]`

// upstream serves body until failing is set.
type upstream struct {
	failing  atomic.Bool
	requests atomic.Int32
	body     atomic.Pointer[string]
}

func (u *upstream) setBody(body string) {
	u.body.Store(&body)
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.requests.Add(1)

	if u.failing.Load() {
		w.WriteHeader(http.StatusBadGateway)

		return
	}

	if r.URL.Query().Get("gameId") != "7" {
		w.WriteHeader(http.StatusNotFound)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(*u.body.Load()))
}

func newUpstream(t *testing.T, body string) (*upstream, string) {
	t.Helper()

	u := &upstream{}
	u.setBody(body)
	server := httptest.NewServer(u)
	t.Cleanup(server.Close)

	return u, server.URL
}

func openDB(t *testing.T, dir string) *pkgcommon.DatabaseService {
	t.Helper()

	db, err := pkgcommon.OpenDatabase(dir)
	require.NoError(t, err)

	return db
}

func TestRefreshSortsByRank(t *testing.T) {
	t.Parallel()

	_, url := newUpstream(t, entriesJSON)
	service := leaderboard.NewLeaderboard(url, 7, nil)

	entries, err := service.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "chog", entries[0].DisplayName())
	assert.Equal(t, "0x2222...2222", entries[1].DisplayName())
	assert.False(t, service.Snapshot().Stale)
}

func TestRefreshAcceptsWrappedData(t *testing.T) {
	t.Parallel()

	_, url := newUpstream(t, `{"data": `+entriesJSON+`}`)
	service := leaderboard.NewLeaderboard(url, 7, nil)

	entries, err := service.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRefreshFailureKeepsPreviousEntries(t *testing.T) {
	t.Parallel()

	u, url := newUpstream(t, entriesJSON)
	service := leaderboard.NewLeaderboard(url, 7, nil)

	before, err := service.Refresh(context.Background())
	require.NoError(t, err)

	u.failing.Store(true)

	after, err := service.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, pkgcommon.IsKind(err, pkgcommon.KindUpstream))
	assert.Equal(t, before, after)
	assert.Equal(t, before, service.Entries())
	assert.True(t, service.Snapshot().Stale)
}

func TestMalformedBodyKeepsPreviousEntries(t *testing.T) {
	t.Parallel()

	for _, body := range []string{
		`{"error": "database unavailable"}`,
		`{}`,
		`{"data": null}`,
		`null`,
	} {
		t.Run(body, func(t *testing.T) {
			t.Parallel()

			u, url := newUpstream(t, entriesJSON)
			service := leaderboard.NewLeaderboard(url, 7, nil)

			before, err := service.Refresh(context.Background())
			require.NoError(t, err)
			require.Len(t, before, 2)

			u.setBody(body)

			after, err := service.Refresh(context.Background())
			require.ErrorIs(t, err, leaderboard.ErrInvalidLeaderboard)
			assert.True(t, pkgcommon.IsKind(err, pkgcommon.KindUpstream))
			assert.Equal(t, before, after)
			assert.Equal(t, before, service.Entries())
			assert.True(t, service.Snapshot().Stale)
		})
	}
}

func TestRefreshAcceptsEmptyBoard(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`[]`, `{"data": []}`} {
		_, url := newUpstream(t, body)
		service := leaderboard.NewLeaderboard(url, 7, nil)

		entries, err := service.Refresh(context.Background())
		require.NoError(t, err, body)
		assert.NotNil(t, entries, body)
		assert.Empty(t, entries, body)
	}
}

func TestNetworkErrorKeepsPreviousEntries(t *testing.T) {
	t.Parallel()

	_, url := newUpstream(t, entriesJSON)
	dir := t.TempDir()

	db := openDB(t, dir)
	service := leaderboard.NewLeaderboard(url, 7, db)

	before, err := service.Refresh(context.Background())
	require.NoError(t, err)
	require.NoError(t, db.Shutdown())

	db = openDB(t, dir)
	t.Cleanup(func() {
		_ = db.Shutdown()
	})

	offline := leaderboard.NewLeaderboard("http://127.0.0.1:1", 7, db)
	assert.Equal(t, before, offline.Entries())

	after, err := offline.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, before, after)
}

func TestRefreshOnSubmissionEvent(t *testing.T) {
	t.Parallel()

	u, url := newUpstream(t, entriesJSON)

	events := make(chan relay.Event, 1)
	service := leaderboard.NewLeaderboard(url, 7, nil)
	service.EventSource = events
	service.Start()

	events <- relay.Event{TxHash: common.HexToHash("0x01")}

	close(events)

	assert.Eventually(t, func() bool {
		return len(service.Entries()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), u.requests.Load())
}

func TestGetLeaderboard(t *testing.T) {
	t.Parallel()

	u, url := newUpstream(t, entriesJSON)
	service := leaderboard.NewLeaderboard(url, 7, nil)

	e := pkgcommon.NewEcho()
	service.Register(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot leaderboard.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	require.Len(t, snapshot.Entries, 1)
	assert.Equal(t, "chog", snapshot.Entries[0].Username)
	assert.False(t, snapshot.Stale)

	u.failing.Store(true)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Len(t, snapshot.Entries, 2)
	assert.True(t, snapshot.Stale)
}

func TestEntryHelpers(t *testing.T) {
	t.Parallel()

	entry := leaderboard.Entry{WalletAddress: "0x1111111111111111111111111111111111111111", Rank: 3}

	assert.True(t, entry.IsPlayer(common.HexToAddress("0x1111111111111111111111111111111111111111")))
	assert.False(t, entry.IsPlayer(common.HexToAddress("0x2222222222222222222222222222222222222222")))
	assert.True(t, entry.Podium())
	assert.False(t, leaderboard.Entry{Rank: 4}.Podium())
}
