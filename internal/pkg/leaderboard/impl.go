package leaderboard

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	log "github.com/sirupsen/logrus"
	pkgcommon "github.com/vreid/chogrunner/internal/pkg/common"
	"github.com/vreid/chogrunner/internal/pkg/relay"
	"go.etcd.io/bbolt"
)

const (
	DefaultBaseURL = "https://monad-games-id-site.vercel.app"
	DefaultGameID  = 1

	refreshTimeout = 15 * time.Second
)

var (
	ErrBucketNotFound     = errors.New("leaderboard bucket doesn't exist")
	ErrInvalidLeaderboard = errors.New("leaderboard response has no entries array")

	snapshotKey = []byte("snapshot")
)

type LeaderboardService struct {
	DatabaseService *pkgcommon.DatabaseService

	EventSource <-chan relay.Event

	GameID int64

	http *resty.Client

	mu       sync.RWMutex
	snapshot Snapshot
}

func NewLeaderboard(baseURL string, gameID int64, databaseService *pkgcommon.DatabaseService) *LeaderboardService {
	result := &LeaderboardService{
		DatabaseService: databaseService,
		GameID:          gameID,
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(refreshTimeout),
		snapshot: Snapshot{Entries: []Entry{}},
	}

	err := result.load()
	if err != nil {
		log.Warnf("failed to load cached leaderboard: %v", err)
	}

	return result
}

func NewLeaderboardService(i do.Injector) (*LeaderboardService, error) {
	result := NewLeaderboard(
		do.MustInvokeNamed[string](i, "leaderboard-url"),
		do.MustInvokeNamed[int64](i, "game-id"),
		do.MustInvoke[*pkgcommon.DatabaseService](i),
	)
	result.EventSource = do.MustInvokeNamed[<-chan relay.Event](i, "event-source")

	echoService, err := do.Invoke[*pkgcommon.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		result.Register(e)
	})

	return result, nil
}

func (s *LeaderboardService) Register(e *echo.Echo) {
	apiGroup := e.Group("/api")

	apiGroup.GET("/leaderboard", s.GetLeaderboard)
}

func (s *LeaderboardService) Start() {
	go s.processEvents()
}

// Snapshot returns the last-known-good leaderboard.
func (s *LeaderboardService) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.snapshot
	result.Entries = slices.Clone(s.snapshot.Entries)

	return result
}

func (s *LeaderboardService) Entries() []Entry {
	return s.Snapshot().Entries
}

// Refresh fetches the leaderboard. On failure the previous entries are kept
// and only marked stale.
func (s *LeaderboardService) Refresh(ctx context.Context) ([]Entry, error) {
	entries, err := s.fetch(ctx)
	if err != nil {
		s.mu.Lock()
		s.snapshot.Stale = true
		s.mu.Unlock()

		return s.Entries(), pkgcommon.WrapError(pkgcommon.KindUpstream, "Failed to fetch leaderboard.", err)
	}

	s.mu.Lock()
	s.snapshot = Snapshot{
		Entries:   entries,
		UpdatedAt: time.Now().UTC(),
	}
	snapshot := s.snapshot
	s.mu.Unlock()

	err = s.store(snapshot)
	if err != nil {
		log.Warnf("failed to persist leaderboard: %v", err)
	}

	return slices.Clone(entries), nil
}

func (s *LeaderboardService) fetch(ctx context.Context) ([]Entry, error) {
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParam("gameId", strconv.FormatInt(s.GameID, 10)).
		Get("/api/leaderboard")
	if err != nil {
		return nil, fmt.Errorf("failed to request leaderboard: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("leaderboard returned status %d", resp.StatusCode()) //nolint:err113
	}

	entries, err := decodeEntries(resp.Body())
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.Rank, b.Rank)
	})

	return entries, nil
}

// decodeEntries accepts either a bare array or an object with a data array.
// Anything else, including null and error envelopes, is rejected so a bad
// upstream reply never replaces the cached board.
func decodeEntries(body []byte) ([]Entry, error) {
	body = bytes.TrimSpace(body)

	if len(body) > 0 && body[0] == '{' {
		var wrapped struct {
			Data  *[]Entry `json:"data"`
			Error string   `json:"error"`
		}

		err := json.Unmarshal(body, &wrapped)
		if err != nil {
			return nil, fmt.Errorf("failed to decode leaderboard: %w", err)
		}

		if wrapped.Data == nil {
			if wrapped.Error != "" {
				return nil, fmt.Errorf("%w: %s", ErrInvalidLeaderboard, wrapped.Error)
			}

			return nil, fmt.Errorf("%w: missing data array", ErrInvalidLeaderboard)
		}

		return *wrapped.Data, nil
	}

	var entries []Entry

	err := json.Unmarshal(body, &entries)
	if err != nil {
		return nil, fmt.Errorf("failed to decode leaderboard: %w", err)
	}

	if entries == nil {
		return nil, fmt.Errorf("%w: null body", ErrInvalidLeaderboard)
	}

	return entries, nil
}

func (s *LeaderboardService) GetLeaderboard(c echo.Context) error {
	_, err := s.Refresh(c.Request().Context())
	if err != nil {
		log.Warnf("serving cached leaderboard: %v", err)
	}

	snapshot := s.Snapshot()

	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err == nil && limit >= 0 && limit < len(snapshot.Entries) {
		snapshot.Entries = snapshot.Entries[:limit]
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, snapshot)
}

func (s *LeaderboardService) processEvents() {
	for event := range s.EventSource {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)

		_, err := s.Refresh(ctx)
		if err != nil {
			log.WithField("tx", event.TxHash.Hex()).Warnf("leaderboard refresh after submission failed: %v", err)
		}

		cancel()
	}
}

func (s *LeaderboardService) load() error {
	if s.DatabaseService == nil {
		return nil
	}

	//nolint:wrapcheck
	return s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pkgcommon.LeaderboardBucket))
		if bucket == nil {
			return ErrBucketNotFound
		}

		data := bucket.Get(snapshotKey)
		if data == nil {
			return nil
		}

		var snapshot Snapshot

		err := json.Unmarshal(data, &snapshot)
		if err != nil {
			return fmt.Errorf("failed to decode cached leaderboard: %w", err)
		}

		if snapshot.Entries == nil {
			snapshot.Entries = []Entry{}
		}

		s.snapshot = snapshot

		return nil
	})
}

func (s *LeaderboardService) store(snapshot Snapshot) error {
	if s.DatabaseService == nil {
		return nil
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode leaderboard: %w", err)
	}

	//nolint:wrapcheck
	return s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pkgcommon.LeaderboardBucket))
		if bucket == nil {
			return ErrBucketNotFound
		}

		//nolint:wrapcheck
		return bucket.Put(snapshotKey, data)
	})
}
