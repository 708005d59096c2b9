package relay_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/chogrunner/internal/pkg/chain"
	"github.com/vreid/chogrunner/internal/pkg/chain/chaintest"
	pkgcommon "github.com/vreid/chogrunner/internal/pkg/common"
	"github.com/vreid/chogrunner/internal/pkg/confirm"
	"github.com/vreid/chogrunner/internal/pkg/ledger"
	"github.com/vreid/chogrunner/internal/pkg/relay"
)

const (
	adminKey     = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	adminAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"

	player = "0x1111111111111111111111111111111111111111"
)

var fastPolicy = confirm.Policy{Interval: time.Millisecond, MaxAttempts: 5}

func oneEther() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
}

func newRelay(t *testing.T, client *chaintest.Client) *relay.RelayService {
	t.Helper()

	config := relay.DefaultConfig(chain.MonadTestnet(""))
	config.AdminAddress = adminAddress
	config.AdminPrivateKey = adminKey
	config.Policy = fastPolicy

	client.SetBalance(common.HexToAddress(adminAddress), oneEther())

	return &relay.RelayService{
		Config: config,
		Client: client,
	}
}

func post(t *testing.T, service *relay.RelayService, body string) (int, map[string]any) {
	t.Helper()

	e := pkgcommon.NewEcho()
	service.Register(e)

	req := httptest.NewRequest(http.MethodPost, "/api/submit-score", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))

	return rec.Code, payload
}

func TestSubmitScoreSuccess(t *testing.T) {
	t.Parallel()

	client := chaintest.New(chain.MonadTestnetChainID)
	service := newRelay(t, client)

	code, payload := post(t, service, `{"playerAddress": "`+player+`", "score": 42}`)

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, payload["success"])
	assert.InDelta(t, 42, payload["scoreAmount"], 0)
	assert.InDelta(t, 1, payload["transactionAmount"], 0)
	assert.Equal(t, player, payload["playerAddress"])
	assert.Equal(t, relay.DefaultLeaderboardURL, payload["leaderboard"])
	assert.Contains(t, payload["explorer"], "https://testnet.monadexplorer.com/tx/0x")

	require.Equal(t, 1, client.SentCount())

	tx := client.Sent[0]
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, common.HexToAddress(chain.DefaultContractAddress), *tx.To())
	assert.Equal(t, "62400000000", tx.GasFeeCap().String())
	assert.Equal(t, "12400000000", tx.GasTipCap().String())

	expected, err := chain.PackUpdatePlayerData(common.HexToAddress(player), big.NewInt(42), big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, expected, tx.Data())
	assert.Equal(t, tx.Hash().Hex(), payload["txHash"])
}

func TestSubmitScoreRejectsAddresses(t *testing.T) {
	t.Parallel()

	for _, address := range []string{
		"",
		"0x123",
		"1111111111111111111111111111111111111111",
		"0x11111111111111111111111111111111111111111",
		"0x111111111111111111111111111111111111111z",
		" 0x1111111111111111111111111111111111111111",
	} {
		client := chaintest.New(chain.MonadTestnetChainID)
		service := newRelay(t, client)

		body, err := json.Marshal(map[string]any{"playerAddress": address, "score": 1})
		require.NoError(t, err)

		code, payload := post(t, service, string(body))

		assert.Equal(t, http.StatusBadRequest, code, address)
		assert.Equal(t, "Invalid player address.", payload["error"])
		assert.Zero(t, client.BalanceCalls)
		assert.Zero(t, client.EstimateCalls)
		assert.Zero(t, client.SentCount())
	}
}

func TestSubmitScoreRejectsScores(t *testing.T) {
	t.Parallel()

	for _, score := range []string{`-1`, `1.5`, `"42"`, `null`, `true`, `[]`, `{}`, `1e400`} {
		client := chaintest.New(chain.MonadTestnetChainID)
		service := newRelay(t, client)

		code, payload := post(t, service, `{"playerAddress": "`+player+`", "score": `+score+`}`)

		assert.Equal(t, http.StatusBadRequest, code, score)
		assert.Equal(t, "Invalid score. Must be a non-negative integer.", payload["error"], score)
		assert.Zero(t, client.BalanceCalls)
		assert.Zero(t, client.EstimateCalls)
	}

	client := chaintest.New(chain.MonadTestnetChainID)
	code, _ := post(t, newRelay(t, client), `{"playerAddress": "`+player+`"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestParseScore(t *testing.T) {
	t.Parallel()

	for literal, expected := range map[string]int64{
		`0`:     0,
		`42`:    42,
		`42.0`:  42,
		`4.2e1`: 42,
		` 7 `:   7,
	} {
		score, ok := relay.ParseScore(json.RawMessage(literal))
		require.True(t, ok, literal)
		assert.Equal(t, expected, score.Int64(), literal)
	}
}

func TestSubmitScoreInsufficientAdminBalance(t *testing.T) {
	t.Parallel()

	client := chaintest.New(chain.MonadTestnetChainID)
	service := newRelay(t, client)
	client.SetBalance(common.HexToAddress(adminAddress), big.NewInt(1_000))

	code, payload := post(t, service, `{"playerAddress": "`+player+`", "score": 42}`)

	require.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Admin wallet has insufficient balance for transaction.", payload["error"])
	assert.Equal(t, "0.000000000000001", payload["balance"])
	assert.Equal(t, "0.007488", payload["required"])
	assert.Equal(t, "https://testnet.monadexplorer.com/address/"+adminAddress, payload["explorer"])
	assert.Zero(t, client.CallCalls)
	assert.Zero(t, client.SentCount())
}

func TestSubmitScoreGasEstimationFallback(t *testing.T) {
	t.Parallel()

	client := chaintest.New(chain.MonadTestnetChainID)
	client.EstimateFn = func(_ ethereum.CallMsg) (uint64, error) {
		return 0, errors.New("rpc unavailable")
	}

	service := newRelay(t, client)

	code, _ := post(t, service, `{"playerAddress": "`+player+`", "score": 42}`)

	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, client.SentCount())
	assert.Equal(t, uint64(relay.DefaultFallbackGasLimit), client.Sent[0].Gas())
}

func TestSubmitScoreSimulationFailure(t *testing.T) {
	t.Parallel()

	client := chaintest.New(chain.MonadTestnetChainID)
	client.CallFn = func(_ ethereum.CallMsg) ([]byte, error) {
		return nil, errors.New("execution reverted: not admin")
	}

	service := newRelay(t, client)

	code, payload := post(t, service, `{"playerAddress": "`+player+`", "score": 42}`)

	require.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to submit score.", payload["error"])
	assert.Contains(t, payload["details"], "execution reverted")
	assert.Zero(t, client.SentCount())
	assert.Zero(t, client.ReceiptCalls)
}

func TestSubmitScoreTimeoutIsAccepted(t *testing.T) {
	t.Parallel()

	client := chaintest.New(chain.MonadTestnetChainID)
	client.ReceiptFn = chaintest.NeverMined

	service := newRelay(t, client)

	code, payload := post(t, service, `{"playerAddress": "`+player+`", "score": 42}`)

	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "Score submission transaction not confirmed within timeout.", payload["error"])
	assert.NotEmpty(t, payload["txHash"])
	assert.Contains(t, payload["explorer"], "/tx/")
	assert.Equal(t, fastPolicy.MaxAttempts, client.ReceiptCalls)
}

func TestSubmitScoreRevertStopsPolling(t *testing.T) {
	t.Parallel()

	client := chaintest.New(chain.MonadTestnetChainID)
	client.ReceiptFn = func(hash common.Hash, attempt int) (*types.Receipt, error) {
		if attempt < 2 {
			return chaintest.NeverMined(hash, attempt)
		}

		return chaintest.RevertedReceipt(hash), nil
	}

	service := newRelay(t, client)

	code, payload := post(t, service, `{"playerAddress": "`+player+`", "score": 42}`)

	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Score submission transaction reverted.", payload["error"])
	assert.NotEmpty(t, payload["txHash"])
	assert.Equal(t, 2, client.ReceiptCalls)
}

func TestSubmitScoreConfigurationErrors(t *testing.T) {
	t.Parallel()

	for name, mutate := range map[string]func(config *relay.Config){
		"malformed key": func(config *relay.Config) {
			config.AdminPrivateKey = "0x1234"
		},
		"missing key": func(config *relay.Config) {
			config.AdminPrivateKey = ""
		},
		"mismatched address": func(config *relay.Config) {
			config.AdminAddress = "0x6d6eD11fb83b202a04be03a4dd4548ace2addbf7"
		},
	} {
		client := chaintest.New(chain.MonadTestnetChainID)
		service := newRelay(t, client)
		mutate(&service.Config)

		e := pkgcommon.NewEcho()
		service.Register(e)

		req := httptest.NewRequest(http.MethodPost, "/api/submit-score",
			strings.NewReader(`{"playerAddress": "`+player+`", "score": 42}`))
		req.Header.Set("Content-Type", "application/json")

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code, name)
		assert.NotContains(t, rec.Body.String(), strings.TrimPrefix(adminKey, "0x"), name)
		assert.Zero(t, client.BalanceCalls, name)
	}
}

func TestSubmitSerializesAdminNonces(t *testing.T) {
	t.Parallel()

	client := chaintest.New(chain.MonadTestnetChainID)
	service := newRelay(t, client)

	const submissions = 8

	var wg sync.WaitGroup

	for i := range submissions {
		wg.Add(1)

		go func(score uint64) {
			defer wg.Done()

			_, err := service.Submit(context.Background(),
				relay.NewScoreSubmissionRequest(common.HexToAddress(player), score))
			assert.NoError(t, err)
		}(uint64(i))
	}

	wg.Wait()

	require.Equal(t, submissions, client.SentCount())

	nonces := map[uint64]bool{}
	for _, tx := range client.Sent {
		nonces[tx.Nonce()] = true
	}

	assert.Len(t, nonces, submissions)
}

func TestSubmitRecordsAndPublishes(t *testing.T) {
	t.Parallel()

	db, err := pkgcommon.OpenDatabase(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Shutdown()
	})

	client := chaintest.New(chain.MonadTestnetChainID)
	events := make(chan relay.Event, 1)

	service := newRelay(t, client)
	service.LedgerService = &ledger.LedgerService{DatabaseService: db, Client: client}
	service.EventSink = events

	result, err := service.Submit(context.Background(),
		relay.NewScoreSubmissionRequest(common.HexToAddress(player), 42))
	require.NoError(t, err)

	event := <-events
	assert.Equal(t, result.TxHash, event.TxHash.Hex())
	assert.Equal(t, int64(42), event.Score.Int64())

	record, err := service.LedgerService.Get(result.TxHash)
	require.NoError(t, err)
	assert.Equal(t, chain.TxSuccess, record.Status)
	assert.Equal(t, result.SubmissionID, record.ID)
	assert.Equal(t, "42", record.ScoreAmount)
}
