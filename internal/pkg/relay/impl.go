package relay

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	log "github.com/sirupsen/logrus"
	"github.com/vreid/chogrunner/internal/pkg/chain"
	pkgcommon "github.com/vreid/chogrunner/internal/pkg/common"
	"github.com/vreid/chogrunner/internal/pkg/confirm"
	"github.com/vreid/chogrunner/internal/pkg/ledger"
)

const (
	DefaultFallbackGasLimit = 200_000
	DefaultGasBufferPercent = 20

	DefaultLeaderboardURL = "https://monad-games-id-site.vercel.app/leaderboard"
)

type Config struct {
	Network         chain.Network
	ContractAddress common.Address

	AdminAddress    string
	AdminPrivateKey string //nolint:gosec

	Fees             chain.FeeSchedule
	FallbackGasLimit uint64
	GasBufferPercent uint64

	Policy confirm.Policy

	LeaderboardURL string
}

func DefaultConfig(network chain.Network) Config {
	return Config{
		Network:          network,
		ContractAddress:  common.HexToAddress(chain.DefaultContractAddress),
		Fees:             chain.DefaultFeeSchedule(),
		FallbackGasLimit: DefaultFallbackGasLimit,
		GasBufferPercent: DefaultGasBufferPercent,
		Policy:           confirm.DefaultPolicy(),
		LeaderboardURL:   DefaultLeaderboardURL,
	}
}

type RelayService struct {
	Config Config
	Client chain.Client

	LedgerService *ledger.LedgerService
	EventSink     chan<- Event

	// adminMu serializes nonce selection, signing and sending for the admin
	// account.
	adminMu sync.Mutex
}

func NewRelayService(i do.Injector) (*RelayService, error) {
	network := do.MustInvokeNamed[chain.Network](i, "network")

	config := DefaultConfig(network)
	config.ContractAddress = common.HexToAddress(do.MustInvokeNamed[string](i, "contract-address"))
	config.AdminAddress = do.MustInvokeNamed[string](i, "admin-address")
	config.AdminPrivateKey = do.MustInvokeNamed[string](i, "admin-private-key")
	config.LeaderboardURL = do.MustInvokeNamed[string](i, "leaderboard-page-url")

	submitRate := do.MustInvokeNamed[float64](i, "submit-rate")
	submitBurst := do.MustInvokeNamed[int](i, "submit-burst")

	result := &RelayService{
		Config:        config,
		Client:        do.MustInvoke[*chain.EthClient](i),
		LedgerService: do.MustInvoke[*ledger.LedgerService](i),
		EventSink:     do.MustInvokeNamed[chan<- Event](i, "event-sink"),
	}

	echoService, err := do.Invoke[*pkgcommon.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		result.Register(e, pkgcommon.RateLimiter(submitRate, submitBurst))
	})

	return result, nil
}

func (s *RelayService) Register(e *echo.Echo, middlewares ...echo.MiddlewareFunc) {
	apiGroup := e.Group("/api")

	apiGroup.POST("/submit-score", s.PostSubmitScore, middlewares...)
}

func (s *RelayService) PostSubmitScore(c echo.Context) error {
	var request ScoreSubmissionRequest

	err := c.Bind(&request)
	if err != nil {
		return pkgcommon.NewError(pkgcommon.KindValidation, "Invalid request body.")
	}

	result, err := s.Submit(c.Request().Context(), request)
	if err != nil {
		return err
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, result)
}

// Submit writes score for the player through the admin account and waits for
// the transaction to be mined.
//
//nolint:cyclop,funlen
func (s *RelayService) Submit(ctx context.Context, request ScoreSubmissionRequest) (*Result, error) {
	network := s.Config.Network

	admin, err := LoadAdminAccount(s.Config.AdminPrivateKey, s.Config.AdminAddress, network.ChainID)
	if err != nil {
		return nil, err
	}

	player, score, err := request.Validate()
	if err != nil {
		return nil, err
	}

	logger := log.WithFields(log.Fields{
		"player": player.Hex(),
		"score":  score.String(),
	})

	data, err := chain.PackUpdatePlayerData(player, score, big.NewInt(TransactionAmount))
	if err != nil {
		return nil, pkgcommon.WrapError(pkgcommon.KindInternal, "Failed to submit score.", err)
	}

	gasLimit := s.estimateGas(ctx, admin, data)

	balance, err := s.Client.BalanceAt(ctx, admin.Address())
	if err != nil {
		return nil, pkgcommon.WrapError(pkgcommon.KindInternal, "Failed to submit score.",
			fmt.Errorf("failed to read admin balance: %w", err))
	}

	required := s.Config.Fees.Cost(gasLimit)
	if balance.Cmp(required) < 0 {
		logger.WithFields(log.Fields{
			"balance":  network.Format(balance),
			"required": network.Format(required),
		}).Error("admin wallet cannot cover gas")

		return nil, &pkgcommon.Error{
			Kind:     pkgcommon.KindInsufficientBalance,
			Message:  "Admin wallet has insufficient balance for transaction.",
			Balance:  chain.FormatUnits(balance, network.Decimals),
			Required: chain.FormatUnits(required, network.Decimals),
			Explorer: network.AddressURL(admin.Address()),
		}
	}

	_, err = s.Client.CallContract(ctx, s.callMsg(admin, gasLimit, data))
	if err != nil {
		logger.Warnf("simulation failed: %v", err)

		return nil, pkgcommon.WrapError(pkgcommon.KindSimulation, "Failed to submit score.",
			fmt.Errorf("simulation failed: %w", err))
	}

	tx, err := s.send(ctx, admin, gasLimit, data)
	if err != nil {
		return nil, pkgcommon.WrapError(pkgcommon.KindInternal, "Failed to submit score.", err)
	}

	hash := tx.Hash()
	explorer := network.TxURL(hash)
	logger = logger.WithField("tx", hash.Hex())
	logger.WithFields(log.Fields{"nonce": tx.Nonce(), "gas": gasLimit}).Info("score transaction sent")

	submissionID := newSubmissionID()
	now := time.Now().UTC()

	record := ledger.Record{
		ID:                submissionID,
		TxHash:            hash.Hex(),
		Status:            chain.TxPending,
		PlayerAddress:     player.Hex(),
		ScoreAmount:       score.String(),
		TransactionAmount: TransactionAmount,
		Explorer:          explorer,
		SubmittedAt:       now,
		UpdatedAt:         now,
	}
	s.record(record)

	status, _ := confirm.Wait(ctx, s.Client, hash, s.Config.Policy)

	record.Status = status
	record.UpdatedAt = time.Now().UTC()
	s.record(record)

	switch status {
	case chain.TxReverted:
		logger.Error("score transaction reverted")

		return nil, pkgcommon.NewError(pkgcommon.KindReverted, "Score submission transaction reverted.").
			WithTx(hash.Hex(), explorer)
	case chain.TxSuccess:
	case chain.TxPending, chain.TxUnconfirmed:
		logger.Warn("score transaction not confirmed within timeout")

		return nil, pkgcommon.NewError(pkgcommon.KindTimeout, "Score submission transaction not confirmed within timeout.").
			WithTx(hash.Hex(), explorer)
	}

	logger.Info("score transaction confirmed")

	s.publish(Event{
		SubmissionID:  submissionID,
		PlayerAddress: player,
		Score:         score,
		TxHash:        hash,
	})

	return &Result{
		Success:           true,
		TxHash:            hash.Hex(),
		Message:           "Score submitted successfully",
		PlayerAddress:     request.PlayerAddress,
		ScoreAmount:       score,
		TransactionAmount: TransactionAmount,
		Explorer:          explorer,
		Leaderboard:       s.Config.LeaderboardURL,
		SubmissionID:      submissionID,
	}, nil
}

func (s *RelayService) callMsg(admin *AdminAccount, gasLimit uint64, data []byte) ethereum.CallMsg {
	to := s.Config.ContractAddress

	return ethereum.CallMsg{
		From:      admin.Address(),
		To:        &to,
		Gas:       gasLimit,
		GasFeeCap: s.Config.Fees.MaxFeePerGas(),
		GasTipCap: s.Config.Fees.PriorityFee,
		Data:      data,
	}
}

// estimateGas never fails: RPC errors fall back to the configured limit.
func (s *RelayService) estimateGas(ctx context.Context, admin *AdminAccount, data []byte) uint64 {
	gas, err := s.Client.EstimateGas(ctx, s.callMsg(admin, 0, data))
	if err != nil {
		log.Warnf("gas estimation failed, using fallback gas limit %d: %v", s.Config.FallbackGasLimit, err)

		return s.Config.FallbackGasLimit
	}

	return gas * (100 + s.Config.GasBufferPercent) / 100 //nolint:mnd
}

func (s *RelayService) send(ctx context.Context, admin *AdminAccount, gasLimit uint64, data []byte) (*types.Transaction, error) {
	s.adminMu.Lock()
	defer s.adminMu.Unlock()

	nonce, err := s.Client.PendingNonceAt(ctx, admin.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to read admin nonce: %w", err)
	}

	to := s.Config.ContractAddress

	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.Config.Network.ChainID,
		Nonce:     nonce,
		GasTipCap: s.Config.Fees.PriorityFee,
		GasFeeCap: s.Config.Fees.MaxFeePerGas(),
		Gas:       gasLimit,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      data,
	})

	signed, err := admin.SignTx(ctx, unsigned)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	err = s.Client.SendTransaction(ctx, signed)
	if err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	return signed, nil
}

func (s *RelayService) record(record ledger.Record) {
	if s.LedgerService == nil {
		return
	}

	err := s.LedgerService.Put(record)
	if err != nil {
		log.WithField("tx", record.TxHash).Errorf("failed to record submission: %v", err)
	}
}

func (s *RelayService) publish(event Event) {
	if s.EventSink == nil {
		return
	}

	select {
	case s.EventSink <- event:
	default:
		log.WithField("tx", event.TxHash.Hex()).Warn("event sink full, dropping submission event")
	}
}

func newSubmissionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}
