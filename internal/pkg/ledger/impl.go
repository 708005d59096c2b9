package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	log "github.com/sirupsen/logrus"
	"github.com/vreid/chogrunner/internal/pkg/chain"
	pkgcommon "github.com/vreid/chogrunner/internal/pkg/common"
	"go.etcd.io/bbolt"
)

var (
	ErrBucketNotFound = errors.New("submissions bucket doesn't exist")
	ErrNotFound       = errors.New("submission not found")

	txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

type LedgerService struct {
	DatabaseService *pkgcommon.DatabaseService
	Client          chain.Client
}

func NewLedgerService(i do.Injector) (*LedgerService, error) {
	databaseService := do.MustInvoke[*pkgcommon.DatabaseService](i)
	client := do.MustInvoke[*chain.EthClient](i)

	result := &LedgerService{
		DatabaseService: databaseService,
		Client:          client,
	}

	echoService, err := do.Invoke[*pkgcommon.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		result.Register(e)
	})

	return result, nil
}

func (s *LedgerService) Register(e *echo.Echo) {
	apiGroup := e.Group("/api")

	apiGroup.GET("/submissions/:hash", s.GetSubmission)
}

func (s *LedgerService) Put(record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	err = s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pkgcommon.SubmissionsBucket))
		if bucket == nil {
			return ErrBucketNotFound
		}

		//nolint:wrapcheck
		return bucket.Put([]byte(record.TxHash), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store record %s: %w", record.TxHash, err)
	}

	return nil
}

func (s *LedgerService) Get(hash string) (Record, error) {
	var record Record

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pkgcommon.SubmissionsBucket))
		if bucket == nil {
			return ErrBucketNotFound
		}

		data := bucket.Get([]byte(hash))
		if data == nil {
			return ErrNotFound
		}

		//nolint:wrapcheck
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to load record %s: %w", hash, err)
	}

	return record, nil
}

// Refresh re-checks an unconfirmed record once against the chain and stores
// the new status if a receipt has appeared since.
func (s *LedgerService) Refresh(ctx context.Context, record Record) (Record, error) {
	if record.Status.Terminal() {
		return record, nil
	}

	receipt, err := s.Client.TransactionReceipt(ctx, common.HexToHash(record.TxHash))
	if errors.Is(err, ethereum.NotFound) {
		return record, nil
	}

	if err != nil {
		return record, fmt.Errorf("failed to fetch receipt: %w", err)
	}

	switch receipt.Status {
	case types.ReceiptStatusSuccessful:
		record.Status = chain.TxSuccess
	case types.ReceiptStatusFailed:
		record.Status = chain.TxReverted
	default:
		return record, nil
	}

	record.UpdatedAt = time.Now().UTC()

	err = s.Put(record)
	if err != nil {
		return record, err
	}

	return record, nil
}

func (s *LedgerService) GetSubmission(c echo.Context) error {
	hash := c.Param("hash")
	if !txHashPattern.MatchString(hash) {
		return pkgcommon.NewError(pkgcommon.KindValidation, "Invalid transaction hash.")
	}

	record, err := s.Get(common.HexToHash(hash).Hex())
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Submission not found.")
	}

	if err != nil {
		return pkgcommon.WrapError(pkgcommon.KindInternal, "Failed to load submission.", err)
	}

	refreshed, err := s.Refresh(c.Request().Context(), record)
	if err != nil {
		log.WithField("tx", record.TxHash).Warnf("failed to refresh submission: %v", err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, refreshed)
}
