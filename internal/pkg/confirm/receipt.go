package confirm

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	log "github.com/sirupsen/logrus"
	"github.com/vreid/chogrunner/internal/pkg/chain"
)

type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Wait polls for the receipt of hash. It returns TxSuccess or TxReverted as
// soon as a receipt with that status is seen, and TxUnconfirmed when the
// policy runs out or ctx ends first. Fetch errors count as "not yet".
func Wait(ctx context.Context, fetcher ReceiptFetcher, hash common.Hash, policy Policy) (chain.TxStatus, *types.Receipt) {
	status := chain.TxUnconfirmed

	var receipt *types.Receipt

	logger := log.WithField("tx", hash.Hex())

	err := Poll(ctx, policy, func(ctx context.Context, attempt int) (bool, error) {
		r, err := fetcher.TransactionReceipt(ctx, hash)
		if err != nil {
			if !errors.Is(err, ethereum.NotFound) {
				logger.WithField("attempt", attempt).Warnf("confirmation attempt failed: %v", err)
			} else {
				logger.WithField("attempt", attempt).Debug("receipt not available yet")
			}

			return false, nil
		}

		if r == nil {
			return false, nil
		}

		switch r.Status {
		case types.ReceiptStatusSuccessful:
			status, receipt = chain.TxSuccess, r

			return true, nil
		case types.ReceiptStatusFailed:
			status, receipt = chain.TxReverted, r

			return true, nil
		}

		return false, nil
	})
	if err != nil {
		logger.Warnf("transaction not confirmed: %v", err)
	}

	return status, receipt
}
