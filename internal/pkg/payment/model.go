package payment

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vreid/chogrunner/internal/pkg/chain"
)

// SigningWallet is read fresh before every payment.
type SigningWallet struct {
	Address common.Address `json:"address"`
	Balance *big.Int       `json:"balance"`
}

type Transaction struct {
	Hash     common.Hash    `json:"hash"`
	Status   chain.TxStatus `json:"status"`
	Explorer string         `json:"explorer,omitempty"`
}
