package ledger

import (
	"time"

	"github.com/vreid/chogrunner/internal/pkg/chain"
)

// Record is one admin-signed score transaction.
type Record struct {
	ID     string         `json:"id"`
	TxHash string         `json:"txHash"`
	Status chain.TxStatus `json:"status"`

	PlayerAddress     string `json:"playerAddress"`
	ScoreAmount       string `json:"scoreAmount"`
	TransactionAmount int64  `json:"transactionAmount"`

	Explorer string `json:"explorer"`

	SubmittedAt time.Time `json:"submittedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
