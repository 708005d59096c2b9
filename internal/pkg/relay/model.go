package relay

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vreid/chogrunner/internal/pkg/chain"
	pkgcommon "github.com/vreid/chogrunner/internal/pkg/common"
)

// TransactionAmount is the fixed per-submission increment of the player's
// on-chain transaction counter.
const TransactionAmount = 1

var maxUint256 = new(big.Float).SetInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))) //nolint:mnd

type ScoreSubmissionRequest struct {
	PlayerAddress string          `json:"playerAddress"`
	Score         json.RawMessage `json:"score"`
}

func NewScoreSubmissionRequest(player common.Address, score uint64) ScoreSubmissionRequest {
	raw, _ := json.Marshal(score)

	return ScoreSubmissionRequest{
		PlayerAddress: player.Hex(),
		Score:         raw,
	}
}

// Validate checks the request without touching the network.
func (r ScoreSubmissionRequest) Validate() (common.Address, *big.Int, error) {
	if !chain.IsAddress(r.PlayerAddress) {
		return common.Address{}, nil, pkgcommon.NewError(pkgcommon.KindValidation, "Invalid player address.")
	}

	score, ok := ParseScore(r.Score)
	if !ok {
		return common.Address{}, nil, pkgcommon.NewError(pkgcommon.KindValidation, "Invalid score. Must be a non-negative integer.")
	}

	return common.HexToAddress(r.PlayerAddress), score, nil
}

// ParseScore accepts a JSON number literal with an integral, non-negative
// value that fits in a uint256. Strings, booleans, null and fractions are
// rejected.
func ParseScore(raw json.RawMessage) (*big.Int, bool) {
	literal := strings.TrimSpace(string(raw))
	if literal == "" {
		return nil, false
	}

	if first := literal[0]; first != '-' && (first < '0' || first > '9') {
		return nil, false
	}

	var number json.Number

	err := json.Unmarshal([]byte(literal), &number)
	if err != nil {
		return nil, false
	}

	f, _, err := big.ParseFloat(number.String(), 10, 512, big.ToNearestEven) //nolint:mnd
	if err != nil {
		return nil, false
	}

	if f.Sign() < 0 || !f.IsInt() || f.Cmp(maxUint256) > 0 {
		return nil, false
	}

	score, _ := f.Int(nil)

	return score, true
}

type Result struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash"`
	Message string `json:"message"`

	PlayerAddress     string   `json:"playerAddress"`
	ScoreAmount       *big.Int `json:"scoreAmount"`
	TransactionAmount int64    `json:"transactionAmount"`

	Explorer    string `json:"explorer"`
	Leaderboard string `json:"leaderboard"`

	SubmissionID string `json:"submissionId"`
}

// Event is published after a score transaction is confirmed.
type Event struct {
	SubmissionID  string
	PlayerAddress common.Address
	Score         *big.Int
	TxHash        common.Hash
}
