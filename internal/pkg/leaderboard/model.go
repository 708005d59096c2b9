package leaderboard

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Entry struct {
	UserID        int64  `json:"userId"`
	Username      string `json:"username"`
	WalletAddress string `json:"walletAddress"`
	Score         int64  `json:"score"`
	GameID        int64  `json:"gameId"`
	GameName      string `json:"gameName"`
	Rank          int    `json:"rank"`
}

// DisplayName falls back to a shortened wallet when no username is known.
func (e Entry) DisplayName() string {
	if e.Username != "" {
		return e.Username
	}

	if len(e.WalletAddress) <= 10 { //nolint:mnd
		return e.WalletAddress
	}

	return e.WalletAddress[:6] + "..." + e.WalletAddress[len(e.WalletAddress)-4:]
}

func (e Entry) IsPlayer(addr common.Address) bool {
	return strings.EqualFold(e.WalletAddress, addr.Hex())
}

func (e Entry) Podium() bool {
	return e.Rank >= 1 && e.Rank <= 3
}

// Snapshot is the last-known-good leaderboard. Stale is set when the most
// recent refresh failed.
type Snapshot struct {
	Entries   []Entry   `json:"entries"`
	UpdatedAt time.Time `json:"updatedAt"`
	Stale     bool      `json:"stale"`
}
