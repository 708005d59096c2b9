package identity

import (
	"github.com/ethereum/go-ethereum/common"
)

const CrossAppAccountType = "cross_app"

type EmbeddedWallet struct {
	Address string `json:"address"`
}

type ProviderApp struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type LinkedAccount struct {
	Type            string           `json:"type"`
	ProviderApp     ProviderApp      `json:"providerApp"`
	EmbeddedWallets []EmbeddedWallet `json:"embeddedWallets"`
}

// Session is what the identity provider reports for an authenticated user.
type Session struct {
	UserID         string          `json:"id"`
	LinkedAccounts []LinkedAccount `json:"linkedAccounts"`
}

// PlayerIdentity is resolved once per session. An empty Username means the
// player has not registered one yet.
type PlayerIdentity struct {
	WalletAddress common.Address `json:"walletAddress"`
	Username      string         `json:"username,omitempty"`
}

func (p PlayerIdentity) HasUsername() bool {
	return p.Username != ""
}

type User struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	WalletAddress string `json:"walletAddress"`
}

// CheckWalletResponse is the username lookup service's answer.
type CheckWalletResponse struct {
	HasUsername bool  `json:"hasUsername"`
	User        *User `json:"user,omitempty"`
}
