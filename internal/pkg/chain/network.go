package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	MonadTestnetChainID = 10143

	DefaultRPCURL      = "https://monad-testnet.g.alchemy.com/v2/2_6PCYK5t8bMySPXeTYlc"
	DefaultExplorerURL = "https://testnet.monadexplorer.com"
)

// Network describes the single chain the game writes to. Fallback endpoints
// are informational; the client only dials RPCURLs[0].
type Network struct {
	ChainID  *big.Int
	Name     string
	Symbol   string
	Decimals int

	RPCURLs     []string
	ExplorerURL string
}

// MonadTestnet lists rpcOverride as the primary endpoint when set, replacing
// DefaultRPCURL.
func MonadTestnet(rpcOverride string) Network {
	primary := DefaultRPCURL
	if rpcOverride != "" {
		primary = rpcOverride
	}

	urls := []string{
		primary,
		"https://testnet-rpc.monad.xyz",
		"https://rpc.testnet.monad.xyz",
	}

	return Network{
		ChainID:     big.NewInt(MonadTestnetChainID),
		Name:        "Monad Testnet",
		Symbol:      "MON",
		Decimals:    18, //nolint:mnd
		RPCURLs:     urls,
		ExplorerURL: DefaultExplorerURL,
	}
}

func (n Network) RPCURL() string {
	if len(n.RPCURLs) == 0 {
		return ""
	}

	return n.RPCURLs[0]
}

func (n Network) TxURL(hash common.Hash) string {
	return fmt.Sprintf("%s/tx/%s", strings.TrimSuffix(n.ExplorerURL, "/"), hash.Hex())
}

func (n Network) AddressURL(addr common.Address) string {
	return fmt.Sprintf("%s/address/%s", strings.TrimSuffix(n.ExplorerURL, "/"), addr.Hex())
}

// Format renders a wei amount in the native unit, e.g. "0.0124 MON".
func (n Network) Format(amount *big.Int) string {
	return FormatUnits(amount, n.Decimals) + " " + n.Symbol
}

// FeeSchedule is the fixed EIP-1559 fee pair used for every write.
type FeeSchedule struct {
	BaseFee     *big.Int
	PriorityFee *big.Int
}

func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		BaseFee:     big.NewInt(50_000_000_000), //nolint:mnd
		PriorityFee: big.NewInt(12_400_000_000), //nolint:mnd
	}
}

func (f FeeSchedule) MaxFeePerGas() *big.Int {
	return new(big.Int).Add(f.BaseFee, f.PriorityFee)
}

// Cost returns gasLimit * maxFeePerGas.
func (f FeeSchedule) Cost(gasLimit uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), f.MaxFeePerGas())
}
