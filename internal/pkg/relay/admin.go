package relay

import (
	"math/big"

	"github.com/vreid/chogrunner/internal/pkg/chain"
	pkgcommon "github.com/vreid/chogrunner/internal/pkg/common"
)

// AdminAccount is the only account allowed to write scores. It is derived
// from configuration on every request and never serialized.
type AdminAccount struct {
	*chain.KeySigner
}

func LoadAdminAccount(privateKey string, expectedAddress string, chainID *big.Int) (*AdminAccount, error) {
	key, err := chain.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, pkgcommon.NewError(pkgcommon.KindConfiguration, "Invalid admin private key.")
	}

	signer := chain.NewKeySigner(key, chainID)

	if !chain.IsAddress(expectedAddress) || !chain.AddressesEqual(signer.Address().Hex(), expectedAddress) {
		return nil, pkgcommon.NewError(pkgcommon.KindConfiguration, "Admin private key does not match admin address.")
	}

	return &AdminAccount{KeySigner: signer}, nil
}

func (a *AdminAccount) String() string {
	return "admin(" + a.Address().Hex() + ")"
}
