package payment

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	log "github.com/sirupsen/logrus"
	"github.com/vreid/chogrunner/internal/pkg/chain"
	pkgcommon "github.com/vreid/chogrunner/internal/pkg/common"
	"github.com/vreid/chogrunner/internal/pkg/confirm"
)

// DefaultAmount is 0.01 MON.
var DefaultAmount = big.NewInt(10_000_000_000_000_000) //nolint:mnd

type Submitter struct {
	Client  chain.Client
	Network chain.Network

	AdminAddress common.Address
	Amount       *big.Int
	Fees         chain.FeeSchedule
	Policy       confirm.Policy

	// mu keeps one payment in flight per submitter so pending nonces never
	// collide.
	mu sync.Mutex
}

func NewSubmitter(client chain.Client, network chain.Network, adminAddress common.Address) *Submitter {
	return &Submitter{
		Client:       client,
		Network:      network,
		AdminAddress: adminAddress,
		Amount:       new(big.Int).Set(DefaultAmount),
		Fees:         chain.DefaultFeeSchedule(),
		Policy:       confirm.DefaultPolicy(),
	}
}

// Required is the amount plus the worst-case fee of a plain transfer.
func (s *Submitter) Required() *big.Int {
	return new(big.Int).Add(s.Amount, s.Fees.Cost(params.TxGas))
}

func (s *Submitter) Wallet(ctx context.Context, signer chain.Signer) (SigningWallet, error) {
	balance, err := s.Client.BalanceAt(ctx, signer.Address())
	if err != nil {
		return SigningWallet{}, pkgcommon.WrapError(pkgcommon.KindInternal, "Failed to read wallet balance.",
			fmt.Errorf("failed to read signing wallet balance: %w", err))
	}

	return SigningWallet{Address: signer.Address(), Balance: balance}, nil
}

// Pay transfers the fixed amount from the signer to the admin address and
// waits for the receipt. The returned transaction carries the hash whenever
// one was sent, including on revert and timeout.
//
//nolint:funlen
func (s *Submitter) Pay(ctx context.Context, signer chain.Signer) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.AdminAddress == (common.Address{}) {
		return Transaction{}, pkgcommon.NewError(pkgcommon.KindConfiguration, "Payment recipient is not configured.")
	}

	logger := log.WithField("signer", signer.Address().Hex())

	err := s.ensureChain(ctx, signer)
	if err != nil {
		return Transaction{}, err
	}

	wallet, err := s.Wallet(ctx, signer)
	if err != nil {
		return Transaction{}, err
	}

	required := s.Required()
	if wallet.Balance.Cmp(required) < 0 {
		logger.WithFields(log.Fields{
			"balance":  s.Network.Format(wallet.Balance),
			"required": s.Network.Format(required),
		}).Warn("signing wallet cannot cover payment")

		return Transaction{}, &pkgcommon.Error{
			Kind: pkgcommon.KindInsufficientBalance,
			Message: fmt.Sprintf("Insufficient balance. Need at least %s, have %s.",
				s.Network.Format(required), s.Network.Format(wallet.Balance)),
			Balance:  chain.FormatUnits(wallet.Balance, s.Network.Decimals),
			Required: chain.FormatUnits(required, s.Network.Decimals),
			Explorer: s.Network.AddressURL(wallet.Address),
		}
	}

	nonce, err := s.Client.PendingNonceAt(ctx, wallet.Address)
	if err != nil {
		return Transaction{}, pkgcommon.WrapError(pkgcommon.KindInternal, "Payment failed.",
			fmt.Errorf("failed to read signer nonce: %w", err))
	}

	to := s.AdminAddress

	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.Network.ChainID,
		Nonce:     nonce,
		GasTipCap: s.Fees.PriorityFee,
		GasFeeCap: s.Fees.MaxFeePerGas(),
		Gas:       params.TxGas,
		To:        &to,
		Value:     new(big.Int).Set(s.Amount),
	})

	signed, err := signer.SignTx(ctx, unsigned)
	if err != nil {
		return Transaction{}, pkgcommon.WrapError(pkgcommon.KindInternal, "Payment was not signed.", err)
	}

	err = s.Client.SendTransaction(ctx, signed)
	if err != nil {
		return Transaction{}, pkgcommon.WrapError(pkgcommon.KindInternal, "Payment failed.",
			fmt.Errorf("failed to send payment: %w", err))
	}

	result := Transaction{
		Hash:     signed.Hash(),
		Status:   chain.TxPending,
		Explorer: s.Network.TxURL(signed.Hash()),
	}

	logger = logger.WithField("tx", result.Hash.Hex())
	logger.WithField("amount", s.Network.Format(s.Amount)).Info("payment sent")

	result.Status, _ = confirm.Wait(ctx, s.Client, result.Hash, s.Policy)

	switch result.Status {
	case chain.TxSuccess:
		logger.Info("payment confirmed")

		return result, nil
	case chain.TxReverted:
		logger.Error("payment reverted")

		return result, pkgcommon.NewError(pkgcommon.KindReverted, "Payment transaction reverted.").
			WithTx(result.Hash.Hex(), result.Explorer)
	case chain.TxPending, chain.TxUnconfirmed:
	}

	logger.Warn("payment not confirmed within timeout")

	result.Status = chain.TxUnconfirmed

	return result, pkgcommon.NewError(pkgcommon.KindTimeout,
		"Payment not confirmed yet. It may still confirm, check the explorer.").
		WithTx(result.Hash.Hex(), result.Explorer)
}

func (s *Submitter) ensureChain(ctx context.Context, signer chain.Signer) error {
	current, err := signer.ChainID(ctx)
	if err != nil {
		return pkgcommon.WrapError(pkgcommon.KindInternal, "Failed to read wallet network.", err)
	}

	if current.Cmp(s.Network.ChainID) == 0 {
		return nil
	}

	log.WithFields(log.Fields{
		"from": current.String(),
		"to":   s.Network.ChainID.String(),
	}).Info("switching signing wallet network")

	err = signer.SwitchChain(ctx, s.Network.ChainID)
	if err != nil {
		return pkgcommon.WrapError(pkgcommon.KindInternal,
			fmt.Sprintf("Please switch your wallet to %s.", s.Network.Name), err)
	}

	return nil
}
