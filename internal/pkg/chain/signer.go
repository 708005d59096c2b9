package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	addressPattern    = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	privateKeyPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

	ErrMalformedKey = errors.New("private key must be 0x followed by 64 hex characters")
)

func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}

func AddressesEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// ParsePrivateKey accepts only the 0x-prefixed 64 hex character form.
func ParsePrivateKey(s string) (*ecdsa.PrivateKey, error) {
	if !privateKeyPattern.MatchString(s) {
		return nil, ErrMalformedKey
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return key, nil
}

// Signer is an externally owned signing capability bound to one account.
type Signer interface {
	Address() common.Address
	ChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, chainID *big.Int) error
	SignTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
}

var _ Signer = (*KeySigner)(nil)

// KeySigner signs with a key held in process memory.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address

	mu      sync.Mutex
	chainID *big.Int
}

func NewKeySigner(key *ecdsa.PrivateKey, chainID *big.Int) *KeySigner {
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
	}
}

func (s *KeySigner) Address() common.Address {
	return s.address
}

func (s *KeySigner) ChainID(_ context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return new(big.Int).Set(s.chainID), nil
}

func (s *KeySigner) SwitchChain(_ context.Context, chainID *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chainID = new(big.Int).Set(chainID)

	return nil
}

func (s *KeySigner) SignTx(_ context.Context, tx *types.Transaction) (*types.Transaction, error) {
	s.mu.Lock()
	chainID := new(big.Int).Set(s.chainID)
	s.mu.Unlock()

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	return signed, nil
}
