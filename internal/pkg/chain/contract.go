package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const DefaultContractAddress = "0xceCBFF203C8B6044F52CE23D914A1bfD997541A4"

const scoreContractABI = `[
	{
		"inputs": [
			{"name": "player", "type": "address"},
			{"name": "scoreAmount", "type": "uint256"},
			{"name": "transactionAmount", "type": "uint256"}
		],
		"name": "updatePlayerData",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "", "type": "address"}],
		"name": "totalScoreOfPlayer",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "", "type": "address"}],
		"name": "totalTransactionsOfPlayer",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

var ErrUnexpectedOutput = errors.New("unexpected contract output")

var parsedScoreABI = mustParseABI(scoreContractABI)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(err)
	}

	return parsed
}

// ScoreContract binds the game's leaderboard contract.
type ScoreContract struct {
	Address common.Address

	client Client
}

func NewScoreContract(address common.Address, client Client) *ScoreContract {
	return &ScoreContract{
		Address: address,
		client:  client,
	}
}

func PackUpdatePlayerData(player common.Address, scoreAmount, transactionAmount *big.Int) ([]byte, error) {
	data, err := parsedScoreABI.Pack("updatePlayerData", player, scoreAmount, transactionAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack updatePlayerData: %w", err)
	}

	return data, nil
}

func (c *ScoreContract) TotalScoreOfPlayer(ctx context.Context, player common.Address) (*big.Int, error) {
	return c.callUint(ctx, "totalScoreOfPlayer", player)
}

func (c *ScoreContract) TotalTransactionsOfPlayer(ctx context.Context, player common.Address) (*big.Int, error) {
	return c.callUint(ctx, "totalTransactionsOfPlayer", player)
}

func (c *ScoreContract) callUint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	data, err := parsedScoreABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	to := c.Address

	output, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &to,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	values, err := parsedScoreABI.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}

	if len(values) != 1 {
		return nil, fmt.Errorf("%w: %s returned %d values", ErrUnexpectedOutput, method, len(values))
	}

	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned %T", ErrUnexpectedOutput, method, values[0])
	}

	return value, nil
}
