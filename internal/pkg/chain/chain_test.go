package chain_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/chogrunner/internal/pkg/chain"
	"github.com/vreid/chogrunner/internal/pkg/chain/chaintest"
)

func TestFormatUnits(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		amount   *big.Int
		decimals int
		expected string
	}{
		{big.NewInt(0), 18, "0"},
		{big.NewInt(5), 3, "0.005"},
		{big.NewInt(1000), 3, "1"},
		{big.NewInt(1500), 3, "1.5"},
		{big.NewInt(-1500), 3, "-1.5"},
		{chain.DefaultFeeSchedule().Cost(200_000), 18, "0.01248"},
		{nil, 18, "0"},
	} {
		assert.Equal(t, tc.expected, chain.FormatUnits(tc.amount, tc.decimals))
	}
}

func TestParseUnits(t *testing.T) {
	t.Parallel()

	wei, err := chain.ParseUnits("0.01", 18)
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000", wei.String())

	_, err = chain.ParseUnits("1.0000000000000000001", 18)
	require.Error(t, err)

	_, err = chain.ParseUnits("abc", 18)
	require.Error(t, err)

	for _, signed := range []string{"-0.01", "+0.01", "-1", "0.-1", "1.+5"} {
		_, err = chain.ParseUnits(signed, 18)
		require.ErrorIs(t, err, chain.ErrInvalidAmount, signed)
	}
}

func TestFeeSchedule(t *testing.T) {
	t.Parallel()

	fees := chain.DefaultFeeSchedule()

	assert.Equal(t, "62400000000", fees.MaxFeePerGas().String())
	assert.Equal(t, "12480000000000000", fees.Cost(200_000).String())
}

func TestNetworkLinks(t *testing.T) {
	t.Parallel()

	network := chain.MonadTestnet("")
	hash := common.HexToHash("0x01")
	addr := common.HexToAddress("0x6d6eD11fb83b202a04be03a4dd4548ace2addbf7")

	assert.Equal(t, []string{
		chain.DefaultRPCURL,
		"https://testnet-rpc.monad.xyz",
		"https://rpc.testnet.monad.xyz",
	}, network.RPCURLs)
	assert.Equal(t, "https://testnet.monadexplorer.com/tx/"+hash.Hex(), network.TxURL(hash))
	assert.Equal(t, "https://testnet.monadexplorer.com/address/"+addr.Hex(), network.AddressURL(addr))

	overridden := chain.MonadTestnet("http://localhost:8545")
	assert.Equal(t, "http://localhost:8545", overridden.RPCURL())
	assert.Len(t, overridden.RPCURLs, 3)
	assert.NotContains(t, overridden.RPCURLs, chain.DefaultRPCURL)
}

func TestIsAddress(t *testing.T) {
	t.Parallel()

	assert.True(t, chain.IsAddress("0x1111111111111111111111111111111111111111"))
	assert.True(t, chain.IsAddress("0xceCBFF203C8B6044F52CE23D914A1bfD997541A4"))
	assert.False(t, chain.IsAddress("1111111111111111111111111111111111111111"))
	assert.False(t, chain.IsAddress("0x111111111111111111111111111111111111111"))
	assert.False(t, chain.IsAddress("0x111111111111111111111111111111111111111g"))
	assert.False(t, chain.IsAddress(""))
}

func TestParsePrivateKey(t *testing.T) {
	t.Parallel()

	_, err := chain.ParsePrivateKey("0x1234")
	require.ErrorIs(t, err, chain.ErrMalformedKey)

	_, err = chain.ParsePrivateKey("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.ErrorIs(t, err, chain.ErrMalformedKey)

	key, err := chain.ParsePrivateKey("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	assert.Equal(t,
		"0x2c7536E3605D9C16a7a3D7b1898e529396a65c23",
		crypto.PubkeyToAddress(key.PublicKey).Hex())
}

func TestPackUpdatePlayerData(t *testing.T) {
	t.Parallel()

	player := common.HexToAddress("0x1111111111111111111111111111111111111111")

	data, err := chain.PackUpdatePlayerData(player, big.NewInt(42), big.NewInt(1))
	require.NoError(t, err)

	selector := crypto.Keccak256([]byte("updatePlayerData(address,uint256,uint256)"))[:4]

	require.Len(t, data, 4+3*32)
	assert.Equal(t, selector, data[:4])
	assert.Equal(t, common.LeftPadBytes(player.Bytes(), 32), data[4:36])
	assert.Equal(t, common.LeftPadBytes([]byte{42}, 32), data[36:68])
	assert.Equal(t, common.LeftPadBytes([]byte{1}, 32), data[68:100])
}

func TestScoreContractReads(t *testing.T) {
	t.Parallel()

	contractAddr := common.HexToAddress(chain.DefaultContractAddress)
	player := common.HexToAddress("0x1111111111111111111111111111111111111111")

	scoreSelector := crypto.Keccak256([]byte("totalScoreOfPlayer(address)"))[:4]

	client := chaintest.New(chain.MonadTestnetChainID)
	client.CallFn = func(msg ethereum.CallMsg) ([]byte, error) {
		if *msg.To != contractAddr {
			return nil, errors.New("wrong contract")
		}

		if string(msg.Data[:4]) == string(scoreSelector) {
			return common.LeftPadBytes(big.NewInt(15420).Bytes(), 32), nil
		}

		return common.LeftPadBytes(big.NewInt(7).Bytes(), 32), nil
	}

	contract := chain.NewScoreContract(contractAddr, client)

	score, err := contract.TotalScoreOfPlayer(context.Background(), player)
	require.NoError(t, err)
	assert.Equal(t, int64(15420), score.Int64())

	txs, err := contract.TotalTransactionsOfPlayer(context.Background(), player)
	require.NoError(t, err)
	assert.Equal(t, int64(7), txs.Int64())
}

func TestScoreContractReadError(t *testing.T) {
	t.Parallel()

	client := chaintest.New(chain.MonadTestnetChainID)
	client.CallFn = func(_ ethereum.CallMsg) ([]byte, error) {
		return nil, errors.New("rpc down")
	}

	contract := chain.NewScoreContract(common.HexToAddress(chain.DefaultContractAddress), client)

	_, err := contract.TotalScoreOfPlayer(context.Background(), common.Address{})
	require.Error(t, err)
}

func TestKeySigner(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	signer := chain.NewKeySigner(key, big.NewInt(1))
	require.NoError(t, signer.SwitchChain(context.Background(), big.NewInt(chain.MonadTestnetChainID)))

	chainID, err := signer.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(chain.MonadTestnetChainID), chainID.Int64())

	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     3,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21_000,
		To:        &to,
		Value:     big.NewInt(10),
	})

	signed, err := signer.SignTx(context.Background(), tx)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), sender)
}
