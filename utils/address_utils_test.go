package utils

import (
	"math/big"
	"testing"

	"github.com/crytic/medusa-geth/crypto"
	"github.com/crytic/medusa-geth/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHexStringToAddress verifies prefixed and bare addresses parse and short ones are rejected.
func TestHexStringToAddress(t *testing.T) {
	addr, err := HexStringToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	require.NoError(t, err)
	assert.Equal(t, "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D", addr.Hex())

	bare, err := HexStringToAddress(" 7a250d5630B4cF539739dF2C5dAcb4c659F2488D ")
	require.NoError(t, err)
	assert.Equal(t, addr, bare)

	_, err = HexStringToAddress("0x1234")
	assert.Error(t, err)
	_, err = HexStringToAddress("0xzz")
	assert.Error(t, err)
}

// TestGetPrivateKeyFromHex verifies keys parse with or without a prefix.
func TestGetPrivateKeyFromHex(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	encoded := new(big.Int).SetBytes(crypto.FromECDSA(key)).Text(16)
	for len(encoded) < 64 {
		encoded = "0" + encoded
	}

	parsed, err := GetPrivateKeyFromHex("0x" + encoded)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(parsed.PublicKey))

	_, err = GetPrivateKeyFromHex("")
	assert.Error(t, err)
	_, err = GetPrivateKeyFromHex("0x1234")
	assert.Error(t, err)
}

// TestCopyChainConfig verifies the copy can be changed without touching the original.
func TestCopyChainConfig(t *testing.T) {
	copied, err := CopyChainConfig(params.MainnetChainConfig)
	require.NoError(t, err)
	copied.ChainID = big.NewInt(31337)
	assert.EqualValues(t, 1, params.MainnetChainConfig.ChainID.Int64())
	assert.Equal(t, params.MainnetChainConfig.LondonBlock, copied.LondonBlock)
}
