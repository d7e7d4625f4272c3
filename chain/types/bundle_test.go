package types

import (
	"math/big"
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/stretchr/testify/assert"
)

func TestBundleCriticalIndex(t *testing.T) {
	attacker := common.HexToAddress("0xa1")
	bundle := Bundle{
		Transactions: []*TransactionIntent{
			{Role: RoleAttackerBuy, From: attacker},
			{Role: RoleVictim},
			{Role: RoleAttackerSell, From: attacker},
		},
		CriticalRole: RoleVictim,
	}
	assert.Equal(t, 1, bundle.CriticalIndex())
	assert.Equal(t, attacker, bundle.BeneficiaryAddress())

	bundle.CriticalRole = RoleDeploy
	assert.Equal(t, -1, bundle.CriticalIndex())

	bundle.CriticalRole = RoleNone
	assert.Equal(t, -1, bundle.CriticalIndex())

	helper := common.HexToAddress("0xbe")
	bundle.Beneficiary = helper
	assert.Equal(t, helper, bundle.BeneficiaryAddress())
}

func TestIntentToMessage(t *testing.T) {
	to := common.HexToAddress("0x10")
	intent := &TransactionIntent{
		From:     common.HexToAddress("0x20"),
		To:       &to,
		GasLimit: 21000,
		GasPrice: big.NewInt(30),
		Nonce:    4,
	}
	msg := intent.ToMessage()
	assert.Equal(t, &to, msg.To)
	assert.EqualValues(t, 0, msg.Value.Sign())
	assert.Equal(t, big.NewInt(30), msg.GasFeeCap)
	assert.Equal(t, big.NewInt(30), msg.GasTipCap)
	assert.EqualValues(t, 4, msg.Nonce)
	assert.False(t, intent.IsCreate())

	// The message owns its own big integers.
	msg.GasPrice.SetInt64(1)
	assert.EqualValues(t, 30, intent.GasPrice.Int64())
}
