package relay

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/crytic/medusa-geth/common"
	gethtypes "github.com/crytic/medusa-geth/core/types"
	"github.com/crytic/medusa-geth/crypto"
	"github.com/pkg/errors"
)

// KeySigner signs transactions with a private key for a single chain.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	signer  gethtypes.Signer
}

// NewKeySigner creates a KeySigner for chainID.
func NewKeySigner(key *ecdsa.PrivateKey, chainID *big.Int) (*KeySigner, error) {
	if key == nil {
		return nil, errors.New("signing key is required")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("chain id must be positive")
	}
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		signer:  gethtypes.LatestSignerForChainID(chainID),
	}, nil
}

// Address returns the address of the signing key.
func (s *KeySigner) Address() common.Address {
	return s.address
}

// SignTx returns a signed copy of tx.
func (s *KeySigner) SignTx(tx *gethtypes.Transaction) (*gethtypes.Transaction, error) {
	signed, err := gethtypes.SignTx(tx, s.signer, s.key)
	return signed, errors.WithStack(err)
}
