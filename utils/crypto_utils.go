package utils

import (
	"crypto/ecdsa"
	"strings"

	"github.com/crytic/medusa-geth/crypto"
	"github.com/pkg/errors"
)

// GetPrivateKeyFromHex parses a secp256k1 private key from a hex string, with or without the "0x" prefix.
func GetPrivateKeyFromHex(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, errors.New("private key is empty")
	}
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}
	return key, nil
}
