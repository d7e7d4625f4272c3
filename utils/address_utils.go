package utils

import (
	"encoding/hex"
	"strings"

	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
)

// HexStringToAddress converts a hex string (with or without the "0x" prefix) to a common.Address. Returns the parsed
// address, or an error if the string is not exactly 20 hex-encoded bytes.
func HexStringToAddress(s string) (common.Address, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return common.Address{}, errors.WithStack(err)
	}
	if len(b) != common.AddressLength {
		return common.Address{}, errors.Errorf("address %q has %d bytes, expected %d", s, len(b), common.AddressLength)
	}
	return common.BytesToAddress(b), nil
}

// HexStringToBytes decodes a hex string (with or without the "0x" prefix) into raw bytes.
func HexStringToBytes(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	return b, errors.WithStack(err)
}
