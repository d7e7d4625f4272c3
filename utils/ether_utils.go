package utils

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// etherDecimals is the number of decimal places between wei and ether.
const etherDecimals = 18

// gweiDecimals is the number of decimal places between wei and gwei.
const gweiDecimals = 9

// EtherToWei parses a decimal ether amount such as "0.01" into wei. Amounts with more than 18 decimal places or
// negative amounts are rejected.
func EtherToWei(ether string) (*big.Int, error) {
	return parseScaled(ether, etherDecimals)
}

// GweiToWei parses a decimal gwei amount such as "2.5" into wei.
func GweiToWei(gwei string) (*big.Int, error) {
	return parseScaled(gwei, gweiDecimals)
}

// WeiToEther converts a (possibly negative) wei amount into an ether decimal, suitable for display.
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -etherDecimals)
}

// FormatEther renders a wei amount as ether with a fixed number of decimal places.
func FormatEther(wei *big.Int, places int32) string {
	return WeiToEther(wei).StringFixed(places)
}

// parseScaled parses s as a decimal and shifts it left by exp places, requiring an integral, non-negative result.
func parseScaled(s string, exp int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid amount %q", s)
	}
	if d.IsNegative() {
		return nil, errors.Errorf("amount %q must not be negative", s)
	}
	scaled := d.Shift(exp)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, errors.Errorf("amount %q has more precision than the unit allows", s)
	}
	return scaled.BigInt(), nil
}
