package state

import (
	"fmt"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// StateSource provides read access to accounts and storage slots. RPCBackend serves them straight from a remote node,
// Overlay serves them from its local cache and falls back to its own StateSource on a miss.
type StateSource interface {
	// GetStateObject returns the balance, nonce and code of addr. Accounts that do not exist are reported with zero
	// values rather than an error.
	GetStateObject(addr common.Address) (*uint256.Int, uint64, []byte, error)

	// GetStorageAt returns the value held in slot of addr. Slots that were never written report the zero hash.
	GetStorageAt(addr common.Address, slot common.Hash) (common.Hash, error)
}

var _ StateSource = (*RPCBackend)(nil)
var _ StateSource = (*Overlay)(nil)
var _ StateSource = EmptyBackend{}

// DataSourceError is returned when account or storage data could not be read from the remote node. It only
// invalidates the attempt that needed the data.
type DataSourceError struct {
	// Address is the account being read.
	Address common.Address
	// Slot is the storage slot being read, or nil for account reads.
	Slot *common.Hash
	// Err is the underlying transport or decoding error.
	Err error
}

// Error returns the error message string, implementing the `error` interface.
func (e *DataSourceError) Error() string {
	if e.Slot != nil {
		return fmt.Sprintf("failed to read slot %s of %s: %v", e.Slot.Hex(), e.Address.Hex(), e.Err)
	}
	return fmt.Sprintf("failed to read account %s: %v", e.Address.Hex(), e.Err)
}

// Unwrap returns the underlying error.
func (e *DataSourceError) Unwrap() error {
	return e.Err
}

// errBalanceOverflow is returned when a remote node reports a balance that does not fit in 256 bits.
var errBalanceOverflow = errors.New("balance does not fit in 256 bits")
