package state

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// EmptyBackend is a StateSource where every account and slot is empty. It backs overlays that start from a blank
// world, such as offline simulations.
type EmptyBackend struct{}

func (EmptyBackend) GetStorageAt(common.Address, common.Hash) (common.Hash, error) {
	return common.Hash{}, nil
}

func (EmptyBackend) GetStateObject(common.Address) (*uint256.Int, uint64, []byte, error) {
	return uint256.NewInt(0), 0, nil, nil
}
