package state

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/syafiqeil/mev-builder/chain/state/cache"
)

/* This file is exclusively for test fixtures. */

var _ StateSource = (*prePopulatedSource)(nil)

// prePopulatedSource is an offline StateSource which counts the reads it serves and can be told to fail.
type prePopulatedSource struct {
	storageSlots map[common.Address]map[common.Hash]common.Hash
	stateObjects map[common.Address]cache.StateObject

	accountReads int
	slotReads    int

	failWith error
}

func newPrePopulatedSource() *prePopulatedSource {
	return &prePopulatedSource{
		storageSlots: make(map[common.Address]map[common.Hash]common.Hash),
		stateObjects: make(map[common.Address]cache.StateObject),
	}
}

func (p *prePopulatedSource) GetStorageAt(address common.Address, slot common.Hash) (common.Hash, error) {
	p.slotReads++
	if p.failWith != nil {
		return common.Hash{}, p.failWith
	}
	return p.storageSlots[address][slot], nil
}

func (p *prePopulatedSource) GetStateObject(address common.Address) (*uint256.Int, uint64, []byte, error) {
	p.accountReads++
	if p.failWith != nil {
		return nil, 0, nil, p.failWith
	}
	if s, exists := p.stateObjects[address]; exists {
		return s.Balance, s.Nonce, s.Code, nil
	}
	return uint256.NewInt(0), 0, nil, nil
}

func (p *prePopulatedSource) setStorageAt(address common.Address, slot common.Hash, value common.Hash) {
	if _, exists := p.storageSlots[address]; !exists {
		p.storageSlots[address] = make(map[common.Hash]common.Hash)
	}
	p.storageSlots[address][slot] = value
}

// sourceFixture is a prePopulatedSource holding a contract with one populated slot, an EOA and nothing else.
type sourceFixture struct {
	Source *prePopulatedSource

	ContractAddress common.Address
	Contract        cache.StateObject

	PopulatedSlot     common.Hash
	PopulatedSlotData common.Hash
	EmptySlot         common.Hash

	EOAAddress common.Address
	EOA        cache.StateObject

	EmptyAddress common.Address
}

func newSourceFixture() *sourceFixture {
	fixture := &sourceFixture{
		Source:          newPrePopulatedSource(),
		ContractAddress: common.HexToAddress("0xa0"),
		Contract: cache.StateObject{
			Balance: uint256.NewInt(1000),
			Nonce:   5,
			Code:    []byte{0x60, 0x00, 0x60, 0x00, 0xf3},
		},
		PopulatedSlot:     common.HexToHash("0x01"),
		PopulatedSlotData: common.HexToHash("0xdeadbeef"),
		EmptySlot:         common.HexToHash("0x02"),
		EOAAddress:        common.HexToAddress("0xb0"),
		EOA: cache.StateObject{
			Balance: uint256.NewInt(5000),
			Nonce:   1,
		},
		EmptyAddress: common.HexToAddress("0xc0"),
	}
	fixture.Source.stateObjects[fixture.ContractAddress] = fixture.Contract
	fixture.Source.stateObjects[fixture.EOAAddress] = fixture.EOA
	fixture.Source.setStorageAt(fixture.ContractAddress, fixture.PopulatedSlot, fixture.PopulatedSlotData)
	return fixture
}

var errSourceDown = errors.New("source unavailable")
