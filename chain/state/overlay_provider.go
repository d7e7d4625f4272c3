package state

import (
	"fmt"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/state"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

var _ state.RemoteStateProvider = (*OverlayStateProvider)(nil)

// snapshotRecord lists what was imported, written or deployed while a given state db snapshot was the latest.
type snapshotRecord struct {
	accounts []common.Address
	slots    map[common.Address][]common.Hash
	deployed []common.Address
}

// OverlayStateProvider feeds a forked state db from an Overlay. It tracks which accounts and slots the state db
// already holds so they are never imported twice, forgetting entries when the state db reverts past the snapshot that
// recorded them.
//
// Independently of snapshots it remembers every account and slot a transaction touched, which is the set of entries
// that must be copied back into the overlay once execution succeeds.
type OverlayStateProvider struct {
	overlay *Overlay

	// snapshots records imports per snapshot id so reverts can forget them.
	snapshots map[int]*snapshotRecord

	accountsImported map[common.Address]struct{}
	slotsImported    map[common.Address]map[common.Hash]struct{}
	deployed         map[common.Address]struct{}

	// touchedAccounts and touchedSlots are never cleared by reverts.
	touchedAccounts map[common.Address]struct{}
	touchedSlots    map[common.Address]map[common.Hash]struct{}
	createdAccounts map[common.Address]struct{}

	// fetchErr is the first error the overlay returned while importing.
	fetchErr error
}

// NewOverlayStateProvider creates a provider importing state from overlay.
func NewOverlayStateProvider(overlay *Overlay) *OverlayStateProvider {
	return &OverlayStateProvider{
		overlay:          overlay,
		snapshots:        make(map[int]*snapshotRecord),
		accountsImported: make(map[common.Address]struct{}),
		slotsImported:    make(map[common.Address]map[common.Hash]struct{}),
		deployed:         make(map[common.Address]struct{}),
		touchedAccounts:  make(map[common.Address]struct{}),
		touchedSlots:     make(map[common.Address]map[common.Hash]struct{}),
		createdAccounts:  make(map[common.Address]struct{}),
	}
}

// ImportStateObject returns the overlay's view of addr. An account the state db already imported is reported as dirty.
func (p *OverlayStateProvider) ImportStateObject(addr common.Address, snapId int) (*uint256.Int, uint64, []byte, *state.RemoteStateError) {
	if _, ok := p.accountsImported[addr]; ok {
		return nil, 0, nil, &state.RemoteStateError{
			CannotQueryDirtyAccount: true,
			Error:                   fmt.Errorf("account %s was already imported", addr.Hex()),
		}
	}

	balance, nonce, code, err := p.overlay.GetStateObject(addr)
	if err != nil {
		p.recordFetchError(addr, nil, err)
		return uint256.NewInt(0), 0, nil, &state.RemoteStateError{
			CannotQueryDirtyAccount: false,
			Error:                   err,
		}
	}

	p.accountsImported[addr] = struct{}{}
	p.record(snapId).accounts = append(p.record(snapId).accounts, addr)
	p.touchedAccounts[addr] = struct{}{}
	return balance, nonce, code, nil
}

// ImportStorageAt returns the overlay's view of slot at addr. Slots the state db already holds, and slots of contracts
// deployed during this execution, are reported as dirty.
func (p *OverlayStateProvider) ImportStorageAt(addr common.Address, slot common.Hash, snapId int) (common.Hash, *state.RemoteStorageError) {
	if _, ok := p.deployed[addr]; ok {
		return common.Hash{}, &state.RemoteStorageError{
			CannotQueryDirtySlot: true,
			Error:                fmt.Errorf("slot %s of %s belongs to a contract deployed in this execution", slot.Hex(), addr.Hex()),
		}
	}
	if p.isSlotImported(addr, slot) {
		return common.Hash{}, &state.RemoteStorageError{
			CannotQueryDirtySlot: true,
			Error:                fmt.Errorf("slot %s of %s was already imported", slot.Hex(), addr.Hex()),
		}
	}

	value, err := p.overlay.GetStorageAt(addr, slot)
	if err != nil {
		p.recordFetchError(addr, &slot, err)
		return common.Hash{}, &state.RemoteStorageError{
			CannotQueryDirtySlot: false,
			Error:                err,
		}
	}
	p.recordSlot(addr, slot, snapId)
	return value, nil
}

// MarkSlotWritten records that the state db wrote slot at addr, so it must never be imported afterwards.
func (p *OverlayStateProvider) MarkSlotWritten(addr common.Address, slot common.Hash, snapId int) {
	p.recordSlot(addr, slot, snapId)
}

// MarkContractDeployed records that addr was created during this execution.
func (p *OverlayStateProvider) MarkContractDeployed(addr common.Address, snapId int) {
	p.deployed[addr] = struct{}{}
	p.record(snapId).deployed = append(p.record(snapId).deployed, addr)
	p.touchedAccounts[addr] = struct{}{}
	p.createdAccounts[addr] = struct{}{}
}

// NotifyRevertedToSnapshot forgets every import recorded after snapId.
func (p *OverlayStateProvider) NotifyRevertedToSnapshot(snapId int) {
	for id, record := range p.snapshots {
		if id <= snapId {
			continue
		}
		for _, addr := range record.accounts {
			delete(p.accountsImported, addr)
		}
		for addr, slots := range record.slots {
			for _, slot := range slots {
				delete(p.slotsImported[addr], slot)
			}
		}
		for _, addr := range record.deployed {
			delete(p.deployed, addr)
		}
		delete(p.snapshots, id)
	}
}

// TouchedAccounts returns every account imported or created during execution, including those later reverted.
func (p *OverlayStateProvider) TouchedAccounts() []common.Address {
	accounts := make([]common.Address, 0, len(p.touchedAccounts))
	for addr := range p.touchedAccounts {
		accounts = append(accounts, addr)
	}
	return accounts
}

// TouchedSlots returns every slot imported or written during execution, grouped by account.
func (p *OverlayStateProvider) TouchedSlots() map[common.Address][]common.Hash {
	slots := make(map[common.Address][]common.Hash, len(p.touchedSlots))
	for addr, touched := range p.touchedSlots {
		for slot := range touched {
			slots[addr] = append(slots[addr], slot)
		}
	}
	return slots
}

// WasCreated returns whether addr was deployed at any point during execution.
func (p *OverlayStateProvider) WasCreated(addr common.Address) bool {
	_, ok := p.createdAccounts[addr]
	return ok
}

// FetchError returns the first error raised by the overlay during execution, if any. It is always a
// *DataSourceError.
func (p *OverlayStateProvider) FetchError() error {
	return p.fetchErr
}

func (p *OverlayStateProvider) record(snapId int) *snapshotRecord {
	record, ok := p.snapshots[snapId]
	if !ok {
		record = &snapshotRecord{slots: make(map[common.Address][]common.Hash)}
		p.snapshots[snapId] = record
	}
	return record
}

func (p *OverlayStateProvider) recordSlot(addr common.Address, slot common.Hash, snapId int) {
	if _, ok := p.slotsImported[addr]; !ok {
		p.slotsImported[addr] = make(map[common.Hash]struct{})
	}
	p.slotsImported[addr][slot] = struct{}{}
	record := p.record(snapId)
	record.slots[addr] = append(record.slots[addr], slot)
	p.RecordSlotWritten(addr, slot)
}

// RecordSlotWritten adds slot at addr to the touched set without affecting import bookkeeping. The executor reports
// every SSTORE through it, including writes to contracts created in the same execution.
func (p *OverlayStateProvider) RecordSlotWritten(addr common.Address, slot common.Hash) {
	if _, ok := p.touchedSlots[addr]; !ok {
		p.touchedSlots[addr] = make(map[common.Hash]struct{})
	}
	p.touchedSlots[addr][slot] = struct{}{}
}

func (p *OverlayStateProvider) isSlotImported(addr common.Address, slot common.Hash) bool {
	slots, ok := p.slotsImported[addr]
	if !ok {
		return false
	}
	_, ok = slots[slot]
	return ok
}

func (p *OverlayStateProvider) recordFetchError(addr common.Address, slot *common.Hash, err error) {
	if p.fetchErr != nil {
		return
	}
	var dataErr *DataSourceError
	if errors.As(err, &dataErr) {
		p.fetchErr = dataErr
		return
	}
	p.fetchErr = &DataSourceError{Address: addr, Slot: slot, Err: err}
}
