package state

import (
	"bytes"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/types"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
	"golang.org/x/exp/maps"
)

// Account is the overlay's view of a single account.
type Account struct {
	Balance  *uint256.Int
	Nonce    uint64
	Code     []byte
	CodeHash common.Hash
}

// newEmptyAccount returns a zero-balance account without code.
func newEmptyAccount() *Account {
	return &Account{
		Balance:  uint256.NewInt(0),
		CodeHash: types.EmptyCodeHash,
	}
}

// Copy returns a deep copy of the account.
func (a *Account) Copy() *Account {
	return &Account{
		Balance:  new(uint256.Int).Set(a.Balance),
		Nonce:    a.Nonce,
		Code:     bytes.Clone(a.Code),
		CodeHash: a.CodeHash,
	}
}

// HasCode returns whether the account holds contract code.
func (a *Account) HasCode() bool {
	return len(a.Code) > 0
}

// Overlay is a writable view over a StateSource. Reads consult local entries first and memoize whatever they fetch, so
// a key is fetched from the source at most once per overlay lineage. Writes and overrides never reach the source.
//
// An Overlay is owned by a single goroutine. Clone produces an independent copy for parallel or speculative work.
type Overlay struct {
	source StateSource

	// accounts holds every loaded, overridden or committed account.
	accounts map[common.Address]*Account
	// storage holds every loaded or written slot.
	storage map[common.Address]map[common.Hash]common.Hash
	// localStorage holds accounts whose storage is known in full locally. Missing slots of these accounts read as zero.
	localStorage map[common.Address]struct{}
}

// NewOverlay creates an empty Overlay reading through to source.
func NewOverlay(source StateSource) *Overlay {
	if source == nil {
		source = EmptyBackend{}
	}
	return &Overlay{
		source:       source,
		accounts:     make(map[common.Address]*Account),
		storage:      make(map[common.Address]map[common.Hash]common.Hash),
		localStorage: make(map[common.Address]struct{}),
	}
}

// Load returns the account at addr, fetching it from the source on first use. The returned account is owned by the
// overlay and must not be modified.
func (o *Overlay) Load(addr common.Address) (*Account, error) {
	if account, ok := o.accounts[addr]; ok {
		return account, nil
	}

	balance, nonce, code, err := o.source.GetStateObject(addr)
	if err != nil {
		return nil, err
	}
	account := &Account{
		Balance:  new(uint256.Int),
		Nonce:    nonce,
		Code:     code,
		CodeHash: codeHash(code),
	}
	if balance != nil {
		account.Balance.Set(balance)
	}
	o.accounts[addr] = account
	return account, nil
}

// OverrideCode replaces the code of addr, creating a zero account if none exists. The balance, nonce and storage of
// an existing account are kept.
func (o *Overlay) OverrideCode(addr common.Address, code []byte) error {
	account, err := o.Load(addr)
	if err != nil {
		return err
	}
	account = account.Copy()
	account.Code = bytes.Clone(code)
	account.CodeHash = codeHash(code)
	o.accounts[addr] = account
	return nil
}

// OverrideBalance sets the balance of addr. A missing account is created with nonce zero and no code.
func (o *Overlay) OverrideBalance(addr common.Address, amount *uint256.Int) error {
	account, err := o.Load(addr)
	if err != nil {
		return err
	}
	account = account.Copy()
	account.Balance.Set(amount)
	o.accounts[addr] = account
	return nil
}

// Balance returns the balance of addr.
func (o *Overlay) Balance(addr common.Address) (*uint256.Int, error) {
	account, err := o.Load(addr)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(account.Balance), nil
}

// Nonce returns the nonce of addr.
func (o *Overlay) Nonce(addr common.Address) (uint64, error) {
	account, err := o.Load(addr)
	if err != nil {
		return 0, err
	}
	return account.Nonce, nil
}

// ReadStorage returns the value of slot at addr, fetching it from the source on first use.
func (o *Overlay) ReadStorage(addr common.Address, slot common.Hash) (common.Hash, error) {
	if slots, ok := o.storage[addr]; ok {
		if value, ok := slots[slot]; ok {
			return value, nil
		}
	}
	if _, ok := o.localStorage[addr]; ok {
		return common.Hash{}, nil
	}

	value, err := o.source.GetStorageAt(addr, slot)
	if err != nil {
		return common.Hash{}, err
	}
	o.setSlot(addr, slot, value)
	return value, nil
}

// WriteStorage records a committed slot value.
func (o *Overlay) WriteStorage(addr common.Address, slot common.Hash, value common.Hash) {
	o.setSlot(addr, slot, value)
}

// CommitAccount records the committed balance, nonce and code of addr.
func (o *Overlay) CommitAccount(addr common.Address, balance *uint256.Int, nonce uint64, code []byte) {
	o.accounts[addr] = &Account{
		Balance:  new(uint256.Int).Set(balance),
		Nonce:    nonce,
		Code:     bytes.Clone(code),
		CodeHash: codeHash(code),
	}
}

// ResetStorage discards every slot of addr and marks its storage as fully local. It is used for contracts created by
// a committed transaction, whose storage the source cannot know about.
func (o *Overlay) ResetStorage(addr common.Address) {
	delete(o.storage, addr)
	o.localStorage[addr] = struct{}{}
}

// DeleteAccount replaces addr with an empty account whose storage reads as zero without consulting the source.
func (o *Overlay) DeleteAccount(addr common.Address) {
	o.accounts[addr] = newEmptyAccount()
	o.ResetStorage(addr)
}

// Clone returns a deep copy of the overlay. The copy shares the source but none of the local state, so writes to
// either side are invisible to the other.
func (o *Overlay) Clone() *Overlay {
	accounts := make(map[common.Address]*Account, len(o.accounts))
	for addr, account := range o.accounts {
		accounts[addr] = account.Copy()
	}
	storage := make(map[common.Address]map[common.Hash]common.Hash, len(o.storage))
	for addr, slots := range o.storage {
		storage[addr] = maps.Clone(slots)
	}
	return &Overlay{
		source:       o.source,
		accounts:     accounts,
		storage:      storage,
		localStorage: maps.Clone(o.localStorage),
	}
}

// Size returns the number of accounts and slots held locally.
func (o *Overlay) Size() (int, int) {
	slots := 0
	for _, s := range o.storage {
		slots += len(s)
	}
	return len(o.accounts), slots
}

// GetStateObject implements StateSource over the overlay.
func (o *Overlay) GetStateObject(addr common.Address) (*uint256.Int, uint64, []byte, error) {
	account, err := o.Load(addr)
	if err != nil {
		return nil, 0, nil, err
	}
	return new(uint256.Int).Set(account.Balance), account.Nonce, account.Code, nil
}

// GetStorageAt implements StateSource over the overlay.
func (o *Overlay) GetStorageAt(addr common.Address, slot common.Hash) (common.Hash, error) {
	return o.ReadStorage(addr, slot)
}

func (o *Overlay) setSlot(addr common.Address, slot common.Hash, value common.Hash) {
	slots, ok := o.storage[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		o.storage[addr] = slots
	}
	slots[slot] = value
}

// codeHash returns the keccak256 hash of code, or the empty code hash for empty code.
func codeHash(code []byte) common.Hash {
	if len(code) == 0 {
		return types.EmptyCodeHash
	}
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(code)
	return common.BytesToHash(hasher.Sum(nil))
}
