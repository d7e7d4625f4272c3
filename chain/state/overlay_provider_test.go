package state

import (
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/state"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syafiqeil/mev-builder/chain/state/cache"
)

func TestOverlayStateProvider_ImportStateObject(t *testing.T) {
	fixture := newSourceFixture()
	provider := NewOverlayStateProvider(NewOverlay(fixture.Source))

	snapId := 5
	importTest := func(addr common.Address, expected cache.StateObject) {
		/* a basic account read */
		bal, nonce, code, err := provider.ImportStateObject(addr, snapId)
		require.Nil(t, err)
		assert.EqualValues(t, expected.Balance.Uint64(), bal.Uint64())
		assert.EqualValues(t, expected.Nonce, nonce)
		assert.EqualValues(t, expected.Code, code)

		/* importing the same account twice is a dirty read */
		_, _, _, err = provider.ImportStateObject(addr, snapId)
		require.NotNil(t, err)
		assert.True(t, err.CannotQueryDirtyAccount)
		assert.Error(t, err.Error)

		/* reverting to the snapshot that imported it keeps it dirty */
		provider.NotifyRevertedToSnapshot(snapId)
		_, _, _, err = provider.ImportStateObject(addr, snapId)
		require.NotNil(t, err)
		assert.True(t, err.CannotQueryDirtyAccount)

		/* reverting past it allows it to be imported again */
		provider.NotifyRevertedToSnapshot(snapId - 1)
		bal, _, _, err = provider.ImportStateObject(addr, snapId)
		require.Nil(t, err)
		assert.EqualValues(t, expected.Balance.Uint64(), bal.Uint64())
	}

	importTest(fixture.ContractAddress, fixture.Contract)
	importTest(fixture.EOAAddress, fixture.EOA)
	importTest(fixture.EmptyAddress, cache.StateObject{Balance: uint256.NewInt(0)})

	// Reverts never shrink the touched set.
	assert.ElementsMatch(t,
		[]common.Address{fixture.ContractAddress, fixture.EOAAddress, fixture.EmptyAddress},
		provider.TouchedAccounts(),
	)
}

func TestOverlayStateProvider_ImportStorageAt(t *testing.T) {
	fixture := newSourceFixture()
	provider := NewOverlayStateProvider(NewOverlay(fixture.Source))

	snapId := 5
	importTest := func(slot common.Hash, expected common.Hash) {
		data, err := provider.ImportStorageAt(fixture.ContractAddress, slot, snapId)
		require.Nil(t, err)
		assert.Equal(t, expected, data)

		_, err = provider.ImportStorageAt(fixture.ContractAddress, slot, snapId)
		require.NotNil(t, err)
		assert.True(t, err.CannotQueryDirtySlot)

		provider.NotifyRevertedToSnapshot(snapId)
		_, err = provider.ImportStorageAt(fixture.ContractAddress, slot, snapId)
		require.NotNil(t, err)
		assert.True(t, err.CannotQueryDirtySlot)

		provider.NotifyRevertedToSnapshot(snapId - 1)
		data, err = provider.ImportStorageAt(fixture.ContractAddress, slot, snapId)
		require.Nil(t, err)
		assert.Equal(t, expected, data)
	}

	importTest(fixture.PopulatedSlot, fixture.PopulatedSlotData)
	importTest(fixture.EmptySlot, common.Hash{})

	assert.ElementsMatch(t,
		[]common.Hash{fixture.PopulatedSlot, fixture.EmptySlot},
		provider.TouchedSlots()[fixture.ContractAddress],
	)
}

func TestOverlayStateProvider_WrittenSlotsAreDirty(t *testing.T) {
	fixture := newSourceFixture()
	provider := NewOverlayStateProvider(NewOverlay(fixture.Source))

	provider.MarkSlotWritten(fixture.ContractAddress, fixture.PopulatedSlot, 3)
	_, err := provider.ImportStorageAt(fixture.ContractAddress, fixture.PopulatedSlot, 4)
	require.NotNil(t, err)
	assert.True(t, err.CannotQueryDirtySlot)
	assert.Equal(t, 0, fixture.Source.slotReads)

	provider.NotifyRevertedToSnapshot(2)
	_, err = provider.ImportStorageAt(fixture.ContractAddress, fixture.PopulatedSlot, 4)
	assert.Nil(t, err)
}

func TestOverlayStateProvider_DeployedContracts(t *testing.T) {
	fixture := newSourceFixture()
	provider := NewOverlayStateProvider(NewOverlay(fixture.Source))
	deployed := common.HexToAddress("0xd0")

	provider.MarkContractDeployed(deployed, 1)
	_, err := provider.ImportStorageAt(deployed, fixture.PopulatedSlot, 1)
	require.NotNil(t, err)
	assert.True(t, err.CannotQueryDirtySlot)

	// The deployment is forgotten for import purposes on revert, but still reported as created.
	provider.NotifyRevertedToSnapshot(0)
	_, err = provider.ImportStorageAt(deployed, fixture.PopulatedSlot, 1)
	assert.Nil(t, err)
	assert.True(t, provider.WasCreated(deployed))
	assert.Contains(t, provider.TouchedAccounts(), deployed)
}

func TestOverlayStateProvider_FetchError(t *testing.T) {
	fixture := newSourceFixture()
	fixture.Source.failWith = errSourceDown
	provider := NewOverlayStateProvider(NewOverlay(fixture.Source))

	_, _, _, accountErr := provider.ImportStateObject(fixture.EOAAddress, 1)
	require.NotNil(t, accountErr)
	assert.False(t, accountErr.CannotQueryDirtyAccount)

	var storageErr *state.RemoteStorageError
	_, storageErr = provider.ImportStorageAt(fixture.ContractAddress, fixture.PopulatedSlot, 1)
	require.NotNil(t, storageErr)
	assert.False(t, storageErr.CannotQueryDirtySlot)

	// The first failure is kept, wrapped as a data source error.
	var dataErr *DataSourceError
	require.ErrorAs(t, provider.FetchError(), &dataErr)
	assert.Equal(t, fixture.EOAAddress, dataErr.Address)
	assert.Nil(t, dataErr.Slot)
	assert.ErrorIs(t, provider.FetchError(), errSourceDown)
	assert.Empty(t, provider.TouchedAccounts())
}
