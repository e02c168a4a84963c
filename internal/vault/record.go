package vault

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/the-standard/smart-vault/internal/config"
	"github.com/the-standard/smart-vault/internal/types"
)

// Record returns the persisted form of the ledger.
func (l *Ledger) Record(ctx context.Context) types.VaultRecord {
	_, release := l.deps.Sequencer.Acquire(ctx)
	defer release()
	return l.record()
}

func (l *Ledger) record() types.VaultRecord {
	balances := make(map[types.Symbol]sdkmath.Int)
	for _, asset := range l.deps.Registry.AcceptedTokens() {
		if balance := l.deps.Bank.BalanceOf(asset.Address, l.address); balance.IsPositive() {
			balances[asset.Symbol] = balance
		}
	}
	shares := make(map[common.Address]sdkmath.Int)
	for _, hypervisor := range l.hypervisors {
		if held := l.deps.Bank.BalanceOf(hypervisor, l.address); held.IsPositive() {
			shares[hypervisor] = held
		}
	}
	return types.VaultRecord{
		SchemaVersion: types.CurrentSchemaVersion,
		ID:            l.id,
		Address:       l.address,
		Owner:         l.owner,
		Minted:        l.minted,
		Liquidated:    l.liquidated,
		Hypervisors:   append([]common.Address(nil), l.hypervisors...),
		Balances:      balances,
		Shares:        shares,
		Version:       l.deps.Params.VaultVersion(),
		VaultType:     l.deps.Params.VaultType(),
		UpdatedAt:     l.deps.Clock().UTC(),
	}
}

// Restore loads ledger fields from a persisted record of the same vault. Bank balances are not touched.
func (l *Ledger) Restore(ctx context.Context, record types.VaultRecord) error {
	_, release := l.deps.Sequencer.Acquire(ctx)
	defer release()

	record, err := MigrateRecord(record)
	if err != nil {
		return err
	}
	if record.ID != l.id || record.Address != l.address {
		return errorsmod.Wrapf(types.ErrInvalidParameter, "record of vault %d (%s) restored into vault %d (%s)",
			record.ID, record.Address.Hex(), l.id, l.address.Hex())
	}
	if record.Owner == (common.Address{}) {
		return errorsmod.Wrapf(types.ErrInvalidAddress, "record of vault %d has no owner", record.ID)
	}
	if record.Minted.IsNegative() {
		return errorsmod.Wrapf(types.ErrInvalidAmount, "record of vault %d has negative debt", record.ID)
	}
	l.owner = record.Owner
	l.minted = record.Minted
	l.liquidated = record.Liquidated
	l.hypervisors = append([]common.Address(nil), record.Hypervisors...)
	return nil
}

// MigrateRecord upgrades a record of any earlier schema to CurrentSchemaVersion.
func MigrateRecord(record types.VaultRecord) (types.VaultRecord, error) {
	if record.SchemaVersion > types.CurrentSchemaVersion {
		return types.VaultRecord{}, errorsmod.Wrapf(types.ErrUnsupportedSchema, "record schema %d, newest known %d",
			record.SchemaVersion, types.CurrentSchemaVersion)
	}
	if record.Minted.IsNil() {
		record.Minted = sdkmath.ZeroInt()
	}
	if record.Balances == nil {
		record.Balances = make(map[types.Symbol]sdkmath.Int)
	}
	if record.SchemaVersion < 1 {
		record.Version = config.DefaultVaultVersion
		record.VaultType = config.DefaultVaultType
	}
	if record.SchemaVersion < 2 {
		record.Hypervisors = nil
		record.Shares = nil
	}
	if record.Shares == nil {
		record.Shares = make(map[common.Address]sdkmath.Int)
	}
	record.SchemaVersion = types.CurrentSchemaVersion
	return record, nil
}
