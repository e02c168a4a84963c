package directory

import (
	"context"
	"errors"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/the-standard/smart-vault/internal/metrics"
	"github.com/the-standard/smart-vault/internal/types"
	"github.com/the-standard/smart-vault/internal/vault"
)

// LiquidateVault liquidates one undercollateralised vault. Seized collateral goes to the treasury.
func (d *Directory) LiquidateVault(ctx context.Context, caller common.Address, id uint64) error {
	ctx, release := d.deps.Sequencer.Acquire(ctx)
	defer release()

	if err := d.requireLiquidator(caller); err != nil {
		return err
	}
	ledger, err := d.Vault(id)
	if err != nil {
		return err
	}
	if ledger.Liquidated(ctx) {
		return errorsmod.Wrapf(types.ErrVaultLiquidated, "vault %d", id)
	}
	under, err := ledger.Undercollateralised(ctx)
	if err != nil {
		return err
	}
	if !under {
		return errorsmod.Wrapf(types.ErrNotUndercollateralised, "vault %d", id)
	}
	return ledger.Liquidate(ctx, d.address, d.params.Treasury())
}

// LiquidateVaults liquidates every undercollateralised vault in one atomic sweep and returns their ids.
// Either every qualifying vault is liquidated or none is.
func (d *Directory) LiquidateVaults(ctx context.Context, caller common.Address) ([]uint64, error) {
	ctx, release := d.deps.Sequencer.Acquire(ctx)
	defer release()

	if err := d.requireLiquidator(caller); err != nil {
		return nil, err
	}

	pending := &batch{}
	sweepCtx := context.WithValue(ctx, batchKey{}, pending)
	checkpoint := d.deps.Checkpoint.Snapshot()
	before := make(map[uint64]types.VaultRecord)

	liquidated, err := d.sweep(sweepCtx, before)
	if err == nil && len(liquidated) == 0 {
		err = errorsmod.Wrap(types.ErrNoLiquidatableVaults, "sweep found no undercollateralised vault")
	}
	if err == nil && d.store != nil {
		for _, record := range pending.records {
			if err = d.store.SaveVaultRecord(ctx, record); err != nil {
				break
			}
		}
	}
	if err != nil {
		d.deps.Checkpoint.RevertToSnapshot(checkpoint)
		d.rollback(ctx, before)
		if !errors.Is(err, types.ErrNoLiquidatableVaults) {
			d.logger.Error().Err(err).Msg("Liquidation sweep reverted")
		}
		return nil, err
	}
	d.deps.Checkpoint.Commit(checkpoint)

	d.logger.Warn().
		Int("count", len(liquidated)).
		Interface("vaultIDs", liquidated).
		Msg("Liquidation sweep completed")
	return liquidated, nil
}

// sweep checks vaults in id order and liquidates the ones that qualify, remembering each one's prior record.
func (d *Directory) sweep(ctx context.Context, before map[uint64]types.VaultRecord) ([]uint64, error) {
	var liquidated []uint64
	treasury := d.params.Treasury()
	for _, id := range d.AllVaultIDs() {
		ledger, err := d.Vault(id)
		if err != nil {
			return nil, err
		}
		if ledger.Liquidated(ctx) {
			continue
		}
		under, err := ledger.Undercollateralised(ctx)
		if err != nil {
			return nil, errorsmod.Wrapf(err, "checking vault %d", id)
		}
		if !under {
			continue
		}
		before[id] = ledger.Record(ctx)
		if err := ledger.Liquidate(ctx, d.address, treasury); err != nil {
			return nil, errorsmod.Wrapf(err, "liquidating vault %d", id)
		}
		liquidated = append(liquidated, id)
	}
	return liquidated, nil
}

// rollback puts the ledger fields of every vault touched by a failed sweep back to their prior records.
func (d *Directory) rollback(ctx context.Context, before map[uint64]types.VaultRecord) {
	for id, record := range before {
		ledger, err := d.Vault(id)
		if err != nil {
			continue
		}
		if err := ledger.Restore(ctx, record); err != nil {
			d.logger.Error().Err(err).Uint64("vaultID", id).Msg("Failed to roll back vault after sweep")
		}
	}
}

// Restore rebuilds the directory from persisted records. Records are migrated first; the directory must be empty.
func (d *Directory) Restore(ctx context.Context, records []types.VaultRecord) error {
	ctx, release := d.deps.Sequencer.Acquire(ctx)
	defer release()

	d.mu.RLock()
	empty := len(d.ledgers) == 0
	d.mu.RUnlock()
	if !empty {
		return errorsmod.Wrap(types.ErrInvalidParameter, "restore into a directory that already issued vaults")
	}

	ledgers := make(map[uint64]*vault.Ledger, len(records))
	owned := make(map[common.Address][]uint64)
	var nextID uint64
	for _, record := range records {
		migrated, err := vault.MigrateRecord(record)
		if err != nil {
			return errorsmod.Wrapf(err, "vault %d", record.ID)
		}
		record = migrated
		if _, dup := ledgers[record.ID]; dup || record.ID == 0 {
			return errorsmod.Wrapf(types.ErrInvalidParameter, "duplicate or zero vault id %d", record.ID)
		}
		if record.Address != d.VaultAddress(record.ID) {
			return errorsmod.Wrapf(types.ErrInvalidAddress, "vault %d stored at %s, expected %s",
				record.ID, record.Address.Hex(), d.VaultAddress(record.ID).Hex())
		}
		ledger, err := vault.NewLedger(d.deps, record.ID, record.Address, d.address, record.Owner, d.persist)
		if err != nil {
			return err
		}
		if err := ledger.Restore(ctx, record); err != nil {
			return err
		}
		ledgers[record.ID] = ledger
		owned[record.Owner] = append(owned[record.Owner], record.ID)
		if record.ID > nextID {
			nextID = record.ID
		}
	}
	for _, ids := range owned {
		sortIDs(ids)
	}

	d.mu.Lock()
	d.ledgers = ledgers
	d.owned = owned
	d.nextID = nextID
	d.mu.Unlock()
	metrics.Vault().SetOpenVaults(len(ledgers))

	d.logger.Info().Int("vaults", len(ledgers)).Uint64("nextID", nextID+1).Msg("Directory restored")
	return nil
}
