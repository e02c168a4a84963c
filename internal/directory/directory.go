/*

Vault directory: issues vaults, tracks who holds each one and runs liquidations.

Vault ids start at 1 and each vault address is derived from the directory address and its id, so a restored
directory hands out the same addresses again. The directory is the manager of every ledger it creates.

*/

package directory

import (
	"context"
	"sort"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/the-standard/smart-vault/internal/logger"
	"github.com/the-standard/smart-vault/internal/metrics"
	"github.com/the-standard/smart-vault/internal/types"
	"github.com/the-standard/smart-vault/internal/vault"
)

// Params extends the ledger parameters with the directory-wide settings.
type Params interface {
	vault.Params
	VaultLimit() uint64
	Liquidator() common.Address
}

// Store persists vault records. Implemented by state.VaultStore.
type Store interface {
	SaveVaultRecord(ctx context.Context, record types.VaultRecord) error
}

type Config struct {
	Address common.Address
	Deps    vault.Deps
	Params  Params
	Store   Store // optional
}

type Directory struct {
	address common.Address
	deps    vault.Deps
	params  Params
	store   Store

	mu      sync.RWMutex
	nextID  uint64
	ledgers map[uint64]*vault.Ledger
	owned   map[common.Address][]uint64

	logger zerolog.Logger
}

func New(cfg Config) (*Directory, error) {
	if cfg.Address == (common.Address{}) {
		return nil, errorsmod.Wrap(types.ErrInvalidAddress, "directory address must be set")
	}
	if cfg.Params == nil || cfg.Deps.Sequencer == nil || cfg.Deps.Checkpoint == nil {
		return nil, errorsmod.Wrap(types.ErrInvalidParameter, "directory needs parameters, a sequencer and a checkpointer")
	}
	cfg.Deps.Params = cfg.Params
	return &Directory{
		address: cfg.Address,
		deps:    cfg.Deps,
		params:  cfg.Params,
		store:   cfg.Store,
		ledgers: make(map[uint64]*vault.Ledger),
		owned:   make(map[common.Address][]uint64),
		logger:  logger.GetForComponent("vault_directory"),
	}, nil
}

func (d *Directory) Address() common.Address { return d.address }

// VaultAddress is the address vault id lives at.
func (d *Directory) VaultAddress(id uint64) common.Address {
	return crypto.CreateAddress(d.address, id)
}

// Open issues a new empty vault to owner.
func (d *Directory) Open(ctx context.Context, owner common.Address) (*vault.Ledger, error) {
	ctx, release := d.deps.Sequencer.Acquire(ctx)
	defer release()

	if owner == (common.Address{}) {
		return nil, errorsmod.Wrap(types.ErrInvalidAddress, "vault owner must be set")
	}
	d.mu.RLock()
	held := uint64(len(d.owned[owner]))
	id := d.nextID + 1
	d.mu.RUnlock()
	if limit := d.params.VaultLimit(); held >= limit {
		return nil, errorsmod.Wrapf(types.ErrVaultLimit, "%s already holds %d of %d vaults", owner.Hex(), held, limit)
	}

	ledger, err := vault.NewLedger(d.deps, id, d.VaultAddress(id), d.address, owner, d.persist)
	if err != nil {
		return nil, err
	}
	if err := d.persist(ctx, ledger.Record(ctx)); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.nextID = id
	d.ledgers[id] = ledger
	d.owned[owner] = append(d.owned[owner], id)
	count := len(d.ledgers)
	d.mu.Unlock()
	metrics.Vault().SetOpenVaults(count)

	d.logger.Info().
		Uint64("vaultID", id).
		Str("address", ledger.Address().Hex()).
		Str("owner", owner.Hex()).
		Msg("Vault opened")
	return ledger, nil
}

// Vault returns the ledger of vault id.
func (d *Directory) Vault(id uint64) (*vault.Ledger, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ledger, ok := d.ledgers[id]
	if !ok {
		return nil, errorsmod.Wrapf(types.ErrVaultNotFound, "vault %d", id)
	}
	return ledger, nil
}

func (d *Directory) OwnerOf(ctx context.Context, id uint64) (common.Address, error) {
	ledger, err := d.Vault(id)
	if err != nil {
		return common.Address{}, err
	}
	return ledger.Owner(ctx), nil
}

// VaultIDs lists the vaults held by owner in issue order.
func (d *Directory) VaultIDs(owner common.Address) []uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]uint64(nil), d.owned[owner]...)
}

// AllVaultIDs lists every issued vault in ascending order.
func (d *Directory) AllVaultIDs() []uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]uint64, 0, len(d.ledgers))
	for id := range d.ledgers {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func sortIDs(ids []uint64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// Vaults returns the status of every vault held by owner.
func (d *Directory) Vaults(ctx context.Context, owner common.Address) ([]types.VaultData, error) {
	ids := d.VaultIDs(owner)
	vaults := make([]types.VaultData, 0, len(ids))
	for _, id := range ids {
		ledger, err := d.Vault(id)
		if err != nil {
			return nil, err
		}
		status, err := ledger.Status(ctx)
		if err != nil {
			return nil, errorsmod.Wrapf(err, "status of vault %d", id)
		}
		vaults = append(vaults, types.VaultData{ID: id, Status: status})
	}
	return vaults, nil
}

// TransferVault moves vault id from its current holder to to. Ownership checks of the ledger follow at once.
func (d *Directory) TransferVault(ctx context.Context, caller common.Address, id uint64, to common.Address) error {
	ctx, release := d.deps.Sequencer.Acquire(ctx)
	defer release()

	ledger, err := d.Vault(id)
	if err != nil {
		return err
	}
	from := ledger.Owner(ctx)
	if caller != from {
		return errorsmod.Wrapf(types.ErrNotVaultHolder, "%s does not hold vault %d", caller.Hex(), id)
	}
	if to == from {
		return errorsmod.Wrapf(types.ErrInvalidAddress, "vault %d already held by %s", id, to.Hex())
	}
	if err := ledger.SetOwner(ctx, d.address, to); err != nil {
		return err
	}

	d.mu.Lock()
	d.owned[from] = removeID(d.owned[from], id)
	if len(d.owned[from]) == 0 {
		delete(d.owned, from)
	}
	d.owned[to] = append(d.owned[to], id)
	d.mu.Unlock()

	d.logger.Info().
		Uint64("vaultID", id).
		Str("from", from.Hex()).
		Str("to", to.Hex()).
		Msg("Vault transferred")
	return nil
}

func removeID(ids []uint64, id uint64) []uint64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

type batchKey struct{}

// batch collects the records committed during a sweep so they are stored only if the whole sweep succeeds.
type batch struct {
	records []types.VaultRecord
}

// persist is the commit hook of every ledger.
func (d *Directory) persist(ctx context.Context, record types.VaultRecord) error {
	if b, ok := ctx.Value(batchKey{}).(*batch); ok {
		b.records = append(b.records, record)
		return nil
	}
	if d.store == nil {
		return nil
	}
	return d.store.SaveVaultRecord(ctx, record)
}

func (d *Directory) requireLiquidator(caller common.Address) error {
	if caller != d.params.Liquidator() {
		return errorsmod.Wrapf(types.ErrNotLiquidator, "%s", caller.Hex())
	}
	return nil
}
