/*

Per-vault collateral and debt ledger.

Balances live in the bank under the vault address; the ledger itself only keeps the minted debt, the liquidation
flag and the pools it holds shares of. Every mutating call runs under the sequencer, checkpoints the bank and the
ledger fields, and restores both if any step fails, so no partial effect survives an error.

*/

package vault

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/the-standard/smart-vault/internal/logger"
	"github.com/the-standard/smart-vault/internal/metrics"
	"github.com/the-standard/smart-vault/internal/types"
	"github.com/the-standard/smart-vault/internal/utils"
)

// CommitFunc receives the ledger record after each successful mutation. An error aborts the mutation.
type CommitFunc func(ctx context.Context, record types.VaultRecord) error

type Ledger struct {
	deps    Deps
	id      uint64
	address common.Address
	manager common.Address

	owner       common.Address
	minted      sdkmath.Int
	liquidated  bool
	hypervisors []common.Address

	onCommit CommitFunc
	logger   zerolog.Logger
}

// ledgerState is the part of a ledger restored when an operation fails.
type ledgerState struct {
	owner       common.Address
	minted      sdkmath.Int
	liquidated  bool
	hypervisors []common.Address
}

// NewLedger creates an open vault with no debt. manager is the only account allowed to liquidate it or change its owner.
func NewLedger(deps Deps, id uint64, address, manager, owner common.Address, onCommit CommitFunc) (*Ledger, error) {
	if err := validateDeps(deps); err != nil {
		return nil, err
	}
	if address == (common.Address{}) || manager == (common.Address{}) || owner == (common.Address{}) {
		return nil, errorsmod.Wrap(types.ErrInvalidAddress, "vault, manager and owner addresses must be set")
	}
	return &Ledger{
		deps:     deps,
		id:       id,
		address:  address,
		manager:  manager,
		owner:    owner,
		minted:   sdkmath.ZeroInt(),
		onCommit: onCommit,
		logger:   logger.GetForVault("vault_ledger", id),
	}, nil
}

func validateDeps(deps Deps) error {
	switch {
	case deps.Bank == nil, deps.Checkpoint == nil:
		return errorsmod.Wrap(types.ErrInvalidParameter, "ledger needs a bank and a checkpointer")
	case deps.Debt == nil, deps.WETH == nil, deps.Router == nil:
		return errorsmod.Wrap(types.ErrInvalidParameter, "ledger needs the debt token, wrapped native and router")
	case deps.Oracle == nil, deps.Registry == nil, deps.Params == nil:
		return errorsmod.Wrap(types.ErrInvalidParameter, "ledger needs an oracle, a registry and parameters")
	case deps.Yield == nil, deps.Sequencer == nil:
		return errorsmod.Wrap(types.ErrInvalidParameter, "ledger needs a yield manager and a sequencer")
	}
	return nil
}

func (l *Ledger) ID() uint64              { return l.id }
func (l *Ledger) Address() common.Address { return l.address }

func (l *Ledger) Owner(ctx context.Context) common.Address {
	_, release := l.deps.Sequencer.Acquire(ctx)
	defer release()
	return l.owner
}

func (l *Ledger) Minted(ctx context.Context) sdkmath.Int {
	_, release := l.deps.Sequencer.Acquire(ctx)
	defer release()
	return l.minted
}

func (l *Ledger) Liquidated(ctx context.Context) bool {
	_, release := l.deps.Sequencer.Acquire(ctx)
	defer release()
	return l.liquidated
}

// SetOwner reassigns the vault after its ownership token moved.
func (l *Ledger) SetOwner(ctx context.Context, caller, owner common.Address) error {
	return l.execute(ctx, "set_owner", func(context.Context) error {
		if caller != l.manager {
			return errorsmod.Wrapf(types.ErrUnauthorized, "%s is not the vault manager", caller.Hex())
		}
		if owner == (common.Address{}) {
			return errorsmod.Wrap(types.ErrInvalidAddress, "owner must be set")
		}
		l.owner = owner
		return nil
	})
}

// execute runs one mutating operation atomically.
func (l *Ledger) execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, release := l.deps.Sequencer.Acquire(ctx)
	defer release()

	checkpoint := l.deps.Checkpoint.Snapshot()
	saved := l.save()

	err := fn(ctx)
	if err == nil && l.onCommit != nil {
		err = l.onCommit(ctx, l.record())
	}
	if err != nil {
		l.deps.Checkpoint.RevertToSnapshot(checkpoint)
		l.load(saved)
		metrics.Vault().ObserveOperation(operation, string(types.KindOf(err)))
		l.logger.Warn().Err(err).Str("operation", operation).Msg("Vault operation reverted")
		return err
	}

	l.deps.Checkpoint.Commit(checkpoint)
	metrics.Vault().ObserveOperation(operation, "ok")
	l.logger.Debug().Str("operation", operation).Str("minted", l.minted.String()).Msg("Vault operation committed")
	return nil
}

func (l *Ledger) save() ledgerState {
	return ledgerState{
		owner:       l.owner,
		minted:      l.minted,
		liquidated:  l.liquidated,
		hypervisors: append([]common.Address(nil), l.hypervisors...),
	}
}

func (l *Ledger) load(s ledgerState) {
	l.owner = s.owner
	l.minted = s.minted
	l.liquidated = s.liquidated
	l.hypervisors = s.hypervisors
}

func (l *Ledger) requireOwner(caller common.Address) error {
	if caller != l.owner {
		return errorsmod.Wrapf(types.ErrNotOwner, "%s does not own vault %d", caller.Hex(), l.id)
	}
	return nil
}

func (l *Ledger) requireOpen() error {
	if l.liquidated {
		return errorsmod.Wrapf(types.ErrVaultLiquidated, "vault %d", l.id)
	}
	return nil
}

func (l *Ledger) requireDeadline(deadline time.Time) error {
	if now := l.deps.Clock(); now.After(deadline) {
		return errorsmod.Wrapf(types.ErrDeadlineExpired, "deadline %s, now %s", deadline.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	return nil
}

// valuation is the collateral side of a vault at one instant.
type valuation struct {
	collateral []types.CollateralAmount
	yield      []types.YieldPosition
	total      sdkmath.Int
}

func (l *Ledger) value(ctx context.Context) (valuation, error) {
	v := valuation{total: sdkmath.ZeroInt()}
	for _, asset := range l.deps.Registry.AcceptedTokens() {
		amount := l.deps.Bank.BalanceOf(asset.Address, l.address)
		worth := sdkmath.ZeroInt()
		if amount.IsPositive() {
			var err error
			worth, err = l.deps.Oracle.TokenValue(ctx, asset, amount)
			if err != nil {
				return valuation{}, err
			}
		}
		v.collateral = append(v.collateral, types.CollateralAmount{Asset: asset, Amount: amount, CollateralValue: worth})
		v.total = v.total.Add(worth)
	}
	for _, hypervisor := range l.hypervisors {
		position, err := l.deps.Yield.Position(ctx, hypervisor, l.address)
		if err != nil {
			return valuation{}, err
		}
		worth0, err := l.deps.Oracle.AddressValue(ctx, position.Token0, position.Amount0)
		if err != nil {
			return valuation{}, err
		}
		worth1, err := l.deps.Oracle.AddressValue(ctx, position.Token1, position.Amount1)
		if err != nil {
			return valuation{}, err
		}
		v.yield = append(v.yield, position)
		v.total = v.total.Add(worth0).Add(worth1)
	}
	return v, nil
}

// maxMintable is total * 100% / collateralRate.
func (l *Ledger) maxMintable(total sdkmath.Int) sdkmath.Int {
	return utils.ApplyRate(total, types.HundredPercent, l.deps.Params.CollateralRate())
}

func (l *Ledger) collateralPercentage(total sdkmath.Int) sdkmath.Int {
	if l.minted.IsZero() {
		return sdkmath.ZeroInt()
	}
	pct, _ := utils.MulDiv(total, sdkmath.NewIntFromUint64(types.HundredPercent), l.minted)
	return pct
}

// checkSolvency fails when minted debt exceeds what the collateral supports.
func (l *Ledger) checkSolvency(ctx context.Context) error {
	v, err := l.value(ctx)
	if err != nil {
		return err
	}
	if limit := l.maxMintable(v.total); l.minted.GT(limit) {
		return errorsmod.Wrapf(types.ErrUndercollateralised, "vault %d minted %s, collateral supports %s", l.id, l.minted, limit)
	}
	return nil
}

// Status values every accepted asset and every pool position of the vault.
func (l *Ledger) Status(ctx context.Context) (types.VaultStatus, error) {
	ctx, release := l.deps.Sequencer.Acquire(ctx)
	defer release()

	v, err := l.value(ctx)
	if err != nil {
		return types.VaultStatus{}, err
	}
	return types.VaultStatus{
		ID:                   l.id,
		Address:              l.address,
		Owner:                l.owner,
		Minted:               l.minted,
		MaxMintable:          l.maxMintable(v.total),
		TotalCollateralValue: v.total,
		CollateralPercentage: l.collateralPercentage(v.total),
		Collateral:           v.collateral,
		Yield:                v.yield,
		Liquidated:           l.liquidated,
		Version:              l.deps.Params.VaultVersion(),
		VaultType:            l.deps.Params.VaultType(),
	}, nil
}

// Undercollateralised reports whether minted debt exceeds the maximum the collateral supports.
func (l *Ledger) Undercollateralised(ctx context.Context) (bool, error) {
	ctx, release := l.deps.Sequencer.Acquire(ctx)
	defer release()
	return l.undercollateralised(ctx)
}

func (l *Ledger) undercollateralised(ctx context.Context) (bool, error) {
	v, err := l.value(ctx)
	if err != nil {
		return false, err
	}
	return l.minted.GT(l.maxMintable(v.total)), nil
}

// YieldAssets lists the pool positions held by the vault.
func (l *Ledger) YieldAssets(ctx context.Context) ([]types.YieldPosition, error) {
	ctx, release := l.deps.Sequencer.Acquire(ctx)
	defer release()
	positions := make([]types.YieldPosition, 0, len(l.hypervisors))
	for _, hypervisor := range l.hypervisors {
		position, err := l.deps.Yield.Position(ctx, hypervisor, l.address)
		if err != nil {
			return nil, err
		}
		positions = append(positions, position)
	}
	return positions, nil
}
