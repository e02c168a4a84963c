/*

Accepted collateral list. Descriptors keep insertion order and the native asset always comes first.

*/

package registry

import (
	"context"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/the-standard/smart-vault/internal/logger"
	"github.com/the-standard/smart-vault/internal/types"
)

// Store persists the full descriptor list after every change.
type Store interface {
	SaveCollateralAssets(ctx context.Context, assets []types.CollateralAsset) error
}

type Registry struct {
	mu     sync.RWMutex
	owner  common.Address
	assets []types.CollateralAsset
	store  Store
	logger zerolog.Logger
}

// New seeds the registry with the native asset. store may be nil.
func New(owner common.Address, native types.CollateralAsset, store Store) (*Registry, error) {
	if !native.IsNative() {
		return nil, errorsmod.Wrapf(types.ErrInvalidAsset, "%s is not the native asset", native.Symbol)
	}
	if err := native.Validate(); err != nil {
		return nil, err
	}
	return &Registry{
		owner:  owner,
		assets: []types.CollateralAsset{native},
		store:  store,
		logger: logger.GetForComponent("collateral_registry"),
	}, nil
}

func (r *Registry) Owner() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

// NativeSymbol returns the symbol of the native sentinel.
func (r *Registry) NativeSymbol() types.Symbol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.assets[0].Symbol
}

// AddToken appends a descriptor. Symbols and addresses must both be unused.
func (r *Registry) AddToken(ctx context.Context, caller common.Address, asset types.CollateralAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return errorsmod.Wrapf(types.ErrNotOwner, "%s cannot add collateral", caller.Hex())
	}
	if err := asset.Validate(); err != nil {
		return err
	}
	for _, existing := range r.assets {
		if existing.Symbol == asset.Symbol || existing.Address == asset.Address {
			return errorsmod.Wrapf(types.ErrTokenExists, "%s collides with %s", asset, existing)
		}
	}

	previous := r.assets
	r.assets = append(append(make([]types.CollateralAsset, 0, len(previous)+1), previous...), asset)
	if err := r.persist(ctx); err != nil {
		r.assets = previous
		return err
	}
	r.logger.Info().Str("symbol", asset.Symbol.String()).Str("address", asset.Address.Hex()).Msg("Collateral asset added")
	return nil
}

// RemoveToken drops a descriptor. Vaults keep any balance they hold of it.
func (r *Registry) RemoveToken(ctx context.Context, caller common.Address, symbol types.Symbol) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return errorsmod.Wrapf(types.ErrNotOwner, "%s cannot remove collateral", caller.Hex())
	}
	if symbol == r.assets[0].Symbol {
		return errorsmod.Wrapf(types.ErrNativeTokenRemoval, "%s", symbol)
	}
	index := -1
	for i, asset := range r.assets {
		if asset.Symbol == symbol {
			index = i
			break
		}
	}
	if index < 0 {
		return errorsmod.Wrapf(types.ErrTokenNotFound, "%s", symbol)
	}

	previous := r.assets
	next := make([]types.CollateralAsset, 0, len(previous)-1)
	next = append(next, previous[:index]...)
	r.assets = append(next, previous[index+1:]...)
	if err := r.persist(ctx); err != nil {
		r.assets = previous
		return err
	}
	r.logger.Info().Str("symbol", symbol.String()).Msg("Collateral asset removed")
	return nil
}

// Restore replaces the list with persisted descriptors. The native asset must come first.
func (r *Registry) Restore(assets []types.CollateralAsset) error {
	if len(assets) == 0 || !assets[0].IsNative() {
		return errorsmod.Wrap(types.ErrInvalidAsset, "persisted collateral list must start with the native asset")
	}
	seen := make(map[types.Symbol]bool, len(assets))
	for _, asset := range assets {
		if err := asset.Validate(); err != nil {
			return err
		}
		if seen[asset.Symbol] {
			return errorsmod.Wrapf(types.ErrTokenExists, "%s listed twice", asset.Symbol)
		}
		seen[asset.Symbol] = true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets = append([]types.CollateralAsset(nil), assets...)
	return nil
}

// AcceptedTokens returns a copy of the descriptor list in insertion order.
func (r *Registry) AcceptedTokens() []types.CollateralAsset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.CollateralAsset(nil), r.assets...)
}

func (r *Registry) TokenBySymbol(symbol types.Symbol) (types.CollateralAsset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, asset := range r.assets {
		if asset.Symbol == symbol {
			return asset, nil
		}
	}
	return types.CollateralAsset{}, errorsmod.Wrapf(types.ErrTokenNotFound, "%s", symbol)
}

func (r *Registry) TokenByAddress(addr common.Address) (types.CollateralAsset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, asset := range r.assets {
		if asset.Address == addr {
			return asset, nil
		}
	}
	return types.CollateralAsset{}, errorsmod.Wrapf(types.ErrTokenNotFound, "%s", addr.Hex())
}

func (r *Registry) persist(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveCollateralAssets(ctx, r.assets); err != nil {
		r.logger.Error().Err(err).Msg("Failed to persist collateral list")
		return err
	}
	return nil
}
