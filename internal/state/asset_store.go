// ./internal/state/asset_store.go
package state

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/the-standard/smart-vault/internal/types"
)

// AssetStore persists the accepted collateral list. It is the store of the collateral registry.
type AssetStore struct{}

// SaveCollateralAssets replaces the stored list with assets, keeping their order.
func (AssetStore) SaveCollateralAssets(ctx context.Context, assets []types.CollateralAsset) (err error) {
	if DB == nil {
		return ErrNotInitialized
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM collateral_assets;`); err != nil {
		return fmt.Errorf("failed to clear collateral assets: %w", err)
	}
	stmt := `
		INSERT INTO collateral_assets (position, symbol, address, decimals, feed, feed_decimals)
		VALUES ($1, $2, $3, $4, $5, $6);`
	for i, asset := range assets {
		if _, err = tx.ExecContext(ctx, stmt,
			i, string(asset.Symbol), asset.Address.Hex(), int16(asset.Decimals), asset.Feed.Hex(), int16(asset.FeedDecimals),
		); err != nil {
			return fmt.Errorf("failed to insert collateral asset %s: %w", asset.Symbol, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit collateral assets: %w", err)
	}

	storeLogger().Info().Int("assets", len(assets)).Msg("Saved collateral assets")
	return nil
}

// LoadCollateralAssets returns the stored list in registry order. An empty result means nothing was saved yet.
func (AssetStore) LoadCollateralAssets(ctx context.Context) ([]types.CollateralAsset, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}

	rows, err := DB.QueryContext(ctx, `
		SELECT symbol, address, decimals, feed, feed_decimals
		FROM collateral_assets
		ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query collateral assets: %w", err)
	}
	defer rows.Close()

	var assets []types.CollateralAsset
	for rows.Next() {
		var symbol, address, feed string
		var decimals, feedDecimals int16
		if err := rows.Scan(&symbol, &address, &decimals, &feed, &feedDecimals); err != nil {
			return nil, fmt.Errorf("failed to scan collateral asset: %w", err)
		}
		asset := types.CollateralAsset{
			Symbol:       types.Symbol(symbol),
			Address:      common.HexToAddress(address),
			Decimals:     uint8(decimals),
			Feed:         common.HexToAddress(feed),
			FeedDecimals: uint8(feedDecimals),
		}
		if err := asset.Validate(); err != nil {
			return nil, fmt.Errorf("stored collateral asset %s: %w", symbol, err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collateral assets: %w", err)
	}
	return assets, nil
}
