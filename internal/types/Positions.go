/*

Vault level views and the persisted vault record.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// CurrentSchemaVersion is the layout of VaultRecord written by this build. Version 0 records predate the vault
// version fields, version 1 records predate yield positions.
const CurrentSchemaVersion uint32 = 2

// CollateralAmount is one line of a vault status.
type CollateralAmount struct {
	Asset           CollateralAsset `json:"asset"`
	Amount          sdkmath.Int     `json:"amount"`           // raw token amount held by the vault
	CollateralValue sdkmath.Int     `json:"collateral_value"` // 18 decimal value in the vault currency
}

type VaultStatus struct {
	ID                   uint64             `json:"id"`
	Address              common.Address     `json:"address"`
	Owner                common.Address     `json:"owner"`
	Minted               sdkmath.Int        `json:"minted"`
	MaxMintable          sdkmath.Int        `json:"max_mintable"`
	TotalCollateralValue sdkmath.Int        `json:"total_collateral_value"`
	CollateralPercentage sdkmath.Int        `json:"collateral_percentage"` // 0 when nothing is minted
	Collateral           []CollateralAmount `json:"collateral"`
	Yield                []YieldPosition    `json:"yield"`
	Liquidated           bool               `json:"liquidated"`
	Version              uint8              `json:"version"`
	VaultType            Symbol             `json:"vault_type"`
}

// VaultData pairs a vault id with its status for owner listings.
type VaultData struct {
	ID     uint64      `json:"id"`
	Status VaultStatus `json:"status"`
}

// SwapRequest is the owner supplied part of a collateral swap.
type SwapRequest struct {
	TokenIn  Symbol
	TokenOut Symbol
	AmountIn sdkmath.Int
	MinOut   sdkmath.Int // zero lets the solvency floor decide
	PoolFee  uint32      // zero selects the default fee tier
	Deadline time.Time
}

// VaultRecord is the persisted state of one ledger. Balances mirror the bank at commit time.
type VaultRecord struct {
	SchemaVersion uint32                         `json:"schema_version"`
	ID            uint64                         `json:"id"`
	Address       common.Address                 `json:"address"`
	Owner         common.Address                 `json:"owner"`
	Minted        sdkmath.Int                    `json:"minted"`
	Liquidated    bool                           `json:"liquidated"`
	Hypervisors   []common.Address               `json:"hypervisors"`
	Balances      map[Symbol]sdkmath.Int         `json:"balances"`
	Shares        map[common.Address]sdkmath.Int `json:"shares"` // LP shares per hypervisor
	Version       uint8                          `json:"version"`
	VaultType     Symbol                         `json:"vault_type"`
	UpdatedAt     time.Time                      `json:"updated_at"`
}
