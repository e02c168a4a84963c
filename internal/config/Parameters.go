/*

This file contains the owner-settable protocol parameters shared by every vault.

Rates use the types.HundredPercent scale, so 120000 is 120% and 1000 is 1%. The ledger reads the
current value on every operation; setters validate before anything changes.

*/

package config

import (
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/the-standard/smart-vault/internal/types"
)

const (
	DefaultCollateralRate uint64 = 120000 // 120% collateral required per unit of debt
	DefaultMintFeeRate    uint64 = 1000   // 1% of minted amount
	DefaultBurnFeeRate    uint64 = 1000   // 1% of burned amount, charged on top
	DefaultSwapFeeRate    uint64 = 1000   // 1% of swap input
	DefaultVaultLimit     uint64 = 10     // vaults per owner
	DefaultPoolFee        uint32 = 3000   // 0.3% fee tier for collateral swaps

	DefaultVaultVersion uint8        = 4
	DefaultVaultType    types.Symbol = "USDs"
)

// ProtocolParameters is the central configuration consumed by vault ledgers and the directory.
type ProtocolParameters struct {
	mu sync.RWMutex

	owner          common.Address
	collateralRate uint64
	mintFeeRate    uint64
	burnFeeRate    uint64
	swapFeeRate    uint64
	vaultLimit     uint64
	defaultPoolFee uint32
	treasury       common.Address
	liquidator     common.Address
	vaultVersion   uint8
	vaultType      types.Symbol
}

// ParametersView is a read-only copy used for display and persistence.
type ParametersView struct {
	Owner          common.Address `json:"owner" toml:"owner"`
	CollateralRate uint64         `json:"collateral_rate" toml:"collateral_rate"`
	MintFeeRate    uint64         `json:"mint_fee_rate" toml:"mint_fee_rate"`
	BurnFeeRate    uint64         `json:"burn_fee_rate" toml:"burn_fee_rate"`
	SwapFeeRate    uint64         `json:"swap_fee_rate" toml:"swap_fee_rate"`
	VaultLimit     uint64         `json:"vault_limit" toml:"vault_limit"`
	DefaultPoolFee uint32         `json:"default_pool_fee" toml:"default_pool_fee"`
	Treasury       common.Address `json:"treasury" toml:"treasury"`
	Liquidator     common.Address `json:"liquidator" toml:"liquidator"`
	VaultVersion   uint8          `json:"vault_version" toml:"vault_version"`
	VaultType      types.Symbol   `json:"vault_type" toml:"vault_type"`
}

// DefaultParametersView returns the defaults with the given accounts.
func DefaultParametersView(owner, treasury, liquidator common.Address) ParametersView {
	return ParametersView{
		Owner:          owner,
		CollateralRate: DefaultCollateralRate,
		MintFeeRate:    DefaultMintFeeRate,
		BurnFeeRate:    DefaultBurnFeeRate,
		SwapFeeRate:    DefaultSwapFeeRate,
		VaultLimit:     DefaultVaultLimit,
		DefaultPoolFee: DefaultPoolFee,
		Treasury:       treasury,
		Liquidator:     liquidator,
		VaultVersion:   DefaultVaultVersion,
		VaultType:      DefaultVaultType,
	}
}

// NewProtocolParameters validates view and builds the live parameter set.
func NewProtocolParameters(view ParametersView) (*ProtocolParameters, error) {
	if err := view.Validate(); err != nil {
		return nil, err
	}
	return &ProtocolParameters{
		owner:          view.Owner,
		collateralRate: view.CollateralRate,
		mintFeeRate:    view.MintFeeRate,
		burnFeeRate:    view.BurnFeeRate,
		swapFeeRate:    view.SwapFeeRate,
		vaultLimit:     view.VaultLimit,
		defaultPoolFee: view.DefaultPoolFee,
		treasury:       view.Treasury,
		liquidator:     view.Liquidator,
		vaultVersion:   view.VaultVersion,
		vaultType:      view.VaultType,
	}, nil
}

// Validate checks every field of the view.
func (v ParametersView) Validate() error {
	if err := validateAddress("owner", v.Owner); err != nil {
		return err
	}
	if err := validateCollateralRate(v.CollateralRate); err != nil {
		return err
	}
	for name, rate := range map[string]uint64{"mint fee": v.MintFeeRate, "burn fee": v.BurnFeeRate, "swap fee": v.SwapFeeRate} {
		if err := validateFeeRate(name, rate); err != nil {
			return err
		}
	}
	if v.VaultLimit == 0 {
		return errorsmod.Wrap(types.ErrInvalidParameter, "vault limit must be positive")
	}
	if err := validatePoolFee(v.DefaultPoolFee); err != nil {
		return err
	}
	if err := validateAddress("treasury", v.Treasury); err != nil {
		return err
	}
	if err := validateAddress("liquidator", v.Liquidator); err != nil {
		return err
	}
	if _, err := types.ParseSymbol(string(v.VaultType)); err != nil {
		return err
	}
	return nil
}

func (p *ProtocolParameters) View() ParametersView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ParametersView{
		Owner:          p.owner,
		CollateralRate: p.collateralRate,
		MintFeeRate:    p.mintFeeRate,
		BurnFeeRate:    p.burnFeeRate,
		SwapFeeRate:    p.swapFeeRate,
		VaultLimit:     p.vaultLimit,
		DefaultPoolFee: p.defaultPoolFee,
		Treasury:       p.treasury,
		Liquidator:     p.liquidator,
		VaultVersion:   p.vaultVersion,
		VaultType:      p.vaultType,
	}
}

func (p *ProtocolParameters) Owner() common.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.owner
}

func (p *ProtocolParameters) CollateralRate() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.collateralRate
}

func (p *ProtocolParameters) MintFeeRate() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mintFeeRate
}

func (p *ProtocolParameters) BurnFeeRate() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.burnFeeRate
}

func (p *ProtocolParameters) SwapFeeRate() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.swapFeeRate
}

func (p *ProtocolParameters) VaultLimit() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.vaultLimit
}

func (p *ProtocolParameters) DefaultPoolFee() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaultPoolFee
}

func (p *ProtocolParameters) Treasury() common.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.treasury
}

func (p *ProtocolParameters) Liquidator() common.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.liquidator
}

func (p *ProtocolParameters) VaultVersion() uint8 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.vaultVersion
}

func (p *ProtocolParameters) VaultType() types.Symbol {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.vaultType
}

// SetCollateralRate changes the required collateral rate. It must stay above 100%.
func (p *ProtocolParameters) SetCollateralRate(caller common.Address, rate uint64) error {
	if err := validateCollateralRate(rate); err != nil {
		return err
	}
	return p.update(caller, "collateral rate", func() bool {
		if p.collateralRate == rate {
			return false
		}
		p.collateralRate = rate
		return true
	})
}

func (p *ProtocolParameters) SetMintFeeRate(caller common.Address, rate uint64) error {
	if err := validateFeeRate("mint fee", rate); err != nil {
		return err
	}
	return p.update(caller, "mint fee rate", func() bool {
		if p.mintFeeRate == rate {
			return false
		}
		p.mintFeeRate = rate
		return true
	})
}

func (p *ProtocolParameters) SetBurnFeeRate(caller common.Address, rate uint64) error {
	if err := validateFeeRate("burn fee", rate); err != nil {
		return err
	}
	return p.update(caller, "burn fee rate", func() bool {
		if p.burnFeeRate == rate {
			return false
		}
		p.burnFeeRate = rate
		return true
	})
}

func (p *ProtocolParameters) SetSwapFeeRate(caller common.Address, rate uint64) error {
	if err := validateFeeRate("swap fee", rate); err != nil {
		return err
	}
	return p.update(caller, "swap fee rate", func() bool {
		if p.swapFeeRate == rate {
			return false
		}
		p.swapFeeRate = rate
		return true
	})
}

func (p *ProtocolParameters) SetVaultLimit(caller common.Address, limit uint64) error {
	if limit == 0 {
		return errorsmod.Wrap(types.ErrInvalidParameter, "vault limit must be positive")
	}
	return p.update(caller, "vault limit", func() bool {
		if p.vaultLimit == limit {
			return false
		}
		p.vaultLimit = limit
		return true
	})
}

func (p *ProtocolParameters) SetDefaultPoolFee(caller common.Address, fee uint32) error {
	if err := validatePoolFee(fee); err != nil {
		return err
	}
	return p.update(caller, "default pool fee", func() bool {
		if p.defaultPoolFee == fee {
			return false
		}
		p.defaultPoolFee = fee
		return true
	})
}

func (p *ProtocolParameters) SetTreasury(caller, treasury common.Address) error {
	if err := validateAddress("treasury", treasury); err != nil {
		return err
	}
	return p.update(caller, "treasury", func() bool {
		if p.treasury == treasury {
			return false
		}
		p.treasury = treasury
		return true
	})
}

func (p *ProtocolParameters) SetLiquidator(caller, liquidator common.Address) error {
	if err := validateAddress("liquidator", liquidator); err != nil {
		return err
	}
	return p.update(caller, "liquidator", func() bool {
		if p.liquidator == liquidator {
			return false
		}
		p.liquidator = liquidator
		return true
	})
}

// update applies change under the write lock after the owner check. change reports false when the value is unchanged.
func (p *ProtocolParameters) update(caller common.Address, name string, change func() bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if caller != p.owner {
		return errorsmod.Wrapf(types.ErrNotOwner, "%s cannot change %s", caller.Hex(), name)
	}
	if !change() {
		return errorsmod.Wrapf(types.ErrParameterUnchanged, "%s", name)
	}
	return nil
}

func validateCollateralRate(rate uint64) error {
	if rate <= types.HundredPercent {
		return errorsmod.Wrapf(types.ErrInvalidParameter, "collateral rate %d must exceed %d", rate, types.HundredPercent)
	}
	return nil
}

func validateFeeRate(name string, rate uint64) error {
	if rate == 0 || rate >= types.HundredPercent {
		return errorsmod.Wrapf(types.ErrInvalidParameter, "%s rate %d out of range", name, rate)
	}
	return nil
}

func validatePoolFee(fee uint32) error {
	if fee == 0 || fee >= types.MaxPoolFee {
		return errorsmod.Wrapf(types.ErrInvalidParameter, "pool fee %d out of range", fee)
	}
	return nil
}

func validateAddress(name string, addr common.Address) error {
	if addr == (common.Address{}) {
		return errorsmod.Wrapf(types.ErrInvalidAddress, "%s must be set", name)
	}
	return nil
}
