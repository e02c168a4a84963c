package simulations

import (
	"sync"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/the-standard/smart-vault/internal/types"
)

// Bank is the token ledger of the simulated chain. The native asset lives under types.NativeAddress and every
// other token (LP shares included) under its contract address. Every write is journaled so a failed operation
// can be reverted to a snapshot.
type Bank struct {
	mu       sync.Mutex
	balances map[common.Address]map[common.Address]sdkmath.Int
	supply   map[common.Address]sdkmath.Int
	decimals map[common.Address]uint8

	journal   []func()
	snapshots int
}

func NewBank() *Bank {
	b := &Bank{
		balances: make(map[common.Address]map[common.Address]sdkmath.Int),
		supply:   make(map[common.Address]sdkmath.Int),
		decimals: make(map[common.Address]uint8),
	}
	b.decimals[types.NativeAddress] = 18
	return b
}

// RegisterToken records the decimals of a token contract.
func (b *Bank) RegisterToken(token common.Address, decimals uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.decimals[token] = decimals
}

func (b *Bank) Decimals(token common.Address) (uint8, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	decimals, ok := b.decimals[token]
	if !ok {
		return 0, errorsmod.Wrapf(types.ErrTokenNotFound, "token %s not deployed", token.Hex())
	}
	return decimals, nil
}

func (b *Bank) BalanceOf(token, holder common.Address) sdkmath.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balanceLocked(token, holder)
}

func (b *Bank) TotalSupply(token common.Address) sdkmath.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if supply, ok := b.supply[token]; ok {
		return supply
	}
	return sdkmath.ZeroInt()
}

// Transfer moves amount of token. A zero amount is a no-op.
func (b *Bank) Transfer(token, from, to common.Address, amount sdkmath.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if amount.IsZero() || from == to {
		return nil
	}
	balance := b.balanceLocked(token, from)
	if balance.LT(amount) {
		return errorsmod.Wrapf(types.ErrInsufficientBalance, "%s holds %s of %s, transfer needs %s", from.Hex(), balance, token.Hex(), amount)
	}
	b.setLocked(token, from, balance.Sub(amount))
	b.setLocked(token, to, b.balanceLocked(token, to).Add(amount))
	return nil
}

// Mint creates amount of token for to.
func (b *Bank) Mint(token, to common.Address, amount sdkmath.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if amount.IsZero() {
		return nil
	}
	b.setLocked(token, to, b.balanceLocked(token, to).Add(amount))
	b.setSupplyLocked(token, b.supplyLocked(token).Add(amount))
	return nil
}

// Burn destroys amount of token held by from.
func (b *Bank) Burn(token, from common.Address, amount sdkmath.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if amount.IsZero() {
		return nil
	}
	balance := b.balanceLocked(token, from)
	if balance.LT(amount) {
		return errorsmod.Wrapf(types.ErrInsufficientBalance, "%s holds %s of %s, burn needs %s", from.Hex(), balance, token.Hex(), amount)
	}
	b.setLocked(token, from, balance.Sub(amount))
	b.setSupplyLocked(token, b.supplyLocked(token).Sub(amount))
	return nil
}

// Snapshot opens a checkpoint. Every snapshot must be closed by RevertToSnapshot or Commit.
func (b *Bank) Snapshot() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots++
	return len(b.journal)
}

// RevertToSnapshot undoes every write made since the snapshot was taken.
func (b *Bank) RevertToSnapshot(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.journal) - 1; i >= id && i >= 0; i-- {
		b.journal[i]()
	}
	if id < len(b.journal) {
		b.journal = b.journal[:id]
	}
	b.release()
}

// Commit closes a snapshot and keeps its writes.
func (b *Bank) Commit(int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release()
}

func (b *Bank) release() {
	if b.snapshots > 0 {
		b.snapshots--
	}
	if b.snapshots == 0 {
		b.journal = b.journal[:0]
	}
}

func (b *Bank) balanceLocked(token, holder common.Address) sdkmath.Int {
	if holders, ok := b.balances[token]; ok {
		if balance, ok := holders[holder]; ok {
			return balance
		}
	}
	return sdkmath.ZeroInt()
}

func (b *Bank) supplyLocked(token common.Address) sdkmath.Int {
	if supply, ok := b.supply[token]; ok {
		return supply
	}
	return sdkmath.ZeroInt()
}

func (b *Bank) setLocked(token, holder common.Address, amount sdkmath.Int) {
	holders, ok := b.balances[token]
	if !ok {
		holders = make(map[common.Address]sdkmath.Int)
		b.balances[token] = holders
	}
	prev, existed := holders[holder]
	if b.snapshots > 0 {
		b.journal = append(b.journal, func() {
			if existed {
				holders[holder] = prev
			} else {
				delete(holders, holder)
			}
		})
	}
	holders[holder] = amount
}

func (b *Bank) setSupplyLocked(token common.Address, amount sdkmath.Int) {
	prev, existed := b.supply[token]
	if b.snapshots > 0 {
		b.journal = append(b.journal, func() {
			if existed {
				b.supply[token] = prev
			} else {
				delete(b.supply, token)
			}
		})
	}
	b.supply[token] = amount
}

func checkAmount(amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return errorsmod.Wrap(types.ErrInvalidAmount, "amount must be a non-negative integer")
	}
	return nil
}
