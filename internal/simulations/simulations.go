/*

In-memory chain the engine runs against: a journaled token bank, aggregator feeds, a fixed-rate swap router, a
deposit proxy with its two-asset pools, the wrapped native token and the minted debt token. The service builds one
World from the bootstrap file; tests build them directly.

*/

package simulations

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Clock is a settable time source shared by every simulated contract.
type Clock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// World wires the simulated contracts together.
type World struct {
	Clock  *Clock
	Bank   *Bank
	Feeds  *Feeds
	Router *Router
	Proxy  *UniProxy
	WETH   *WETH
	Debt   *DebtToken
}

// Addresses of the contracts every world deploys.
type Addresses struct {
	WETH   common.Address
	Debt   common.Address
	Router common.Address
}

// ContractAddress derives a stable address from a label, e.g. "router".
func ContractAddress(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(label))[12:])
}

// DefaultAddresses labels the core contracts.
func DefaultAddresses() Addresses {
	return Addresses{
		WETH:   ContractAddress("weth"),
		Debt:   ContractAddress("usds"),
		Router: ContractAddress("swap-router"),
	}
}

// NewWorld deploys the core contracts at addrs with the clock set to start.
func NewWorld(start time.Time, addrs Addresses) *World {
	clock := NewClock(start)
	bank := NewBank()
	return &World{
		Clock:  clock,
		Bank:   bank,
		Feeds:  NewFeeds(),
		Router: NewRouter(bank, addrs.Router, clock.Now),
		Proxy:  NewUniProxy(bank),
		WETH:   NewWETH(bank, addrs.WETH),
		Debt:   NewDebtToken(bank, addrs.Debt),
	}
}
