/*

Service assembly. Build turns a bootstrap description into a running engine: the simulated deployment, the
collateral registry, the price oracle, the yield manager and the vault directory. Persisted collateral and vault
records are replayed on top, re-seeding the bank balances each record mirrors.

*/

package service

import (
	"context"
	"fmt"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/the-standard/smart-vault/internal/config"
	"github.com/the-standard/smart-vault/internal/directory"
	"github.com/the-standard/smart-vault/internal/logger"
	"github.com/the-standard/smart-vault/internal/oracle"
	"github.com/the-standard/smart-vault/internal/registry"
	"github.com/the-standard/smart-vault/internal/simulations"
	"github.com/the-standard/smart-vault/internal/types"
	"github.com/the-standard/smart-vault/internal/vault"
	"github.com/the-standard/smart-vault/internal/yield"
)

// Stores are the optional persistence backends. Nil fields run in memory.
type Stores struct {
	Assets registry.Store
	Vaults directory.Store
}

// Persisted is the state loaded from the stores before Build. A persisted collateral list replaces the
// bootstrap one.
type Persisted struct {
	Assets  []types.CollateralAsset
	Records []types.VaultRecord
}

type Service struct {
	Bootstrap  config.Bootstrap
	World      *simulations.World
	Parameters *config.ProtocolParameters
	Registry   *registry.Registry
	Oracle     *oracle.Adapter
	Yield      *yield.Manager
	Directory  *directory.Directory

	logger zerolog.Logger
}

// Build wires every component described by b and replays persisted.
func Build(ctx context.Context, b config.Bootstrap, stores Stores, persisted Persisted) (*Service, error) {
	s := &Service{Bootstrap: b, logger: logger.GetForComponent("service")}

	world, err := BuildWorld(b)
	if err != nil {
		return nil, err
	}
	s.World = world

	if s.Parameters, err = config.NewProtocolParameters(b.ParametersView()); err != nil {
		return nil, fmt.Errorf("invalid protocol parameters: %w", err)
	}

	if s.Registry, err = registry.New(b.Accounts.ProtocolOwner, b.Native, stores.Assets); err != nil {
		return nil, fmt.Errorf("failed to create collateral registry: %w", err)
	}
	if len(persisted.Assets) > 0 {
		if err := s.restoreAssets(persisted.Assets); err != nil {
			return nil, err
		}
	} else {
		for _, asset := range b.Collateral {
			if err := s.Registry.AddToken(ctx, b.Accounts.ProtocolOwner, asset); err != nil {
				return nil, fmt.Errorf("failed to accept %s: %w", asset.Symbol, err)
			}
		}
	}

	stablecoins := b.StablecoinDecimals()
	stablecoins[world.Debt.Address()] = 18
	if s.Oracle, err = oracle.NewAdapter(oracle.Config{
		Feeds:            world.Feeds,
		Assets:           s.Registry,
		DefaultTimeout:   b.Oracle.StaleTimeout.Duration,
		SequencerFeed:    b.Oracle.SequencerFeed,
		GracePeriod:      b.Oracle.GracePeriod.Duration,
		PegFeed:          b.Oracle.PegFeed,
		Stablecoins:      stablecoins,
		WrappedNative:    world.WETH.Address(),
		TWAPWindow:       b.Oracle.TWAPWindow.Duration,
		AverageValuation: b.Oracle.AverageValuation,
		Clock:            world.Clock.Now,
	}); err != nil {
		return nil, fmt.Errorf("failed to create oracle adapter: %w", err)
	}

	if s.Yield, err = yield.NewManager(yield.Config{
		Address:          b.Accounts.YieldManager,
		Owner:            b.Accounts.ProtocolOwner,
		USDs:             world.Debt.Address(),
		USDC:             b.Yield.USDC,
		StableHypervisor: b.Yield.StableHypervisor,
		StablePoolFee:    b.Yield.StablePoolFee,
		FeeRate:          b.Yield.FeeRate,
		FeeCollector:     b.Accounts.Treasury,
		Slippage:         b.Yield.Slippage,
		MaxIterations:    b.Yield.MaxIterations,
		Bank:             world.Bank,
		Router:           world.Router,
		Pools:            world.Proxy,
		Pricer:           s.Oracle,
	}); err != nil {
		return nil, fmt.Errorf("failed to create yield manager: %w", err)
	}
	for _, data := range b.HypervisorData {
		if err := s.Yield.AddHypervisorData(b.Accounts.ProtocolOwner, data); err != nil {
			return nil, fmt.Errorf("failed to register hypervisor data for %s: %w", data.Asset.Hex(), err)
		}
	}

	if s.Directory, err = directory.New(directory.Config{
		Address: b.Accounts.Directory,
		Params:  s.Parameters,
		Store:   stores.Vaults,
		Deps: vault.Deps{
			Bank:       world.Bank,
			Checkpoint: world.Bank,
			Debt:       world.Debt,
			WETH:       world.WETH,
			Router:     world.Router,
			Oracle:     s.Oracle,
			Registry:   s.Registry,
			Yield:      s.Yield,
			Sequencer:  vault.NewSequencer(),
			Clock:      world.Clock.Now,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}

	if err := s.restoreVaults(ctx, persisted.Records); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("collateral", len(s.Registry.AcceptedTokens())).
		Int("hypervisorData", len(b.HypervisorData)).
		Int("vaults", len(persisted.Records)).
		Str("directory", b.Accounts.Directory.Hex()).
		Msg("Engine assembled")
	return s, nil
}

// BuildWorld deploys the simulated contracts, prices and balances described by b.
func BuildWorld(b config.Bootstrap) (*simulations.World, error) {
	addrs := simulations.DefaultAddresses()
	if b.Accounts.WETH != (common.Address{}) {
		addrs.WETH = b.Accounts.WETH
	}
	if b.Accounts.Debt != (common.Address{}) {
		addrs.Debt = b.Accounts.Debt
	}
	if b.Accounts.Router != (common.Address{}) {
		addrs.Router = b.Accounts.Router
	}
	start := b.Start
	if start.IsZero() {
		start = time.Now().UTC()
	}
	w := simulations.NewWorld(start, addrs)

	for _, token := range b.Tokens {
		w.Bank.RegisterToken(token.Address, token.Decimals)
	}
	for _, asset := range b.Collateral {
		w.Bank.RegisterToken(asset.Address, asset.Decimals)
	}
	for _, feed := range b.Feeds {
		w.Feeds.Deploy(feed.Address, feed.Decimals)
		if feed.Answer.IsNil() || feed.Answer.IsZero() {
			continue
		}
		w.Feeds.SetPrice(feed.Address, feed.Answer.Int, start)
	}
	if b.Oracle.SequencerFeed != (common.Address{}) {
		w.Feeds.Deploy(b.Oracle.SequencerFeed, 0)
		// Up since well before start so the grace period has passed.
		w.Feeds.SetSequencer(b.Oracle.SequencerFeed, true, start.Add(-b.Oracle.GracePeriod.Duration-time.Hour))
	}
	for _, pool := range b.Pools {
		w.Proxy.DeployHypervisor(pool.Address, pool.Token0, pool.Token1)
		if !pool.Ratio0.IsNil() && pool.Ratio0.IsPositive() {
			w.Proxy.SetRatio(pool.Address, pool.Token0, pool.Ratio0.Int)
		}
		if !pool.Ratio1.IsNil() && pool.Ratio1.IsPositive() {
			w.Proxy.SetRatio(pool.Address, pool.Token1, pool.Ratio1.Int)
		}
	}
	for _, rate := range b.Rates {
		w.Router.SetRate(rate.In, rate.Out, rate.Rate.Int)
	}
	for _, fund := range b.Funding {
		if err := w.Bank.Mint(fund.Token, fund.Holder, fund.Amount.Int); err != nil {
			return nil, fmt.Errorf("failed to fund %s with %s of %s: %w", fund.Holder.Hex(), fund.Amount, fund.Token.Hex(), err)
		}
	}
	return w, nil
}

func (s *Service) restoreAssets(assets []types.CollateralAsset) error {
	if err := s.Registry.Restore(assets); err != nil {
		return fmt.Errorf("failed to restore collateral list: %w", err)
	}
	for _, asset := range assets {
		if !asset.IsNative() {
			s.World.Bank.RegisterToken(asset.Address, asset.Decimals)
		}
	}
	return nil
}

func (s *Service) restoreVaults(ctx context.Context, records []types.VaultRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, record := range records {
		if err := s.seedBalances(ctx, record); err != nil {
			return err
		}
	}
	if err := s.Directory.Restore(ctx, records); err != nil {
		return fmt.Errorf("failed to restore vaults: %w", err)
	}
	return nil
}

// seedBalances mints the balances a record mirrors into the fresh bank.
func (s *Service) seedBalances(ctx context.Context, record types.VaultRecord) error {
	for symbol, amount := range record.Balances {
		if amount.IsNil() || !amount.IsPositive() {
			continue
		}
		asset, err := s.Registry.TokenBySymbol(symbol)
		if err != nil {
			return errorsmod.Wrapf(err, "vault %d holds %s", record.ID, symbol)
		}
		if err := s.World.Bank.Mint(asset.Address, record.Address, amount); err != nil {
			return fmt.Errorf("failed to seed vault %d %s balance: %w", record.ID, symbol, err)
		}
	}
	for hypervisor, shares := range record.Shares {
		if shares.IsNil() || !shares.IsPositive() {
			continue
		}
		if err := s.World.Bank.Mint(hypervisor, record.Address, shares); err != nil {
			return fmt.Errorf("failed to seed vault %d shares of %s: %w", record.ID, hypervisor.Hex(), err)
		}
		total0, total1, err := s.World.Proxy.TotalAmounts(ctx, hypervisor)
		if err == nil && total0.IsZero() && total1.IsZero() {
			s.logger.Warn().
				Uint64("vaultID", record.ID).
				Str("hypervisor", hypervisor.Hex()).
				Msg("Restored pool shares have no reserves behind them, fund the pool in the bootstrap file")
		}
	}
	return nil
}
