// Package factory creates pools and keeps the registry the daemon serves
// them from. Pool addresses are derived the way contract deployments are,
// from the factory address and a creation nonce.
package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/lbp/pool-engine/internal/chain"
	"github.com/lbp/pool-engine/internal/discovery"
	"github.com/lbp/pool-engine/internal/lifecycle"
	"github.com/lbp/pool-engine/internal/lockperiod"
	"github.com/lbp/pool-engine/internal/model"
	"github.com/lbp/pool-engine/internal/pool"
	"github.com/lbp/pool-engine/internal/pricefeed"
)

var (
	ErrPoolExists   = lifecycle.NewError(lifecycle.KindIdempotency, "factory: pool exists")
	ErrPairNotFound = lifecycle.NewError(lifecycle.KindInput, "factory: pair not found")
	ErrPoolNotFound = lifecycle.NewError(lifecycle.KindNotFound, "factory: pool not found")
)

// Pool is what both pool variants expose to the registry and the API.
type Pool interface {
	ID() string
	Address() common.Address
	Tokens() (common.Address, common.Address)
	Phase() model.Phase
	Snapshot() model.PoolSnapshot
	Position(user common.Address) model.UserPosition

	TriggerDepositPhase(ctx context.Context) error
	TriggerTransferPhase(ctx context.Context) error
	EmergencyStop(caller common.Address) error
	EmergencyResume(caller common.Address, target model.Phase) error
	EmergencyRescueFunds(ctx context.Context, caller common.Address) (pool.Rescue, error)
}

var (
	_ Pool = (*pool.Pool)(nil)
	_ Pool = (*discovery.Pool)(nil)
)

// Settings are the parameters every pool created by a factory shares.
type Settings struct {
	Admin             common.Address
	DepositWindow     time.Duration
	PenaltyBps        int64
	InitialReleaseBps int64
	IntermediateMenu  *lockperiod.Menu
	DiscoveryMenu     *lockperiod.Menu

	PriceInterval   time.Duration
	MaxPriceAge     time.Duration
	PriceRetries    int
	PriceRetryDelay time.Duration

	Now    func() time.Time
	Logger pool.Logger
}

// IntermediateParams describes a two-sided pool.
type IntermediateParams struct {
	Token0 common.Address
	Token1 common.Address
	Feed0  chain.PriceFeed
	Feed1  chain.PriceFeed
	// ExtraSources are combined with the Feed0/Feed1 ratio by median.
	ExtraSources []pricefeed.Source

	RewardToken      common.Address
	RewardAllocation decimal.Decimal
	// Funder supplies the reward allocation.
	Funder    common.Address
	StartTime time.Time
}

// DiscoveryParams describes a price discovery pool.
type DiscoveryParams struct {
	RewardToken      common.Address
	CounterToken     common.Address
	RewardAllocation decimal.Decimal
	Funder           common.Address
	StartTime        time.Time
}

// Factory creates and indexes pools.
type Factory struct {
	mu       sync.RWMutex
	address  common.Address
	nonce    uint64
	ledger   chain.TokenLedger
	router   chain.Router
	settings Settings

	intermediate map[[2]common.Address]*pool.Pool
	discovery    map[[2]common.Address]*discovery.Pool
	byID         map[string]Pool
	order        []string
}

// New creates a factory deploying from address.
func New(address common.Address, ledger chain.TokenLedger, router chain.Router, settings Settings) *Factory {
	if settings.Now == nil {
		settings.Now = time.Now
	}
	if settings.Logger == nil {
		settings.Logger = pool.NopLogger{}
	}
	return &Factory{
		address:      address,
		ledger:       ledger,
		router:       router,
		settings:     settings,
		intermediate: make(map[[2]common.Address]*pool.Pool),
		discovery:    make(map[[2]common.Address]*discovery.Pool),
		byID:         make(map[string]Pool),
	}
}

// Ledger returns the token ledger pools are wired to.
func (f *Factory) Ledger() chain.TokenLedger { return f.ledger }

// CreateIntermediatePool deploys a two-sided pool for an existing AMM pair.
func (f *Factory) CreateIntermediatePool(ctx context.Context, params IntermediateParams) (*pool.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := chain.PairKey(params.Token0, params.Token1)
	if _, ok := f.intermediate[key]; ok {
		return nil, ErrPoolExists
	}
	lp, ok := f.router.GetPair(params.Token0, params.Token1)
	if !ok {
		return nil, ErrPairNotFound
	}

	var source pricefeed.Source = pricefeed.PairSource{
		Feed0:  params.Feed0,
		Feed1:  params.Feed1,
		MaxAge: f.settings.MaxPriceAge,
		Now:    f.settings.Now,
	}
	if len(params.ExtraSources) > 0 {
		source = append(pricefeed.MedianSource{source}, params.ExtraSources...)
	}
	prices := pricefeed.NewNormalizer(source,
		pricefeed.WithInterval(f.settings.PriceInterval),
		pricefeed.WithRetry(f.settings.PriceRetries, f.settings.PriceRetryDelay),
	)

	addr := crypto.CreateAddress(f.address, f.nonce)
	p, err := pool.New(pool.Config{
		Address:          addr,
		Token0:           params.Token0,
		Token1:           params.Token1,
		LpToken:          lp,
		RewardToken:      params.RewardToken,
		RewardAllocation: params.RewardAllocation,
		Admin:            f.settings.Admin,
		StartTime:        params.StartTime,
		DepositWindow:    f.settings.DepositWindow,
		PenaltyBps:       f.settings.PenaltyBps,
		Menu:             f.settings.IntermediateMenu,
		Ledger:           f.ledger,
		Router:           f.router,
		Prices:           prices,
		Now:              f.settings.Now,
		Logger:           f.settings.Logger,
	})
	if err != nil {
		return nil, err
	}
	if err := f.fund(ctx, params.RewardToken, params.Funder, addr, params.RewardAllocation); err != nil {
		return nil, err
	}

	f.nonce++
	f.intermediate[key] = p
	f.register(p)
	f.settings.Logger.Info("intermediate pool created",
		"pool", p.ID(),
		"token0", params.Token0.Hex(),
		"token1", params.Token1.Hex(),
		"lp_token", lp.Hex(),
	)
	return p, nil
}

// CreatePriceDiscoveryPool deploys a discovery pool for an existing AMM
// pair of the reward token and a counter asset.
func (f *Factory) CreatePriceDiscoveryPool(ctx context.Context, params DiscoveryParams) (*discovery.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := chain.PairKey(params.RewardToken, params.CounterToken)
	if _, ok := f.discovery[key]; ok {
		return nil, ErrPoolExists
	}
	lp, ok := f.router.GetPair(params.RewardToken, params.CounterToken)
	if !ok {
		return nil, ErrPairNotFound
	}

	addr := crypto.CreateAddress(f.address, f.nonce)
	p, err := discovery.New(discovery.Config{
		Address:           addr,
		Token0:            params.RewardToken,
		Token1:            params.CounterToken,
		LpToken:           lp,
		RewardToken:       params.RewardToken,
		RewardAllocation:  params.RewardAllocation,
		Admin:             f.settings.Admin,
		StartTime:         params.StartTime,
		DepositWindow:     f.settings.DepositWindow,
		PenaltyBps:        f.settings.PenaltyBps,
		InitialReleaseBps: f.settings.InitialReleaseBps,
		Menu:              f.settings.DiscoveryMenu,
		Ledger:            f.ledger,
		Router:            f.router,
		Now:               f.settings.Now,
		Logger:            f.settings.Logger,
	})
	if err != nil {
		return nil, err
	}
	if err := f.fund(ctx, params.RewardToken, params.Funder, addr, params.RewardAllocation); err != nil {
		return nil, err
	}

	f.nonce++
	f.discovery[key] = p
	f.register(p)
	f.settings.Logger.Info("price discovery pool created",
		"pool", p.ID(),
		"reward_token", params.RewardToken.Hex(),
		"counter_token", params.CounterToken.Hex(),
		"lp_token", lp.Hex(),
	)
	return p, nil
}

// IntermediatePool looks up the two-sided pool of a token pair.
func (f *Factory) IntermediatePool(token0, token1 common.Address) (*pool.Pool, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.intermediate[chain.PairKey(token0, token1)]
	return p, ok
}

// PriceDiscoveryPool looks up the discovery pool of a token pair.
func (f *Factory) PriceDiscoveryPool(token0, token1 common.Address) (*discovery.Pool, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.discovery[chain.PairKey(token0, token1)]
	return p, ok
}

// Get returns the pool with the given id.
func (f *Factory) Get(id string) (Pool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}
	return p, nil
}

// Pools returns every pool in creation order.
func (f *Factory) Pools() []Pool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Pool, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.byID[id])
	}
	return out
}

func (f *Factory) register(p Pool) {
	f.byID[p.ID()] = p
	f.order = append(f.order, p.ID())
}

func (f *Factory) fund(ctx context.Context, token, from, to common.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	if err := f.ledger.Transfer(ctx, token, from, to, amount); err != nil {
		return fmt.Errorf("factory: fund reward allocation: %w", err)
	}
	return nil
}
