package factory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbp/pool-engine/internal/chain"
	"github.com/lbp/pool-engine/internal/lifecycle"
	"github.com/lbp/pool-engine/internal/model"
)

var (
	factoryAddr = common.HexToAddress("0x0000000000000000000000000000000000000fac")
	routerAddr  = common.HexToAddress("0x0000000000000000000000000000000000008000")
	admin       = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	treasury    = common.HexToAddress("0x0000000000000000000000000000000000000777")
	weth        = common.HexToAddress("0x0000000000000000000000000000000000001000")
	usdc        = common.HexToAddress("0x0000000000000000000000000000000000002000")
	vrsw        = common.HexToAddress("0x0000000000000000000000000000000000003000")
)

func setup(t *testing.T) (*Factory, *chain.MemoryLedger) {
	t.Helper()
	ledger := chain.NewMemoryLedger()
	router := chain.NewMemoryRouter(ledger, routerAddr)
	_, err := router.CreatePair(weth, usdc)
	require.NoError(t, err)
	_, err = router.CreatePair(vrsw, usdc)
	require.NoError(t, err)
	require.NoError(t, ledger.Mint(context.Background(), vrsw, treasury, decimal.NewFromInt(5000)))

	return New(factoryAddr, ledger, router, Settings{Admin: admin}), ledger
}

func TestCreateIntermediatePool(t *testing.T) {
	f, ledger := setup(t)
	ctx := context.Background()
	feed := chain.NewStaticFeed(decimal.NewFromInt(100000000), nil)

	p, err := f.CreateIntermediatePool(ctx, IntermediateParams{
		Token0:           weth,
		Token1:           usdc,
		Feed0:            feed,
		Feed1:            feed,
		RewardToken:      vrsw,
		RewardAllocation: decimal.NewFromInt(1000),
		Funder:           treasury,
		StartTime:        time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, crypto.CreateAddress(factoryAddr, 0), p.Address())
	assert.Equal(t, model.PhaseCreated, p.Phase())

	bal, err := ledger.BalanceOf(ctx, vrsw, p.Address())
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(1000)))

	got, ok := f.IntermediatePool(usdc, weth)
	require.True(t, ok, "lookup is order independent")
	assert.Same(t, p, got)

	byID, err := f.Get(p.ID())
	require.NoError(t, err)
	assert.Equal(t, p.ID(), byID.ID())

	_, err = f.CreateIntermediatePool(ctx, IntermediateParams{Token0: usdc, Token1: weth, Feed0: feed, Feed1: feed})
	require.ErrorIs(t, err, ErrPoolExists)
}

func TestCreateIntermediatePool_UnknownPair(t *testing.T) {
	f, _ := setup(t)
	_, err := f.CreateIntermediatePool(context.Background(), IntermediateParams{Token0: weth, Token1: vrsw})
	require.ErrorIs(t, err, ErrPairNotFound)
	assert.Equal(t, lifecycle.KindInput, lifecycle.Classify(err))
	assert.Empty(t, f.Pools())
}

func TestCreatePriceDiscoveryPool(t *testing.T) {
	f, _ := setup(t)
	ctx := context.Background()

	d, err := f.CreatePriceDiscoveryPool(ctx, DiscoveryParams{
		RewardToken:  vrsw,
		CounterToken: usdc,
		StartTime:    time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, model.VariantDiscovery, d.Snapshot().Variant)

	got, ok := f.PriceDiscoveryPool(usdc, vrsw)
	require.True(t, ok)
	assert.Same(t, d, got)

	// A two-sided pool for the same pair is a separate registration.
	feed := chain.NewStaticFeed(decimal.NewFromInt(1), nil)
	p, err := f.CreateIntermediatePool(ctx, IntermediateParams{Token0: vrsw, Token1: usdc, Feed0: feed, Feed1: feed})
	require.NoError(t, err)
	assert.Equal(t, crypto.CreateAddress(factoryAddr, 1), p.Address())

	pools := f.Pools()
	require.Len(t, pools, 2)
	assert.Equal(t, d.ID(), pools[0].ID())
	assert.Equal(t, p.ID(), pools[1].ID())
}

func TestCreatePool_FundingFailureConsumesNoNonce(t *testing.T) {
	f, _ := setup(t)
	ctx := context.Background()

	_, err := f.CreatePriceDiscoveryPool(ctx, DiscoveryParams{
		RewardToken:      vrsw,
		CounterToken:     usdc,
		RewardAllocation: decimal.NewFromInt(999999),
		Funder:           treasury,
	})
	require.True(t, errors.Is(err, chain.ErrInsufficientBalance))

	d, err := f.CreatePriceDiscoveryPool(ctx, DiscoveryParams{RewardToken: vrsw, CounterToken: usdc})
	require.NoError(t, err)
	assert.Equal(t, crypto.CreateAddress(factoryAddr, 0), d.Address())
}

func TestGet_NotFound(t *testing.T) {
	f, _ := setup(t)
	_, err := f.Get("nope")
	require.ErrorIs(t, err, ErrPoolNotFound)
	assert.Equal(t, lifecycle.KindNotFound, lifecycle.Classify(err))
}
