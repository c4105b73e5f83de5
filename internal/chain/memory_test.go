package chain

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	tokenB = common.HexToAddress("0xbbbb000000000000000000000000000000000002")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestMemoryLedger_Transfer(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	require.NoError(t, l.Mint(ctx, tokenA, alice, decimal.NewFromInt(100)))

	require.NoError(t, l.Transfer(ctx, tokenA, alice, bob, decimal.NewFromInt(40)))

	a, _ := l.BalanceOf(ctx, tokenA, alice)
	b, _ := l.BalanceOf(ctx, tokenA, bob)
	assert.True(t, a.Equal(decimal.NewFromInt(60)), "alice: %s", a)
	assert.True(t, b.Equal(decimal.NewFromInt(40)), "bob: %s", b)
}

func TestMemoryLedger_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	require.NoError(t, l.Mint(ctx, tokenA, alice, decimal.NewFromInt(1)))

	err := l.Transfer(ctx, tokenA, alice, bob, decimal.NewFromInt(2))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	a, _ := l.BalanceOf(ctx, tokenA, alice)
	assert.True(t, a.Equal(decimal.NewFromInt(1)))
}

func TestMemoryRouter_AddLiquidity(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	r := NewMemoryRouter(l, common.HexToAddress("0x0000000000000000000000000000000000000f00"))
	share, err := r.CreatePair(tokenA, tokenB)
	require.NoError(t, err)

	got, ok := r.GetPair(tokenB, tokenA)
	require.True(t, ok)
	assert.Equal(t, share, got)

	require.NoError(t, l.Mint(ctx, tokenA, alice, decimal.NewFromInt(1000)))
	require.NoError(t, l.Mint(ctx, tokenB, alice, decimal.NewFromInt(1000)))

	first, err := r.AddLiquidity(ctx, tokenA, tokenB, decimal.NewFromInt(100), decimal.NewFromInt(50), alice, alice)
	require.NoError(t, err)
	assert.True(t, first.Equal(decimal.NewFromInt(100)))

	// Reversed order, same proportion.
	second, err := r.AddLiquidity(ctx, tokenB, tokenA, decimal.NewFromInt(25), decimal.NewFromInt(50), alice, bob)
	require.NoError(t, err)
	assert.True(t, second.Equal(decimal.NewFromInt(50)), "second: %s", second)

	lp, _ := l.BalanceOf(ctx, share, bob)
	assert.True(t, lp.Equal(decimal.NewFromInt(50)))
}

func TestMemoryRouter_SharesRoundDown(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	r := NewMemoryRouter(l, common.HexToAddress("0x0000000000000000000000000000000000000f00"))
	_, err := r.CreatePair(tokenA, tokenB)
	require.NoError(t, err)
	require.NoError(t, l.Mint(ctx, tokenA, alice, decimal.NewFromInt(1000)))
	require.NoError(t, l.Mint(ctx, tokenB, alice, decimal.NewFromInt(1000)))

	_, err = r.AddLiquidity(ctx, tokenA, tokenB, decimal.NewFromInt(100), decimal.NewFromInt(30), alice, alice)
	require.NoError(t, err)

	// min(10*100/100, 2*100/30) = min(10, 6.66) floors to 6.
	shares, err := r.AddLiquidity(ctx, tokenA, tokenB, decimal.NewFromInt(10), decimal.NewFromInt(2), alice, bob)
	require.NoError(t, err)
	assert.True(t, shares.Equal(decimal.NewFromInt(6)), "shares: %s", shares)
}

func TestMemoryRouter_FailedLegHasNoEffect(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	r := NewMemoryRouter(l, common.HexToAddress("0x0000000000000000000000000000000000000f00"))
	_, err := r.CreatePair(tokenA, tokenB)
	require.NoError(t, err)
	require.NoError(t, l.Mint(ctx, tokenA, alice, decimal.NewFromInt(10)))

	_, err = r.AddLiquidity(ctx, tokenA, tokenB, decimal.NewFromInt(10), decimal.NewFromInt(10), alice, alice)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	a, _ := l.BalanceOf(ctx, tokenA, alice)
	assert.True(t, a.Equal(decimal.NewFromInt(10)))
}

func TestStaticFeed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	f := NewStaticFeed(decimal.NewFromInt(200000000), func() time.Time { return now })

	answer, at, err := f.LatestAnswer(context.Background())
	require.NoError(t, err)
	assert.True(t, answer.Equal(decimal.NewFromInt(200000000)))
	assert.Equal(t, now, at)

	now = now.Add(time.Hour)
	f.UpdateAnswer(decimal.NewFromInt(175000000))
	_, at, _ = f.LatestAnswer(context.Background())
	assert.Equal(t, now, at)
}

func TestFeedRegistry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := NewFeedRegistry(func() time.Time { return now })

	_, ok := r.Feed("eth")
	require.False(t, ok)

	r.Set("eth", decimal.NewFromInt(200000000))
	f, ok := r.Feed("eth")
	require.True(t, ok)

	now = now.Add(time.Hour)
	r.Set("eth", decimal.NewFromInt(210000000))
	answer, at, err := f.LatestAnswer(context.Background())
	require.NoError(t, err)
	assert.True(t, answer.Equal(decimal.NewFromInt(210000000)))
	assert.Equal(t, now, at, "updates reuse the registered feed")
}
