package pricefeed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbp/pool-engine/internal/chain"
	"github.com/lbp/pool-engine/internal/ratio"
)

type countingSource struct {
	value decimal.Decimal
	err   error
	calls int
}

func (c *countingSource) Ratio(context.Context) (decimal.Decimal, error) {
	c.calls++
	if c.err != nil {
		return decimal.Zero, c.err
	}
	return c.value, nil
}

func TestPairSource_Ratio(t *testing.T) {
	src := PairSource{
		Feed0: chain.NewStaticFeed(decimal.NewFromInt(200000000), nil),
		Feed1: chain.NewStaticFeed(decimal.NewFromInt(100000000), nil),
	}
	r, err := src.Ratio(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Equal(ratio.Scale.Mul(decimal.NewFromInt(2))), "ratio: %s", r)
}

func TestPairSource_Stale(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := start
	now := func() time.Time { return clock }
	src := PairSource{
		Feed0:  chain.NewStaticFeed(decimal.NewFromInt(2), now),
		Feed1:  chain.NewStaticFeed(decimal.NewFromInt(1), now),
		MaxAge: time.Hour,
		Now:    now,
	}
	_, err := src.Ratio(context.Background())
	require.NoError(t, err)

	clock = start.Add(2 * time.Hour)
	_, err = src.Ratio(context.Background())
	require.ErrorIs(t, err, ErrStalePrice)
}

func TestMedianSource(t *testing.T) {
	m := MedianSource{
		&countingSource{value: decimal.NewFromInt(30)},
		&countingSource{value: decimal.NewFromInt(10)},
		&countingSource{value: decimal.NewFromInt(20)},
	}
	r, err := m.Ratio(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(20)))

	even := append(m, &countingSource{value: decimal.NewFromInt(41)})
	r, err = even.Ratio(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(25)), "median: %s", r)

	_, err = MedianSource{}.Ratio(context.Background())
	require.ErrorIs(t, err, ErrNoSources)
}

func TestNormalizer_RefreshesOncePerInterval(t *testing.T) {
	src := &countingSource{value: decimal.NewFromInt(7)}
	n := NewNormalizer(src)
	start := time.Unix(1_700_000_000, 0)

	r, refreshed, err := n.Current(context.Background(), start)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.True(t, r.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, start, n.LastUpdate())

	src.value = decimal.NewFromInt(8)
	_, refreshed, err = n.Current(context.Background(), start.Add(24*time.Hour-time.Second))
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Equal(t, start, n.LastUpdate())
	assert.True(t, n.Ratio().Equal(decimal.NewFromInt(7)))

	r, refreshed, err = n.Current(context.Background(), start.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.True(t, r.Equal(decimal.NewFromInt(8)))
	assert.Equal(t, 2, src.calls)
}

func TestNormalizer_RefreshIsUnconditional(t *testing.T) {
	src := &countingSource{value: decimal.NewFromInt(7)}
	n := NewNormalizer(src)
	now := time.Unix(1_700_000_000, 0)

	_, _, err := n.Current(context.Background(), now)
	require.NoError(t, err)
	src.value = decimal.NewFromInt(9)

	r, err := n.Refresh(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(9)))
	assert.Equal(t, 2, src.calls)
}

func TestNormalizer_TimestampNeverMovesBack(t *testing.T) {
	src := &countingSource{value: decimal.NewFromInt(7)}
	n := NewNormalizer(src)
	now := time.Unix(1_700_000_000, 0)

	_, err := n.Refresh(context.Background(), now)
	require.NoError(t, err)
	_, err = n.Refresh(context.Background(), now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, now, n.LastUpdate())
}

func TestNormalizer_RetriesThenFails(t *testing.T) {
	boom := errors.New("rpc down")
	src := &countingSource{err: boom}
	n := NewNormalizer(src, WithRetry(2, time.Millisecond))

	_, _, err := n.Current(context.Background(), time.Unix(1_700_000_000, 0))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, src.calls)
	assert.True(t, n.LastUpdate().IsZero())
}
