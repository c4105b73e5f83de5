package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/lbp/pool-engine/internal/ratio"
)

// MemoryLedger implements TokenLedger with in-memory balances. Used for
// testing and development. Not suitable for production (no persistence).
type MemoryLedger struct {
	mu       sync.RWMutex
	balances map[common.Address]map[common.Address]decimal.Decimal
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[common.Address]map[common.Address]decimal.Decimal),
	}
}

// Mint credits amount of token to owner out of thin air.
func (l *MemoryLedger) Mint(_ context.Context, token, owner common.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.credit(token, owner, amount)
	return nil
}

func (l *MemoryLedger) Transfer(_ context.Context, token, from, to common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	if amount.IsZero() || from == to {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balances[token][from]
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s",
			ErrInsufficientBalance, from.Hex(), bal, token.Hex(), amount)
	}
	l.balances[token][from] = bal.Sub(amount)
	l.credit(token, to, amount)
	return nil
}

func (l *MemoryLedger) BalanceOf(_ context.Context, token, owner common.Address) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.balances[token][owner], nil
}

// credit must be called with mu held.
func (l *MemoryLedger) credit(token, owner common.Address, amount decimal.Decimal) {
	byOwner, ok := l.balances[token]
	if !ok {
		byOwner = make(map[common.Address]decimal.Decimal)
		l.balances[token] = byOwner
	}
	byOwner[owner] = byOwner[owner].Add(amount)
}

type memoryPair struct {
	token0, token1 common.Address
	share          common.Address
	reserve0       decimal.Decimal
	reserve1       decimal.Decimal
	supply         decimal.Decimal
}

// MemoryRouter implements Router on top of a MemoryLedger. Shares are
// minted proportionally to the existing reserves, amount0 for the first
// deposit. It is a test double, not a pricing curve.
type MemoryRouter struct {
	mu      sync.Mutex
	ledger  *MemoryLedger
	address common.Address
	nonce   uint64
	pairs   map[[2]common.Address]*memoryPair
}

// NewMemoryRouter creates a router whose pairs live on ledger.
func NewMemoryRouter(ledger *MemoryLedger, address common.Address) *MemoryRouter {
	return &MemoryRouter{
		ledger:  ledger,
		address: address,
		pairs:   make(map[[2]common.Address]*memoryPair),
	}
}

// CreatePair registers a pair and returns its share token address.
func (r *MemoryRouter) CreatePair(token0, token1 common.Address) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := PairKey(token0, token1)
	if _, ok := r.pairs[key]; ok {
		return common.Address{}, ErrPairExists
	}
	share := crypto.CreateAddress(r.address, r.nonce)
	r.nonce++
	r.pairs[key] = &memoryPair{
		token0: token0,
		token1: token1,
		share:  share,
	}
	return share, nil
}

func (r *MemoryRouter) GetPair(token0, token1 common.Address) (common.Address, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pairs[PairKey(token0, token1)]
	if !ok {
		return common.Address{}, false
	}
	return p.share, true
}

func (r *MemoryRouter) AddLiquidity(ctx context.Context, token0, token1 common.Address,
	amount0, amount1 decimal.Decimal, from, to common.Address) (decimal.Decimal, error) {
	if !amount0.IsPositive() || !amount1.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pairs[PairKey(token0, token1)]
	if !ok {
		return decimal.Zero, ErrPairNotFound
	}
	// Callers may pass the pair in either order.
	if p.token0 != token0 {
		amount0, amount1 = amount1, amount0
		token0, token1 = token1, token0
	}

	var shares decimal.Decimal
	if p.supply.IsZero() {
		shares = amount0
	} else {
		shares = decimal.Min(
			ratio.MulDiv(amount0, p.supply, p.reserve0),
			ratio.MulDiv(amount1, p.supply, p.reserve1),
		)
	}
	if !shares.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	pairAddr := p.share
	if err := r.ledger.Transfer(ctx, token0, from, pairAddr, amount0); err != nil {
		return decimal.Zero, err
	}
	if err := r.ledger.Transfer(ctx, token1, from, pairAddr, amount1); err != nil {
		// Undo the first leg so a failed call has no effect.
		_ = r.ledger.Transfer(ctx, token0, pairAddr, from, amount0)
		return decimal.Zero, err
	}
	if err := r.ledger.Mint(ctx, p.share, to, shares); err != nil {
		return decimal.Zero, err
	}

	p.reserve0 = p.reserve0.Add(amount0)
	p.reserve1 = p.reserve1.Add(amount1)
	p.supply = p.supply.Add(shares)
	return shares, nil
}

// PairKey orders a token pair so lookups are order-independent.
func PairKey(a, b common.Address) [2]common.Address {
	if a.Cmp(b) > 0 {
		a, b = b, a
	}
	return [2]common.Address{a, b}
}

// StaticFeed is a PriceFeed whose answer is set explicitly.
type StaticFeed struct {
	mu        sync.RWMutex
	answer    decimal.Decimal
	updatedAt time.Time
	now       func() time.Time
}

// NewStaticFeed creates a feed with an initial answer. now stamps updates;
// nil means time.Now.
func NewStaticFeed(answer decimal.Decimal, now func() time.Time) *StaticFeed {
	if now == nil {
		now = time.Now
	}
	return &StaticFeed{answer: answer, updatedAt: now(), now: now}
}

// UpdateAnswer replaces the answer and stamps it with the current time.
func (f *StaticFeed) UpdateAnswer(answer decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.answer = answer
	f.updatedAt = f.now()
}

func (f *StaticFeed) LatestAnswer(_ context.Context) (decimal.Decimal, time.Time, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.answer.IsZero() {
		return decimal.Zero, time.Time{}, ErrNoAnswer
	}
	return f.answer, f.updatedAt, nil
}
