package pool

import (
	"github.com/lbp/pool-engine/internal/model"
	"github.com/lbp/pool-engine/internal/ratio"
)

// Penalties is the pot of forfeited amounts from early exits. It only
// grows; emergency rescue is the only way out.
type Penalties struct {
	total model.Pair
}

// Apply splits amounts into the refund owed to the user and the penalty
// kept by the pool, and adds the penalty to the pot.
func (pp *Penalties) Apply(amounts model.Pair, bps int64) (refund, penalty model.Pair) {
	penalty = Penalty(amounts, bps)
	pp.total = pp.total.Add(penalty)
	return amounts.Sub(penalty), penalty
}

// Total returns the accumulated penalties.
func (pp *Penalties) Total() model.Pair { return pp.total }

// Restore sets the pot back to a previously read value.
func (pp *Penalties) Restore(total model.Pair) { pp.total = total }

// Reset empties the pot.
func (pp *Penalties) Reset() { pp.total = model.Pair{} }

// Penalty returns floor(amount * bps / 10000) for each side.
func Penalty(amounts model.Pair, bps int64) model.Pair {
	return model.Pair{
		Amount0: ratio.Bps(amounts.Amount0, bps),
		Amount1: ratio.Bps(amounts.Amount1, bps),
	}
}
