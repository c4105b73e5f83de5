// Package arena assigns dense sequential indexes to addresses on first
// sight, so batch processors can walk depositors by position.
package arena

import "github.com/ethereum/go-ethereum/common"

// Arena is an append-only ordered list of addresses with a reverse map.
// The zero value is ready to use.
type Arena struct {
	order []common.Address
	index map[common.Address]int
}

// Add returns the index of addr, assigning the next one if addr is new.
func (a *Arena) Add(addr common.Address) (idx int, added bool) {
	if i, ok := a.index[addr]; ok {
		return i, false
	}
	if a.index == nil {
		a.index = make(map[common.Address]int)
	}
	idx = len(a.order)
	a.order = append(a.order, addr)
	a.index[addr] = idx
	return idx, true
}

// At returns the address at position i.
func (a *Arena) At(i int) common.Address { return a.order[i] }

// Len returns the number of addresses.
func (a *Arena) Len() int { return len(a.order) }
