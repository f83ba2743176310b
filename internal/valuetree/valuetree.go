// Package valuetree implements ValueTree: a mapping from BalanceRequest to
// Decimal with insert-or-accumulate semantics. It backs both the reserved-
// amount tree and the amount-limits tree inside the balance reservation
// manager. No iteration ordering is guaranteed.
package valuetree

import (
	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
)

// Tree is a BalanceRequest -> Decimal map with accumulate-add semantics.
type Tree struct {
	values map[domain.BalanceRequest]decimal.Decimal
}

// New returns an empty Tree.
func New() *Tree {
	return &Tree{values: make(map[domain.BalanceRequest]decimal.Decimal)}
}

// Get returns the value stored for req and whether it was present.
func (t *Tree) Get(req domain.BalanceRequest) (decimal.Decimal, bool) {
	v, ok := t.values[req]
	return v, ok
}

// GetOrZero returns the value stored for req, or zero if absent.
func (t *Tree) GetOrZero(req domain.BalanceRequest) decimal.Decimal {
	return t.values[req]
}

// Set overwrites the value stored for req.
func (t *Tree) Set(req domain.BalanceRequest, v decimal.Decimal) {
	t.values[req] = v
}

// Add accumulates delta onto whatever is currently stored for req,
// inserting a fresh entry if none exists yet.
func (t *Tree) Add(req domain.BalanceRequest, delta decimal.Decimal) {
	t.values[req] = t.values[req].Add(delta)
}

// Clone returns an independent copy of the tree.
func (t *Tree) Clone() *Tree {
	clone := make(map[domain.BalanceRequest]decimal.Decimal, len(t.values))
	for k, v := range t.values {
		clone[k] = v
	}
	return &Tree{values: clone}
}

// Iter calls fn for every (request, value) pair. Iteration order is
// unspecified.
func (t *Tree) Iter(fn func(domain.BalanceRequest, decimal.Decimal)) {
	for k, v := range t.values {
		fn(k, v)
	}
}

// Len returns the number of entries in the tree.
func (t *Tree) Len() int {
	return len(t.values)
}
