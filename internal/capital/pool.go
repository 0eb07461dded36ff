// Package capital holds the shared pool that funds newborn agents and
// receives the capital of dead ones.
package capital

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/shopspring/decimal"

	"trading-agent-lab/internal/domain"
)

// Pool errors
var (
	// ErrNegativePool is fatal: the balance went below zero.
	ErrNegativePool = domain.ErrNegativeCapitalPool

	ErrInvalidAmount = errors.New("invalid capital amount")
)

// Pool is a shared capital reserve. Allocate is an atomic check-then-deduct.
type Pool interface {
	// Allocate deducts amount when the balance covers it.
	// ok is false (and granted 0) when the pool refuses.
	Allocate(ctx context.Context, amount float64) (granted float64, ok bool, err error)

	// Return adds amount back to the pool.
	Return(ctx context.Context, amount float64) error

	// Balance returns the current balance.
	Balance(ctx context.Context) (float64, error)
}

// MemoryPool is an in-process Pool guarded by a mutex.
type MemoryPool struct {
	mu      sync.Mutex
	balance decimal.Decimal
}

// Compile-time interface check.
var _ Pool = (*MemoryPool)(nil)

// NewMemoryPool creates a pool holding initial.
func NewMemoryPool(initial float64) *MemoryPool {
	return &MemoryPool{balance: decimal.NewFromFloat(initial)}
}

// Allocate implements Pool.
func (p *MemoryPool) Allocate(_ context.Context, amount float64) (float64, bool, error) {
	if err := validAmount(amount); err != nil {
		return 0, false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.balance.IsNegative() {
		return 0, false, fmt.Errorf("%w: %s", ErrNegativePool, p.balance)
	}
	amt := decimal.NewFromFloat(amount)
	if p.balance.LessThan(amt) {
		return 0, false, nil
	}
	p.balance = p.balance.Sub(amt)
	return amount, true, nil
}

// Return implements Pool.
func (p *MemoryPool) Return(_ context.Context, amount float64) error {
	if err := validAmount(amount); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.balance = p.balance.Add(decimal.NewFromFloat(amount))
	return nil
}

// Balance implements Pool.
func (p *MemoryPool) Balance(_ context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.balance.IsNegative() {
		return p.balance.InexactFloat64(), fmt.Errorf("%w: %s", ErrNegativePool, p.balance)
	}
	return p.balance.InexactFloat64(), nil
}

func validAmount(amount float64) error {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}
