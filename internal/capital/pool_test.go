package capital

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
)

func TestMemoryPool_AllocateAndReturn(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPool(1000)

	granted, ok, err := p.Allocate(ctx, 400)
	if err != nil || !ok || granted != 400 {
		t.Fatalf("Allocate(400) = %v, %v, %v", granted, ok, err)
	}

	granted, ok, err = p.Allocate(ctx, 700)
	if err != nil {
		t.Fatalf("Allocate(700) failed: %v", err)
	}
	if ok || granted != 0 {
		t.Errorf("expected refusal, got granted=%v ok=%v", granted, ok)
	}

	if err := p.Return(ctx, 100.5); err != nil {
		t.Fatalf("Return failed: %v", err)
	}

	bal, err := p.Balance(ctx)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if bal != 700.5 {
		t.Errorf("balance = %v, want 700.5", bal)
	}
}

func TestMemoryPool_ExactBalance(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPool(0.3)

	// 0.1 + 0.2 must drain 0.3 exactly
	for _, amt := range []float64{0.1, 0.2} {
		if _, ok, err := p.Allocate(ctx, amt); err != nil || !ok {
			t.Fatalf("Allocate(%v) = %v, %v", amt, ok, err)
		}
	}
	bal, _ := p.Balance(ctx)
	if bal != 0 {
		t.Errorf("balance = %v, want 0", bal)
	}
}

func TestMemoryPool_InvalidAmount(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPool(10)

	for _, amt := range []float64{-1, math.NaN(), math.Inf(1)} {
		if _, _, err := p.Allocate(ctx, amt); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Allocate(%v): expected ErrInvalidAmount, got %v", amt, err)
		}
		if err := p.Return(ctx, amt); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Return(%v): expected ErrInvalidAmount, got %v", amt, err)
		}
	}
}

func TestMemoryPool_ConcurrentAllocateNeverOverdraws(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPool(100)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := p.Allocate(ctx, 10)
			if err != nil {
				t.Errorf("Allocate failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 10 {
		t.Errorf("granted %d allocations, want 10", granted)
	}
	bal, err := p.Balance(ctx)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if bal != 0 {
		t.Errorf("balance = %v, want 0", bal)
	}
}
