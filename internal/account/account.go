// Package account implements the per-agent dual ledger.
//
// The virtual ledger holds any number of simulated positions closed in FIFO
// order. The real ledger holds at most one externally executed position.
// A real buy is only recorded while the real slot is empty and a real sell
// only while it is occupied.
package account

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"trading-agent-lab/internal/domain"
	"trading-agent-lab/internal/idhash"
)

// Account errors
var (
	ErrInvalidAmount = errors.New("amount must be > 0")
	ErrInvalidPrice  = errors.New("price must be > 0")
)

// DefaultCooldown is the minimum simulated interval between real trades.
const DefaultCooldown = 60 * time.Second

// Options contains configuration for creating an Account.
type Options struct {
	AgentID        string
	InitialCapital float64
	Cooldown       time.Duration // 0 uses DefaultCooldown, negative disables
}

// Account is an agent's dual ledger. It is safe for concurrent use.
type Account struct {
	mu sync.Mutex

	agentID    string
	cooldownMs int64

	initialCapital decimal.Decimal
	virtualCapital decimal.Decimal
	realizedPnL    decimal.Decimal

	positions    []domain.Position // FIFO queue, oldest first
	realPosition *domain.Position

	virtualTrades []domain.TradeRecord
	realTrades    []domain.TradeRecord

	winCount   int
	lossCount  int
	tradeCount int

	lastTradeTime int64 // ms
	hasTraded     bool
}

// New creates an Account.
func New(opts Options) *Account {
	cooldown := opts.Cooldown
	if cooldown == 0 {
		cooldown = DefaultCooldown
	}
	if cooldown < 0 {
		cooldown = 0
	}

	capital := decimal.NewFromFloat(opts.InitialCapital)
	return &Account{
		agentID:        opts.AgentID,
		cooldownMs:     cooldown.Milliseconds(),
		initialCapital: capital,
		virtualCapital: capital,
	}
}

// AgentID returns the owning agent ID.
func (a *Account) AgentID() string {
	return a.agentID
}

// CanBuy reports whether a buy of amount at price is allowed at time now (ms).
// Checks run in order: real slot, virtual capital, cooldown.
func (a *Account) CanBuy(amount, price float64, now int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.realPosition != nil {
		return domain.ErrHasRealPosition
	}

	required := decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(price))
	if a.virtualCapital.LessThan(required) {
		return fmt.Errorf("%w: need %s, have %s", domain.ErrInsufficientVirtualCapital,
			required.StringFixed(4), a.virtualCapital.StringFixed(4))
	}

	if a.hasTraded && now-a.lastTradeTime < a.cooldownMs {
		return fmt.Errorf("%w: %dms remaining", domain.ErrCooldownActive, a.cooldownMs-(now-a.lastTradeTime))
	}
	return nil
}

// CanSell reports whether a close is allowed.
// A virtual close requires an open real position as well.
func (a *Account) CanSell() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.positions) == 0 {
		return domain.ErrNoVirtualPosition
	}
	if a.realPosition == nil {
		return domain.ErrNoRealPosition
	}
	return nil
}

// RecordVirtualBuy opens a virtual position at the back of the queue.
func (a *Account) RecordVirtualBuy(side domain.Side, amount, price float64, now int64, confidence float64) error {
	if err := validateTrade(amount, price); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.positions = append(a.positions, domain.Position{
		Side:       normalizeSide(side),
		Amount:     amount,
		EntryPrice: price,
		EntryTime:  now,
		Confidence: confidence,
	})
	return nil
}

// RecordVirtualSell closes the oldest virtual position at price.
func (a *Account) RecordVirtualSell(price float64, now int64) (domain.TradeRecord, error) {
	if price <= 0 {
		return domain.TradeRecord{}, ErrInvalidPrice
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	return a.closeOldestLocked(price, now)
}

func (a *Account) closeOldestLocked(price float64, now int64) (domain.TradeRecord, error) {
	if len(a.positions) == 0 {
		return domain.TradeRecord{}, domain.ErrNoVirtualPosition
	}

	pos := a.positions[0]
	a.positions = a.positions[1:]

	pnl := pnlOf(pos, price)
	a.realizedPnL = a.realizedPnL.Add(pnl)
	a.virtualCapital = a.virtualCapital.Add(pnl)
	if a.virtualCapital.IsNegative() {
		a.virtualCapital = decimal.Zero
	}

	pnlF := pnl.InexactFloat64()
	if pnlF > 0 {
		a.winCount++
	} else {
		a.lossCount++
	}
	a.tradeCount++

	rec := a.tradeRecord(domain.LedgerVirtual, pos, price, now, pnlF, len(a.virtualTrades))
	a.virtualTrades = append(a.virtualTrades, rec)
	return rec, nil
}

// RecordRealBuy fills the real slot. Returns ErrHasRealPosition if occupied.
func (a *Account) RecordRealBuy(side domain.Side, amount, price float64, now int64, confidence float64) error {
	if err := validateTrade(amount, price); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.realPosition != nil {
		return domain.ErrHasRealPosition
	}
	a.realPosition = &domain.Position{
		Side:       normalizeSide(side),
		Amount:     amount,
		EntryPrice: price,
		EntryTime:  now,
		Confidence: confidence,
	}
	a.lastTradeTime = now
	a.hasTraded = true
	return nil
}

// RecordRealSell clears the real slot. Returns ErrNoRealPosition if empty.
func (a *Account) RecordRealSell(price float64, now int64) (domain.TradeRecord, error) {
	if price <= 0 {
		return domain.TradeRecord{}, ErrInvalidPrice
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	return a.closeRealLocked(price, now)
}

func (a *Account) closeRealLocked(price float64, now int64) (domain.TradeRecord, error) {
	if a.realPosition == nil {
		return domain.TradeRecord{}, domain.ErrNoRealPosition
	}

	pos := *a.realPosition
	a.realPosition = nil
	a.lastTradeTime = now
	a.hasTraded = true

	rec := a.tradeRecord(domain.LedgerReal, pos, price, now, pos.PnL(price), len(a.realTrades))
	a.realTrades = append(a.realTrades, rec)
	return rec, nil
}

// UnrealizedPnL recomputes open virtual PnL at currentPrice.
func (a *Account) UnrealizedPnL(currentPrice float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unrealizedLocked(currentPrice).InexactFloat64()
}

func (a *Account) unrealizedLocked(price float64) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range a.positions {
		sum = sum.Add(pnlOf(p, price))
	}
	return sum
}

// Summary returns a point-in-time view at currentPrice.
func (a *Account) Summary(currentPrice float64) domain.AccountSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	unrealized := a.unrealizedLocked(currentPrice)
	total := a.realizedPnL.Add(unrealized)

	exposure := decimal.Zero
	for _, p := range a.positions {
		exposure = exposure.Add(decimal.NewFromFloat(p.Amount).Mul(decimal.NewFromFloat(p.EntryPrice)))
	}

	s := domain.AccountSummary{
		AgentID:         a.agentID,
		InitialCapital:  a.initialCapital.InexactFloat64(),
		VirtualCapital:  a.virtualCapital.InexactFloat64(),
		OpenPositions:   len(a.positions),
		OpenExposure:    exposure.InexactFloat64(),
		HasRealPosition: a.realPosition != nil,
		RealizedPnL:     a.realizedPnL.InexactFloat64(),
		UnrealizedPnL:   unrealized.InexactFloat64(),
		TotalPnL:        total.InexactFloat64(),
		TradeCount:      a.tradeCount,
		WinCount:        a.winCount,
		LossCount:       a.lossCount,
		LastTradeTime:   a.lastTradeTime,
	}
	if a.initialCapital.IsPositive() {
		s.ReturnPct = total.Div(a.initialCapital).InexactFloat64()
	}
	if a.tradeCount > 0 {
		s.WinRate = float64(a.winCount) / float64(a.tradeCount)
	}
	return s
}

// Liquidate closes every open position at price and returns the final
// virtual capital (never negative).
func (a *Account) Liquidate(price float64, now int64) (float64, error) {
	if price <= 0 {
		return 0, ErrInvalidPrice
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for len(a.positions) > 0 {
		if _, err := a.closeOldestLocked(price, now); err != nil {
			return 0, err
		}
	}
	if a.realPosition != nil {
		if _, err := a.closeRealLocked(price, now); err != nil {
			return 0, err
		}
	}
	return a.virtualCapital.InexactFloat64(), nil
}

// VirtualCapital returns the current virtual capital.
func (a *Account) VirtualCapital() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.virtualCapital.InexactFloat64()
}

// InitialCapital returns the starting capital.
func (a *Account) InitialCapital() float64 {
	return a.initialCapital.InexactFloat64()
}

// RealizedPnL returns cumulative realized virtual PnL.
func (a *Account) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedPnL.InexactFloat64()
}

// Positions returns a copy of the open virtual positions, oldest first.
func (a *Account) Positions() []domain.Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.Position, len(a.positions))
	copy(out, a.positions)
	return out
}

// RealPosition returns a copy of the real position, or nil.
func (a *Account) RealPosition() *domain.Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.realPosition == nil {
		return nil
	}
	p := *a.realPosition
	return &p
}

// VirtualTrades returns a copy of the closed virtual trades in close order.
func (a *Account) VirtualTrades() []domain.TradeRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.TradeRecord, len(a.virtualTrades))
	copy(out, a.virtualTrades)
	return out
}

// RealTrades returns a copy of the closed real trades in close order.
func (a *Account) RealTrades() []domain.TradeRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.TradeRecord, len(a.realTrades))
	copy(out, a.realTrades)
	return out
}

func (a *Account) tradeRecord(ledger domain.Ledger, pos domain.Position, exitPrice float64, now int64, pnl float64, seq int) domain.TradeRecord {
	return domain.TradeRecord{
		TradeID:      idhash.ComputeTradeID(a.agentID, string(ledger), seq, pos.EntryTime),
		AgentID:      a.agentID,
		Ledger:       ledger,
		Side:         pos.Side,
		Amount:       pos.Amount,
		Confidence:   pos.Confidence,
		EntryPrice:   pos.EntryPrice,
		EntryTime:    pos.EntryTime,
		ExitPrice:    exitPrice,
		ExitTime:     now,
		PnL:          pnl,
		OutcomeClass: domain.OutcomeClassFor(pnl),
	}
}

func pnlOf(p domain.Position, price float64) decimal.Decimal {
	diff := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(p.EntryPrice))
	if p.Side == domain.SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromFloat(p.Amount))
}

func validateTrade(amount, price float64) error {
	if !(amount > 0) {
		return ErrInvalidAmount
	}
	if !(price > 0) {
		return ErrInvalidPrice
	}
	return nil
}

func normalizeSide(s domain.Side) domain.Side {
	if s == domain.SideShort {
		return domain.SideShort
	}
	return domain.SideLong
}
