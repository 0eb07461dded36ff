// Package execution turns intended trades into simulated fills and
// estimates their cost before capital is committed.
package execution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"trading-agent-lab/internal/domain"
)

// Execution errors
var (
	ErrNoMarketState = errors.New("no market state installed")
	ErrInvalidPrice  = errors.New("price must be > 0")
)

// OrderSink accepts orders for execution. The simulated Interface satisfies it;
// an exchange adapter can replace it.
type OrderSink interface {
	Submit(ctx context.Context, order *domain.Order) (*domain.FillResult, error)
}

// Defaults for the built-in cost curves.
const (
	DefaultBaseSlippagePct   = 0.0005
	DefaultImpactCoefficient = 0.001
	DefaultReferenceValue    = 10000.0
)

// Options contains configuration for creating an Interface.
type Options struct {
	MinOrderSize float64       // quantities below this are rejected
	Slippage     SlippageCurve // nil uses LinearSlippage with defaults
	Impact       ImpactFunc    // nil uses SquareRootImpact with defaults
	Logger       zerolog.Logger
}

// OrderRequest describes an order to submit.
type OrderRequest struct {
	AgentID    string
	Side       domain.OrderSide
	Quantity   float64
	LimitPrice *float64
}

// Affordability is the structured result of CanAffordTrade.
type Affordability struct {
	OK       bool
	Reason   string
	Required float64 // funds required for a buy at the estimated fill price
}

// Interface is the simulated market access point. The order ID counter
// is owned by the instance.
type Interface struct {
	mu          sync.Mutex
	nextOrderID int64
	state       *domain.MarketState
	orders      []*domain.Order

	minOrderSize float64
	slippage     SlippageCurve
	impact       ImpactFunc
	logger       zerolog.Logger
}

var _ OrderSink = (*Interface)(nil)

// New creates an execution Interface.
func New(opts Options) *Interface {
	slip := opts.Slippage
	if slip == nil {
		slip = LinearSlippage(DefaultBaseSlippagePct, DefaultReferenceValue)
	}
	impact := opts.Impact
	if impact == nil {
		impact = SquareRootImpact(DefaultImpactCoefficient, DefaultReferenceValue)
	}

	return &Interface{
		minOrderSize: opts.MinOrderSize,
		slippage:     slip,
		impact:       impact,
		logger:       opts.Logger.With().Str("component", "MarketInterface").Logger(),
	}
}

// UpdateMarket installs the current tick snapshot.
func (m *Interface) UpdateMarket(state *domain.MarketState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

// Market returns the installed snapshot, or nil.
func (m *Interface) Market() *domain.MarketState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EstimateTradeCost estimates the cost of trading quantity at currentPrice
// against the installed snapshot.
func (m *Interface) EstimateTradeCost(side domain.OrderSide, quantity, currentPrice float64) (domain.TradeCost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.estimateLocked(side, quantity, currentPrice)
}

func (m *Interface) estimateLocked(side domain.OrderSide, quantity, price float64) (domain.TradeCost, error) {
	if m.state == nil {
		return domain.TradeCost{}, ErrNoMarketState
	}
	if price <= 0 || math.IsNaN(price) {
		return domain.TradeCost{}, ErrInvalidPrice
	}
	if quantity < 0 {
		quantity = 0
	}
	return computeCost(side, quantity, price, m.state.SpreadPct, m.state.Liquidity, m.slippage, m.impact), nil
}

// SubmitOrder assigns an order ID, costs the order at the current price
// and fills it immediately at the estimated price. Orders below the
// minimum size are recorded as REJECTED and return ErrInvalidOrderSize.
func (m *Interface) SubmitOrder(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return nil, ErrNoMarketState
	}

	m.nextOrderID++
	order := &domain.Order{
		OrderID:    m.nextOrderID,
		AgentID:    req.AgentID,
		Side:       req.Side,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		Status:     domain.OrderStatusPending,
		CreatedAt:  m.state.Timestamp,
	}

	if req.Quantity <= 0 || math.IsNaN(req.Quantity) || req.Quantity < m.minOrderSize {
		err := fmt.Errorf("%w: quantity %v below minimum %v", domain.ErrInvalidOrderSize, req.Quantity, m.minOrderSize)
		m.reject(order, err.Error())
		return order.Copy(), err
	}

	cost, err := m.estimateLocked(req.Side, req.Quantity, m.state.Price())
	if err != nil {
		m.reject(order, err.Error())
		return order.Copy(), err
	}
	order.Cost = &cost

	if err := order.Transition(domain.OrderStatusSubmitted); err != nil {
		return nil, err
	}
	if err := order.Transition(domain.OrderStatusFilled); err != nil {
		return nil, err
	}
	order.FilledQuantity = req.Quantity
	order.FilledPrice = cost.EstimatedPrice
	m.orders = append(m.orders, order)

	m.logger.Debug().
		Int64("order_id", order.OrderID).
		Str("agent_id", order.AgentID).
		Str("side", string(order.Side)).
		Float64("qty", order.Quantity).
		Float64("fill_price", order.FilledPrice).
		Float64("cost_pct", cost.TotalCostPct).
		Msg("order filled")

	return order.Copy(), nil
}

func (m *Interface) reject(order *domain.Order, reason string) {
	_ = order.Transition(domain.OrderStatusRejected)
	order.RejectReason = reason
	m.orders = append(m.orders, order)
}

// Submit implements OrderSink.
func (m *Interface) Submit(ctx context.Context, order *domain.Order) (*domain.FillResult, error) {
	if order == nil {
		return nil, fmt.Errorf("%w: nil order", domain.ErrInvalidOrderSize)
	}
	filled, err := m.SubmitOrder(ctx, OrderRequest{
		AgentID:    order.AgentID,
		Side:       order.Side,
		Quantity:   order.Quantity,
		LimitPrice: order.LimitPrice,
	})
	if filled == nil {
		return nil, err
	}

	res := &domain.FillResult{
		OrderID:        filled.OrderID,
		Status:         filled.Status,
		FilledQuantity: filled.FilledQuantity,
		FilledPrice:    filled.FilledPrice,
	}
	if filled.Cost != nil {
		res.Cost = *filled.Cost
	}
	return res, err
}

// CanAffordTrade checks whether capital covers a trade at the estimated fill price.
// Insufficient funds is reported through Affordability; only malformed input errors.
func (m *Interface) CanAffordTrade(capital float64, side domain.OrderSide, quantity, price float64) (Affordability, error) {
	if quantity <= 0 || math.IsNaN(quantity) {
		return Affordability{}, fmt.Errorf("%w: quantity %v", domain.ErrInvalidOrderSize, quantity)
	}

	cost, err := m.EstimateTradeCost(side, quantity, price)
	if err != nil {
		return Affordability{}, err
	}

	if side != domain.OrderSideBuy {
		return Affordability{OK: true}, nil
	}

	required := quantity * cost.EstimatedPrice
	if capital < required {
		return Affordability{
			OK:       false,
			Reason:   fmt.Sprintf("insufficient funds: need %.4f, have %.4f", required, capital),
			Required: required,
		}, nil
	}
	return Affordability{OK: true, Required: required}, nil
}

// Orders returns a copy of the order log in submission order.
func (m *Interface) Orders() []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Order, len(m.orders))
	for i, o := range m.orders {
		out[i] = *o.Copy()
	}
	return out
}

// OrderCount returns the number of orders recorded.
func (m *Interface) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}
