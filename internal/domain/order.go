package domain

import "fmt"

// OrderSide is the direction of an order.
type OrderSide string

// Order sides.
const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus is the order lifecycle state.
type OrderStatus string

// Order statuses.
const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusSubmitted OrderStatus = "SUBMITTED"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

// CanTransition reports whether s -> to is a legal transition.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return to == OrderStatusSubmitted || to == OrderStatusCancelled || to == OrderStatusRejected
	case OrderStatusSubmitted:
		return to == OrderStatusFilled || to == OrderStatusCancelled || to == OrderStatusRejected
	default:
		return false
	}
}

// TradeCost is the estimated execution cost of a trade. Not stored.
type TradeCost struct {
	SpreadCost     float64
	SlippageCost   float64
	ImpactCost     float64
	TotalCost      float64
	TotalCostPct   float64 // TotalCost / trade value, 0 for a zero trade value
	EstimatedPrice float64 // expected fill price after costs
}

// Order is a request to trade. Immutable once terminal.
type Order struct {
	OrderID    int64     // monotonically assigned by the execution interface
	AgentID    string    // submitting agent
	Side       OrderSide // BUY | SELL
	Quantity   float64   // base units
	LimitPrice *float64  // optional, stored but not honored

	Status         OrderStatus
	FilledQuantity float64
	FilledPrice    float64
	Cost           *TradeCost
	CreatedAt      int64  // simulated timestamp (ms)
	RejectReason   string // set when REJECTED
}

// Transition moves the order to a new status.
// Returns ErrInvalidTransition for illegal moves.
func (o *Order) Transition(to OrderStatus) error {
	if !o.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	return nil
}

// FillResult reports the outcome of an order submission.
type FillResult struct {
	OrderID        int64
	Status         OrderStatus
	FilledQuantity float64
	FilledPrice    float64
	Cost           TradeCost
}

// Copy returns a deep copy.
func (o *Order) Copy() *Order {
	c := *o
	if o.LimitPrice != nil {
		lp := *o.LimitPrice
		c.LimitPrice = &lp
	}
	if o.Cost != nil {
		tc := *o.Cost
		c.Cost = &tc
	}
	return &c
}
