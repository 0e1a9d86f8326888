package types

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/quantbit/upbit-engine/pkg/errors"
)

type OrderSide string

type OrderMode string

type OrderStatus string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

const (
	OrderModeLive      OrderMode = "live"
	OrderModeSimulated OrderMode = "simulated"
)

const (
	// OrderStatusSubmitted means the order was accepted by the exchange
	// and is waiting to be filled.
	OrderStatusSubmitted OrderStatus = "submitted"
	// OrderStatusSimulated means the order was synthesized locally without
	// touching the exchange.
	OrderStatusSimulated OrderStatus = "simulated"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// Order is a single record in the order history. The history is append-only;
// a terminal status update rewrites the status of every record sharing the
// same order id.
type Order struct {
	ID        string      `json:"id" validate:"required"`
	Market    string      `json:"market" validate:"required"`
	Side      OrderSide   `json:"side" validate:"required,oneof=buy sell"`
	Price     float64     `json:"price" validate:"required,gt=0"`
	Volume    float64     `json:"volume" validate:"gte=0"`
	Amount    float64     `json:"amount" validate:"gte=0"`
	Mode      OrderMode   `json:"mode" validate:"required,oneof=live simulated"`
	Status    OrderStatus `json:"status" validate:"required"`
	Reason    string      `json:"reason"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Validate validates the Order struct.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	return nil
}

// IsTerminal reports whether the status ends the order's lifecycle.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusFailed:
		return true
	case OrderStatusSubmitted, OrderStatusSimulated:
		return false
	default:
		return false
	}
}
