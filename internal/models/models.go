package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderCancelled      = errors.New("order cancelled")
	ErrInvalidTransition   = errors.New("invalid order status transition")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

// CanTransition reports whether an order may move from one status to another.
// completed -> cancelled is the admin override; nothing leaves cancelled.
func CanTransition(from, to OrderStatus) bool {
	switch from {
	case OrderPending:
		return to == OrderCompleted || to == OrderCancelled
	case OrderCompleted:
		return to == OrderCancelled
	default:
		return false
	}
}

type Order struct {
	OrderID         string
	UserID          string
	UserName        *string
	Country         string
	GiftCard        string
	Denomination    string
	OriginalPrice   decimal.Decimal
	Currency        string
	DiscountedPrice decimal.Decimal
	Crypto          string
	CryptoAmount    decimal.Decimal
	PaymentAddress  string
	Status          OrderStatus
	GiftCardCode    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type CryptoPayment struct {
	OrderID       string
	TransactionID *string
	Crypto        string
	Amount        decimal.Decimal
	Status        PaymentStatus
	Confirmations int64
	CreatedAt     time.Time
	ConfirmedAt   *time.Time
}

// Invoice is the priced, addressed payment request returned to the buyer.
type Invoice struct {
	Order
	CurrencySymbol           string
	OriginalDiscountedAmount decimal.Decimal
	DiscountRate             decimal.Decimal
}

// PaymentDetails pairs an order with its payment tracking record, which may be absent
// for orders created before payments were tracked.
type PaymentDetails struct {
	Order   *Order
	Payment *CryptoPayment
}

// GiftCodeFor derives the gift card code issued on completion.
func GiftCodeFor(orderID string) string {
	if len(orderID) > 8 {
		orderID = orderID[:8]
	}
	return "GIFT-" + orderID
}
