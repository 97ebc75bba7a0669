package payments

import (
	"context"
	"fmt"
	"log/slog"

	"GiftCardPay/internal/chain"
	"GiftCardPay/internal/models"
	"GiftCardPay/internal/store"
)

type Kind string

const (
	Confirmed Kind = "confirmed"
	Pending   Kind = "pending"
	NotFound  Kind = "not_found"
)

// Status is the normalized outcome of a payment check.
type Status struct {
	Kind          Kind
	GiftCardCode  string
	Confirmations int64
	Required      int64
	TxID          string
}

type OrderStore interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	GetPayment(ctx context.Context, orderID string) (*models.CryptoPayment, error)
	CompleteOrder(ctx context.Context, orderID, code string, p store.PaymentUpdate) (bool, error)
	RecordPendingPayment(ctx context.Context, orderID string, p store.PaymentUpdate) error
}

type Probes interface {
	Probe(code string) (chain.Probe, bool)
}

type ConfirmationPolicy interface {
	RequiredConfirmations(code string) int64
}

type Verifier struct {
	log    *slog.Logger
	store  OrderStore
	probes Probes
	policy ConfirmationPolicy
}

func NewVerifier(log *slog.Logger, st OrderStore, probes Probes, policy ConfirmationPolicy) *Verifier {
	return &Verifier{log: log, store: st, probes: probes, policy: policy}
}

// Check queries the order's chain once and advances the order when the payment is confirmed.
// Repeated calls are safe: a completed order always yields the same code without touching the chain.
func (v *Verifier) Check(ctx context.Context, orderID string) (Status, error) {
	const op = "payments.Verifier.Check"
	log := v.log.With(slog.String("op", op), slog.String("order_id", orderID))

	order, err := v.store.GetOrder(ctx, orderID)
	if err != nil {
		return Status{}, fmt.Errorf("%s: %w", op, err)
	}

	switch order.Status {
	case models.OrderCancelled:
		return Status{}, fmt.Errorf("%s: %w", op, models.ErrOrderCancelled)
	case models.OrderCompleted:
		return completedStatus(order), nil
	}

	probe, ok := v.probes.Probe(order.Crypto)
	if !ok {
		return Status{}, fmt.Errorf("%s: %s: %w", op, order.Crypto, models.ErrUnsupportedCurrency)
	}

	res := probe.FindIncoming(ctx, order.PaymentAddress, order.CryptoAmount)
	if !res.Found {
		return Status{Kind: NotFound}, nil
	}

	required := v.policy.RequiredConfirmations(order.Crypto)
	update := store.PaymentUpdate{
		TransactionID: res.TxID,
		Crypto:        order.Crypto,
		Amount:        order.CryptoAmount,
		Confirmations: res.Confirmations,
	}

	if res.Confirmations < required {
		if err := v.store.RecordPendingPayment(ctx, order.OrderID, update); err != nil {
			return Status{}, fmt.Errorf("%s: %w", op, err)
		}
		log.Info("payment seen, awaiting confirmations",
			slog.String("tx", res.TxID),
			slog.Int64("confirmations", res.Confirmations),
			slog.Int64("required", required),
		)
		return Status{
			Kind:          Pending,
			Confirmations: res.Confirmations,
			Required:      required,
			TxID:          res.TxID,
		}, nil
	}

	code := models.GiftCodeFor(order.OrderID)
	completed, err := v.store.CompleteOrder(ctx, order.OrderID, code, update)
	if err != nil {
		return Status{}, fmt.Errorf("%s: %w", op, err)
	}
	if !completed {
		// Lost a race with another check or an admin action; report what won.
		return v.reload(ctx, op, orderID)
	}

	log.Info("order completed",
		slog.String("crypto", order.Crypto),
		slog.String("tx", res.TxID),
		slog.Int64("confirmations", res.Confirmations),
	)
	return Status{
		Kind:          Confirmed,
		GiftCardCode:  code,
		Confirmations: res.Confirmations,
		Required:      required,
		TxID:          res.TxID,
	}, nil
}

func (v *Verifier) reload(ctx context.Context, op, orderID string) (Status, error) {
	order, err := v.store.GetOrder(ctx, orderID)
	if err != nil {
		return Status{}, fmt.Errorf("%s: reload: %w", op, err)
	}
	switch order.Status {
	case models.OrderCompleted:
		return completedStatus(order), nil
	case models.OrderCancelled:
		return Status{}, fmt.Errorf("%s: %w", op, models.ErrOrderCancelled)
	default:
		return Status{}, fmt.Errorf("%s: order still %s after completion attempt: %w", op, order.Status, models.ErrInvalidTransition)
	}
}

func completedStatus(order *models.Order) Status {
	code := models.GiftCodeFor(order.OrderID)
	if order.GiftCardCode != nil && *order.GiftCardCode != "" {
		code = *order.GiftCardCode
	}
	return Status{Kind: Confirmed, GiftCardCode: code}
}

// Details returns the order together with its payment tracking record.
func (v *Verifier) Details(ctx context.Context, orderID string) (*models.PaymentDetails, error) {
	const op = "payments.Verifier.Details"

	order, err := v.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	payment, err := v.store.GetPayment(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.PaymentDetails{Order: order, Payment: payment}, nil
}
