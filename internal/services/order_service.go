package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"GiftCardPay/internal/chain"
	"GiftCardPay/internal/logger"
	"GiftCardPay/internal/models"
	"GiftCardPay/internal/pricing"
	"GiftCardPay/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrMissingUserID   = errors.New("missing user id")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDiscount = errors.New("discount percentage must be in [0,100)")
)

const discountSettingKey = "discount_percentage"

type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order, payment *models.CryptoPayment) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context, f store.ListFilter) ([]*models.Order, error)
	ListUserOrders(ctx context.Context, userID string) ([]*models.Order, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	ForceComplete(ctx context.Context, orderID, code string) (bool, error)
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

type PriceOracle interface {
	Price(ctx context.Context, code string) (decimal.Decimal, error)
}

type ProbeRegistry interface {
	Probe(code string) (chain.Probe, bool)
}

// AddressBook resolves the static receiving address for a crypto code.
type AddressBook interface {
	Address(code string) string
}

// InvoiceRequest carries the buyer's selection. Either Denomination or Amount+Currency is set.
type InvoiceRequest struct {
	UserID       string
	UserName     string
	Country      string
	GiftCard     string
	Crypto       string
	Denomination string
	Amount       *decimal.Decimal
	Currency     string
}

type OrderService struct {
	log             *slog.Logger
	store           OrderStore
	oracle          PriceOracle
	probes          ProbeRegistry
	addresses       AddressBook
	defaultDiscount decimal.Decimal
	now             func() time.Time
	newID           func() string
}

// NewOrderService takes the default discount as a percentage, 45 for 45%.
func NewOrderService(log *slog.Logger, st OrderStore, oracle PriceOracle, probes ProbeRegistry, addresses AddressBook, defaultDiscountPct float64) *OrderService {
	return &OrderService{
		log:             log,
		store:           st,
		oracle:          oracle,
		probes:          probes,
		addresses:       addresses,
		defaultDiscount: decimal.NewFromFloat(defaultDiscountPct),
		now:             func() time.Time { return time.Now().UTC() },
		newID:           uuid.NewString,
	}
}

// BuildInvoice prices the selection, assigns the receiving address and persists a pending order.
func (s *OrderService) BuildInvoice(ctx context.Context, req InvoiceRequest) (*models.Invoice, error) {
	const op = "services.OrderService.BuildInvoice"
	log := s.log.With(slog.String("op", op), slog.String("user_id", req.UserID))

	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingUserID)
	}

	code := strings.ToUpper(strings.TrimSpace(req.Crypto))
	if _, ok := s.probes.Probe(code); !ok {
		return nil, fmt.Errorf("%s: no probe for %q: %w", op, code, models.ErrUnsupportedCurrency)
	}
	address := s.addresses.Address(code)
	if address == "" {
		return nil, fmt.Errorf("%s: no address for %s: %w", op, code, models.ErrUnsupportedCurrency)
	}

	money, denomination, err := s.resolveAmount(log, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pct, err := s.DiscountPercentage(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rate := pricing.RateFromPercent(pct)
	discounted := pricing.Discount(money.Amount, rate)

	usd, err := pricing.ToUSD(pricing.Money{Amount: discounted, Currency: money.Currency})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidAmount, err)
	}

	price, err := s.oracle.Price(ctx, code)
	if err != nil {
		if errors.Is(err, pricing.ErrPriceNotAvailable) {
			return nil, fmt.Errorf("%s: %s: %w", op, code, models.ErrUnsupportedCurrency)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cryptoAmount, err := pricing.CryptoAmount(code, usd, price)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !cryptoAmount.IsPositive() {
		return nil, fmt.Errorf("%s: %s rounds to zero %s: %w", op, usd, code, ErrInvalidAmount)
	}

	now := s.now()
	order := models.Order{
		OrderID:         s.newID(),
		UserID:          req.UserID,
		Country:         req.Country,
		GiftCard:        req.GiftCard,
		Denomination:    denomination,
		OriginalPrice:   money.Amount,
		Currency:        money.Currency,
		DiscountedPrice: usd,
		Crypto:          code,
		CryptoAmount:    cryptoAmount,
		PaymentAddress:  address,
		Status:          models.OrderPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.UserName != "" {
		name := req.UserName
		order.UserName = &name
	}
	payment := &models.CryptoPayment{
		OrderID:   order.OrderID,
		Crypto:    code,
		Amount:    cryptoAmount,
		Status:    models.PaymentPending,
		CreatedAt: now,
	}

	if err := s.store.CreateOrder(ctx, &order, payment); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("invoice created",
		slog.String("order_id", order.OrderID),
		slog.String("crypto", code),
		slog.String("crypto_amount", cryptoAmount.String()),
		slog.String("usd", usd.StringFixed(2)),
	)

	return &models.Invoice{
		Order:                    order,
		CurrencySymbol:           pricing.Symbol(money.Currency),
		OriginalDiscountedAmount: discounted.Round(2),
		DiscountRate:             rate,
	}, nil
}

// resolveAmount prefers the structured amount; display strings that fail to parse fall back to 100 USD.
func (s *OrderService) resolveAmount(log *slog.Logger, req InvoiceRequest) (pricing.Money, string, error) {
	if req.Amount != nil {
		currency := strings.ToUpper(strings.TrimSpace(req.Currency))
		if currency == "" {
			currency = pricing.USD
		}
		if !pricing.IsFiat(currency) || !req.Amount.IsPositive() {
			return pricing.Money{}, "", fmt.Errorf("%s %s: %w", req.Amount.String(), currency, ErrInvalidAmount)
		}
		m := pricing.Money{Amount: *req.Amount, Currency: currency}
		return m, pricing.FormatDenomination(m), nil
	}

	m, err := pricing.ParseDenomination(req.Denomination)
	if err != nil {
		log.Error("denomination parse failed, using fallback",
			slog.String("denomination", req.Denomination),
			logger.Err(err),
		)
	}
	denomination := req.Denomination
	if strings.TrimSpace(denomination) == "" {
		denomination = pricing.FormatDenomination(m)
	}
	return m, denomination, nil
}

// DiscountPercentage returns the admin-set discount, or the configured default when unset.
func (s *OrderService) DiscountPercentage(ctx context.Context) (decimal.Decimal, error) {
	const op = "services.OrderService.DiscountPercentage"

	v, ok, err := s.store.GetSetting(ctx, discountSettingKey)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return s.defaultDiscount, nil
	}
	pct, err := decimal.NewFromString(v)
	if err != nil {
		s.log.Warn("stored discount is not a number, using default",
			slog.String("op", op),
			slog.String("value", v),
		)
		return s.defaultDiscount, nil
	}
	return pct, nil
}

func (s *OrderService) SetDiscountPercentage(ctx context.Context, pct decimal.Decimal) error {
	const op = "services.OrderService.SetDiscountPercentage"

	if pct.IsNegative() || pct.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("%s: %s: %w", op, pct, ErrInvalidDiscount)
	}
	if err := s.store.SetSetting(ctx, discountSettingKey, pct.String()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("discount updated", slog.String("op", op), slog.String("percentage", pct.String()))
	return nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

func (s *OrderService) UserOrders(ctx context.Context, userID string) ([]*models.Order, error) {
	const op = "services.OrderService.UserOrders"

	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingUserID)
	}
	orders, err := s.store.ListUserOrders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

func (s *OrderService) ListOrders(ctx context.Context, f store.ListFilter) ([]*models.Order, error) {
	const op = "services.OrderService.ListOrders"

	orders, err := s.store.ListOrders(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

// Cancel cancels a pending or completed order.
func (s *OrderService) Cancel(ctx context.Context, orderID string) (*models.Order, error) {
	const op = "services.OrderService.Cancel"

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !models.CanTransition(order.Status, models.OrderCancelled) {
		return nil, fmt.Errorf("%s: %s -> cancelled: %w", op, order.Status, models.ErrInvalidTransition)
	}
	ok, err := s.store.CancelOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: already cancelled: %w", op, models.ErrInvalidTransition)
	}

	s.log.Info("order cancelled",
		slog.String("op", op),
		slog.String("order_id", orderID),
		slog.String("previous_status", string(order.Status)),
	)
	return s.store.GetOrder(ctx, orderID)
}

// ForceComplete completes a pending order without a chain observation. An empty code
// issues the standard code for the order.
func (s *OrderService) ForceComplete(ctx context.Context, orderID, code string) (*models.Order, error) {
	const op = "services.OrderService.ForceComplete"

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	switch {
	case order.Status == models.OrderCancelled:
		return nil, fmt.Errorf("%s: %w", op, models.ErrOrderCancelled)
	case !models.CanTransition(order.Status, models.OrderCompleted):
		return nil, fmt.Errorf("%s: %s -> completed: %w", op, order.Status, models.ErrInvalidTransition)
	}

	code = strings.TrimSpace(code)
	if code == "" {
		code = models.GiftCodeFor(orderID)
	}
	ok, err := s.store.ForceComplete(ctx, orderID, code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: order left pending concurrently: %w", op, models.ErrInvalidTransition)
	}

	s.log.Info("order completed manually", slog.String("op", op), slog.String("order_id", orderID))
	return s.store.GetOrder(ctx, orderID)
}
