package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"GiftCardPay/internal/models"

	"github.com/shopspring/decimal"
)

type Store struct {
	DB *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// PaymentUpdate is the latest probe observation written to crypto_payments.
type PaymentUpdate struct {
	TransactionID string
	Crypto        string
	Amount        decimal.Decimal
	Confirmations int64
}

type ListFilter struct {
	Status models.OrderStatus
	Limit  int
	Offset int
}

const orderColumns = `order_id, user_id, user_name, country, gift_card, denomination,
	original_price, currency, discounted_price, crypto, crypto_amount, payment_address,
	status, gift_card_code, created_at, updated_at`

const paymentColumns = `order_id, transaction_id, crypto, amount, status, confirmations, created_at, confirmed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var order models.Order
	var userName, code sql.NullString
	err := row.Scan(
		&order.OrderID,
		&order.UserID,
		&userName,
		&order.Country,
		&order.GiftCard,
		&order.Denomination,
		&order.OriginalPrice,
		&order.Currency,
		&order.DiscountedPrice,
		&order.Crypto,
		&order.CryptoAmount,
		&order.PaymentAddress,
		&order.Status,
		&code,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userName.Valid {
		order.UserName = &userName.String
	}
	if code.Valid {
		order.GiftCardCode = &code.String
	}
	return &order, nil
}

// CreateOrder inserts the order and its pending payment record atomically.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, payment *models.CryptoPayment) error {
	const op = "store.Store.CreateOrder"

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			order_id, user_id, user_name, country, gift_card, denomination,
			original_price, currency, discounted_price, crypto, crypto_amount,
			payment_address, status, gift_card_code, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`,
		order.OrderID,
		order.UserID,
		nullString(order.UserName),
		order.Country,
		order.GiftCard,
		order.Denomination,
		order.OriginalPrice,
		order.Currency,
		order.DiscountedPrice,
		order.Crypto,
		order.CryptoAmount,
		order.PaymentAddress,
		order.Status,
		nullString(order.GiftCardCode),
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: insert order: %w", op, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO crypto_payments (order_id, crypto, amount, status, confirmations, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`,
		payment.OrderID,
		payment.Crypto,
		payment.Amount,
		payment.Status,
		payment.Confirmations,
		payment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: insert payment: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	const op = "store.Store.GetOrder"

	row := s.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id=$1`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrOrderNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return order, nil
}

// GetPayment returns nil without error when the order has no payment record.
func (s *Store) GetPayment(ctx context.Context, orderID string) (*models.CryptoPayment, error) {
	const op = "store.Store.GetPayment"

	row := s.DB.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM crypto_payments WHERE order_id=$1`, orderID)

	var p models.CryptoPayment
	var txID sql.NullString
	var confirmedAt sql.NullTime
	err := row.Scan(
		&p.OrderID,
		&txID,
		&p.Crypto,
		&p.Amount,
		&p.Status,
		&p.Confirmations,
		&p.CreatedAt,
		&confirmedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if txID.Valid {
		p.TransactionID = &txID.String
	}
	if confirmedAt.Valid {
		p.ConfirmedAt = &confirmedAt.Time
	}
	return &p, nil
}

func (s *Store) ListPendingOrders(ctx context.Context) ([]*models.Order, error) {
	const op = "store.Store.ListPendingOrders"

	orders, err := s.queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status='pending'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

func (s *Store) ListUserOrders(ctx context.Context, userID string) ([]*models.Order, error) {
	const op = "store.Store.ListUserOrders"

	orders, err := s.queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

// ListOrders returns orders newest first; an empty Status matches every status.
func (s *Store) ListOrders(ctx context.Context, f ListFilter) ([]*models.Order, error) {
	const op = "store.Store.ListOrders"

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	orders, err := s.queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]*models.Order, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// CompleteOrder flips a pending order to completed and confirms its payment in one transaction.
// It reports false, with nothing written, when the order was no longer pending.
func (s *Store) CompleteOrder(ctx context.Context, orderID, code string, p PaymentUpdate) (bool, error) {
	const op = "store.Store.CompleteOrder"

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status='completed', gift_card_code=$2, updated_at=now()
		WHERE order_id=$1 AND status='pending'
	`, orderID, code)
	if err != nil {
		return false, fmt.Errorf("%s: update order: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO crypto_payments (order_id, transaction_id, crypto, amount, status, confirmations, confirmed_at)
		VALUES ($1,$2,$3,$4,'confirmed',$5,now())
		ON CONFLICT (order_id) DO UPDATE SET
			transaction_id=EXCLUDED.transaction_id,
			status='confirmed',
			confirmations=EXCLUDED.confirmations,
			confirmed_at=COALESCE(crypto_payments.confirmed_at, EXCLUDED.confirmed_at)
	`, orderID, nullIfEmpty(p.TransactionID), p.Crypto, p.Amount, p.Confirmations)
	if err != nil {
		return false, fmt.Errorf("%s: upsert payment: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%s: commit: %w", op, err)
	}
	return true, nil
}

// RecordPendingPayment stores an under-confirmed observation. Payments that are already
// confirmed or failed are left untouched.
func (s *Store) RecordPendingPayment(ctx context.Context, orderID string, p PaymentUpdate) error {
	const op = "store.Store.RecordPendingPayment"

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO crypto_payments (order_id, transaction_id, crypto, amount, status, confirmations)
		VALUES ($1,$2,$3,$4,'pending',$5)
		ON CONFLICT (order_id) DO UPDATE SET
			transaction_id=EXCLUDED.transaction_id,
			confirmations=EXCLUDED.confirmations
		WHERE crypto_payments.status='pending'
	`, orderID, nullIfEmpty(p.TransactionID), p.Crypto, p.Amount, p.Confirmations)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CancelOrder cancels a pending or completed order, clears its code and fails a pending payment.
// It reports false when the order was already cancelled.
func (s *Store) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	const op = "store.Store.CancelOrder"

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status='cancelled', gift_card_code=NULL, updated_at=now()
		WHERE order_id=$1 AND status IN ('pending','completed')
	`, orderID)
	if err != nil {
		return false, fmt.Errorf("%s: update order: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE crypto_payments SET status='failed'
		WHERE order_id=$1 AND status='pending'
	`, orderID)
	if err != nil {
		return false, fmt.Errorf("%s: fail payment: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%s: commit: %w", op, err)
	}
	return true, nil
}

// ForceComplete completes a pending order without a chain observation.
func (s *Store) ForceComplete(ctx context.Context, orderID, code string) (bool, error) {
	const op = "store.Store.ForceComplete"

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status='completed', gift_card_code=$2, updated_at=now()
		WHERE order_id=$1 AND status='pending'
	`, orderID, code)
	if err != nil {
		return false, fmt.Errorf("%s: update order: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE crypto_payments
		SET status='confirmed', confirmed_at=COALESCE(confirmed_at, now())
		WHERE order_id=$1
	`, orderID)
	if err != nil {
		return false, fmt.Errorf("%s: confirm payment: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%s: commit: %w", op, err)
	}
	return true, nil
}

// GetSetting reports ok=false when the key has never been set.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	const op = "store.Store.GetSetting"

	var v string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=$1`, key).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	return v, true, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	const op = "store.Store.SetSetting"

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=EXCLUDED.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
