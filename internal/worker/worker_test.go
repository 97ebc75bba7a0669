package worker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GiftCardPay/internal/models"
	"GiftCardPay/internal/payments"
	"GiftCardPay/internal/worker"
)

type listerFunc func(ctx context.Context) ([]*models.Order, error)

func (f listerFunc) ListPendingOrders(ctx context.Context) ([]*models.Order, error) { return f(ctx) }

func pending(ids ...string) listerFunc {
	return func(context.Context) ([]*models.Order, error) {
		out := make([]*models.Order, 0, len(ids))
		for _, id := range ids {
			out = append(out, &models.Order{OrderID: id, Status: models.OrderPending})
		}
		return out, nil
	}
}

type fakeChecker struct {
	mu       sync.Mutex
	results  map[string]payments.Status
	errs     map[string]error
	seen     []string
	inFlight int32
	maxSeen  int32
	delay    time.Duration
}

func (c *fakeChecker) Check(_ context.Context, id string) (payments.Status, error) {
	n := atomic.AddInt32(&c.inFlight, 1)
	defer atomic.AddInt32(&c.inFlight, -1)
	for {
		cur := atomic.LoadInt32(&c.maxSeen)
		if n <= cur || atomic.CompareAndSwapInt32(&c.maxSeen, cur, n) {
			break
		}
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, id)
	if err := c.errs[id]; err != nil {
		return payments.Status{}, err
	}
	return c.results[id], nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnce_Summary(t *testing.T) {
	checker := &fakeChecker{
		results: map[string]payments.Status{
			"a": {Kind: payments.Confirmed, GiftCardCode: "GIFT-a"},
			"b": {Kind: payments.Pending, Confirmations: 0, Required: 1},
			"c": {Kind: payments.NotFound},
		},
		errs: map[string]error{"d": errors.New("db down")},
	}
	w := worker.New(discard(), pending("a", "b", "c", "d"), checker, "@every 1m", 2)

	sum, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, worker.Summary{Checked: 4, Completed: 1, Pending: 1, NotFound: 1, Failed: 1}, sum)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, checker.seen)
}

func TestRunOnce_RespectsConcurrencyLimit(t *testing.T) {
	checker := &fakeChecker{results: map[string]payments.Status{}, delay: 20 * time.Millisecond}
	w := worker.New(discard(), pending("1", "2", "3", "4", "5", "6"), checker, "@every 1m", 2)

	sum, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, sum.Checked)
	assert.LessOrEqual(t, atomic.LoadInt32(&checker.maxSeen), int32(2))
}

func TestRunOnce_NoPendingOrders(t *testing.T) {
	checker := &fakeChecker{}
	w := worker.New(discard(), pending(), checker, "@every 1m", 4)

	sum, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, worker.Summary{}, sum)
	assert.Empty(t, checker.seen)
}

func TestRunOnce_ListFailure(t *testing.T) {
	lister := listerFunc(func(context.Context) ([]*models.Order, error) {
		return nil, errors.New("connection refused")
	})
	w := worker.New(discard(), lister, &fakeChecker{}, "@every 1m", 4)

	_, err := w.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRun_InvalidSchedule(t *testing.T) {
	w := worker.New(discard(), pending(), &fakeChecker{}, "not a schedule", 1)

	err := w.Run(context.Background())
	require.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	var calls int32
	lister := listerFunc(func(context.Context) ([]*models.Order, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	})
	w := worker.New(discard(), lister, &fakeChecker{}, "@every 1s", 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(1500 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}
