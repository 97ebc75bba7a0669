package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"GiftCardPay/internal/logger"
	"GiftCardPay/internal/models"
	"GiftCardPay/internal/payments"
)

type PendingLister interface {
	ListPendingOrders(ctx context.Context) ([]*models.Order, error)
}

type Checker interface {
	Check(ctx context.Context, orderID string) (payments.Status, error)
}

// Summary counts the outcomes of one sweep over pending orders.
type Summary struct {
	Checked   int
	Completed int
	Pending   int
	NotFound  int
	Failed    int
}

type Worker struct {
	log         *slog.Logger
	store       PendingLister
	checker     Checker
	schedule    string
	concurrency int
}

func New(log *slog.Logger, st PendingLister, checker Checker, schedule string, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		log:         log,
		store:       st,
		checker:     checker,
		schedule:    schedule,
		concurrency: concurrency,
	}
}

// Run sweeps pending orders on the cron schedule until ctx is done.
// A sweep that is still running when the next tick fires is skipped.
func (w *Worker) Run(ctx context.Context) error {
	const op = "worker.Worker.Run"
	log := w.log.With(slog.String("op", op))

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})))
	if _, err := c.AddFunc(w.schedule, func() {
		if _, err := w.RunOnce(ctx); err != nil {
			log.Error("sweep failed", logger.Err(err))
		}
	}); err != nil {
		return fmt.Errorf("%s: schedule %q: %w", op, w.schedule, err)
	}

	log.Info("worker started", slog.String("schedule", w.schedule), slog.Int("concurrency", w.concurrency))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	log.Info("worker stopped")
	return nil
}

// RunOnce checks every pending order once. Per-order failures are logged and counted,
// they never abort the sweep.
func (w *Worker) RunOnce(ctx context.Context) (Summary, error) {
	const op = "worker.Worker.RunOnce"
	log := w.log.With(slog.String("op", op))

	orders, err := w.store.ListPendingOrders(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(orders) == 0 {
		log.Debug("no pending orders")
		return Summary{}, nil
	}

	var (
		mu  sync.Mutex
		sum Summary
		g   errgroup.Group
	)
	g.SetLimit(w.concurrency)

	for _, order := range orders {
		order := order
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			st, err := w.checker.Check(ctx, order.OrderID)

			mu.Lock()
			defer mu.Unlock()
			sum.Checked++
			if err != nil {
				sum.Failed++
				log.Warn("check failed", slog.String("order_id", order.OrderID), logger.Err(err))
				return nil
			}
			switch st.Kind {
			case payments.Confirmed:
				sum.Completed++
			case payments.Pending:
				sum.Pending++
			case payments.NotFound:
				sum.NotFound++
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info("sweep done",
		slog.Int("checked", sum.Checked),
		slog.Int("completed", sum.Completed),
		slog.Int("pending", sum.Pending),
		slog.Int("not_found", sum.NotFound),
		slog.Int("failed", sum.Failed),
	)
	return sum, nil
}

// cronLogger routes cron's internal messages into slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, logger.Err(err))...)
}
