package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-storefront/internal/catalog"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	dedupService   = "reconciler"
	sweepBatchSize = 100

	reasonSuperseded = "superseded: cart changed after the order"
)

type Inventory interface {
	Decrement(ctx context.Context, orderID, productID string, qty int) (int, error)
}

type Carts interface {
	ClearIfUnchangedSince(ctx context.Context, userID string, t time.Time) (bool, error)
}

type ItemStore interface {
	Recorder
	Get(ctx context.Context, id string) (Item, error)
	Transition(ctx context.Context, prev Item, to Status, reason string, attempts int) (Item, error)
	ListPending(ctx context.Context, before time.Time, limit int) ([]Item, error)
}

type Worker struct {
	Items       ItemStore
	Inventory   Inventory
	Carts       Carts
	Redis       redis.Cmdable
	Logger      *slog.Logger
	MaxAttempts int

	now func() time.Time
}

// HandleMessage consumes ReconciliationRequired events. Each event id is
// processed once; the claim is released when processing fails so a
// redelivery can try again.
func (w *Worker) HandleMessage(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		w.Logger.Warn("dropping undecodable message", "offset", m.Offset, "err", err)
		return nil
	}
	if env.EventType != EventReconciliationRequired {
		return nil
	}

	key := redisx.DedupKey(dedupService, env.EventID)
	ok, err := redisx.Claim(ctx, w.Redis, key, redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("claim event %s: %w", env.EventID, err)
	}
	if !ok {
		return nil
	}

	if err := w.handle(ctx, env); err != nil {
		if derr := w.Redis.Del(context.WithoutCancel(ctx), key).Err(); derr != nil {
			w.Logger.Warn("release dedup claim", "event_id", env.EventID, "err", derr)
		}
		return err
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, env kafkax.Envelope) error {
	p, err := kafkax.UnwrapPayload[RequiredPayload](env.Payload)
	if err != nil {
		w.Logger.Warn("dropping malformed reconciliation request", "event_id", env.EventID, "err", err)
		return nil
	}

	var it Item
	if p.ItemID == "" {
		a := p.anomaly()
		a.ID = EventItemID(env.EventID)
		it, err = w.Items.Insert(ctx, a)
	} else {
		it, err = w.Items.Get(ctx, p.ItemID)
	}
	if errors.Is(err, ErrNotFound) {
		w.Logger.Warn("reconciliation item missing", "item_id", p.ItemID, "order_id", p.OrderID)
		return nil
	}
	if err != nil {
		return err
	}
	_, err = w.process(ctx, it, false)
	return err
}

var eventItemSpace = uuid.MustParse("6f1c2a4e-3b7d-4e0a-9c55-2d8b1f7e9a31")

// EventItemID derives the item id recorded for a request that arrived
// without one, so redeliveries of the same event land on the same row.
func EventItemID(eventID string) string {
	return uuid.NewSHA1(eventItemSpace, []byte(eventID)).String()
}

// Process repairs one PENDING item. Items in any other status are returned
// unchanged.
func (w *Worker) Process(ctx context.Context, id string) (Item, error) {
	it, err := w.Items.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}
	return w.process(ctx, it, false)
}

// Retry is the operator path: it also acts on ESCALATED items.
func (w *Worker) Retry(ctx context.Context, id string) (Item, error) {
	it, err := w.Items.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}
	return w.process(ctx, it, true)
}

// Sweep processes PENDING items untouched for at least olderThan. It covers
// requests whose Kafka message was never published or never consumed.
func (w *Worker) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	items, err := w.Items.ListPending(ctx, w.clock().Add(-olderThan), sweepBatchSize)
	if err != nil {
		return 0, err
	}
	var errs []error
	done := 0
	for _, it := range items {
		if ctx.Err() != nil {
			break
		}
		if _, err := w.process(ctx, it, false); err != nil {
			errs = append(errs, err)
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

// Run sweeps every interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, interval, olderThan time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := w.Sweep(ctx, olderThan)
			if err != nil {
				w.Logger.Error("sweep", "processed", n, "err", err)
			} else if n > 0 {
				w.Logger.Info("sweep", "processed", n)
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, it Item, manual bool) (Item, error) {
	switch {
	case it.Status == StatusResolved:
		return it, nil
	case it.Status == StatusEscalated && !manual:
		return it, nil
	}

	attempts := it.Attempts + 1
	reason, repairErr := w.repair(ctx, it)

	to := StatusResolved
	if repairErr != nil {
		reason = repairErr.Error()
		to = StatusPending
		if it.Status == StatusEscalated || attempts >= w.maxAttempts() {
			to = StatusEscalated
		}
	}

	next, err := w.Items.Transition(ctx, it, to, reason, attempts)
	if errors.Is(err, ErrConflict) {
		return w.Items.Get(ctx, it.ID)
	}
	if err != nil {
		return Item{}, err
	}

	log := w.Logger.With("item_id", it.ID, "kind", string(it.Kind), "order_id", it.OrderID,
		"product_id", it.ProductID, "attempts", attempts)
	switch next.Status {
	case StatusResolved:
		log.Info("reconciliation resolved", "reason", reason)
	case StatusEscalated:
		log.Error("reconciliation escalated", "cause", reason)
	default:
		log.Warn("reconciliation attempt failed", "cause", reason)
	}
	return next, nil
}

// repair performs the missing step and returns the reason to record on
// success.
func (w *Worker) repair(ctx context.Context, it Item) (string, error) {
	switch it.Kind {
	case KindStockDecrement:
		left, err := w.Inventory.Decrement(ctx, it.OrderID, it.ProductID, it.Quantity)
		if errors.Is(err, catalog.ErrAlreadyApplied) {
			return "stock already decremented", nil
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("stock decremented, %d left", left), nil
	case KindCartClear:
		cleared, err := w.Carts.ClearIfUnchangedSince(ctx, it.UserID, it.OrderedAt)
		if err != nil {
			return "", err
		}
		if !cleared {
			return reasonSuperseded, nil
		}
		return "cart cleared", nil
	default:
		return "", fmt.Errorf("unknown reconciliation kind %q", it.Kind)
	}
}

func (w *Worker) maxAttempts() int {
	if w.MaxAttempts <= 0 {
		return 5
	}
	return w.MaxAttempts
}

func (w *Worker) clock() time.Time {
	if w.now == nil {
		return time.Now()
	}
	return w.now()
}
