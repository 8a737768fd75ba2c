package reconcile

import (
	"context"
	"log/slog"

	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
)

type Recorder interface {
	Insert(ctx context.Context, a Anomaly) (Item, error)
}

type Publisher interface {
	PublishEnvelope(env kafkax.Envelope) error
}

// Reporter records an anomaly and asks the reconciler to repair it. Every
// anomaly is logged in full, so none is lost even if both the insert and the
// publish fail.
type Reporter struct {
	Items       Recorder
	Publisher   Publisher
	Logger      *slog.Logger
	ServiceName string
}

func (r *Reporter) Report(ctx context.Context, a Anomaly) {
	r.Logger.Error("post-commit step failed",
		"kind", string(a.Kind), "order_id", a.OrderID, "user_id", a.UserID,
		"product_id", a.ProductID, "quantity", a.Quantity, "cause", a.cause())

	payload := RequiredPayload{
		Kind:      a.Kind,
		OrderID:   a.OrderID,
		UserID:    a.UserID,
		ProductID: a.ProductID,
		Quantity:  a.Quantity,
		OrderedAt: a.OrderedAt,
		Cause:     a.cause(),
	}
	it, err := r.Items.Insert(ctx, a)
	if err != nil {
		r.Logger.Error("reconciliation item not recorded",
			"kind", string(a.Kind), "order_id", a.OrderID, "product_id", a.ProductID, "err", err)
	} else {
		payload.ItemID = it.ID
	}

	env, err := kafkax.NewEnvelope(EventReconciliationRequired, r.ServiceName, a.OrderID, payload)
	if err == nil {
		err = r.Publisher.PublishEnvelope(env)
	}
	if err != nil {
		r.Logger.Error("reconciliation request not published",
			"kind", string(a.Kind), "order_id", a.OrderID, "item_id", payload.ItemID, "err", err)
	}
}
