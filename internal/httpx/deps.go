package httpx

import (
	"context"

	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/ledger"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/paging"
	"github.com/ariefcatur/go-storefront/internal/reconcile"
)

type Accounts interface {
	Register(ctx context.Context, in auth.RegisterInput) (ledger.User, error)
	Login(ctx context.Context, email, password string) (string, ledger.User, error)
}

type Catalog interface {
	Get(ctx context.Context, id string) (catalog.Product, error)
	GetMany(ctx context.Context, ids []string) (map[string]catalog.Product, error)
	List(ctx context.Context, q catalog.Query) ([]catalog.Product, int, error)
	Create(ctx context.Context, in catalog.ProductInput) (catalog.Product, error)
	Update(ctx context.Context, id string, patch catalog.ProductPatch) (catalog.Product, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type Carts interface {
	Get(ctx context.Context, userID string) (cart.Cart, error)
	Add(ctx context.Context, userID, productID string, qty int) (cart.Cart, error)
	Update(ctx context.Context, userID, productID string, qty int) (cart.Cart, error)
	Remove(ctx context.Context, userID, productID string) (cart.Cart, error)
}

type Placer interface {
	PlaceOrder(ctx context.Context, userID string, items []orders.ItemRequest) (orders.Placement, error)
}

type OrderHistory interface {
	ListByUser(ctx context.Context, userID string, page paging.Params) ([]ledger.Order, int, error)
}

type Reports interface {
	ListAll(ctx context.Context, q ledger.AdminOrderQuery) ([]ledger.Order, int, error)
	Dashboard(ctx context.Context, rg ledger.Range) (ledger.Dashboard, error)
}

type ReconciliationLog interface {
	List(ctx context.Context, status reconcile.Status, page paging.Params) ([]reconcile.Item, int, error)
}

type Reconciler interface {
	Retry(ctx context.Context, id string) (reconcile.Item, error)
}
