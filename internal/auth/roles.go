package auth

import (
	"fmt"

	"github.com/ariefcatur/go-storefront/internal/ledger"
)

type Capability string

const (
	CapPlaceOrder    Capability = "place_order"
	CapViewOwnOrders Capability = "view_own_orders"
	CapManageCart    Capability = "manage_cart"
	CapManageCatalog Capability = "manage_catalog"
	CapViewAllOrders Capability = "view_all_orders"
	CapViewReports   Capability = "view_reports"
	CapReconcile     Capability = "reconcile"
)

// Role decides what a principal may do. Handlers ask for capabilities and
// never compare role names.
type Role interface {
	Name() string
	Can(Capability) bool
}

type customer struct{}

func (customer) Name() string { return ledger.RoleUser }

func (customer) Can(c Capability) bool {
	switch c {
	case CapPlaceOrder, CapViewOwnOrders, CapManageCart:
		return true
	}
	return false
}

type administrator struct{}

func (administrator) Name() string { return ledger.RoleAdmin }

func (administrator) Can(Capability) bool { return true }

var (
	Customer      Role = customer{}
	Administrator Role = administrator{}
)

func RoleFor(name string) (Role, error) {
	switch name {
	case ledger.RoleUser:
		return Customer, nil
	case ledger.RoleAdmin:
		return Administrator, nil
	}
	return nil, fmt.Errorf("unknown role %q", name)
}
