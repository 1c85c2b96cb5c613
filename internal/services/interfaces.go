package services

import (
	"context"

	domain "github.com/maplecart/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Customer         = domain.Customer
	CustomerProfile  = domain.CustomerProfile
	CustomerRef      = domain.CustomerRef
	Order            = domain.Order
	OrderItem        = domain.OrderItem
	OrderStatus      = domain.OrderStatus
	Product          = domain.Product
	ShippingSnapshot = domain.ShippingSnapshot
	StockLevel       = domain.StockLevel
	StockOperation   = domain.StockOperation
)

// CustomerService resolves checkout identities and serves customer profiles.
type CustomerService interface {
	// ResolveCheckoutCustomer maps a sanitized (name, phone) pair to a customer id,
	// creating the customer when absent. Backend failures are logged and swallowed;
	// the empty string means "no identity" and checkout proceeds without one.
	ResolveCheckoutCustomer(ctx context.Context, name, phone string) string
	CreateCustomer(ctx context.Context, cmd CreateCustomerCommand) (CustomerProfile, error)
	ListProfiles(ctx context.Context) ([]CustomerProfile, error)
	GetProfile(ctx context.Context, ref string) (ProfileWithHistory, error)
	UpdateCustomer(ctx context.Context, cmd UpdateCustomerCommand) (CustomerProfile, error)
	DeleteCustomer(ctx context.Context, ref string) error
}

// CreateCustomerCommand carries the fields for an explicit profile creation.
type CreateCustomerCommand struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// UpdateCustomerCommand mutates an existing table-backed customer.
type UpdateCustomerCommand struct {
	Ref       string
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// ProfileWithHistory bundles a profile with the orders backing its statistics.
type ProfileWithHistory struct {
	Profile CustomerProfile
	Orders  []Order
}

// CheckoutCustomerResolver is the narrow dependency the order writer needs.
type CheckoutCustomerResolver interface {
	ResolveCheckoutCustomer(ctx context.Context, name, phone string) string
}

// OrderService validates, persists, and mutates orders.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlacedOrder, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
	UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error)
}

// PlaceOrderCommand is a checkout submission.
type PlaceOrderCommand struct {
	Customer CheckoutContact
	Items    []CartLine
	Total    float64
	Notes    string
}

// CheckoutContact carries the shipping contact as submitted.
type CheckoutContact struct {
	Name    string
	Phone   string
	Address string
}

// CartLine is one submitted cart item.
type CartLine struct {
	ProductID   string
	VariantID   string
	ProductName string
	ProductCode string
	SKU         string
	Size        string
	Color       string
	Quantity    int
	Price       float64
}

// PlacedOrder is the two-phase placement result. ItemsPersisted is false when the
// header was written but the line-item step failed; the order still exists.
type PlacedOrder struct {
	Order          Order
	ItemsPersisted bool
}

// OrderStatusCommand requests a status transition.
type OrderStatusCommand struct {
	OrderID string
	Status  string
}

// StockService applies quantity adjustments to product and variant stock counters.
type StockService interface {
	Adjust(ctx context.Context, cmd StockAdjustCommand) (StockLevel, error)
	AdjustBatch(ctx context.Context, cmd StockBatchCommand) (StockBatchResult, error)
}

// StockAdjustCommand is a single counter mutation.
type StockAdjustCommand struct {
	ProductID string
	VariantID string
	Operation string
	Quantity  int
}

// StockBatchLine is one entry of a batch adjustment.
type StockBatchLine struct {
	ProductID string
	VariantID string
	Quantity  int
}

// StockBatchCommand applies one operation across many lines.
type StockBatchCommand struct {
	Operation string
	Lines     []StockBatchLine
}

// StockLineError records a failed batch line without aborting the batch.
type StockLineError struct {
	ProductID string
	Message   string
	Available int
	Required  int
}

// StockBatchSummary counts batch outcomes.
type StockBatchSummary struct {
	TotalItems int
	Successful int
	Failed     int
}

// StockBatchResult always carries both collections; callers must inspect each.
type StockBatchResult struct {
	Success bool
	Results []StockLevel
	Errors  []StockLineError
	Summary StockBatchSummary
}
