package repositories

import (
	"context"
	"time"

	domain "github.com/maplecart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close() error

	Customers() CustomerRepository
	Orders() OrderRepository
	Products() ProductRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CustomerRepository persists customer identity records. Insert and Update enforce
// email uniqueness; a duplicate surfaces as a conflict RepositoryError.
type CustomerRepository interface {
	Insert(ctx context.Context, customer domain.Customer) error
	Update(ctx context.Context, customer domain.Customer) error
	Delete(ctx context.Context, customerID string) error
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
	FindByPhone(ctx context.Context, phone string) (domain.Customer, error)
	FindByEmail(ctx context.Context, email string) (domain.Customer, error)
	List(ctx context.Context) ([]domain.Customer, error)
}

// OrderRepository persists order headers and line items. Insert reserves the order
// number atomically with the header write; a taken number surfaces as a conflict.
// InsertItems is the best-effort second phase and never touches the header.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	InsertItems(ctx context.Context, orderID string, items []domain.OrderItem) error
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	// CustomerID restricts the listing to orders referencing the customer when non-empty.
	CustomerID string
	// IncludeItems loads the items subcollection for each returned order.
	IncludeItems bool
	// Limit caps the number of returned orders when positive.
	Limit int
}

// ProductRepository reads catalog rows and applies stock adjustments.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// AdjustStock applies the adjustment inside a transaction. A subtract that would
	// drive the counter negative aborts without writing and returns a StockError
	// carrying the available and required amounts.
	AdjustStock(ctx context.Context, adj StockAdjustment) (domain.StockLevel, error)
}

// StockAdjustment describes a single stock mutation. VariantID targets the variant's
// stock_quantity instead of the product aggregate when non-empty.
type StockAdjustment struct {
	ProductID string
	VariantID string
	Operation domain.StockOperation
	Quantity  int
	Now       time.Time
}
