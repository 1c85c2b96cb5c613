package domain

import (
	"time"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order has been placed but not yet reviewed.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates staff accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being prepared for shipment.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to a carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled; terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded indicates the order was refunded after fulfilment; terminal.
	OrderStatusRefunded OrderStatus = "refunded"
)

// KnownOrderStatuses lists every status value accepted at the API boundary.
var KnownOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// IsTerminal reports whether the status absorbs all further transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}

// Customer is the durable identity record created by checkout resolution or admin action.
type Customer struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShippingSnapshot is the address block copied onto an order at placement time.
// It stays stable even if the customer record is edited later.
type ShippingSnapshot struct {
	Name    string
	Phone   string
	Address string
}

// Order captures the order header shared across services and handlers.
type Order struct {
	ID          string
	OrderNumber string
	CustomerID  *string
	Status      OrderStatus
	Subtotal    float64
	Tax         float64
	Shipping    float64
	Discount    float64
	Total       float64
	ShipTo      ShippingSnapshot
	Notes       string
	Items       []OrderItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderItem is a denormalized line-item snapshot belonging to exactly one order.
// Product and variant references are nullable so malformed identifiers never
// block the historical record.
type OrderItem struct {
	ID          string
	OrderID     string
	ProductID   *string
	VariantID   *string
	ProductName string
	SKU         string
	Size        string
	Color       string
	Quantity    int
	UnitPrice   float64
	TotalPrice  float64
}

// Product carries the aggregate stock counter, independent of variant-level stock.
type Product struct {
	ID          string
	Name        string
	ProductCode string
	Price       float64
	Quantity    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductVariant belongs to one product and tracks its own stock quantity.
type ProductVariant struct {
	ID              string
	ProductID       string
	Size            string
	Color           string
	PriceAdjustment float64
	StockQuantity   int
	UpdatedAt       time.Time
}

// StockOperation selects how an adjustment is applied to a stock counter.
type StockOperation string

const (
	// StockOpSet replaces the counter with the given quantity.
	StockOpSet StockOperation = "set"
	// StockOpAdd increments the counter by the given quantity.
	StockOpAdd StockOperation = "add"
	// StockOpSubtract decrements the counter, rejecting results below zero.
	StockOpSubtract StockOperation = "subtract"
)

// StockLevel reports a counter before and after an adjustment.
type StockLevel struct {
	ProductID        string
	VariantID        string
	PreviousQuantity int
	NewQuantity      int
	UpdatedAt        time.Time
}

// CustomerRefKind distinguishes proper customer identifiers from legacy
// composite keys derived from order shipping snapshots.
type CustomerRefKind string

const (
	// CustomerRefID references a row in the customer table.
	CustomerRefID CustomerRefKind = "id"
	// CustomerRefLegacy references a synthetic identity grouped from raw
	// orders on (shipping name, shipping phone). Read-only.
	CustomerRefLegacy CustomerRefKind = "legacy"
)

// CustomerRef is the sum type used at the API boundary for customer identity.
// Exactly one variant is populated: ID for table-backed customers, Name+Phone
// for legacy composites.
type CustomerRef struct {
	Kind  CustomerRefKind
	ID    string
	Name  string
	Phone string
}

// IsLegacy reports whether the reference points at a derived legacy identity.
func (r CustomerRef) IsLegacy() bool {
	return r.Kind == CustomerRefLegacy
}

// CustomerProfile is the aggregated customer summary returned by profile reads.
type CustomerProfile struct {
	Ref          CustomerRef
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	TotalOrders  int
	TotalSpent   float64
	FirstOrderAt *time.Time
	LastOrderAt  *time.Time
}
