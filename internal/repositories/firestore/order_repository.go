package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const (
	ordersCollection       = "orders"
	orderItemsSubcol       = "items"
	orderNumbersCollection = "orderNumbers"
)

// OrderRepository persists order headers in Firestore with line items in an "items"
// subcollection. Order numbers are reserved through a dedicated index collection so a
// colliding number fails the header transaction instead of silently overwriting.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	items    *pfirestore.BaseRepository[orderItemDocument]
	numbers  *pfirestore.BaseRepository[orderNumberDocument]
}

// NewOrderRepository constructs an OrderRepository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil),
		items:    pfirestore.NewBaseRepository[orderItemDocument](provider, ordersCollection, nil),
		numbers:  pfirestore.NewBaseRepository[orderNumberDocument](provider, orderNumbersCollection, nil),
	}, nil
}

// Insert writes the order header and claims its order number in one transaction.
// Items on the order value are ignored here; see InsertItems.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order insert: id is required")
	}
	if strings.TrimSpace(order.OrderNumber) == "" {
		return errors.New("order insert: order number is required")
	}

	doc := newOrderDocument(order)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		numberRef, err := r.numbers.DocumentRef(ctx, order.OrderNumber)
		if err != nil {
			return err
		}
		if err := tx.Create(numberRef, orderNumberDocument{OrderRef: order.ID, CreatedAt: doc.CreatedAt}); err != nil {
			return err
		}
		return tx.Create(orderRef, doc)
	})
	return pfirestore.WrapError("orders.insert", err)
}

// InsertItems writes the line items below an existing order header. The write is
// sequential and non-transactional; a failure leaves the header untouched.
func (r *OrderRepository) InsertItems(ctx context.Context, orderID string, items []domain.OrderItem) error {
	orderRef, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}

	for _, item := range items {
		if strings.TrimSpace(item.ID) == "" {
			return errors.New("order items: item id is required")
		}
		itemDoc := newOrderItemDocument(item)
		if _, err := orderRef.Collection(orderItemsSubcol).Doc(item.ID).Create(ctx, itemDoc); err != nil {
			return pfirestore.WrapError("orders.insertItems", err)
		}
	}
	return nil
}

// UpdateStatus rewrites only the status and updated timestamp of the header.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) error {
	_, err := r.orders.Update(ctx, orderID, []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
	return err
}

// FindByID fetches a single order with its line items.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	order := doc.Data.toDomain(doc.ID)
	items, err := r.loadItems(ctx, doc.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

// List returns orders newest first, optionally filtered by customer and with items loaded.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if strings.TrimSpace(filter.CustomerID) != "" {
			q = q.Where("customerRef", "==", filter.CustomerID)
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order := doc.Data.toDomain(doc.ID)
		if filter.IncludeItems {
			items, err := r.loadItems(ctx, doc.ID)
			if err != nil {
				return nil, err
			}
			order.Items = items
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	docs, err := r.items.QuerySubcollection(ctx, orderID, orderItemsSubcol, nil)
	if err != nil {
		return nil, fmt.Errorf("load items for order %s: %w", orderID, err)
	}

	items := make([]domain.OrderItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID, orderID))
	}
	return items, nil
}

// Helper structures ---------------------------------------------------------

type orderDocument struct {
	OrderNumber string           `firestore:"orderNumber"`
	CustomerRef string           `firestore:"customerRef"`
	Status      string           `firestore:"status"`
	Subtotal    float64          `firestore:"subtotal"`
	Tax         float64          `firestore:"tax"`
	Shipping    float64          `firestore:"shipping"`
	Discount    float64          `firestore:"discount"`
	Total       float64          `firestore:"total"`
	ShipTo      shippingDocument `firestore:"shipTo"`
	Notes       string           `firestore:"notes,omitempty"`
	CreatedAt   time.Time        `firestore:"createdAt"`
	UpdatedAt   time.Time        `firestore:"updatedAt"`
}

type shippingDocument struct {
	Name    string `firestore:"name"`
	Phone   string `firestore:"phone"`
	Address string `firestore:"address"`
}

type orderItemDocument struct {
	ProductRef  string  `firestore:"productRef,omitempty"`
	VariantRef  string  `firestore:"variantRef,omitempty"`
	ProductName string  `firestore:"productName"`
	SKU         string  `firestore:"sku"`
	Size        string  `firestore:"size"`
	Color       string  `firestore:"color"`
	Quantity    int     `firestore:"qty"`
	UnitPrice   float64 `firestore:"unitPrice"`
	TotalPrice  float64 `firestore:"totalPrice"`
}

type orderNumberDocument struct {
	OrderRef  string    `firestore:"orderRef"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		Status:      string(order.Status),
		Subtotal:    order.Subtotal,
		Tax:         order.Tax,
		Shipping:    order.Shipping,
		Discount:    order.Discount,
		Total:       order.Total,
		ShipTo: shippingDocument{
			Name:    order.ShipTo.Name,
			Phone:   order.ShipTo.Phone,
			Address: order.ShipTo.Address,
		},
		Notes:     order.Notes,
		CreatedAt: order.CreatedAt.UTC(),
		UpdatedAt: order.UpdatedAt.UTC(),
	}
	if order.CustomerID != nil {
		doc.CustomerRef = *order.CustomerID
	}
	return doc
}

func (o orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:          id,
		OrderNumber: o.OrderNumber,
		Status:      domain.OrderStatus(o.Status),
		Subtotal:    o.Subtotal,
		Tax:         o.Tax,
		Shipping:    o.Shipping,
		Discount:    o.Discount,
		Total:       o.Total,
		ShipTo: domain.ShippingSnapshot{
			Name:    o.ShipTo.Name,
			Phone:   o.ShipTo.Phone,
			Address: o.ShipTo.Address,
		},
		Notes:     o.Notes,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	if strings.TrimSpace(o.CustomerRef) != "" {
		ref := o.CustomerRef
		order.CustomerID = &ref
	}
	return order
}

func newOrderItemDocument(item domain.OrderItem) orderItemDocument {
	doc := orderItemDocument{
		ProductName: item.ProductName,
		SKU:         item.SKU,
		Size:        item.Size,
		Color:       item.Color,
		Quantity:    item.Quantity,
		UnitPrice:   item.UnitPrice,
		TotalPrice:  item.TotalPrice,
	}
	if item.ProductID != nil {
		doc.ProductRef = *item.ProductID
	}
	if item.VariantID != nil {
		doc.VariantRef = *item.VariantID
	}
	return doc
}

func (i orderItemDocument) toDomain(id, orderID string) domain.OrderItem {
	item := domain.OrderItem{
		ID:          id,
		OrderID:     orderID,
		ProductName: i.ProductName,
		SKU:         i.SKU,
		Size:        i.Size,
		Color:       i.Color,
		Quantity:    i.Quantity,
		UnitPrice:   i.UnitPrice,
		TotalPrice:  i.TotalPrice,
	}
	if strings.TrimSpace(i.ProductRef) != "" {
		ref := i.ProductRef
		item.ProductID = &ref
	}
	if strings.TrimSpace(i.VariantRef) != "" {
		ref := i.VariantRef
		item.VariantID = &ref
	}
	return item
}
