package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix     = "ord_"
	orderItemIDPrefix = "itm_"
	orderNumberPrefix = "ORD"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates a duplicate write detected by the backend.
	// Order-number collisions at placement are reported as generic failures instead.
	ErrOrderConflict = errors.New("order: conflict")
)

// Leading +, 1-4 country-code digits, 7-15 subscriber digits.
var phonePattern = regexp.MustCompile(`^\+\d{1,4}\d{7,15}$`)

// Shape a product/variant reference must match to be stored; anything else is kept null.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:  {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusRefunded},
	domain.OrderStatusDelivered:  {domain.OrderStatusRefunded},
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	Total          float64
	OccurredAt     time.Time
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Resolver    CheckoutCustomerResolver
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
	// ListLimit caps ListOrders results when positive; zero leaves listings unbounded.
	ListLimit int
}

type orderService struct {
	orders    repositories.OrderRepository
	products  repositories.ProductRepository
	resolver  CheckoutCustomerResolver
	clock     func() time.Time
	newID     func() string
	events    OrderEventPublisher
	logger    func(context.Context, string, map[string]any)
	listLimit int
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:   deps.Orders,
		products: deps.Products,
		resolver: deps.Resolver,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		events:    deps.Events,
		logger:    logger,
		listLimit: deps.ListLimit,
	}, nil
}

// PlaceOrder validates and persists a checkout submission. The header write is fatal;
// the line-item write is best-effort and reported through PlacedOrder.ItemsPersisted.
func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlacedOrder, error) {
	cmd, err := validateAndSanitize(cmd)
	if err != nil {
		return PlacedOrder{}, err
	}

	var customerID *string
	if s.resolver != nil {
		if id := s.resolver.ResolveCheckoutCustomer(ctx, cmd.Customer.Name, cmd.Customer.Phone); id != "" {
			customerID = &id
		}
	}

	now := s.clock()
	orderID := orderIDPrefix + s.newID()

	items := make([]domain.OrderItem, 0, len(cmd.Items))
	for _, line := range cmd.Items {
		items = append(items, s.buildItem(ctx, orderID, line))
	}

	order := domain.Order{
		ID:          orderID,
		OrderNumber: s.generateOrderNumber(now),
		CustomerID:  customerID,
		Status:      domain.OrderStatusPending,
		// No computed pricing in this flow: subtotal, shipping, and total all carry
		// the client-supplied total; tax and discount stay zero.
		Subtotal: cmd.Total,
		Tax:      0,
		Shipping: cmd.Total,
		Discount: 0,
		Total:    cmd.Total,
		ShipTo: domain.ShippingSnapshot{
			Name:    cmd.Customer.Name,
			Phone:   cmd.Customer.Phone,
			Address: cmd.Customer.Address,
		},
		Notes:     cmd.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		if isConflict(err) {
			// Order-number collisions are not actionable by the caller; report
			// them as a plain creation failure and keep the detail in the logs.
			s.logger(ctx, "order.number.conflict", map[string]any{
				"orderNumber": order.OrderNumber,
			})
			return PlacedOrder{}, fmt.Errorf("create order: %w", err)
		}
		return PlacedOrder{}, s.mapRepositoryError(err)
	}

	placed := PlacedOrder{Order: order, ItemsPersisted: true}
	if err := s.orders.InsertItems(ctx, orderID, items); err != nil {
		s.logger(ctx, "order.items.persist.failed", map[string]any{
			"order": orderID,
			"error": err.Error(),
		})
		placed.ItemsPersisted = false
	} else {
		placed.Order.Items = items
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		Total:         order.Total,
		OccurredAt:    now,
	})

	return placed, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{IncludeItems: true, Limit: s.listLimit})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

// UpdateStatus applies a guarded status transition and emits order.status.changed.
func (s *orderService) UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	target := domain.OrderStatus(strings.TrimSpace(cmd.Status))
	if !slices.Contains(domain.KnownOrderStatuses, target) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if !canTransition(order.Status, target) {
		return Order{}, fmt.Errorf("%w: cannot move from %s to %s", ErrOrderInvalidState, order.Status, target)
	}

	now := s.clock()
	if err := s.orders.UpdateStatus(ctx, orderID, target, now); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	previous := order.Status
	order.Status = target
	order.UpdatedAt = now

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(previous),
		CurrentStatus:  string(target),
		Total:          order.Total,
		OccurredAt:     now,
	})

	return order, nil
}

// Helpers --------------------------------------------------------------------

func validateAndSanitize(cmd PlaceOrderCommand) (PlaceOrderCommand, error) {
	if strings.TrimSpace(cmd.Customer.Name) == "" {
		return cmd, fmt.Errorf("%w: customer name is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Customer.Phone) == "" {
		return cmd, fmt.Errorf("%w: customer phone is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Customer.Address) == "" {
		return cmd, fmt.Errorf("%w: shipping address is required", ErrOrderInvalidInput)
	}

	cmd.Customer.Name = sanitizeText(cmd.Customer.Name)
	cmd.Customer.Phone = strings.TrimSpace(cmd.Customer.Phone)
	cmd.Customer.Address = sanitizeText(cmd.Customer.Address)
	cmd.Notes = sanitizeText(cmd.Notes)

	if !phonePattern.MatchString(cmd.Customer.Phone) {
		return cmd, fmt.Errorf("%w: phone must match +<country code><number>", ErrOrderInvalidInput)
	}

	if len(cmd.Items) == 0 {
		return cmd, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	for i := range cmd.Items {
		item := &cmd.Items[i]
		item.ProductID = strings.TrimSpace(item.ProductID)
		item.ProductName = sanitizeText(item.ProductName)
		item.Size = sanitizeText(item.Size)
		item.Color = sanitizeText(item.Color)

		if item.ProductID == "" {
			return cmd, fmt.Errorf("%w: item %d is missing a product id", ErrOrderInvalidInput, i)
		}
		if item.ProductName == "" {
			return cmd, fmt.Errorf("%w: item %d is missing a product name", ErrOrderInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return cmd, fmt.Errorf("%w: item %d quantity must be positive", ErrOrderInvalidInput, i)
		}
		if item.Size == "" {
			return cmd, fmt.Errorf("%w: item %d is missing a size", ErrOrderInvalidInput, i)
		}
		if item.Color == "" {
			return cmd, fmt.Errorf("%w: item %d is missing a color", ErrOrderInvalidInput, i)
		}
		if item.Price <= 0 {
			return cmd, fmt.Errorf("%w: item %d price must be positive", ErrOrderInvalidInput, i)
		}
	}

	if cmd.Total <= 0 {
		return cmd, fmt.Errorf("%w: total must be greater than zero", ErrOrderInvalidInput)
	}
	return cmd, nil
}

func (s *orderService) buildItem(ctx context.Context, orderID string, line CartLine) domain.OrderItem {
	item := domain.OrderItem{
		ID:          orderItemIDPrefix + s.newID(),
		OrderID:     orderID,
		ProductName: line.ProductName,
		SKU:         s.deriveSKU(ctx, line),
		Size:        line.Size,
		Color:       line.Color,
		Quantity:    line.Quantity,
		UnitPrice:   line.Price,
		TotalPrice:  line.Price * float64(line.Quantity),
	}
	if identifierPattern.MatchString(line.ProductID) {
		ref := line.ProductID
		item.ProductID = &ref
	}
	if identifierPattern.MatchString(line.VariantID) {
		ref := line.VariantID
		item.VariantID = &ref
	}
	return item
}

// deriveSKU walks the fallback chain: cart item product code, catalog product_code,
// cart item sku, constructed <productID>-<size>-<color>.
func (s *orderService) deriveSKU(ctx context.Context, line CartLine) string {
	if code := strings.TrimSpace(line.ProductCode); code != "" {
		return code
	}
	if s.products != nil && identifierPattern.MatchString(line.ProductID) {
		if product, err := s.products.FindByID(ctx, line.ProductID); err == nil {
			if code := strings.TrimSpace(product.ProductCode); code != "" {
				return code
			}
		}
	}
	if sku := strings.TrimSpace(line.SKU); sku != "" {
		return sku
	}
	return fmt.Sprintf("%s-%s-%s",
		alphanumeric(line.ProductID), alphanumeric(line.Size), alphanumeric(line.Color))
}

func (s *orderService) generateOrderNumber(now time.Time) string {
	id := s.newID()
	suffix := id
	if len(suffix) > 5 {
		suffix = suffix[len(suffix)-5:]
	}
	return strings.ToUpper(fmt.Sprintf("%s-%d-%s", orderNumberPrefix, now.UnixMilli(), suffix))
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}
