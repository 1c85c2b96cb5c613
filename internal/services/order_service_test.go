package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

func validPlaceOrderCommand() PlaceOrderCommand {
	return PlaceOrderCommand{
		Customer: CheckoutContact{
			Name:    "Jane Doe",
			Phone:   "+15551234567",
			Address: "12 Maple Street, Toronto",
		},
		Items: []CartLine{
			{
				ProductID:   "p1",
				ProductName: "Kids Rain Jacket",
				Size:        "M",
				Color:       "Navy",
				Quantity:    2,
				Price:       25.99,
			},
		},
		Total: 51.98,
	}
}

func newTestOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepo{}
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock(time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC))
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc
}

func TestPlaceOrderPersistsHeaderAndItems(t *testing.T) {
	var insertedOrder domain.Order
	var insertedItems []domain.OrderItem
	repo := &stubOrderRepo{
		insertFn: func(_ context.Context, order domain.Order) error {
			insertedOrder = order
			return nil
		},
		insertItemsFn: func(_ context.Context, orderID string, items []domain.OrderItem) error {
			insertedItems = items
			return nil
		},
	}
	publisher := &stubEventPublisher{}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Events: publisher})

	placed, err := svc.PlaceOrder(context.Background(), validPlaceOrderCommand())
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	if !placed.ItemsPersisted {
		t.Fatal("expected items persisted")
	}
	if placed.Order.Total != 51.98 {
		t.Errorf("expected total 51.98, got %v", placed.Order.Total)
	}
	if placed.Order.Subtotal != 51.98 {
		t.Errorf("expected subtotal equal to client total, got %v", placed.Order.Subtotal)
	}
	if placed.Order.Shipping != 51.98 {
		t.Errorf("expected shipping equal to client total, got %v", placed.Order.Shipping)
	}
	if placed.Order.Tax != 0 || placed.Order.Discount != 0 {
		t.Errorf("expected zero tax/discount, got %v/%v", placed.Order.Tax, placed.Order.Discount)
	}
	if placed.Order.Status != domain.OrderStatusPending {
		t.Errorf("expected pending status, got %s", placed.Order.Status)
	}
	if insertedOrder.ID == "" || !strings.HasPrefix(insertedOrder.ID, "ord_") {
		t.Errorf("unexpected order id %q", insertedOrder.ID)
	}
	if !strings.HasPrefix(insertedOrder.OrderNumber, "ORD-") {
		t.Errorf("unexpected order number %q", insertedOrder.OrderNumber)
	}
	if insertedOrder.OrderNumber != strings.ToUpper(insertedOrder.OrderNumber) {
		t.Errorf("order number not uppercased: %q", insertedOrder.OrderNumber)
	}
	if insertedOrder.ShipTo.Name != "Jane Doe" || insertedOrder.ShipTo.Address != "12 Maple Street, Toronto" {
		t.Errorf("unexpected shipping snapshot %#v", insertedOrder.ShipTo)
	}

	if len(insertedItems) != 1 {
		t.Fatalf("expected 1 item, got %d", len(insertedItems))
	}
	item := insertedItems[0]
	if item.TotalPrice != 51.98 {
		t.Errorf("expected item total 51.98, got %v", item.TotalPrice)
	}
	if item.UnitPrice != 25.99 || item.Quantity != 2 {
		t.Errorf("unexpected item pricing %v x %d", item.UnitPrice, item.Quantity)
	}
	if item.ProductID == nil || *item.ProductID != "p1" {
		t.Errorf("expected product ref p1, got %v", item.ProductID)
	}
	if item.SKU != "p1-M-Navy" {
		t.Errorf("expected constructed sku, got %q", item.SKU)
	}

	if len(publisher.events) != 1 || publisher.events[0].Type != "order.created" {
		t.Fatalf("expected order.created event, got %#v", publisher.events)
	}
}

func TestPlaceOrderValidationFailures(t *testing.T) {
	mutations := map[string]func(*PlaceOrderCommand){
		"missing name":     func(c *PlaceOrderCommand) { c.Customer.Name = "  " },
		"missing phone":    func(c *PlaceOrderCommand) { c.Customer.Phone = "" },
		"missing address":  func(c *PlaceOrderCommand) { c.Customer.Address = "" },
		"phone no plus":    func(c *PlaceOrderCommand) { c.Customer.Phone = "15551234567" },
		"phone too short":  func(c *PlaceOrderCommand) { c.Customer.Phone = "+123456" },
		"no items":         func(c *PlaceOrderCommand) { c.Items = nil },
		"no product id":    func(c *PlaceOrderCommand) { c.Items[0].ProductID = "" },
		"no product name":  func(c *PlaceOrderCommand) { c.Items[0].ProductName = "" },
		"zero quantity":    func(c *PlaceOrderCommand) { c.Items[0].Quantity = 0 },
		"missing size":     func(c *PlaceOrderCommand) { c.Items[0].Size = "" },
		"missing color":    func(c *PlaceOrderCommand) { c.Items[0].Color = "" },
		"negative price":   func(c *PlaceOrderCommand) { c.Items[0].Price = -1 },
		"zero total":       func(c *PlaceOrderCommand) { c.Total = 0 },
		"negative total":   func(c *PlaceOrderCommand) { c.Total = -5 },
	}

	inserts := 0
	repo := &stubOrderRepo{insertFn: func(context.Context, domain.Order) error {
		inserts++
		return nil
	}}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cmd := validPlaceOrderCommand()
			mutate(&cmd)
			_, err := svc.PlaceOrder(context.Background(), cmd)
			if !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
			}
		})
	}
	if inserts != 0 {
		t.Fatalf("validation failures must not write, saw %d inserts", inserts)
	}
}

func TestPlaceOrderSanitizesFreeText(t *testing.T) {
	var inserted domain.Order
	repo := &stubOrderRepo{insertFn: func(_ context.Context, order domain.Order) error {
		inserted = order
		return nil
	}}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	cmd := validPlaceOrderCommand()
	cmd.Customer.Name = "<script>alert(1)</script>Jane Doe"
	cmd.Notes = "leave at <b>back door</b>"

	if _, err := svc.PlaceOrder(context.Background(), cmd); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if strings.ContainsAny(inserted.ShipTo.Name, "<>") {
		t.Errorf("name not sanitized: %q", inserted.ShipTo.Name)
	}
	if !strings.Contains(inserted.ShipTo.Name, "Jane Doe") {
		t.Errorf("sanitization dropped legitimate content: %q", inserted.ShipTo.Name)
	}
	if inserted.Notes != "leave at back door" {
		t.Errorf("notes not sanitized: %q", inserted.Notes)
	}
}

func TestPlaceOrderGeneratesDistinctNumbers(t *testing.T) {
	numbers := make(map[string]bool)
	repo := &stubOrderRepo{insertFn: func(_ context.Context, order domain.Order) error {
		numbers[order.OrderNumber] = true
		return nil
	}}
	// Fixed clock forces all numbers onto the same timestamp so only the random
	// suffix keeps them apart.
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	const n = 50
	for i := 0; i < n; i++ {
		if _, err := svc.PlaceOrder(context.Background(), validPlaceOrderCommand()); err != nil {
			t.Fatalf("PlaceOrder %d: %v", i, err)
		}
	}
	if len(numbers) != n {
		t.Fatalf("expected %d distinct order numbers, got %d", n, len(numbers))
	}
}

func TestPlaceOrderItemsFailureIsNotFatal(t *testing.T) {
	repo := &stubOrderRepo{
		insertItemsFn: func(context.Context, string, []domain.OrderItem) error {
			return unavailableErr("firestore down")
		},
	}
	recorder := &logRecorder{}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Logger: recorder.log})

	placed, err := svc.PlaceOrder(context.Background(), validPlaceOrderCommand())
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if placed.ItemsPersisted {
		t.Fatal("expected ItemsPersisted=false")
	}
	if placed.Order.ID == "" {
		t.Fatal("order should still exist")
	}
	if len(placed.Order.Items) != 0 {
		t.Fatalf("unpersisted items must not be attached, got %d", len(placed.Order.Items))
	}
	found := false
	for _, event := range recorder.events {
		if event == "order.items.persist.failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected failure log, got %v", recorder.events)
	}
}

func TestPlaceOrderHeaderFailureIsFatal(t *testing.T) {
	repo := &stubOrderRepo{insertFn: func(context.Context, domain.Order) error {
		return conflictErr("order number taken")
	}}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	_, err := svc.PlaceOrder(context.Background(), validPlaceOrderCommand())
	if err == nil {
		t.Fatal("expected an error when the header insert fails")
	}
	if errors.Is(err, ErrOrderConflict) {
		t.Fatalf("number collision must read as a generic creation failure, got %v", err)
	}
}

func TestPlaceOrderMalformedRefsStoredNull(t *testing.T) {
	var items []domain.OrderItem
	repo := &stubOrderRepo{insertItemsFn: func(_ context.Context, _ string, got []domain.OrderItem) error {
		items = got
		return nil
	}}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	cmd := validPlaceOrderCommand()
	cmd.Items[0].ProductID = "legacy id with spaces!"
	cmd.Items[0].VariantID = "###"

	placed, err := svc.PlaceOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if !placed.ItemsPersisted || len(items) != 1 {
		t.Fatalf("expected one persisted item, got %d", len(items))
	}
	if items[0].ProductID != nil {
		t.Errorf("malformed product ref should be nil, got %v", *items[0].ProductID)
	}
	if items[0].VariantID != nil {
		t.Errorf("malformed variant ref should be nil, got %v", *items[0].VariantID)
	}
}

func TestPlaceOrderSKUFallbackChain(t *testing.T) {
	products := &stubProductRepo{findFn: func(_ context.Context, productID string) (domain.Product, error) {
		if productID == "p-catalog" {
			return domain.Product{ID: productID, ProductCode: "CAT-001"}, nil
		}
		return domain.Product{}, notFoundErr("product not found")
	}}

	cases := []struct {
		name string
		line CartLine
		want string
	}{
		{
			name: "explicit product code wins",
			line: CartLine{ProductID: "p-catalog", ProductCode: "EXPL-1", SKU: "sku-1", Size: "M", Color: "Red"},
			want: "EXPL-1",
		},
		{
			name: "catalog product code second",
			line: CartLine{ProductID: "p-catalog", SKU: "sku-1", Size: "M", Color: "Red"},
			want: "CAT-001",
		},
		{
			name: "item sku third",
			line: CartLine{ProductID: "p-unknown", SKU: "sku-1", Size: "M", Color: "Red"},
			want: "sku-1",
		},
		{
			name: "constructed fallback strips non-alphanumerics",
			line: CartLine{ProductID: "p-unknown", Size: "6-12 mo", Color: "Off White", Quantity: 1},
			want: "punknown-612mo-OffWhite",
		},
	}

	var items []domain.OrderItem
	repo := &stubOrderRepo{insertItemsFn: func(_ context.Context, _ string, got []domain.OrderItem) error {
		items = got
		return nil
	}}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Products: products})

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := validPlaceOrderCommand()
			line := tc.line
			line.ProductName = "Product"
			line.Quantity = 1
			line.Price = 10
			cmd.Items = []CartLine{line}
			cmd.Total = 10

			if _, err := svc.PlaceOrder(context.Background(), cmd); err != nil {
				t.Fatalf("PlaceOrder: %v", err)
			}
			if items[0].SKU != tc.want {
				t.Fatalf("expected sku %q, got %q", tc.want, items[0].SKU)
			}
		})
	}
}

func TestPlaceOrderAttachesResolvedCustomer(t *testing.T) {
	var inserted domain.Order
	repo := &stubOrderRepo{insertFn: func(_ context.Context, order domain.Order) error {
		inserted = order
		return nil
	}}
	resolver := &stubResolver{id: "cus_known"}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Resolver: resolver})

	if _, err := svc.PlaceOrder(context.Background(), validPlaceOrderCommand()); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if resolver.calls != 1 {
		t.Fatalf("expected one resolver call, got %d", resolver.calls)
	}
	if inserted.CustomerID == nil || *inserted.CustomerID != "cus_known" {
		t.Fatalf("expected customer ref attached, got %v", inserted.CustomerID)
	}
}

func TestPlaceOrderNullCustomerWhenResolutionEmpty(t *testing.T) {
	var inserted domain.Order
	repo := &stubOrderRepo{insertFn: func(_ context.Context, order domain.Order) error {
		inserted = order
		return nil
	}}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Resolver: &stubResolver{id: ""}})

	if _, err := svc.PlaceOrder(context.Background(), validPlaceOrderCommand()); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if inserted.CustomerID != nil {
		t.Fatalf("expected null customer ref, got %v", *inserted.CustomerID)
	}
}

func TestUpdateStatusAllowedTransition(t *testing.T) {
	updated := false
	repo := &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, OrderNumber: "ORD-1-A", Status: domain.OrderStatusPending}, nil
		},
		updateStatusFn: func(_ context.Context, _ string, status domain.OrderStatus, _ time.Time) error {
			updated = true
			if status != domain.OrderStatusConfirmed {
				t.Fatalf("unexpected status write %s", status)
			}
			return nil
		},
	}
	publisher := &stubEventPublisher{}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Events: publisher})

	order, err := svc.UpdateStatus(context.Background(), OrderStatusCommand{OrderID: "ord_1", Status: "confirmed"})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if !updated {
		t.Fatal("expected repository write")
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", order.Status)
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != "order.status.changed" {
		t.Fatalf("expected status change event, got %#v", publisher.events)
	}
	if publisher.events[0].PreviousStatus != "pending" {
		t.Fatalf("expected previous status pending, got %s", publisher.events[0].PreviousStatus)
	}
}

func TestUpdateStatusIllegalTransition(t *testing.T) {
	cases := []struct {
		current domain.OrderStatus
		target  string
	}{
		{domain.OrderStatusPending, "shipped"},
		{domain.OrderStatusShipped, "pending"},
		{domain.OrderStatusCancelled, "confirmed"},
		{domain.OrderStatusRefunded, "pending"},
		{domain.OrderStatusDelivered, "shipped"},
	}

	for _, tc := range cases {
		t.Run(string(tc.current)+"_to_"+tc.target, func(t *testing.T) {
			repo := &stubOrderRepo{
				findFn: func(_ context.Context, orderID string) (domain.Order, error) {
					return domain.Order{ID: orderID, Status: tc.current}, nil
				},
				updateStatusFn: func(context.Context, string, domain.OrderStatus, time.Time) error {
					t.Fatal("illegal transition must not write")
					return nil
				},
			}
			svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

			_, err := svc.UpdateStatus(context.Background(), OrderStatusCommand{OrderID: "ord_1", Status: tc.target})
			if !errors.Is(err, ErrOrderInvalidState) {
				t.Fatalf("expected ErrOrderInvalidState, got %v", err)
			}
		})
	}
}

func TestUpdateStatusUnknownStatus(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepo{}})
	_, err := svc.UpdateStatus(context.Background(), OrderStatusCommand{OrderID: "ord_1", Status: "archived"})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestUpdateStatusOrderNotFound(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepo{}})
	_, err := svc.UpdateStatus(context.Background(), OrderStatusCommand{OrderID: "ord_missing", Status: "confirmed"})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepo{}})
	_, err := svc.GetOrder(context.Background(), "ord_missing")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestListOrdersIncludesItems(t *testing.T) {
	var gotFilter repositories.OrderListFilter
	repo := &stubOrderRepo{listFn: func(_ context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
		gotFilter = filter
		return []domain.Order{{ID: "ord_1"}}, nil
	}}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	orders, err := svc.ListOrders(context.Background())
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	if !gotFilter.IncludeItems {
		t.Fatal("expected items to be included in listings")
	}
}

func TestListOrdersAppliesConfiguredLimit(t *testing.T) {
	var gotFilter repositories.OrderListFilter
	repo := &stubOrderRepo{listFn: func(_ context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
		gotFilter = filter
		return nil, nil
	}}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, ListLimit: 25})

	if _, err := svc.ListOrders(context.Background()); err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if gotFilter.Limit != 25 {
		t.Fatalf("expected configured limit 25, got %d", gotFilter.Limit)
	}
}
