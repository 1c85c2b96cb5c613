package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

// stubRepoError implements repositories.RepositoryError for tests.
type stubRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return e.msg }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr(msg string) error    { return &stubRepoError{msg: msg, notFound: true} }
func conflictErr(msg string) error    { return &stubRepoError{msg: msg, conflict: true} }
func unavailableErr(msg string) error { return &stubRepoError{msg: msg, unavailable: true} }

type stubCustomerRepo struct {
	insertFn      func(context.Context, domain.Customer) error
	updateFn      func(context.Context, domain.Customer) error
	deleteFn      func(context.Context, string) error
	findByIDFn    func(context.Context, string) (domain.Customer, error)
	findByPhoneFn func(context.Context, string) (domain.Customer, error)
	findByEmailFn func(context.Context, string) (domain.Customer, error)
	listFn        func(context.Context) ([]domain.Customer, error)
}

func (s *stubCustomerRepo) Insert(ctx context.Context, customer domain.Customer) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, customer)
	}
	return nil
}

func (s *stubCustomerRepo) Update(ctx context.Context, customer domain.Customer) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, customer)
	}
	return nil
}

func (s *stubCustomerRepo) Delete(ctx context.Context, customerID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, customerID)
	}
	return nil
}

func (s *stubCustomerRepo) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, customerID)
	}
	return domain.Customer{}, notFoundErr("customer not found")
}

func (s *stubCustomerRepo) FindByPhone(ctx context.Context, phone string) (domain.Customer, error) {
	if s.findByPhoneFn != nil {
		return s.findByPhoneFn(ctx, phone)
	}
	return domain.Customer{}, notFoundErr("customer not found")
}

func (s *stubCustomerRepo) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	if s.findByEmailFn != nil {
		return s.findByEmailFn(ctx, email)
	}
	return domain.Customer{}, notFoundErr("customer not found")
}

func (s *stubCustomerRepo) List(ctx context.Context) ([]domain.Customer, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

type stubOrderRepo struct {
	insertFn       func(context.Context, domain.Order) error
	insertItemsFn  func(context.Context, string, []domain.OrderItem) error
	updateStatusFn func(context.Context, string, domain.OrderStatus, time.Time) error
	findFn         func(context.Context, string) (domain.Order, error)
	listFn         func(context.Context, repositories.OrderListFilter) ([]domain.Order, error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) InsertItems(ctx context.Context, orderID string, items []domain.OrderItem) error {
	if s.insertItemsFn != nil {
		return s.insertItemsFn(ctx, orderID, items)
	}
	return nil
}

func (s *stubOrderRepo) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) error {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, orderID, status, updatedAt)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, notFoundErr("order not found")
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return nil, nil
}

type stubProductRepo struct {
	findFn   func(context.Context, string) (domain.Product, error)
	adjustFn func(context.Context, repositories.StockAdjustment) (domain.StockLevel, error)
}

func (s *stubProductRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFn != nil {
		return s.findFn(ctx, productID)
	}
	return domain.Product{}, notFoundErr("product not found")
}

func (s *stubProductRepo) AdjustStock(ctx context.Context, adj repositories.StockAdjustment) (domain.StockLevel, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, adj)
	}
	return domain.StockLevel{}, errors.New("not implemented")
}

type stubEventPublisher struct {
	events []OrderEvent
	err    error
}

func (s *stubEventPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

type stubResolver struct {
	id    string
	calls int
}

func (s *stubResolver) ResolveCheckoutCustomer(context.Context, string, string) string {
	s.calls++
	return s.id
}

type logRecorder struct {
	events []string
}

func (r *logRecorder) log(_ context.Context, event string, _ map[string]any) {
	r.events = append(r.events, event)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		// ULID-length strings keep the order-number suffix slicing realistic.
		return prefixPad(prefix, n)
	}
}

func prefixPad(prefix string, n int) string {
	const alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	suffix := make([]byte, 26-len(prefix))
	for i := range suffix {
		suffix[i] = alphabet[(n+i)%len(alphabet)]
	}
	return prefix + string(suffix)
}
