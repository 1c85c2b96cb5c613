package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

const customerIDPrefix = "cus_"

// Placeholder domain for checkout-created customers; the primary flow collects no email.
const placeholderEmailDomain = "no-email.invalid"

var (
	// ErrCustomerInvalidInput signals the caller provided invalid data.
	ErrCustomerInvalidInput = errors.New("customer: invalid input")
	// ErrCustomerNotFound indicates the customer could not be located.
	ErrCustomerNotFound = errors.New("customer: not found")
	// ErrCustomerDuplicateEmail indicates the email is already registered.
	ErrCustomerDuplicateEmail = errors.New("customer: email already in use")
	// ErrCustomerLegacyReadOnly rejects writes against derived legacy records.
	ErrCustomerLegacyReadOnly = errors.New("customer: cannot modify legacy record")
	// ErrCustomerDeleteBlocked indicates active orders still reference the customer.
	ErrCustomerDeleteBlocked = errors.New("customer: active orders exist")
)

// CustomerDeleteBlockedError carries the active order count for a rejected delete.
type CustomerDeleteBlockedError struct {
	ActiveOrders int
}

// Error implements the error interface.
func (e *CustomerDeleteBlockedError) Error() string {
	return fmt.Sprintf("customer: %d active orders exist", e.ActiveOrders)
}

// Unwrap ties the typed error to its sentinel.
func (e *CustomerDeleteBlockedError) Unwrap() error { return ErrCustomerDeleteBlocked }

// CustomerServiceDeps bundles collaborators required to construct the customer service.
type CustomerServiceDeps struct {
	Customers   repositories.CustomerRepository
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type customerService struct {
	customers repositories.CustomerRepository
	orders    repositories.OrderRepository
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewCustomerService wires dependencies into a concrete CustomerService implementation.
func NewCustomerService(deps CustomerServiceDeps) (CustomerService, error) {
	if deps.Customers == nil {
		return nil, errors.New("customer service: customer repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("customer service: order repository is required")
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

	return &customerService{
		customers: deps.Customers,
		orders:    deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// ResolveCheckoutCustomer returns an existing customer id for the phone, creating a new
// customer when none exists. Every failure path logs and returns the empty string: a
// broken identity lookup must never block a sale.
func (s *customerService) ResolveCheckoutCustomer(ctx context.Context, name, phone string) string {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	if name == "" || phone == "" {
		return ""
	}

	existing, err := s.customers.FindByPhone(ctx, phone)
	if err == nil {
		return existing.ID
	}
	if !isNotFound(err) {
		s.logger(ctx, "customer.resolve.lookup.failed", map[string]any{
			"phone": phone,
			"error": err.Error(),
		})
		return ""
	}

	first, last := splitName(name)
	now := s.clock()
	customer := domain.Customer{
		ID:        customerIDPrefix + s.newID(),
		FirstName: first,
		LastName:  last,
		Email:     placeholderEmail(name, phone),
		Phone:     phone,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.customers.Insert(ctx, customer); err != nil {
		s.logger(ctx, "customer.resolve.create.failed", map[string]any{
			"phone": phone,
			"error": err.Error(),
		})
		return ""
	}
	return customer.ID
}

func (s *customerService) CreateCustomer(ctx context.Context, cmd CreateCustomerCommand) (CustomerProfile, error) {
	first := strings.TrimSpace(cmd.FirstName)
	last := strings.TrimSpace(cmd.LastName)
	email := strings.TrimSpace(cmd.Email)
	phone := strings.TrimSpace(cmd.Phone)

	if first == "" {
		return CustomerProfile{}, fmt.Errorf("%w: first name is required", ErrCustomerInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return CustomerProfile{}, fmt.Errorf("%w: a valid email is required", ErrCustomerInvalidInput)
	}
	if phone == "" {
		return CustomerProfile{}, fmt.Errorf("%w: phone is required", ErrCustomerInvalidInput)
	}

	now := s.clock()
	customer := domain.Customer{
		ID:        customerIDPrefix + s.newID(),
		FirstName: sanitizeText(first),
		LastName:  sanitizeText(last),
		Email:     email,
		Phone:     phone,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.customers.Insert(ctx, customer); err != nil {
		if isConflict(err) {
			return CustomerProfile{}, fmt.Errorf("%w: %s", ErrCustomerDuplicateEmail, email)
		}
		return CustomerProfile{}, s.mapRepositoryError(err)
	}

	return profileFromCustomer(customer, nil), nil
}

func (s *customerService) ListProfiles(ctx context.Context) ([]CustomerProfile, error) {
	customers, err := s.customers.List(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	orders, err := s.orders.List(ctx, repositories.OrderListFilter{})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	if len(customers) == 0 {
		return legacyProfiles(orders), nil
	}

	byCustomer := make(map[string][]Order)
	for _, order := range orders {
		if order.CustomerID == nil {
			continue
		}
		byCustomer[*order.CustomerID] = append(byCustomer[*order.CustomerID], order)
	}

	profiles := make([]CustomerProfile, 0, len(customers))
	for _, customer := range customers {
		profiles = append(profiles, profileFromCustomer(customer, byCustomer[customer.ID]))
	}
	return profiles, nil
}

func (s *customerService) GetProfile(ctx context.Context, ref string) (ProfileWithHistory, error) {
	parsed, err := domain.ParseCustomerRef(ref)
	if err != nil {
		return ProfileWithHistory{}, fmt.Errorf("%w: %v", ErrCustomerInvalidInput, err)
	}

	if parsed.IsLegacy() {
		return s.legacyProfile(ctx, parsed)
	}

	customer, err := s.customers.FindByID(ctx, parsed.ID)
	if err != nil {
		return ProfileWithHistory{}, s.mapRepositoryError(err)
	}

	orders, err := s.orders.List(ctx, repositories.OrderListFilter{
		CustomerID:   customer.ID,
		IncludeItems: true,
	})
	if err != nil {
		return ProfileWithHistory{}, s.mapRepositoryError(err)
	}

	return ProfileWithHistory{
		Profile: profileFromCustomer(customer, orders),
		Orders:  orders,
	}, nil
}

func (s *customerService) legacyProfile(ctx context.Context, ref domain.CustomerRef) (ProfileWithHistory, error) {
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{IncludeItems: true})
	if err != nil {
		return ProfileWithHistory{}, s.mapRepositoryError(err)
	}

	var matched []Order
	for _, order := range orders {
		if order.ShipTo.Name == ref.Name && order.ShipTo.Phone == ref.Phone {
			matched = append(matched, order)
		}
	}
	if len(matched) == 0 {
		return ProfileWithHistory{}, fmt.Errorf("%w: legacy record has no orders", ErrCustomerNotFound)
	}

	return ProfileWithHistory{
		Profile: legacyProfileFromOrders(ref, matched),
		Orders:  matched,
	}, nil
}

func (s *customerService) UpdateCustomer(ctx context.Context, cmd UpdateCustomerCommand) (CustomerProfile, error) {
	parsed, err := domain.ParseCustomerRef(cmd.Ref)
	if err != nil {
		return CustomerProfile{}, fmt.Errorf("%w: %v", ErrCustomerInvalidInput, err)
	}
	if parsed.IsLegacy() {
		return CustomerProfile{}, ErrCustomerLegacyReadOnly
	}

	customer, err := s.customers.FindByID(ctx, parsed.ID)
	if err != nil {
		return CustomerProfile{}, s.mapRepositoryError(err)
	}

	if v := strings.TrimSpace(cmd.FirstName); v != "" {
		customer.FirstName = sanitizeText(v)
	}
	if v := strings.TrimSpace(cmd.LastName); v != "" {
		customer.LastName = sanitizeText(v)
	}
	if v := strings.TrimSpace(cmd.Email); v != "" {
		if !strings.Contains(v, "@") {
			return CustomerProfile{}, fmt.Errorf("%w: a valid email is required", ErrCustomerInvalidInput)
		}
		customer.Email = v
	}
	if v := strings.TrimSpace(cmd.Phone); v != "" {
		customer.Phone = v
	}
	customer.UpdatedAt = s.clock()

	if err := s.customers.Update(ctx, customer); err != nil {
		if isConflict(err) {
			return CustomerProfile{}, fmt.Errorf("%w: %s", ErrCustomerDuplicateEmail, customer.Email)
		}
		return CustomerProfile{}, s.mapRepositoryError(err)
	}

	orders, err := s.orders.List(ctx, repositories.OrderListFilter{CustomerID: customer.ID})
	if err != nil {
		return CustomerProfile{}, s.mapRepositoryError(err)
	}
	return profileFromCustomer(customer, orders), nil
}

func (s *customerService) DeleteCustomer(ctx context.Context, ref string) error {
	parsed, err := domain.ParseCustomerRef(ref)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCustomerInvalidInput, err)
	}
	if parsed.IsLegacy() {
		return ErrCustomerLegacyReadOnly
	}

	if _, err := s.customers.FindByID(ctx, parsed.ID); err != nil {
		return s.mapRepositoryError(err)
	}

	orders, err := s.orders.List(ctx, repositories.OrderListFilter{CustomerID: parsed.ID})
	if err != nil {
		return s.mapRepositoryError(err)
	}

	active := 0
	for _, order := range orders {
		if !order.Status.IsTerminal() {
			active++
		}
	}
	if active > 0 {
		return &CustomerDeleteBlockedError{ActiveOrders: active}
	}

	if err := s.customers.Delete(ctx, parsed.ID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *customerService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCustomerNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCustomerDuplicateEmail, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("customer: repository unavailable: %w", err)
		}
	}
	return err
}

// Helpers --------------------------------------------------------------------

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func splitName(name string) (first, last string) {
	first, last, found := strings.Cut(strings.TrimSpace(name), " ")
	if !found {
		return first, ""
	}
	return first, strings.TrimSpace(last)
}

func placeholderEmail(name, phone string) string {
	slug := strings.ToLower(alphanumeric(name))
	if slug == "" {
		slug = "customer"
	}
	digits := digitsOnly(phone)
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	return fmt.Sprintf("%s%s@%s", slug, digits, placeholderEmailDomain)
}

func profileFromCustomer(customer domain.Customer, orders []Order) CustomerProfile {
	profile := CustomerProfile{
		Ref:       domain.CustomerRef{Kind: domain.CustomerRefID, ID: customer.ID},
		FirstName: customer.FirstName,
		LastName:  customer.LastName,
		Email:     customer.Email,
		Phone:     customer.Phone,
	}
	applyOrderStats(&profile, orders)
	return profile
}

func legacyProfileFromOrders(ref domain.CustomerRef, orders []Order) CustomerProfile {
	first, last := splitName(ref.Name)
	profile := CustomerProfile{
		Ref:       ref,
		FirstName: first,
		LastName:  last,
		Phone:     ref.Phone,
	}
	applyOrderStats(&profile, orders)
	return profile
}

func applyOrderStats(profile *CustomerProfile, orders []Order) {
	profile.TotalOrders = len(orders)
	for _, order := range orders {
		profile.TotalSpent += order.Total
		created := order.CreatedAt
		if profile.FirstOrderAt == nil || created.Before(*profile.FirstOrderAt) {
			t := created
			profile.FirstOrderAt = &t
		}
		if profile.LastOrderAt == nil || created.After(*profile.LastOrderAt) {
			t := created
			profile.LastOrderAt = &t
		}
	}
}

func legacyProfiles(orders []Order) []CustomerProfile {
	type group struct {
		ref    domain.CustomerRef
		orders []Order
	}

	groups := make(map[string]*group)
	keys := make([]string, 0)
	for _, order := range orders {
		name := strings.TrimSpace(order.ShipTo.Name)
		phone := strings.TrimSpace(order.ShipTo.Phone)
		if name == "" && phone == "" {
			continue
		}
		ref := domain.LegacyCustomerRef(name, phone)
		key := ref.String()
		g, ok := groups[key]
		if !ok {
			g = &group{ref: ref}
			groups[key] = g
			keys = append(keys, key)
		}
		g.orders = append(g.orders, order)
	}
	sort.Strings(keys)

	profiles := make([]CustomerProfile, 0, len(groups))
	for _, key := range keys {
		g := groups[key]
		profiles = append(profiles, legacyProfileFromOrders(g.ref, g.orders))
	}
	return profiles
}
