package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/platform/requestctx"
	"github.com/maplecart/api/internal/services"
)

const maxCustomerBodySize = 16 * 1024

type customerWriteRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// CustomerHandlers exposes customer profile management endpoints.
type CustomerHandlers struct {
	customers services.CustomerService
}

// NewCustomerHandlers constructs a new CustomerHandlers instance.
func NewCustomerHandlers(customers services.CustomerService) *CustomerHandlers {
	return &CustomerHandlers{customers: customers}
}

// Routes registers the /customers endpoints.
func (h *CustomerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listCustomers)
	r.Post("/", h.createCustomer)
	r.Get("/{customerID}", h.getCustomer)
	r.Put("/{customerID}", h.updateCustomer)
	r.Delete("/{customerID}", h.deleteCustomer)
}

func (h *CustomerHandlers) listCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}

	profiles, err := h.customers.ListProfiles(ctx)
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}

	items := make([]customerProfilePayload, 0, len(profiles))
	for _, profile := range profiles {
		items = append(items, buildCustomerProfilePayload(profile))
	}
	writeJSONResponse(w, http.StatusOK, customerListResponse{Items: items})
}

func (h *CustomerHandlers) createCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCustomerBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req customerWriteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	profile, err := h.customers.CreateCustomer(ctx, services.CreateCustomerCommand{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
	})
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, customerResponse{Customer: buildCustomerProfilePayload(profile)})
}

func (h *CustomerHandlers) getCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}

	ref := strings.TrimSpace(chi.URLParam(r, "customerID"))
	result, err := h.customers.GetProfile(ctx, ref)
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}

	orders := make([]orderPayload, 0, len(result.Orders))
	for _, order := range result.Orders {
		orders = append(orders, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, customerDetailResponse{
		Customer: buildCustomerProfilePayload(result.Profile),
		Orders:   orders,
	})
}

func (h *CustomerHandlers) updateCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCustomerBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req customerWriteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	profile, err := h.customers.UpdateCustomer(ctx, services.UpdateCustomerCommand{
		Ref:       strings.TrimSpace(chi.URLParam(r, "customerID")),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
	})
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, customerResponse{Customer: buildCustomerProfilePayload(profile)})
}

func (h *CustomerHandlers) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}

	ref := strings.TrimSpace(chi.URLParam(r, "customerID"))
	if err := h.customers.DeleteCustomer(ctx, ref); err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type customerListResponse struct {
	Items []customerProfilePayload `json:"items"`
}

type customerResponse struct {
	Customer customerProfilePayload `json:"customer"`
}

type customerDetailResponse struct {
	Customer customerProfilePayload `json:"customer"`
	Orders   []orderPayload         `json:"orders"`
}

type customerProfilePayload struct {
	ID           string  `json:"id"`
	FirstName    string  `json:"firstName"`
	LastName     string  `json:"lastName,omitempty"`
	Email        string  `json:"email,omitempty"`
	Phone        string  `json:"phone,omitempty"`
	Legacy       bool    `json:"legacy,omitempty"`
	TotalOrders  int     `json:"totalOrders"`
	TotalSpent   float64 `json:"totalSpent"`
	FirstOrderAt string  `json:"firstOrderAt,omitempty"`
	LastOrderAt  string  `json:"lastOrderAt,omitempty"`
}

func buildCustomerProfilePayload(profile services.CustomerProfile) customerProfilePayload {
	return customerProfilePayload{
		ID:           profile.Ref.String(),
		FirstName:    profile.FirstName,
		LastName:     profile.LastName,
		Email:        profile.Email,
		Phone:        profile.Phone,
		Legacy:       profile.Ref.IsLegacy(),
		TotalOrders:  profile.TotalOrders,
		TotalSpent:   profile.TotalSpent,
		FirstOrderAt: formatTimePtr(profile.FirstOrderAt),
		LastOrderAt:  formatTimePtr(profile.LastOrderAt),
	}
}

func writeCustomerError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var blocked *services.CustomerDeleteBlockedError
	switch {
	case errors.As(err, &blocked):
		httpx.WriteError(ctx, w, httpx.NewError("customer_delete_blocked", "customer has active orders", http.StatusBadRequest).
			WithDetails(map[string]any{"activeOrdersCount": blocked.ActiveOrders}))
	case errors.Is(err, services.ErrCustomerInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCustomerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("customer_not_found", "customer not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCustomerDuplicateEmail):
		httpx.WriteError(ctx, w, httpx.NewError("customer_email_in_use", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCustomerLegacyReadOnly):
		httpx.WriteError(ctx, w, httpx.NewError("customer_legacy_readonly", "legacy customer records are read-only", http.StatusBadRequest))
	default:
		requestctx.Logger(ctx).Error("customer request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal", "failed to process customer request", http.StatusInternalServerError))
	}
}
