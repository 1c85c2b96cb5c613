package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/platform/requestctx"
	"github.com/maplecart/api/internal/services"
)

const maxStockBodySize = 128 * 1024

type stockAdjustRequest struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Operation string `json:"operation"`
	Quantity  int    `json:"quantity"`
}

type stockBatchRequest struct {
	Operation  string           `json:"operation"`
	OrderItems []stockBatchLine `json:"orderItems"`
}

type stockBatchLine struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

// StockHandlers exposes the inventory adjustment endpoints under /products.
type StockHandlers struct {
	stock services.StockService
}

// NewStockHandlers constructs a new StockHandlers instance.
func NewStockHandlers(stock services.StockService) *StockHandlers {
	return &StockHandlers{stock: stock}
}

// Routes registers the /products/stock endpoints.
func (h *StockHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Put("/stock", h.adjustStock)
	r.Post("/stock", h.adjustStockBatch)
}

func (h *StockHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_service_unavailable", "stock service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxStockBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req stockAdjustRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	level, err := h.stock.Adjust(ctx, services.StockAdjustCommand{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Operation: req.Operation,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildStockLevelPayload(level))
}

func (h *StockHandlers) adjustStockBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_service_unavailable", "stock service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxStockBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req stockBatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.StockBatchCommand{
		Operation: req.Operation,
		Lines:     make([]services.StockBatchLine, 0, len(req.OrderItems)),
	}
	for _, line := range req.OrderItems {
		cmd.Lines = append(cmd.Lines, services.StockBatchLine{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
		})
	}

	result, err := h.stock.AdjustBatch(ctx, cmd)
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}

	response := stockBatchResponse{
		Success: result.Success,
		Results: make([]stockLevelPayload, 0, len(result.Results)),
		Errors:  make([]stockLineErrorPayload, 0, len(result.Errors)),
		Summary: stockBatchSummaryPayload{
			TotalItems: result.Summary.TotalItems,
			Successful: result.Summary.Successful,
			Failed:     result.Summary.Failed,
		},
	}
	for _, level := range result.Results {
		response.Results = append(response.Results, buildStockLevelPayload(level))
	}
	for _, lineErr := range result.Errors {
		payload := stockLineErrorPayload{
			ProductID: lineErr.ProductID,
			Message:   lineErr.Message,
		}
		if lineErr.Required > 0 {
			payload.Available = &lineErr.Available
			payload.Required = &lineErr.Required
		}
		response.Errors = append(response.Errors, payload)
	}

	// A batch where no line succeeded is reported as a request failure.
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	writeJSONResponse(w, status, response)
}

type stockLevelPayload struct {
	ProductID        string `json:"productId"`
	VariantID        string `json:"variantId,omitempty"`
	PreviousQuantity int    `json:"previousQuantity"`
	NewQuantity      int    `json:"newQuantity"`
	UpdatedAt        string `json:"updatedAt,omitempty"`
}

type stockLineErrorPayload struct {
	ProductID string `json:"productId"`
	Message   string `json:"message"`
	Available *int   `json:"available,omitempty"`
	Required  *int   `json:"required,omitempty"`
}

type stockBatchSummaryPayload struct {
	TotalItems int `json:"totalItems"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

type stockBatchResponse struct {
	Success bool                     `json:"success"`
	Results []stockLevelPayload      `json:"results"`
	Errors  []stockLineErrorPayload  `json:"errors"`
	Summary stockBatchSummaryPayload `json:"summary"`
}

func buildStockLevelPayload(level services.StockLevel) stockLevelPayload {
	return stockLevelPayload{
		ProductID:        level.ProductID,
		VariantID:        level.VariantID,
		PreviousQuantity: level.PreviousQuantity,
		NewQuantity:      level.NewQuantity,
		UpdatedAt:        formatTime(level.UpdatedAt),
	}
}

func writeStockError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var insufficient *services.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		httpx.WriteError(ctx, w, httpx.NewError("stock_insufficient", err.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{
				"available": insufficient.Available,
				"required":  insufficient.Required,
			}))
	case errors.Is(err, services.ErrStockInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrStockProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	default:
		requestctx.Logger(ctx).Error("stock request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal", "failed to process stock request", http.StatusInternalServerError))
	}
}
