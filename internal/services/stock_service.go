package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

var (
	// ErrStockInvalidInput signals the caller provided invalid data.
	ErrStockInvalidInput = errors.New("stock: invalid input")
	// ErrStockProductNotFound indicates the product (or variant) row does not exist.
	ErrStockProductNotFound = errors.New("stock: product not found")
	// ErrStockInsufficient indicates a subtract would drive the counter negative.
	ErrStockInsufficient = errors.New("stock: insufficient quantity")
)

// InsufficientStockError reports how far a subtract overshoots the counter.
type InsufficientStockError struct {
	ProductID string
	Available int
	Required  int
}

// Error implements the error interface.
func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock: %s has %d available, %d required", e.ProductID, e.Available, e.Required)
}

// Unwrap ties the typed error to its sentinel.
func (e *InsufficientStockError) Unwrap() error { return ErrStockInsufficient }

// StockServiceDeps bundles collaborators required to construct the stock service.
type StockServiceDeps struct {
	Products repositories.ProductRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type stockService struct {
	products repositories.ProductRepository
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewStockService wires dependencies into a concrete StockService implementation.
func NewStockService(deps StockServiceDeps) (StockService, error) {
	if deps.Products == nil {
		return nil, errors.New("stock service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &stockService{
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Adjust applies a single counter mutation. The transaction in the repository rejects a
// subtract below zero without writing; that surfaces here as InsufficientStockError.
func (s *stockService) Adjust(ctx context.Context, cmd StockAdjustCommand) (StockLevel, error) {
	operation, err := parseOperation(cmd.Operation)
	if err != nil {
		return StockLevel{}, err
	}
	if strings.TrimSpace(cmd.ProductID) == "" {
		return StockLevel{}, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
	}
	if cmd.Quantity < 0 {
		return StockLevel{}, fmt.Errorf("%w: quantity must not be negative", ErrStockInvalidInput)
	}

	level, err := s.products.AdjustStock(ctx, repositories.StockAdjustment{
		ProductID: strings.TrimSpace(cmd.ProductID),
		VariantID: strings.TrimSpace(cmd.VariantID),
		Operation: operation,
		Quantity:  cmd.Quantity,
		Now:       s.clock(),
	})
	if err != nil {
		return StockLevel{}, s.mapStockError(cmd.ProductID, err)
	}
	return level, nil
}

// AdjustBatch processes lines strictly sequentially, each in its own transaction, so a
// failed line never disturbs the others and error attribution stays deterministic.
func (s *stockService) AdjustBatch(ctx context.Context, cmd StockBatchCommand) (StockBatchResult, error) {
	operation, err := parseOperation(cmd.Operation)
	if err != nil {
		return StockBatchResult{}, err
	}
	if len(cmd.Lines) == 0 {
		return StockBatchResult{}, fmt.Errorf("%w: at least one line is required", ErrStockInvalidInput)
	}

	result := StockBatchResult{
		Results: make([]StockLevel, 0, len(cmd.Lines)),
		Errors:  make([]StockLineError, 0),
	}

	for _, line := range cmd.Lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" || line.Quantity < 0 {
			result.Errors = append(result.Errors, StockLineError{
				ProductID: productID,
				Message:   "invalid line: product id and non-negative quantity required",
			})
			continue
		}

		level, err := s.products.AdjustStock(ctx, repositories.StockAdjustment{
			ProductID: productID,
			VariantID: strings.TrimSpace(line.VariantID),
			Operation: operation,
			Quantity:  line.Quantity,
			Now:       s.clock(),
		})
		if err != nil {
			result.Errors = append(result.Errors, batchLineError(productID, err))
			s.logger(ctx, "stock.batch.line.failed", map[string]any{
				"product": productID,
				"error":   err.Error(),
			})
			continue
		}
		result.Results = append(result.Results, level)
	}

	result.Summary = StockBatchSummary{
		TotalItems: len(cmd.Lines),
		Successful: len(result.Results),
		Failed:     len(result.Errors),
	}
	result.Success = result.Summary.Successful > 0
	return result, nil
}

func parseOperation(op string) (domain.StockOperation, error) {
	switch domain.StockOperation(strings.ToLower(strings.TrimSpace(op))) {
	case domain.StockOpSet:
		return domain.StockOpSet, nil
	case domain.StockOpAdd:
		return domain.StockOpAdd, nil
	case domain.StockOpSubtract:
		return domain.StockOpSubtract, nil
	default:
		return "", fmt.Errorf("%w: operation must be set, add, or subtract", ErrStockInvalidInput)
	}
}

func (s *stockService) mapStockError(productID string, err error) error {
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorProductNotFound, repositories.StockErrorVariantNotFound:
			return fmt.Errorf("%w: %s", ErrStockProductNotFound, productID)
		case repositories.StockErrorInsufficient:
			return &InsufficientStockError{
				ProductID: productID,
				Available: stockErr.Available,
				Required:  stockErr.Required,
			}
		case repositories.StockErrorInvalidOperation:
			return fmt.Errorf("%w: %s", ErrStockInvalidInput, stockErr.Message)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %s", ErrStockProductNotFound, productID)
	}
	return err
}

func batchLineError(productID string, err error) StockLineError {
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorProductNotFound, repositories.StockErrorVariantNotFound:
			return StockLineError{ProductID: productID, Message: "product not found"}
		case repositories.StockErrorInsufficient:
			return StockLineError{
				ProductID: productID,
				Message:   "insufficient stock",
				Available: stockErr.Available,
				Required:  stockErr.Required,
			}
		}
	}
	return StockLineError{ProductID: productID, Message: err.Error()}
}
