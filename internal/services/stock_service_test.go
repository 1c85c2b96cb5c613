package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

// stockCounterRepo mimics the transactional counter semantics of the real
// product repository against an in-memory map.
type stockCounterRepo struct {
	quantities map[string]int
}

func (r *stockCounterRepo) FindByID(_ context.Context, id string) (domain.Product, error) {
	qty, ok := r.quantities[id]
	if !ok {
		return domain.Product{}, notFoundErr("product missing")
	}
	return domain.Product{ID: id, Quantity: qty}, nil
}

func (r *stockCounterRepo) AdjustStock(_ context.Context, adj repositories.StockAdjustment) (domain.StockLevel, error) {
	current, ok := r.quantities[adj.ProductID]
	if !ok {
		return domain.StockLevel{}, repositories.NewStockError(repositories.StockErrorProductNotFound, "product not found", nil)
	}

	next := current
	switch adj.Operation {
	case domain.StockOpSet:
		next = adj.Quantity
	case domain.StockOpAdd:
		next = current + adj.Quantity
	case domain.StockOpSubtract:
		next = current - adj.Quantity
		if next < 0 {
			err := repositories.NewStockError(repositories.StockErrorInsufficient, "insufficient stock", nil)
			err.Available = current
			err.Required = adj.Quantity
			return domain.StockLevel{}, err
		}
	}

	r.quantities[adj.ProductID] = next
	return domain.StockLevel{
		ProductID:        adj.ProductID,
		VariantID:        adj.VariantID,
		PreviousQuantity: current,
		NewQuantity:      next,
		UpdatedAt:        adj.Now,
	}, nil
}

func newTestStockService(t *testing.T, repo repositories.ProductRepository, logger func(context.Context, string, map[string]any)) StockService {
	t.Helper()
	svc, err := NewStockService(StockServiceDeps{
		Products: repo,
		Clock:    fixedClock(time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)),
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("NewStockService: %v", err)
	}
	return svc
}

func TestAdjustOperations(t *testing.T) {
	repo := &stockCounterRepo{quantities: map[string]int{"p1": 10}}
	svc := newTestStockService(t, repo, nil)

	level, err := svc.Adjust(context.Background(), StockAdjustCommand{ProductID: "p1", Operation: "add", Quantity: 5})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if level.PreviousQuantity != 10 || level.NewQuantity != 15 {
		t.Fatalf("add: got %d to %d", level.PreviousQuantity, level.NewQuantity)
	}

	level, err = svc.Adjust(context.Background(), StockAdjustCommand{ProductID: "p1", Operation: "SET", Quantity: 3})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if level.NewQuantity != 3 {
		t.Fatalf("set: got %d", level.NewQuantity)
	}

	level, err = svc.Adjust(context.Background(), StockAdjustCommand{ProductID: "p1", Operation: "subtract", Quantity: 1})
	if err != nil {
		t.Fatalf("subtract: %v", err)
	}
	if level.NewQuantity != 2 {
		t.Fatalf("subtract: got %d", level.NewQuantity)
	}
}

func TestAdjustInsufficientStock(t *testing.T) {
	repo := &stockCounterRepo{quantities: map[string]int{"p1": 3}}
	svc := newTestStockService(t, repo, nil)

	_, err := svc.Adjust(context.Background(), StockAdjustCommand{ProductID: "p1", Operation: "subtract", Quantity: 5})
	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insufficient.Available != 3 || insufficient.Required != 5 {
		t.Fatalf("unexpected quantities in %v", insufficient)
	}
	if !errors.Is(err, ErrStockInsufficient) {
		t.Fatal("typed error must unwrap to the sentinel")
	}
	if repo.quantities["p1"] != 3 {
		t.Fatalf("rejected subtract must not write, counter is %d", repo.quantities["p1"])
	}
}

func TestAdjustValidation(t *testing.T) {
	repo := &stockCounterRepo{quantities: map[string]int{"p1": 3}}
	svc := newTestStockService(t, repo, nil)

	cases := map[string]StockAdjustCommand{
		"unknown operation": {ProductID: "p1", Operation: "increment", Quantity: 1},
		"missing product":   {Operation: "add", Quantity: 1},
		"negative quantity": {ProductID: "p1", Operation: "add", Quantity: -1},
	}
	for name, cmd := range cases {
		if _, err := svc.Adjust(context.Background(), cmd); !errors.Is(err, ErrStockInvalidInput) {
			t.Fatalf("%s: expected ErrStockInvalidInput, got %v", name, err)
		}
	}
}

func TestAdjustUnknownProduct(t *testing.T) {
	repo := &stockCounterRepo{quantities: map[string]int{}}
	svc := newTestStockService(t, repo, nil)

	_, err := svc.Adjust(context.Background(), StockAdjustCommand{ProductID: "ghost", Operation: "add", Quantity: 1})
	if !errors.Is(err, ErrStockProductNotFound) {
		t.Fatalf("expected ErrStockProductNotFound, got %v", err)
	}
}

func TestAdjustBatchPartialFailure(t *testing.T) {
	repo := &stockCounterRepo{quantities: map[string]int{"p1": 10}}
	recorder := &logRecorder{}
	svc := newTestStockService(t, repo, recorder.log)

	result, err := svc.AdjustBatch(context.Background(), StockBatchCommand{
		Operation: "add",
		Lines: []StockBatchLine{
			{ProductID: "p1", Quantity: 5},
			{ProductID: "ghost", Quantity: 5},
		},
	})
	if err != nil {
		t.Fatalf("AdjustBatch: %v", err)
	}

	if !result.Success {
		t.Error("one successful line must make the batch successful")
	}
	if len(result.Results) != 1 || result.Results[0].ProductID != "p1" {
		t.Fatalf("unexpected results %#v", result.Results)
	}
	if len(result.Errors) != 1 || result.Errors[0].ProductID != "ghost" {
		t.Fatalf("unexpected errors %#v", result.Errors)
	}
	if result.Errors[0].Message != "product not found" {
		t.Errorf("unexpected line error message %q", result.Errors[0].Message)
	}
	if len(recorder.events) != 1 || recorder.events[0] != "stock.batch.line.failed" {
		t.Errorf("expected one failure log, got %v", recorder.events)
	}

	summary := result.Summary
	if summary.TotalItems != 2 || summary.Successful != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %#v", summary)
	}
	if summary.Successful+summary.Failed != summary.TotalItems {
		t.Fatal("summary must partition the lines")
	}
}

func TestAdjustBatchAllFailed(t *testing.T) {
	repo := &stockCounterRepo{quantities: map[string]int{"p1": 2}}
	svc := newTestStockService(t, repo, nil)

	result, err := svc.AdjustBatch(context.Background(), StockBatchCommand{
		Operation: "subtract",
		Lines: []StockBatchLine{
			{ProductID: "p1", Quantity: 5},
			{ProductID: "", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("AdjustBatch: %v", err)
	}
	if result.Success {
		t.Error("batch with zero successful lines must not be successful")
	}
	if result.Summary.Successful != 0 || result.Summary.Failed != 2 {
		t.Fatalf("unexpected summary %#v", result.Summary)
	}

	insufficient := result.Errors[0]
	if insufficient.Message != "insufficient stock" || insufficient.Available != 2 || insufficient.Required != 5 {
		t.Fatalf("unexpected insufficient line %#v", insufficient)
	}
}

func TestAdjustBatchRejectsEmptyInput(t *testing.T) {
	repo := &stockCounterRepo{quantities: map[string]int{}}
	svc := newTestStockService(t, repo, nil)

	if _, err := svc.AdjustBatch(context.Background(), StockBatchCommand{Operation: "add"}); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput for empty batch, got %v", err)
	}
	if _, err := svc.AdjustBatch(context.Background(), StockBatchCommand{Operation: "bogus", Lines: []StockBatchLine{{ProductID: "p1", Quantity: 1}}}); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput for bad operation, got %v", err)
	}
}
