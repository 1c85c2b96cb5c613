package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const (
	productsCollection = "products"
	variantsSubcol     = "variants"
)

// ProductRepository reads catalog rows and mutates stock counters. Adjustments run
// inside a transaction so the read-check-write cycle cannot interleave with a
// concurrent adjustment against the same counter.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a ProductRepository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil),
	}, nil
}

// FindByID fetches a single product row.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// AdjustStock applies the adjustment transactionally. A subtract whose result would be
// negative aborts without writing and reports the available and required amounts.
func (r *ProductRepository) AdjustStock(ctx context.Context, adj repositories.StockAdjustment) (domain.StockLevel, error) {
	switch adj.Operation {
	case domain.StockOpSet, domain.StockOpAdd, domain.StockOpSubtract:
	default:
		return domain.StockLevel{}, repositories.NewStockError(repositories.StockErrorInvalidOperation,
			fmt.Sprintf("unknown stock operation %q", adj.Operation), nil)
	}

	now := adj.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var level domain.StockLevel
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		productRef, err := r.products.DocumentRef(ctx, adj.ProductID)
		if err != nil {
			return err
		}

		targetRef := productRef
		if strings.TrimSpace(adj.VariantID) != "" {
			targetRef = productRef.Collection(variantsSubcol).Doc(adj.VariantID)
		}

		snap, err := tx.Get(targetRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				code := repositories.StockErrorProductNotFound
				if targetRef != productRef {
					code = repositories.StockErrorVariantNotFound
				}
				return repositories.NewStockError(code, fmt.Sprintf("product %s not found", adj.ProductID), err)
			}
			return err
		}

		current, err := readQuantity(snap, targetRef != productRef)
		if err != nil {
			return err
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
				stockErr := repositories.NewStockError(repositories.StockErrorInsufficient,
					fmt.Sprintf("insufficient stock for %s", adj.ProductID), nil)
				stockErr.Available = current
				stockErr.Required = adj.Quantity
				return stockErr
			}
		}

		field := "quantity"
		if targetRef != productRef {
			field = "stockQuantity"
		}
		if err := tx.Update(targetRef, []firestore.Update{
			{Path: field, Value: next},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}

		level = domain.StockLevel{
			ProductID:        adj.ProductID,
			VariantID:        adj.VariantID,
			PreviousQuantity: current,
			NewQuantity:      next,
			UpdatedAt:        now,
		}
		return nil
	})
	if err != nil {
		return domain.StockLevel{}, wrapStockError("products.adjustStock", err)
	}
	return level, nil
}

func readQuantity(snap *firestore.DocumentSnapshot, variant bool) (int, error) {
	if variant {
		var doc variantDocument
		if err := snap.DataTo(&doc); err != nil {
			return 0, fmt.Errorf("decode variant %s: %w", snap.Ref.ID, err)
		}
		return doc.StockQuantity, nil
	}
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return 0, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
	}
	return doc.Quantity, nil
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}

// Helper structures ---------------------------------------------------------

type productDocument struct {
	Name        string    `firestore:"name"`
	ProductCode string    `firestore:"productCode"`
	Price       float64   `firestore:"price"`
	Quantity    int       `firestore:"quantity"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

type variantDocument struct {
	Size            string    `firestore:"size"`
	Color           string    `firestore:"color"`
	PriceAdjustment float64   `firestore:"priceAdjustment"`
	StockQuantity   int       `firestore:"stockQuantity"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func (p productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:          id,
		Name:        p.Name,
		ProductCode: p.ProductCode,
		Price:       p.Price,
		Quantity:    p.Quantity,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
