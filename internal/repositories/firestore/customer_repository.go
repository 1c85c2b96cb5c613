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
)

const (
	customersCollection      = "customers"
	customerEmailsCollection = "customerEmails"
)

// CustomerRepository persists customers in Firestore. Email uniqueness is enforced by
// an index document keyed on the lowercased email, created in the same transaction as
// the customer write.
type CustomerRepository struct {
	provider  *pfirestore.Provider
	customers *pfirestore.BaseRepository[customerDocument]
	emails    *pfirestore.BaseRepository[emailIndexDocument]
}

// NewCustomerRepository constructs a CustomerRepository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{
		provider:  provider,
		customers: pfirestore.NewBaseRepository[customerDocument](provider, customersCollection, nil),
		emails:    pfirestore.NewBaseRepository[emailIndexDocument](provider, customerEmailsCollection, nil),
	}, nil
}

// Insert writes the customer and reserves its email. A taken email aborts the
// transaction with a conflict error.
func (r *CustomerRepository) Insert(ctx context.Context, customer domain.Customer) error {
	if strings.TrimSpace(customer.ID) == "" {
		return errors.New("customer insert: id is required")
	}

	doc := newCustomerDocument(customer)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		custRef, err := r.customers.DocumentRef(ctx, customer.ID)
		if err != nil {
			return err
		}
		emailRef, err := r.emails.DocumentRef(ctx, emailKey(customer.Email))
		if err != nil {
			return err
		}
		if err := tx.Create(emailRef, emailIndexDocument{CustomerRef: customer.ID, CreatedAt: doc.CreatedAt}); err != nil {
			return err
		}
		return tx.Create(custRef, doc)
	})
	return pfirestore.WrapError("customers.insert", err)
}

// Update rewrites the customer. When the email changes, the old index document is
// released and the new one claimed in the same transaction.
func (r *CustomerRepository) Update(ctx context.Context, customer domain.Customer) error {
	if strings.TrimSpace(customer.ID) == "" {
		return errors.New("customer update: id is required")
	}

	doc := newCustomerDocument(customer)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		custRef, err := r.customers.DocumentRef(ctx, customer.ID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(custRef)
		if err != nil {
			return err
		}
		var existing customerDocument
		if err := snap.DataTo(&existing); err != nil {
			return fmt.Errorf("decode customer %s: %w", customer.ID, err)
		}

		if emailKey(existing.Email) != emailKey(customer.Email) {
			oldRef, err := r.emails.DocumentRef(ctx, emailKey(existing.Email))
			if err != nil {
				return err
			}
			newRef, err := r.emails.DocumentRef(ctx, emailKey(customer.Email))
			if err != nil {
				return err
			}
			if err := tx.Delete(oldRef); err != nil {
				return err
			}
			if err := tx.Create(newRef, emailIndexDocument{CustomerRef: customer.ID, CreatedAt: doc.UpdatedAt}); err != nil {
				return err
			}
		}

		doc.CreatedAt = existing.CreatedAt
		return tx.Set(custRef, doc)
	})
	return pfirestore.WrapError("customers.update", err)
}

// Delete removes the customer row and releases its email index entry.
func (r *CustomerRepository) Delete(ctx context.Context, customerID string) error {
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		custRef, err := r.customers.DocumentRef(ctx, customerID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(custRef)
		if err != nil {
			return err
		}
		var existing customerDocument
		if err := snap.DataTo(&existing); err != nil {
			return fmt.Errorf("decode customer %s: %w", customerID, err)
		}

		emailRef, err := r.emails.DocumentRef(ctx, emailKey(existing.Email))
		if err != nil {
			return err
		}
		if err := tx.Delete(emailRef); err != nil {
			return err
		}
		return tx.Delete(custRef)
	})
	return pfirestore.WrapError("customers.delete", err)
}

// FindByID fetches a single customer.
func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	doc, err := r.customers.Get(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByPhone returns the first customer registered under the phone number.
func (r *CustomerRepository) FindByPhone(ctx context.Context, phone string) (domain.Customer, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return domain.Customer{}, pfirestore.WrapError("customers.findByPhone", status.Error(codes.NotFound, "phone is empty"))
	}

	docs, err := r.customers.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("phone", "==", phone).Limit(1)
	})
	if err != nil {
		return domain.Customer{}, err
	}
	if len(docs) == 0 {
		return domain.Customer{}, pfirestore.WrapError("customers.findByPhone", status.Errorf(codes.NotFound, "customer with phone %s not found", phone))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// FindByEmail returns the customer owning the email, via the uniqueness index.
func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	idx, err := r.emails.Get(ctx, emailKey(email))
	if err != nil {
		return domain.Customer{}, err
	}
	return r.FindByID(ctx, idx.Data.CustomerRef)
}

// List returns all customers ordered by creation time.
func (r *CustomerRepository) List(ctx context.Context) ([]domain.Customer, error) {
	docs, err := r.customers.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	customers := make([]domain.Customer, 0, len(docs))
	for _, doc := range docs {
		customers = append(customers, doc.Data.toDomain(doc.ID))
	}
	return customers, nil
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Helper structures ---------------------------------------------------------

type customerDocument struct {
	FirstName string    `firestore:"firstName"`
	LastName  string    `firestore:"lastName"`
	Email     string    `firestore:"email"`
	Phone     string    `firestore:"phone"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type emailIndexDocument struct {
	CustomerRef string    `firestore:"customerRef"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func newCustomerDocument(customer domain.Customer) customerDocument {
	return customerDocument{
		FirstName: strings.TrimSpace(customer.FirstName),
		LastName:  strings.TrimSpace(customer.LastName),
		Email:     strings.TrimSpace(customer.Email),
		Phone:     strings.TrimSpace(customer.Phone),
		CreatedAt: customer.CreatedAt.UTC(),
		UpdatedAt: customer.UpdatedAt.UTC(),
	}
}

func (c customerDocument) toDomain(id string) domain.Customer {
	return domain.Customer{
		ID:        id,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Email:     c.Email,
		Phone:     c.Phone,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
