package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tulip-tech/order-service/internal/domain/payment"
	"github.com/tulip-tech/order-service/internal/domain/product"
)

// Status is a free-form lifecycle label of an order record.
type Status string

const (
	// StatusCreated is assigned to every record written by PlaceOrder.
	StatusCreated  Status = "CREATED"
	StatusAccepted Status = "ACCEPT"
)

// Record is a persisted order. The store assigns ID on Save.
type Record struct {
	ID          int64
	ProductID   int64
	Quantity    int64
	Status      Status
	CreatedAt   time.Time
	TotalAmount decimal.Decimal
	PaymentMode payment.Mode
}

// Enriched is a Record with best-effort product and payment data attached.
// A nil slot means the corresponding fetch failed.
type Enriched struct {
	Record
	Product *product.Details
	Payment *payment.Details
}

// Store defines persistence operations for order records.
type Store interface {
	// Save persists r and returns the stored copy carrying its new ID.
	Save(ctx context.Context, r *Record) (*Record, error)
	// FindAll returns every record in storage order. A nil slice is only
	// valid together with an error.
	FindAll(ctx context.Context) ([]Record, error)
}
