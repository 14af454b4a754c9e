package product

import (
	"context"

	"github.com/shopspring/decimal"
)

// Details is the product data the product service reports for a catalog item.
type Details struct {
	ProductID int64
	Name      string
	Price     decimal.Decimal
	Quantity  int64
}

// InventoryClient reserves stock in the product service.
type InventoryClient interface {
	ReduceQuantity(ctx context.Context, productID, quantity int64) error
}

// Client reads product details from the product service.
type Client interface {
	GetProductByID(ctx context.Context, productID int64) (*Details, error)
}
