package remote

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/tulip-tech/order-service/internal/domain/product"
)

var (
	_ product.InventoryClient = (*ProductClient)(nil)
	_ product.Client          = (*ProductClient)(nil)
)

// ProductClient talks to the product service. It reduces stock during
// order placement and fetches product details during listing.
type ProductClient struct {
	c *client
}

// NewProductClient creates a ProductClient for cfg.URL.
func NewProductClient(cfg Config, opts ...Option) (*ProductClient, error) {
	c, err := newClient("product-service", cfg, opts)
	if err != nil {
		return nil, err
	}
	return &ProductClient{c: c}, nil
}

// ReduceQuantity reserves quantity units of productID.
func (p *ProductClient) ReduceQuantity(ctx context.Context, productID, quantity int64) error {
	q := url.Values{"quantity": {strconv.FormatInt(quantity, 10)}}
	path := "/product/reduceQuantity/" + strconv.FormatInt(productID, 10)
	return p.c.do(ctx, http.MethodPut, path, q, nil, nil)
}

// GetProductByID fetches the details of a product.
func (p *ProductClient) GetProductByID(ctx context.Context, id int64) (*product.Details, error) {
	var details product.Details
	err := p.c.do(ctx, http.MethodGet, "/product/"+strconv.FormatInt(id, 10), nil, nil, func(d *jx.Decoder) error {
		return decodeProduct(d, &details)
	})
	if err != nil {
		return nil, err
	}
	return &details, nil
}

func decodeProduct(d *jx.Decoder, p *product.Details) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "productId":
			p.ProductID, err = d.Int64()
		case "productName":
			p.Name, err = decodeOptStr(d)
		case "price":
			p.Price, err = decodeDecimal(d)
		case "quantity":
			p.Quantity, err = d.Int64()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Null:
		return decimal.Zero, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	}
}

func decodeOptStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}
