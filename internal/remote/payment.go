package remote

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/tulip-tech/order-service/internal/domain/payment"
)

var (
	_ payment.Client      = (*PaymentClient)(nil)
	_ payment.QueryClient = (*PaymentClient)(nil)
)

// PaymentClient talks to the payment service.
type PaymentClient struct {
	c *client
}

// NewPaymentClient creates a PaymentClient for cfg.URL.
func NewPaymentClient(cfg Config, opts ...Option) (*PaymentClient, error) {
	c, err := newClient("payment-service", cfg, opts)
	if err != nil {
		return nil, err
	}
	return &PaymentClient{c: c}, nil
}

// Charge requests a payment for an order.
func (p *PaymentClient) Charge(ctx context.Context, req payment.ChargeRequest) error {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orderId")
	e.Int64(req.OrderID)
	e.FieldStart("amount")
	e.Num(jx.Num(req.Amount.String()))
	e.FieldStart("paymentMode")
	e.Str(string(req.Mode))
	e.FieldStart("referenceNumber")
	e.Str(req.PayerLabel)
	e.ObjEnd()

	return p.c.do(ctx, http.MethodPost, "/payment", nil, e.Bytes(), nil)
}

// GetPaymentByOrderID fetches the payment recorded for an order.
func (p *PaymentClient) GetPaymentByOrderID(ctx context.Context, orderID int64) (*payment.Details, error) {
	var details payment.Details
	err := p.c.do(ctx, http.MethodGet, "/payment/order/"+strconv.FormatInt(orderID, 10), nil, nil, func(d *jx.Decoder) error {
		return decodePayment(d, &details)
	})
	if err != nil {
		return nil, err
	}
	return &details, nil
}

func decodePayment(d *jx.Decoder, p *payment.Details) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "paymentId":
			p.PaymentID, err = d.Int64()
		case "orderId":
			p.OrderID, err = d.Int64()
		case "paymentMode":
			var v string
			v, err = decodeOptStr(d)
			p.Mode = payment.Mode(v)
		case "referenceNumber":
			p.ReferenceNumber, err = decodeOptStr(d)
		case "paymentDate":
			p.PaidAt, err = decodeTime(d)
		case "status":
			p.Status, err = decodeOptStr(d)
		case "amount":
			p.Amount, err = decodeDecimal(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
}

// decodeTime accepts an RFC 3339 string or epoch seconds, possibly
// fractional.
func decodeTime(d *jx.Decoder) (time.Time, error) {
	switch d.Next() {
	case jx.Null:
		return time.Time{}, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return time.Time{}, err
		}
		return time.Parse(time.RFC3339Nano, s)
	default:
		n, err := d.Num()
		if err != nil {
			return time.Time{}, err
		}
		secs, err := decimal.NewFromString(string(n))
		if err != nil {
			return time.Time{}, err
		}
		whole := secs.IntPart()
		nanos := secs.Sub(decimal.NewFromInt(whole)).Shift(9).IntPart()
		return time.Unix(whole, nanos).UTC(), nil
	}
}
