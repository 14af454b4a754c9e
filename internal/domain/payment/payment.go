package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Mode enumerates the supported ways of paying for an order.
type Mode string

const (
	ModeCash       Mode = "CASH"
	ModeCreditCard Mode = "CREDIT_CARD"
	ModeDebitCard  Mode = "DEBIT_CARD"
	ModeBKash      Mode = "BKASH"
	ModeNagad      Mode = "NAGAD"
	ModeRocket     Mode = "ROCKET"
)

// ErrUnknownMode is returned by ParseMode for unsupported values.
var ErrUnknownMode = errors.New("unknown payment mode")

// ParseMode validates a wire value.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeCash, ModeCreditCard, ModeDebitCard, ModeBKash, ModeNagad, ModeRocket:
		return m, nil
	default:
		return "", errors.Wrapf(ErrUnknownMode, "%q", s)
	}
}

// ChargeRequest asks the payment service to collect the order total.
type ChargeRequest struct {
	OrderID    int64
	Amount     decimal.Decimal
	Mode       Mode
	PayerLabel string
}

// Details is a payment record as reported by the payment service.
type Details struct {
	PaymentID       int64
	OrderID         int64
	Mode            Mode
	ReferenceNumber string
	PaidAt          time.Time
	Status          string
	Amount          decimal.Decimal
}

// Client charges orders.
type Client interface {
	Charge(ctx context.Context, req ChargeRequest) error
}

// QueryClient looks up the payment made for an order.
type QueryClient interface {
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*Details, error)
}
