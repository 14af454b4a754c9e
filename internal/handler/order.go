package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/tulip-tech/order-service/internal/domain/order"
	"github.com/tulip-tech/order-service/internal/domain/payment"
	"github.com/tulip-tech/order-service/internal/domain/product"
)

// PlaceOrder handles POST /order/placeOrder. It responds with the new order
// id as a bare JSON number.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	req, err := decodePlaceOrder(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.placer.PlaceOrder(r.Context(), req)
	if err != nil {
		status, message := mapPlacementError(err)
		writeError(w, r, status, message)
		return
	}

	var e jx.Encoder
	e.Int64(id)
	writeJSON(w, http.StatusOK, &e)
}

// ListOrders handles GET /order.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.lister.ListEnrichedOrders(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "orders are unavailable")
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for i := range orders {
		encodeOrder(&e, &orders[i])
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}

// mapPlacementError converts a placement outcome to a status and message.
func mapPlacementError(err error) (int, string) {
	var perr *order.PlacementError
	if !errors.As(err, &perr) {
		return http.StatusInternalServerError, "unexpected error"
	}

	switch perr.Category {
	case order.CategoryUnavailable:
		return http.StatusServiceUnavailable, perr.Message
	case order.CategoryClientError:
		status := perr.Status
		if status < 400 || status > 499 {
			status = http.StatusBadRequest
		}
		return status, perr.Message
	default:
		return http.StatusInternalServerError, perr.Message
	}
}

func decodePlaceOrder(body []byte) (order.PlaceOrderRequest, error) {
	var (
		req  order.PlaceOrderRequest
		mode string
		seen = map[string]bool{}
	)
	if len(body) == 0 {
		return req, errors.New("empty request body")
	}

	err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		k := string(key)
		var err error
		switch k {
		case "productId":
			req.ProductID, err = d.Int64()
		case "quantity":
			req.Quantity, err = d.Int64()
		case "totalAmount":
			var n jx.Num
			if n, err = d.Num(); err == nil {
				req.TotalAmount, err = decimal.NewFromString(string(n))
			}
		case "paymentMode":
			mode, err = d.Str()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, k)
		}
		seen[k] = true
		return nil
	})
	if err != nil {
		return req, errors.Wrap(err, "invalid request body")
	}

	for _, k := range []string{"productId", "quantity", "totalAmount", "paymentMode"} {
		if !seen[k] {
			return req, errors.Errorf("missing field %q", k)
		}
	}
	switch {
	case req.ProductID <= 0:
		return req, errors.New("productId must be positive")
	case req.Quantity <= 0:
		return req, errors.New("quantity must be positive")
	case req.TotalAmount.IsNegative():
		return req, errors.New("totalAmount must not be negative")
	}

	req.PaymentMode, err = payment.ParseMode(mode)
	if err != nil {
		return req, err
	}
	return req, nil
}

func encodeOrder(e *jx.Encoder, o *order.Enriched) {
	e.ObjStart()
	e.FieldStart("orderId")
	e.Int64(o.ID)
	e.FieldStart("productId")
	e.Int64(o.ProductID)
	e.FieldStart("quantity")
	e.Int64(o.Quantity)
	e.FieldStart("orderStatus")
	e.Str(string(o.Status))
	e.FieldStart("orderDate")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("totalAmount")
	encodeDecimal(e, o.TotalAmount)
	e.FieldStart("paymentMode")
	e.Str(string(o.PaymentMode))
	e.FieldStart("productDetails")
	encodeProduct(e, o.Product)
	e.FieldStart("paymentDetails")
	encodePayment(e, o.Payment)
	e.ObjEnd()
}

func encodeProduct(e *jx.Encoder, p *product.Details) {
	if p == nil {
		e.Null()
		return
	}
	e.ObjStart()
	e.FieldStart("productId")
	e.Int64(p.ProductID)
	e.FieldStart("productName")
	e.Str(p.Name)
	e.FieldStart("price")
	encodeDecimal(e, p.Price)
	e.FieldStart("quantity")
	e.Int64(p.Quantity)
	e.ObjEnd()
}

func encodePayment(e *jx.Encoder, p *payment.Details) {
	if p == nil {
		e.Null()
		return
	}
	e.ObjStart()
	e.FieldStart("paymentId")
	e.Int64(p.PaymentID)
	e.FieldStart("orderId")
	e.Int64(p.OrderID)
	e.FieldStart("paymentMode")
	e.Str(string(p.Mode))
	e.FieldStart("referenceNumber")
	e.Str(p.ReferenceNumber)
	e.FieldStart("paymentDate")
	encodeTime(e, p.PaidAt)
	e.FieldStart("status")
	e.Str(p.Status)
	e.FieldStart("amount")
	encodeDecimal(e, p.Amount)
	e.ObjEnd()
}

func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.String()))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	if t.IsZero() {
		e.Null()
		return
	}
	e.Str(t.UTC().Format(time.RFC3339Nano))
}
