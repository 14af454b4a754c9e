// Package handler maps the order HTTP API onto the order domain.
package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/tulip-tech/order-service/internal/domain/order"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// OrderPlacer places orders.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (int64, error)
}

// OrderLister lists enriched orders.
type OrderLister interface {
	ListEnrichedOrders(ctx context.Context) ([]order.Enriched, error)
}

// Handler serves the order endpoints.
type Handler struct {
	placer OrderPlacer
	lister OrderLister
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(placer OrderPlacer, lister OrderLister) *Handler {
	return &Handler{
		placer: placer,
		lister: lister,
	}
}

// Register adds the order routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /order/placeOrder", h.PlaceOrder)
	mux.HandleFunc("GET /order", h.ListOrders)
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()

	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Warn("Request failed",
			zap.Int("status", status),
			zap.String("message", message),
		)
	}
	writeJSON(w, status, &e)
}
