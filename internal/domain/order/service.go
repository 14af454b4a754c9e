package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tulip-tech/order-service/internal/domain/payment"
	"github.com/tulip-tech/order-service/internal/domain/product"
)

// Dependency names, as reported in logs, metrics and unavailable outcomes.
const (
	DependencyInventory = "product-service"
	DependencyPayment   = "payment-service"
)

const (
	inventoryUnavailableMessage = "Product Service is down or timed out. Inventory check failed."
	paymentUnavailableMessage   = "Payment Service is down or timed out. Payment could not be processed."
)

// Guard protects a single remote call with a circuit breaker. When the call
// is skipped or fails, fallback receives the triggering error and the guard
// returns a failure.
type Guard interface {
	Execute(ctx context.Context, op func(ctx context.Context) error, fallback func(err error) error) error
}

// Guards holds one Guard per guarded dependency.
type Guards struct {
	Inventory Guard
	Payment   Guard
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	ProductID   int64
	Quantity    int64
	TotalAmount decimal.Decimal
	PaymentMode payment.Mode
}

// Service runs the order placement saga: reduce inventory, persist the
// order, charge the payment. Steps are not compensated: a payment failure
// leaves both the inventory reduction and the order record in place.
type Service struct {
	store     Store
	inventory product.InventoryClient
	payments  payment.Client
	guards    Guards

	payerLabel string
	now        func() time.Time
	tracer     trace.Tracer
	placements metric.Int64Counter
}

// NewService creates an order Service with the required dependencies.
func NewService(
	store Store,
	inventory product.InventoryClient,
	payments payment.Client,
	guards Guards,
	opts ...Option,
) *Service {
	o := newOptions(opts)
	return &Service{
		store:      store,
		inventory:  inventory,
		payments:   payments,
		guards:     guards,
		payerLabel: o.payerLabel,
		now:        o.now,
		tracer:     o.tp.Tracer(instrumentationName),
		placements: newCounter(o.mp, "order.placements", "Order placement outcomes"),
	}
}

// PlaceOrder places an order and returns the identity assigned by the store.
// Every failure is returned as a *PlacementError.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder", trace.WithAttributes(
		attribute.Int64("product.id", req.ProductID),
		attribute.Int64("order.quantity", req.Quantity),
		attribute.String("payment.mode", string(req.PaymentMode)),
	))
	defer span.End()

	id, err := s.placeOrder(ctx, req)
	if err != nil {
		perr := classify(err)
		zctx.From(ctx).Error("Order placement failed",
			zap.String("category", string(perr.Category)),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, perr.Message)
		s.placements.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(perr.Category))))
		return 0, perr
	}

	span.SetAttributes(attribute.Int64("order.id", id))
	s.placements.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "placed")))
	return id, nil
}

func (s *Service) placeOrder(ctx context.Context, req PlaceOrderRequest) (int64, error) {
	lg := zctx.From(ctx)

	// Reserve stock first; nothing is persisted if this fails.
	lg.Info("Reducing product quantity",
		zap.Int64("product_id", req.ProductID),
		zap.Int64("quantity", req.Quantity),
	)
	err := s.guarded(ctx, "ReduceQuantity", s.guards.Inventory, DependencyInventory, inventoryUnavailableMessage,
		func(ctx context.Context) error {
			return s.inventory.ReduceQuantity(ctx, req.ProductID, req.Quantity)
		},
	)
	if err != nil {
		return 0, err
	}
	lg.Info("Product quantity reduced", zap.Int64("product_id", req.ProductID))

	saved, err := s.store.Save(ctx, &Record{
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		Status:      StatusCreated,
		CreatedAt:   s.now(),
		TotalAmount: req.TotalAmount,
		PaymentMode: req.PaymentMode,
	})
	if err != nil {
		return 0, errors.Wrap(err, "save order")
	}
	if saved == nil {
		return 0, errors.New("save order: store returned no record")
	}

	lg.Info("Calling payment service to complete the payment", zap.Int64("order_id", saved.ID))
	err = s.guarded(ctx, "Charge", s.guards.Payment, DependencyPayment, paymentUnavailableMessage,
		func(ctx context.Context) error {
			return s.payments.Charge(ctx, payment.ChargeRequest{
				OrderID:    saved.ID,
				Amount:     saved.TotalAmount,
				Mode:       saved.PaymentMode,
				PayerLabel: s.payerLabel,
			})
		},
	)
	if err != nil {
		lg.Warn("Order persisted without completed payment", zap.Int64("order_id", saved.ID))
		return 0, err
	}

	lg.Info("Order placed", zap.Int64("order_id", saved.ID))
	return saved.ID, nil
}

// guarded runs a saga step through its guard inside a child span.
func (s *Service) guarded(
	ctx context.Context,
	step string,
	guard Guard,
	dependency, message string,
	op func(ctx context.Context) error,
) error {
	ctx, span := s.tracer.Start(ctx, "order."+step, trace.WithAttributes(
		attribute.String("dependency", dependency),
	))
	defer span.End()

	err := guard.Execute(ctx, op, func(cause error) error {
		zctx.From(ctx).Error("Circuit breaker open or call failed",
			zap.String("dependency", dependency),
			zap.String("step", step),
			zap.Error(cause),
		)
		return &DependencyUnavailableError{
			Dependency: dependency,
			Message:    message,
			Err:        cause,
		}
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
