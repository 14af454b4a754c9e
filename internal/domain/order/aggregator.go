package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tulip-tech/order-service/internal/domain/payment"
	"github.com/tulip-tech/order-service/internal/domain/product"
)

// Aggregator builds the read view of all orders. Product and payment data
// are fetched directly from the remote clients, without breakers, and each
// lookup may fail on its own without affecting the rest of the listing.
type Aggregator struct {
	store    Store
	products product.Client
	payments payment.QueryClient

	workers  int
	tracer   trace.Tracer
	failures metric.Int64Counter
}

// NewAggregator creates an Aggregator. WithWorkers bounds the number of
// enrichment calls in flight.
func NewAggregator(
	store Store,
	products product.Client,
	payments payment.QueryClient,
	opts ...Option,
) *Aggregator {
	o := newOptions(opts)
	return &Aggregator{
		store:    store,
		products: products,
		payments: payments,
		workers:  o.workers,
		tracer:   o.tp.Tracer(instrumentationName),
		failures: newCounter(o.mp, "order.enrichment.failures", "Failed product or payment lookups during order listing"),
	}
}

// ListEnrichedOrders returns one Enriched entry per stored record, in store
// order. Only a failed store read is returned as an error; failed lookups
// leave the corresponding slot nil.
func (a *Aggregator) ListEnrichedOrders(ctx context.Context) ([]Enriched, error) {
	ctx, span := a.tracer.Start(ctx, "order.ListEnrichedOrders")
	defer span.End()

	records, err := a.store.FindAll(ctx)
	if err == nil && records == nil {
		err = errNoListing
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "find orders")
		return nil, errors.Wrap(err, "find orders")
	}

	// Tasks write disjoint fields of out.
	out := make([]Enriched, len(records))
	var g errgroup.Group
	g.SetLimit(a.workers)
	for i := range records {
		out[i].Record = records[i]
		g.Go(func() error {
			out[i].Product = a.fetchProduct(ctx, records[i])
			return nil
		})
		g.Go(func() error {
			out[i].Payment = a.fetchPayment(ctx, records[i])
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(attribute.Int("order.count", len(out)))
	return out, nil
}

func (a *Aggregator) fetchProduct(ctx context.Context, r Record) (details *product.Details) {
	err := isolate(func() (err error) {
		details, err = a.products.GetProductByID(ctx, r.ProductID)
		if err == nil && details == nil {
			err = errors.New("empty product response")
		}
		return err
	})
	if err != nil {
		a.enrichmentFailed(ctx, "product", fmt.Errorf("%w: product %d: %w", ErrEnrichmentUnavailable, r.ProductID, err),
			zap.Int64("order_id", r.ID),
			zap.Int64("product_id", r.ProductID),
		)
		return nil
	}
	return details
}

func (a *Aggregator) fetchPayment(ctx context.Context, r Record) (details *payment.Details) {
	err := isolate(func() (err error) {
		details, err = a.payments.GetPaymentByOrderID(ctx, r.ID)
		if err == nil && details == nil {
			err = errors.New("empty payment response")
		}
		return err
	})
	if err != nil {
		a.enrichmentFailed(ctx, "payment", fmt.Errorf("%w: order %d: %w", ErrEnrichmentUnavailable, r.ID, err),
			zap.Int64("order_id", r.ID),
		)
		return nil
	}
	return details
}

func (a *Aggregator) enrichmentFailed(ctx context.Context, field string, err error, fields ...zap.Field) {
	zctx.From(ctx).Error("Error occurred while fetching "+field+" details",
		append(fields, zap.String("field", field), zap.Error(err))...,
	)
	a.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("field", field)))
}

// isolate converts a panicking lookup into an error.
func isolate(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}
