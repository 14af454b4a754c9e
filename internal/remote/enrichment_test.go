package remote

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tulip-tech/order-service/internal/domain/order"
	"github.com/tulip-tech/order-service/internal/domain/payment"
)

type listStore []order.Record

func (s listStore) Save(context.Context, *order.Record) (*order.Record, error) {
	return nil, order.ErrStoreUnavailable
}

func (s listStore) FindAll(context.Context) ([]order.Record, error) {
	return append([]order.Record{}, s...), nil
}

func TestListEnrichedOrders_ThroughHTTPClients(t *testing.T) {
	products := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/product/")
		if id == "9" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, `{"productId":`+id+`,"productName":"Pen","price":10,"quantity":5}`)
	})
	payments := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/payment/order/")
		if id == "3" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"errorMessage":"Payment not found","errorCode":"PAYMENT_NOT_FOUND"}`)
			return
		}
		_, _ = io.WriteString(w, `{"paymentId":1`+id+`,"orderId":`+id+`,"paymentMode":"CASH",`+
			`"referenceNumber":"Me","paymentDate":"2025-03-14T09:26:53Z","status":"SUCCESS","amount":30}`)
	})

	pc, err := NewProductClient(products)
	require.NoError(t, err)
	qc, err := NewPaymentClient(payments)
	require.NoError(t, err)

	created := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	store := listStore{
		{ID: 1, ProductID: 2, Quantity: 3, Status: order.StatusCreated, CreatedAt: created, TotalAmount: decimal.NewFromInt(30), PaymentMode: payment.ModeCash},
		{ID: 2, ProductID: 9, Quantity: 1, Status: order.StatusCreated, CreatedAt: created, TotalAmount: decimal.NewFromInt(10), PaymentMode: payment.ModeCash},
		{ID: 3, ProductID: 4, Quantity: 1, Status: order.StatusCreated, CreatedAt: created, TotalAmount: decimal.NewFromInt(10), PaymentMode: payment.ModeCash},
	}

	got, err := order.NewAggregator(store, pc, qc, order.WithWorkers(2)).ListEnrichedOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)

	for i, e := range got {
		assert.Equal(t, store[i].ID, e.ID, "slot %d", i)
	}

	require.NotNil(t, got[0].Product)
	assert.Equal(t, int64(2), got[0].Product.ProductID)
	assert.Equal(t, "Pen", got[0].Product.Name)
	assert.True(t, decimal.NewFromInt(10).Equal(got[0].Product.Price))
	require.NotNil(t, got[0].Payment)
	assert.Equal(t, int64(11), got[0].Payment.PaymentID)
	assert.Equal(t, "SUCCESS", got[0].Payment.Status)

	assert.Nil(t, got[1].Product, "product service failed")
	require.NotNil(t, got[1].Payment)
	assert.Equal(t, int64(2), got[1].Payment.OrderID)

	require.NotNil(t, got[2].Product)
	assert.Equal(t, int64(4), got[2].Product.ProductID)
	assert.Nil(t, got[2].Payment, "payment not found")
}
