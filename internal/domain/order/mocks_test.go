package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tulip-tech/order-service/internal/domain/payment"
	"github.com/tulip-tech/order-service/internal/domain/product"
	"github.com/tulip-tech/order-service/pkg/breaker"
)

// --- Mock implementations ---

type mockStore struct {
	mu      sync.Mutex
	records []Record
	nextID  int64
	saves   int
	saveErr error
	findErr error
	nilList bool
}

func (m *mockStore) Save(_ context.Context, r *Record) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saves++
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	m.nextID++
	saved := *r
	saved.ID = m.nextID
	m.records = append(m.records, saved)
	return &saved, nil
}

func (m *mockStore) FindAll(_ context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.nilList {
		return nil, nil
	}
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *mockStore) saved() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

type reduceCall struct {
	ProductID int64
	Quantity  int64
}

type mockInventory struct {
	mu    sync.Mutex
	calls []reduceCall
	err   error
}

func (m *mockInventory) ReduceQuantity(_ context.Context, productID, quantity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, reduceCall{ProductID: productID, Quantity: quantity})
	return m.err
}

func (m *mockInventory) reduced() []reduceCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]reduceCall(nil), m.calls...)
}

type mockPayments struct {
	mu      sync.Mutex
	charges []payment.ChargeRequest
	err     error
}

func (m *mockPayments) Charge(_ context.Context, req payment.ChargeRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charges = append(m.charges, req)
	return m.err
}

func (m *mockPayments) charged() []payment.ChargeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payment.ChargeRequest(nil), m.charges...)
}

// mockProducts serves product details by product ID; errs takes precedence.
type mockProducts struct {
	mu     sync.Mutex
	byID   map[int64]*product.Details
	errs   map[int64]error
	delay  time.Duration
	lookup map[int64]int
}

func (m *mockProducts) GetProductByID(ctx context.Context, id int64) (*product.Details, error) {
	m.mu.Lock()
	if m.lookup == nil {
		m.lookup = make(map[int64]int)
	}
	m.lookup[id]++
	err, p := m.errs[id], m.byID[id]
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &RejectionError{Status: 404, Code: "PRODUCT_NOT_FOUND"}
	}
	cp := *p
	return &cp, nil
}

// mockPaymentQuery serves payment details by order ID; errs takes precedence.
type mockPaymentQuery struct {
	mu      sync.Mutex
	byOrder map[int64]*payment.Details
	errs    map[int64]error
	panics  map[int64]bool
}

func (m *mockPaymentQuery) GetPaymentByOrderID(_ context.Context, orderID int64) (*payment.Details, error) {
	m.mu.Lock()
	err, p, boom := m.errs[orderID], m.byOrder[orderID], m.panics[orderID]
	m.mu.Unlock()

	if boom {
		panic("payment decoder exploded")
	}
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &RejectionError{Status: 404, Code: "PAYMENT_NOT_FOUND"}
	}
	cp := *p
	return &cp, nil
}

// --- Helpers ---

func guardConfig() breaker.Config {
	return breaker.Config{
		FailureRateThreshold: 0.5,
		MinimumCalls:         10,
		OpenStateDuration:    time.Minute,
		HalfOpenTrialCalls:   1,
		Window:               time.Minute,
	}
}

func newGuard(t *testing.T, name string, cfg breaker.Config) *breaker.Guard {
	t.Helper()
	g, err := breaker.New(name, cfg)
	require.NoError(t, err)
	return g
}

// openGuard returns a guard already tripped to OPEN.
func openGuard(t *testing.T, name string) *breaker.Guard {
	t.Helper()
	cfg := guardConfig()
	cfg.MinimumCalls = 1
	cfg.FailureRateThreshold = 1
	g := newGuard(t, name, cfg)
	_ = g.Execute(context.Background(), func(context.Context) error {
		return context.DeadlineExceeded
	}, nil)
	require.Equal(t, breaker.StateOpen, g.State())
	return g
}
