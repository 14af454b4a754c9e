package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tulip-tech/order-service/internal/domain/order"
	"github.com/tulip-tech/order-service/internal/domain/payment"
	"github.com/tulip-tech/order-service/internal/storage/postgres"
)

type orderJSON struct {
	ProductID   int64           `json:"productId"`
	Quantity    int64           `json:"quantity"`
	Status      string          `json:"status"`
	OrderDate   time.Time       `json:"orderDate"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	PaymentMode string          `json:"paymentMode"`
}

func main() {
	var (
		databaseURL string
		ordersFile  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&ordersFile, "orders-file", "db/seed/orders.json", "path to orders JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, ordersFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, ordersFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.Migrate(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	records, err := readOrders(ordersFile)
	if err != nil {
		return err
	}

	store := postgres.NewOrderStore(pool)
	slog.Info("saving orders", slog.Int("count", len(records)))

	for i := range records {
		saved, err := store.Save(ctx, &records[i])
		if err != nil {
			return errors.Wrapf(err, "save order %d", i)
		}
		slog.Info("saved order",
			slog.Int64("id", saved.ID),
			slog.Int64("product_id", saved.ProductID),
			slog.String("payment_mode", string(saved.PaymentMode)),
		)
	}

	return nil
}

func readOrders(path string) ([]order.Record, error) {
	slog.Info("reading orders file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read orders file")
	}

	var raw []orderJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse orders JSON")
	}

	records := make([]order.Record, 0, len(raw))
	for i, o := range raw {
		mode, err := payment.ParseMode(o.PaymentMode)
		if err != nil {
			return nil, errors.Wrapf(err, "order %d", i)
		}
		if o.ProductID <= 0 || o.Quantity <= 0 {
			return nil, errors.Errorf("order %d: product id and quantity must be positive", i)
		}

		status := order.Status(o.Status)
		if status == "" {
			status = order.StatusCreated
		}
		createdAt := o.OrderDate
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		records = append(records, order.Record{
			ProductID:   o.ProductID,
			Quantity:    o.Quantity,
			Status:      status,
			CreatedAt:   createdAt,
			TotalAmount: o.TotalAmount,
			PaymentMode: mode,
		})
	}

	return records, nil
}
