package sales

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/uptrace/bun"

	"github.com/pulsemetric/pulse/internal/database"
	"github.com/pulsemetric/pulse/pkg/apm"
	"github.com/pulsemetric/pulse/pkg/logger"
)

// sampleProducts is the fixed catalog the demo seeds.
var sampleProducts = []Product{
	{Name: "Laptop", Price: 999.99, Category: "Electronics"},
	{Name: "Mouse", Price: 29.99, Category: "Electronics"},
	{Name: "Keyboard", Price: 79.99, Category: "Electronics"},
	{Name: "Monitor", Price: 299.99, Category: "Electronics"},
	{Name: "Desk Chair", Price: 199.99, Category: "Furniture"},
}

// sampleSaleCount is how many random sales a fresh store gets.
const sampleSaleCount = 20

// Repository reads and writes the sales store.
type Repository struct {
	db  *bun.DB
	log *slog.Logger
}

// NewRepository creates a new sales repository
func NewRepository(db *bun.DB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("sales.repo")),
	}
}

// InitializeData resets the schema and seeds the sample catalog plus a fresh
// set of random sales.
func (r *Repository) InitializeData(ctx context.Context) error {
	return apm.WithSpan(ctx, "initialize_data", "db.setup", func(ctx context.Context) error {
		if err := r.db.ResetModel(ctx, (*Product)(nil), (*SaleRecord)(nil)); err != nil {
			return fmt.Errorf("reset schema: %w", err)
		}

		tx, err := database.BeginSafeTx(ctx, r.db)
		if err != nil {
			return fmt.Errorf("begin seed tx: %w", err)
		}
		defer tx.Rollback()

		products := append([]Product(nil), sampleProducts...)
		if _, err := tx.NewInsert().Model(&products).Exec(ctx); err != nil {
			return fmt.Errorf("seed products: %w", err)
		}

		sales := make([]SaleRecord, sampleSaleCount)
		for i := range sales {
			sales[i] = SaleRecord{
				ProductID:   int64(1 + rand.IntN(len(products))),
				Quantity:    1 + rand.IntN(10),
				TotalAmount: 50 + rand.Float64()*950,
			}
		}
		if _, err := tx.NewInsert().Model(&sales).Exec(ctx); err != nil {
			return fmt.Errorf("seed sales: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit seed: %w", err)
		}

		apm.AddLabels(ctx,
			apm.Int("products_added", len(products)),
			apm.Int("sales_added", len(sales)),
		)
		r.log.Info("sample data initialized",
			slog.Int("products", len(products)),
			slog.Int("sales", len(sales)),
		)
		return nil
	})
}

// FetchProducts returns the whole catalog.
func (r *Repository) FetchProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	err := apm.WithSpan(ctx, "fetch_products", "db.query", func(ctx context.Context) error {
		if err := r.db.NewSelect().Model(&products).Order("id").Scan(ctx); err != nil {
			return fmt.Errorf("fetch products: %w", err)
		}
		apm.AddLabels(ctx, apm.Int("products_fetched", len(products)))
		return nil
	})
	return products, err
}

// TotalSales counts the sales table and sums its revenue.
func (r *Repository) TotalSales(ctx context.Context) (SalesTotals, error) {
	var totals SalesTotals
	err := apm.WithSpan(ctx, "calculate_sales", "db.query", func(ctx context.Context) error {
		count, err := r.db.NewSelect().Model((*SaleRecord)(nil)).Count(ctx)
		if err != nil {
			return fmt.Errorf("count sales: %w", err)
		}

		var sales []SaleRecord
		if err := r.db.NewSelect().Model(&sales).Scan(ctx); err != nil {
			return fmt.Errorf("fetch sales: %w", err)
		}
		totals.Count = count
		for _, sale := range sales {
			totals.Amount += sale.TotalAmount
		}

		apm.AddLabels(ctx,
			apm.Int("total_sales", totals.Count),
			apm.Float64("total_amount", math.Round(totals.Amount*100)/100),
		)
		return nil
	})
	return totals, err
}
