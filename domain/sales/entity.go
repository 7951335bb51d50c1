// Package sales backs the batch reporting job with a small product and
// sales store. Every operation runs in its own span so a batch run comes
// out as one richly nested transaction.
package sales

import (
	"time"

	"github.com/uptrace/bun"
)

// Product is a catalog entry in the products table
type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Price     float64   `bun:"price,notnull" json:"price"`
	Category  string    `bun:"category" json:"category"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// SaleRecord is one sale in the sales table
type SaleRecord struct {
	bun.BaseModel `bun:"table:sales,alias:s"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	ProductID   int64     `bun:"product_id,notnull" json:"product_id"`
	Quantity    int       `bun:"quantity,notnull" json:"quantity"`
	TotalAmount float64   `bun:"total_amount,notnull" json:"total_amount"`
	SaleDate    time.Time `bun:"sale_date,nullzero,notnull,default:current_timestamp" json:"sale_date"`
}

// SalesTotals summarizes the sales table.
type SalesTotals struct {
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

// Report is the batch job's end product.
type Report struct {
	TotalProducts int       `json:"total_products"`
	TotalSales    int       `json:"total_sales"`
	TotalRevenue  float64   `json:"total_revenue"`
	Analytics     Analytics `json:"analytics"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Analytics is the derived metrics block of a report.
type Analytics struct {
	AvgSaleAmount float64   `json:"avg_sale_amount"`
	ProductCount  int       `json:"product_count"`
	Timestamp     time.Time `json:"timestamp"`
}
