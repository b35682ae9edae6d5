package store

import (
	"time"
)

// StockAdjustment records a manual stock correction made from the Inventory page.
type StockAdjustment struct {
	ID          int64     `json:"id"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name,omitempty"`
	Delta       int       `json:"delta"`
	StockAfter  int       `json:"stock_after"`
	Reason      string    `json:"reason"`
	Actor       string    `json:"actor"`
	CreatedAt   time.Time `json:"created_at"`
}

func (db *DB) CreateStockAdjustment(a *StockAdjustment) error {
	now := time.Now().UTC().Truncate(time.Second)
	err := db.QueryRow(db.Q(`INSERT INTO stock_adjustments (product_id, delta, stock_after, reason, actor, created_at) VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		a.ProductID, a.Delta, a.StockAfter, a.Reason, a.Actor, db.timeArg(now)).Scan(&a.ID)
	if err != nil {
		return err
	}
	a.CreatedAt = now
	return nil
}

func (db *DB) ListStockAdjustments(limit int) ([]*StockAdjustment, error) {
	rows, err := db.Query(db.Q(`SELECT a.id, a.product_id, COALESCE(p.name, ''), a.delta, a.stock_after, a.reason, a.actor, a.created_at
		FROM stock_adjustments a LEFT JOIN products p ON p.id = a.product_id
		ORDER BY a.id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var adjustments []*StockAdjustment
	for rows.Next() {
		var a StockAdjustment
		var createdAt dbTime
		if err := rows.Scan(&a.ID, &a.ProductID, &a.ProductName, &a.Delta, &a.StockAfter, &a.Reason, &a.Actor, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt = createdAt.Time
		adjustments = append(adjustments, &a)
	}
	return adjustments, rows.Err()
}
