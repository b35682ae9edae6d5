package store

import (
	"time"
)

// OrderTotals are the order-side aggregates shown on the dashboard.
type OrderTotals struct {
	Orders    int64
	Delivered int64
	Revenue   float64
}

type DaySales struct {
	Date    string  `json:"date"`
	Revenue float64 `json:"revenue"`
	Orders  int64   `json:"orders"`
}

type DailyStat struct {
	Date         string  `json:"date"`
	TotalSales   float64 `json:"total_sales"`
	TotalOrders  int64   `json:"total_orders"`
	NewCustomers int64   `json:"new_customers"`
	PageViews    int64   `json:"page_views"`
}

type CustomerSegment struct {
	SegmentName   string `json:"segment_name"`
	CustomerCount int64  `json:"customer_count"`
}

// OrderTotals counts all orders, delivered orders, and revenue of every order that was not cancelled.
func (db *DB) OrderTotals() (*OrderTotals, error) {
	var t OrderTotals
	err := db.QueryRow(`SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'delivered' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status <> 'cancelled' THEN total_amount ELSE 0 END), 0)
		FROM orders`).Scan(&t.Orders, &t.Delivered, &t.Revenue)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SalesByDay groups non-cancelled orders created at or after since by UTC day.
// Days without orders are omitted.
func (db *DB) SalesByDay(since time.Time) ([]DaySales, error) {
	day := db.dialect.DateExpr("created_at")
	rows, err := db.Query(db.Q(`SELECT `+day+` AS day, COALESCE(SUM(total_amount), 0), COUNT(*)
		FROM orders WHERE created_at >= ? AND status <> 'cancelled'
		GROUP BY day ORDER BY day`), db.timeArg(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DaySales
	for rows.Next() {
		var d DaySales
		if err := rows.Scan(&d.Date, &d.Revenue, &d.Orders); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListDailyStats returns up to days rows of daily_stats in ascending date order.
func (db *DB) ListDailyStats(days int) ([]DailyStat, error) {
	rows, err := db.Query(db.Q(`SELECT date, total_sales, total_orders, new_customers, page_views
		FROM daily_stats ORDER BY date DESC LIMIT ?`), days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DailyStat
	for rows.Next() {
		var s DailyStat
		if err := rows.Scan(&s.Date, &s.TotalSales, &s.TotalOrders, &s.NewCustomers, &s.PageViews); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// RollupDailyStats recomputes the order and customer columns of one day's
// daily_stats row from the source tables. Page views are left untouched.
func (db *DB) RollupDailyStats(day time.Time) error {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	var sales float64
	var orders, customers int64
	if err := db.QueryRow(db.Q(`SELECT COALESCE(SUM(total_amount), 0), COUNT(*) FROM orders
		WHERE created_at >= ? AND created_at < ? AND status <> 'cancelled'`),
		db.timeArg(start), db.timeArg(end)).Scan(&sales, &orders); err != nil {
		return err
	}
	if err := db.QueryRow(db.Q(`SELECT COUNT(*) FROM profiles WHERE created_at >= ? AND created_at < ?`),
		db.timeArg(start), db.timeArg(end)).Scan(&customers); err != nil {
		return err
	}
	_, err := db.Exec(db.Q(`INSERT INTO daily_stats (date, total_sales, total_orders, new_customers, page_views)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT (date) DO UPDATE SET total_sales=excluded.total_sales, total_orders=excluded.total_orders, new_customers=excluded.new_customers`),
		start.Format("2006-01-02"), sales, orders, customers)
	return err
}

// IncrementPageViews bumps the page view counter for the given day.
func (db *DB) IncrementPageViews(day time.Time) error {
	_, err := db.Exec(db.Q(`INSERT INTO daily_stats (date, page_views) VALUES (?, 1)
		ON CONFLICT (date) DO UPDATE SET page_views = daily_stats.page_views + 1`),
		day.UTC().Format("2006-01-02"))
	return err
}

// CustomerSegments calls the get_customer_segments procedure on PostgreSQL and
// runs the same query inline on SQLite, which has no stored functions.
func (db *DB) CustomerSegments() ([]CustomerSegment, error) {
	query := segmentsQuery
	if db.driver == "postgres" {
		query = `SELECT segment_name, customer_count FROM get_customer_segments()`
	}
	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CustomerSegment
	for rows.Next() {
		var s CustomerSegment
		if err := rows.Scan(&s.SegmentName, &s.CustomerCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
