package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Order struct {
	ID              string    `json:"id"`
	CustomerID      string    `json:"customer_id,omitempty"`
	CustomerName    string    `json:"customer_name,omitempty"`
	CustomerEmail   string    `json:"customer_email,omitempty"`
	TotalAmount     float64   `json:"total_amount"`
	Status          string    `json:"status"`
	ShippingAddress string    `json:"shipping_address,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type OrderHistory struct {
	ID        int64     `json:"id"`
	OrderID   string    `json:"order_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	Detail    string    `json:"detail"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

const orderSelect = `SELECT o.id, o.customer_id, COALESCE(p.full_name, ''), COALESCE(p.email, ''),
	o.total_amount, o.status, o.shipping_address, o.created_at, o.updated_at
	FROM orders o LEFT JOIN profiles p ON p.id = o.customer_id`

// CreateOrder inserts an order. CreatedAt is honoured when set so that
// imports and fixtures can backdate orders.
func (db *DB) CreateOrder(o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = "pending"
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	o.CreatedAt = o.CreatedAt.UTC().Truncate(time.Second)
	o.UpdatedAt = o.CreatedAt
	var customerID any
	if o.CustomerID != "" {
		customerID = o.CustomerID
	}
	_, err := db.Exec(db.Q(`INSERT INTO orders (id, customer_id, total_amount, status, shipping_address, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		o.ID, customerID, o.TotalAmount, o.Status, o.ShippingAddress, db.timeArg(o.CreatedAt), db.timeArg(o.UpdatedAt))
	if err != nil {
		return err
	}
	db.emitChange("orders", "INSERT", o.ID)
	return nil
}

func (db *DB) GetOrder(id string) (*Order, error) {
	return scanOrder(db.QueryRow(db.Q(orderSelect+` WHERE o.id=?`), id))
}

// ListOrders returns orders newest first, optionally filtered by status.
func (db *DB) ListOrders(status string, limit int) ([]*Order, error) {
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = db.Query(db.Q(orderSelect+` WHERE o.status=? ORDER BY o.created_at DESC LIMIT ?`), status, limit)
	} else {
		rows, err = db.Query(db.Q(orderSelect+` ORDER BY o.created_at DESC LIMIT ?`), limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UpdateOrderStatus moves an order from one status to another and records the
// transition in order_history. The write only applies while the order is still
// in status from; otherwise it returns ErrStatusChanged.
func (db *DB) UpdateOrderStatus(id, from, to, detail, actor string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := db.now()
	result, err := tx.Exec(db.Q(`UPDATE orders SET status=?, updated_at=? WHERE id=? AND status=?`), to, now, id, from)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		var cur string
		if err := tx.QueryRow(db.Q(`SELECT status FROM orders WHERE id=?`), id).Scan(&cur); err != nil {
			return notFound(err)
		}
		return ErrStatusChanged
	}
	if _, err := tx.Exec(db.Q(`INSERT INTO order_history (order_id, old_status, new_status, detail, actor, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		id, from, to, detail, actor, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	db.emitChange("orders", "UPDATE", id)
	return nil
}

func (db *DB) ListOrderHistory(orderID string) ([]*OrderHistory, error) {
	rows, err := db.Query(db.Q(`SELECT id, order_id, old_status, new_status, detail, actor, created_at FROM order_history WHERE order_id=? ORDER BY id`), orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var history []*OrderHistory
	for rows.Next() {
		var h OrderHistory
		var createdAt dbTime
		if err := rows.Scan(&h.ID, &h.OrderID, &h.OldStatus, &h.NewStatus, &h.Detail, &h.Actor, &createdAt); err != nil {
			return nil, err
		}
		h.CreatedAt = createdAt.Time
		history = append(history, &h)
	}
	return history, rows.Err()
}

func scanOrder(row rowScanner) (*Order, error) {
	var o Order
	var customerID sql.NullString
	var createdAt, updatedAt dbTime
	if err := row.Scan(&o.ID, &customerID, &o.CustomerName, &o.CustomerEmail, &o.TotalAmount, &o.Status, &o.ShippingAddress, &createdAt, &updatedAt); err != nil {
		return nil, notFound(err)
	}
	o.CustomerID = customerID.String
	o.CreatedAt = createdAt.Time
	o.UpdatedAt = updatedAt.Time
	return &o, nil
}
