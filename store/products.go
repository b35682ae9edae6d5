package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	Stock       int       `json:"stock"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const productColumns = `id, name, description, category, price, stock, created_at, updated_at`

func (db *DB) CreateProduct(p *Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Stock < 0 {
		return ErrInsufficientStock
	}
	now := time.Now().UTC()
	_, err := db.Exec(db.Q(`INSERT INTO products (`+productColumns+`) VALUES (`+placeholders(8)+`)`),
		p.ID, p.Name, p.Description, p.Category, p.Price, p.Stock, db.timeArg(now), db.timeArg(now))
	if err != nil {
		return err
	}
	p.CreatedAt, p.UpdatedAt = now.Truncate(time.Second), now.Truncate(time.Second)
	db.emitChange("products", "INSERT", p.ID)
	return nil
}

// UpdateProduct writes the catalogue fields. Stock moves through AdjustStock.
func (db *DB) UpdateProduct(p *Product) error {
	result, err := db.Exec(db.Q(`UPDATE products SET name=?, description=?, category=?, price=?, updated_at=? WHERE id=?`),
		p.Name, p.Description, p.Category, p.Price, db.now(), p.ID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	db.emitChange("products", "UPDATE", p.ID)
	return nil
}

func (db *DB) DeleteProduct(id string) error {
	result, err := db.Exec(db.Q(`DELETE FROM products WHERE id=?`), id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	db.emitChange("products", "DELETE", id)
	return nil
}

func (db *DB) GetProduct(id string) (*Product, error) {
	return scanProduct(db.QueryRow(db.Q(`SELECT `+productColumns+` FROM products WHERE id=?`), id))
}

func (db *DB) ListProducts() ([]*Product, error) {
	rows, err := db.Query(`SELECT ` + productColumns + ` FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

// ListLowStockProducts returns products whose stock is strictly below threshold, lowest first.
func (db *DB) ListLowStockProducts(threshold int) ([]*Product, error) {
	rows, err := db.Query(db.Q(`SELECT `+productColumns+` FROM products WHERE stock < ? ORDER BY stock, name`), threshold)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

// AdjustStock applies delta to a product's stock and returns the new level.
// The update is conditional so concurrent adjustments can never drive stock negative.
func (db *DB) AdjustStock(id string, delta int) (int, error) {
	result, err := db.Exec(db.Q(`UPDATE products SET stock = stock + ?, updated_at=? WHERE id=? AND stock + ? >= 0`),
		delta, db.now(), id, delta)
	if err != nil {
		return 0, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		if _, err := db.GetProduct(id); err != nil {
			return 0, err
		}
		return 0, ErrInsufficientStock
	}
	var stock int
	if err := db.QueryRow(db.Q(`SELECT stock FROM products WHERE id=?`), id).Scan(&stock); err != nil {
		return 0, err
	}
	db.emitChange("products", "UPDATE", id)
	return stock, nil
}

func collectProducts(rows *sql.Rows) ([]*Product, error) {
	defer rows.Close()
	var products []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func scanProduct(row rowScanner) (*Product, error) {
	var p Product
	var createdAt, updatedAt dbTime
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Price, &p.Stock, &createdAt, &updatedAt); err != nil {
		return nil, notFound(err)
	}
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	return &p, nil
}
