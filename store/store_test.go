package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storedesk/config"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type recordedChange struct{ table, op, id string }

func recordChanges(db *DB) func() []recordedChange {
	var mu sync.Mutex
	var got []recordedChange
	db.SetChangeFunc(func(table, op, id string) {
		mu.Lock()
		got = append(got, recordedChange{table, op, id})
		mu.Unlock()
	})
	return func() []recordedChange {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedChange(nil), got...)
	}
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t WHERE a=$1 AND b=$2", Rebind("SELECT * FROM t WHERE a=? AND b=?"))
	assert.Equal(t, "SELECT '?' FROM t WHERE a=$1", Rebind("SELECT '?' FROM t WHERE a=?"))
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "mysql"})
	assert.Error(t, err)
}

func TestProfilesCRUDAndChanges(t *testing.T) {
	db := openTestDB(t)
	changes := recordChanges(db)

	p := &Profile{Email: "  Ada@Example.com ", FullName: "Ada Lovelace"}
	require.NoError(t, db.CreateProfile(p))
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "ada@example.com", p.Email)

	got, err := db.GetProfileByEmail("ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "Ada Lovelace", got.FullName)
	assert.False(t, got.CreatedAt.IsZero())

	got.FullName = "Augusta Ada King"
	got.AvatarURL = "https://cdn.example.com/a.png"
	require.NoError(t, db.UpdateProfile(got))

	again, err := db.GetProfile(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Augusta Ada King", again.FullName)
	assert.Equal(t, "https://cdn.example.com/a.png", again.AvatarURL)

	n, err := db.CountProfiles()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = db.GetProfile("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.UpdateProfile(&Profile{ID: "missing"}), ErrNotFound)

	assert.Equal(t, []recordedChange{
		{"profiles", "INSERT", p.ID},
		{"profiles", "UPDATE", p.ID},
	}, changes())
}

func TestLowStockAndAdjustStock(t *testing.T) {
	db := openTestDB(t)
	for _, p := range []*Product{
		{Name: "Widget", Price: 9.99, Stock: 3},
		{Name: "Gadget", Price: 19.99, Stock: 50},
		{Name: "Doohickey", Price: 4.5, Stock: 0},
		{Name: "Sprocket", Price: 1, Stock: 10},
	} {
		require.NoError(t, db.CreateProduct(p))
	}

	low, err := db.ListLowStockProducts(10)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "Doohickey", low[0].Name)
	assert.Equal(t, "Widget", low[1].Name)

	stock, err := db.AdjustStock(low[1].ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 10, stock)

	_, err = db.AdjustStock(low[0].ID, -1)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = db.AdjustStock("missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	low, err = db.ListLowStockProducts(10)
	require.NoError(t, err)
	assert.Len(t, low, 1)
}

func TestOrdersStatusHistoryAndTotals(t *testing.T) {
	db := openTestDB(t)
	changes := recordChanges(db)

	cust := &Profile{Email: "c@example.com", FullName: "Cust"}
	require.NoError(t, db.CreateProfile(cust))

	o1 := &Order{CustomerID: cust.ID, TotalAmount: 100}
	o2 := &Order{CustomerID: cust.ID, TotalAmount: 50, Status: "delivered"}
	o3 := &Order{TotalAmount: 25, Status: "cancelled"}
	for _, o := range []*Order{o1, o2, o3} {
		require.NoError(t, db.CreateOrder(o))
	}

	got, err := db.GetOrder(o1.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", got.Status)
	assert.Equal(t, "Cust", got.CustomerName)
	assert.Equal(t, "c@example.com", got.CustomerEmail)

	require.NoError(t, db.UpdateOrderStatus(o1.ID, "pending", "processing", "picked", "admin@example.com"))
	history, err := db.ListOrderHistory(o1.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "pending", history[0].OldStatus)
	assert.Equal(t, "processing", history[0].NewStatus)
	assert.Equal(t, "admin@example.com", history[0].Actor)

	assert.ErrorIs(t, db.UpdateOrderStatus("missing", "processing", "shipped", "", ""), ErrNotFound)

	// o1 is no longer pending, so a write based on the old status is rejected.
	assert.ErrorIs(t, db.UpdateOrderStatus(o1.ID, "pending", "cancelled", "", ""), ErrStatusChanged)
	got, err = db.GetOrder(o1.ID)
	require.NoError(t, err)
	assert.Equal(t, "processing", got.Status)
	history, err = db.ListOrderHistory(o1.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	totals, err := db.OrderTotals()
	require.NoError(t, err)
	assert.EqualValues(t, 3, totals.Orders)
	assert.EqualValues(t, 1, totals.Delivered)
	assert.InDelta(t, 150.0, totals.Revenue, 0.001)

	processing, err := db.ListOrders("processing", 10)
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.Equal(t, o1.ID, processing[0].ID)

	all, err := db.ListOrders("", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	var orderChanges int
	for _, c := range changes() {
		if c.table == "orders" {
			orderChanges++
		}
	}
	assert.Equal(t, 4, orderChanges)
}

func TestSalesByDayAndRollup(t *testing.T) {
	db := openTestDB(t)
	today := time.Now().UTC()
	yesterday := today.AddDate(0, 0, -1)
	old := today.AddDate(0, 0, -30)

	require.NoError(t, db.CreateOrder(&Order{TotalAmount: 10, CreatedAt: yesterday}))
	require.NoError(t, db.CreateOrder(&Order{TotalAmount: 15, CreatedAt: yesterday}))
	require.NoError(t, db.CreateOrder(&Order{TotalAmount: 40, CreatedAt: today}))
	require.NoError(t, db.CreateOrder(&Order{TotalAmount: 99, CreatedAt: today, Status: "cancelled"}))
	require.NoError(t, db.CreateOrder(&Order{TotalAmount: 500, CreatedAt: old}))

	sales, err := db.SalesByDay(today.AddDate(0, 0, -6))
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, yesterday.Format("2006-01-02"), sales[0].Date)
	assert.InDelta(t, 25.0, sales[0].Revenue, 0.001)
	assert.EqualValues(t, 2, sales[0].Orders)
	assert.InDelta(t, 40.0, sales[1].Revenue, 0.001)

	require.NoError(t, db.CreateProfile(&Profile{Email: "new@example.com"}))
	require.NoError(t, db.IncrementPageViews(today))
	require.NoError(t, db.IncrementPageViews(today))
	require.NoError(t, db.RollupDailyStats(today))
	require.NoError(t, db.RollupDailyStats(yesterday))

	stats, err := db.ListDailyStats(7)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, yesterday.Format("2006-01-02"), stats[0].Date)
	assert.EqualValues(t, 2, stats[0].TotalOrders)
	assert.Equal(t, today.Format("2006-01-02"), stats[1].Date)
	assert.InDelta(t, 40.0, stats[1].TotalSales, 0.001)
	assert.EqualValues(t, 1, stats[1].NewCustomers)
	assert.EqualValues(t, 2, stats[1].PageViews)
}

func TestCustomerSegments(t *testing.T) {
	db := openTestDB(t)
	idle := &Profile{Email: "idle@example.com"}
	buyer := &Profile{Email: "buyer@example.com"}
	whale := &Profile{Email: "whale@example.com"}
	for _, p := range []*Profile{idle, buyer, whale} {
		require.NoError(t, db.CreateProfile(p))
	}
	require.NoError(t, db.CreateOrder(&Order{CustomerID: buyer.ID, TotalAmount: 5}))
	require.NoError(t, db.CreateOrder(&Order{CustomerID: buyer.ID, TotalAmount: 5, Status: "cancelled"}))
	for i := 0; i < 10; i++ {
		require.NoError(t, db.CreateOrder(&Order{CustomerID: whale.ID, TotalAmount: 1}))
	}

	segments, err := db.CustomerSegments()
	require.NoError(t, err)
	counts := map[string]int64{}
	for _, s := range segments {
		counts[s.SegmentName] = s.CustomerCount
	}
	assert.Equal(t, map[string]int64{"New": 1, "Occasional": 1, "VIP": 1}, counts)
}

func TestOutboxLifecycle(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.EnqueueOutbox("topic", []byte(`{"a":1}`), "order.status_changed"))
	require.NoError(t, db.EnqueueOutbox("topic", []byte(`{"a":2}`), "order.status_changed"))

	msgs, err := db.ListPendingOutbox(10, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte(`{"a":1}`), msgs[0].Payload)

	require.NoError(t, db.AckOutbox(msgs[0].ID))
	for i := 0; i < 3; i++ {
		require.NoError(t, db.FailOutbox(msgs[1].ID))
	}

	msgs, err = db.ListPendingOutbox(10, 3)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	pending, err := db.CountPendingOutbox()
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)
}

func TestAdjustmentsAuditAndUsers(t *testing.T) {
	db := openTestDB(t)
	p := &Product{Name: "Widget", Stock: 1}
	require.NoError(t, db.CreateProduct(p))

	adj := &StockAdjustment{ProductID: p.ID, Delta: 4, StockAfter: 5, Reason: "recount", Actor: "ops"}
	require.NoError(t, db.CreateStockAdjustment(adj))
	assert.NotZero(t, adj.ID)

	list, err := db.ListStockAdjustments(10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Widget", list[0].ProductName)

	require.NoError(t, db.AppendAudit("order", "o-1", "status", "pending", "processing", "ops"))
	entries, err := db.ListAuditLog(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "processing", entries[0].NewValue)

	require.NoError(t, db.CreateAdminUser(&AdminUser{Email: "Admin@Example.com", PasswordHash: "x"}))
	u, err := db.GetAdminUserByEmail("admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, "x", u.PasswordHash)
	_, err = db.GetAdminUserByEmail("nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}
