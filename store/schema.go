package store

// ChangeChannel is the NOTIFY channel the PostgreSQL triggers publish on.
const ChangeChannel = "storedesk_changes"

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS profiles (
	id          TEXT PRIMARY KEY,
	email       TEXT NOT NULL UNIQUE,
	full_name   TEXT NOT NULL DEFAULT '',
	avatar_url  TEXT NOT NULL DEFAULT '',
	phone       TEXT NOT NULL DEFAULT '',
	address     TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	price       REAL NOT NULL DEFAULT 0,
	stock       INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	customer_id      TEXT REFERENCES profiles(id) ON DELETE SET NULL,
	total_amount     REAL NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'pending',
	shipping_address TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

CREATE TABLE IF NOT EXISTS order_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id    TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	old_status  TEXT NOT NULL DEFAULT '',
	new_status  TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	actor       TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_stats (
	date          TEXT PRIMARY KEY,
	total_sales   REAL NOT NULL DEFAULT 0,
	total_orders  INTEGER NOT NULL DEFAULT 0,
	new_customers INTEGER NOT NULL DEFAULT 0,
	page_views    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS stock_adjustments (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id  TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	delta       INTEGER NOT NULL,
	stock_after INTEGER NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	actor       TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS admin_users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	topic       TEXT NOT NULL,
	payload     BLOB NOT NULL,
	msg_type    TEXT NOT NULL DEFAULT '',
	attempts    INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	sent_at     TEXT
);

CREATE TABLE IF NOT EXISTS audit_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	action      TEXT NOT NULL,
	old_value   TEXT NOT NULL DEFAULT '',
	new_value   TEXT NOT NULL DEFAULT '',
	actor       TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS profiles (
	id          TEXT PRIMARY KEY,
	email       TEXT NOT NULL UNIQUE,
	full_name   TEXT NOT NULL DEFAULT '',
	avatar_url  TEXT NOT NULL DEFAULT '',
	phone       TEXT NOT NULL DEFAULT '',
	address     TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	price       DOUBLE PRECISION NOT NULL DEFAULT 0,
	stock       INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	customer_id      TEXT REFERENCES profiles(id) ON DELETE SET NULL,
	total_amount     DOUBLE PRECISION NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'pending',
	shipping_address TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

CREATE TABLE IF NOT EXISTS order_history (
	id          BIGSERIAL PRIMARY KEY,
	order_id    TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	old_status  TEXT NOT NULL DEFAULT '',
	new_status  TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	actor       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_stats (
	date          TEXT PRIMARY KEY,
	total_sales   DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_orders  INTEGER NOT NULL DEFAULT 0,
	new_customers INTEGER NOT NULL DEFAULT 0,
	page_views    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS stock_adjustments (
	id          BIGSERIAL PRIMARY KEY,
	product_id  TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	delta       INTEGER NOT NULL,
	stock_after INTEGER NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	actor       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS admin_users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox (
	id          BIGSERIAL PRIMARY KEY,
	topic       TEXT NOT NULL,
	payload     BYTEA NOT NULL,
	msg_type    TEXT NOT NULL DEFAULT '',
	attempts    INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL,
	sent_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS audit_log (
	id          BIGSERIAL PRIMARY KEY,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	action      TEXT NOT NULL,
	old_value   TEXT NOT NULL DEFAULT '',
	new_value   TEXT NOT NULL DEFAULT '',
	actor       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE OR REPLACE FUNCTION storedesk_notify_change() RETURNS trigger AS $$
DECLARE
	row_id TEXT;
BEGIN
	IF TG_OP = 'DELETE' THEN
		row_id := OLD.id;
	ELSE
		row_id := NEW.id;
	END IF;
	PERFORM pg_notify('storedesk_changes',
		json_build_object('table', TG_TABLE_NAME, 'op', TG_OP, 'id', row_id)::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS orders_notify_change ON orders;
CREATE TRIGGER orders_notify_change AFTER INSERT OR UPDATE OR DELETE ON orders
	FOR EACH ROW EXECUTE FUNCTION storedesk_notify_change();

DROP TRIGGER IF EXISTS profiles_notify_change ON profiles;
CREATE TRIGGER profiles_notify_change AFTER INSERT OR UPDATE OR DELETE ON profiles
	FOR EACH ROW EXECUTE FUNCTION storedesk_notify_change();

DROP TRIGGER IF EXISTS products_notify_change ON products;
CREATE TRIGGER products_notify_change AFTER INSERT OR UPDATE OR DELETE ON products
	FOR EACH ROW EXECUTE FUNCTION storedesk_notify_change();

CREATE OR REPLACE FUNCTION get_customer_segments()
RETURNS TABLE(segment_name TEXT, customer_count BIGINT) AS $$
` + segmentsQuery + `
$$ LANGUAGE sql STABLE;
`

// segmentsQuery buckets customers by their non-cancelled order count.
const segmentsQuery = `SELECT seg, COUNT(*) FROM (
	SELECT p.id,
		CASE
			WHEN COUNT(o.id) = 0 THEN 'New'
			WHEN COUNT(o.id) < 3 THEN 'Occasional'
			WHEN COUNT(o.id) < 10 THEN 'Regular'
			ELSE 'VIP'
		END AS seg
	FROM profiles p
	LEFT JOIN orders o ON o.customer_id = p.id AND o.status <> 'cancelled'
	GROUP BY p.id
) s
GROUP BY seg
ORDER BY COUNT(*) DESC, seg`
