package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const sqliteTimeLayout = "2006-01-02 15:04:05"

// Dialect covers the handful of expressions that differ between SQLite and PostgreSQL.
type Dialect interface {
	// DateExpr renders col as a YYYY-MM-DD string.
	DateExpr(col string) string
}

type sqliteDialect struct{}

func (sqliteDialect) DateExpr(col string) string { return fmt.Sprintf("substr(%s, 1, 10)", col) }

type postgresDialect struct{}

func (postgresDialect) DateExpr(col string) string {
	return fmt.Sprintf("to_char(%s AT TIME ZONE 'UTC', 'YYYY-MM-DD')", col)
}

// Rebind turns ? placeholders into $1, $2, ... and leaves quoted literals alone.
func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// dbTime scans timestamps stored as TEXT (SQLite) or TIMESTAMPTZ (PostgreSQL).
type dbTime struct {
	Time  time.Time
	Valid bool
}

func (t *dbTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = x.UTC(), true
		return nil
	case string:
		return t.parse(x)
	case []byte:
		return t.parse(string(x))
	default:
		return fmt.Errorf("store: cannot scan %T into time", v)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("store: unrecognised time %q", s)
}
