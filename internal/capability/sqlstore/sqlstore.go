// Package sqlstore is the shared connection layer behind the sqlite and
// postgres capability modules. It uses gorm.io/gorm purely as a connection
// opener — grounded on xunxun1982-gpt-load's internal/db/database.go, which
// opens gorm.Dialectors (glebarez/sqlite, gorm.io/driver/postgres) and then
// drops to the underlying *sql.DB for everything else. Scripts pass raw,
// positionally-parameterized SQL; GORM's query builder is never invoked
// here, only its connection/pooling machinery.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	sqliteConns   sync.Map // path -> *sql.DB
	postgresConns sync.Map // connection string -> *sql.DB
)

// SQLiteConn returns a pooled *sql.DB for the given file path, opening one
// on first use.
func SQLiteConn(path string) (*sql.DB, error) {
	return pooledConn(&sqliteConns, path, func() (*sql.DB, error) {
		gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
		if err != nil {
			return nil, fmt.Errorf("opening sqlite %q: %w", path, err)
		}
		return gdb.DB()
	})
}

// PostgresConn returns a pooled *sql.DB for the given connection string,
// opening one on first use. Per spec.md §4.2, postgres connections are
// pooled per connection string.
func PostgresConn(dsn string) (*sql.DB, error) {
	return pooledConn(&postgresConns, dsn, func() (*sql.DB, error) {
		gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
		if err != nil {
			return nil, fmt.Errorf("opening postgres connection: %w", err)
		}
		return gdb.DB()
	})
}

func pooledConn(pool *sync.Map, key string, open func() (*sql.DB, error)) (*sql.DB, error) {
	if v, ok := pool.Load(key); ok {
		return v.(*sql.DB), nil
	}
	db, err := open()
	if err != nil {
		return nil, err
	}
	actual, loaded := pool.LoadOrStore(key, db)
	if loaded {
		_ = db.Close()
		return actual.(*sql.DB), nil
	}
	return db, nil
}

// Row is one result row from Query, keyed by column name. A Go map has no
// order; Query returns the declared column order separately.
type Row = map[string]any

// Query runs a SELECT-shaped statement and returns rows as ordered column
// mappings. Columns is returned alongside to preserve declared order, since
// a Go map does not. ctx is checked by the driver throughout; a canceled
// ctx interrupts the call and returns ctx.Err() (or a driver-wrapped form
// of it) instead of blocking to completion.
func Query(ctx context.Context, db *sql.DB, query string, params []any) (columns []string, rows []Row, err error) {
	rset, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, nil, err
	}
	defer rset.Close()

	columns, err = rset.Columns()
	if err != nil {
		return nil, nil, err
	}

	for rset.Next() {
		scanTargets := make([]any, len(columns))
		values := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rset.Scan(scanTargets...); err != nil {
			return nil, nil, err
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeScanValue(values[i])
		}
		rows = append(rows, row)
	}
	return columns, rows, rset.Err()
}

// Execute runs an INSERT/UPDATE/DELETE/DDL statement and returns the number
// of rows affected (0 for statements that don't report it).
func Execute(ctx context.Context, db *sql.DB, query string, params []any) (int64, error) {
	res, err := db.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil //nolint:nilerr // driver doesn't support RowsAffected; not an error condition
	}
	return affected, nil
}

// ListTables returns table names for the given driver.
func ListTables(ctx context.Context, db *sql.DB, dialect string) ([]string, error) {
	var query string
	switch dialect {
	case "sqlite":
		query = `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`
	case "postgres":
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	rset, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rset.Close()
	var tables []string
	for rset.Next() {
		var name string
		if err := rset.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rset.Err()
}

// DescribeTable returns column metadata for a table: name and type for
// postgres; for sqlite, every field PRAGMA table_info reports (cid, name,
// type, notnull, dflt_value, pk).
func DescribeTable(ctx context.Context, db *sql.DB, dialect, table string) ([]Row, error) {
	var query string
	var args []any
	switch dialect {
	case "sqlite":
		query = fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table))
	case "postgres":
		query = `SELECT column_name AS name, data_type AS type FROM information_schema.columns WHERE table_name = $1 ORDER BY ordinal_position`
		args = []any{table}
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	_, rows, err := Query(ctx, db, query, args)
	return rows, err
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

func normalizeScanValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// CloseAll closes every pooled sqlite and postgres connection, clearing
// both pools. Called once during process shutdown.
func CloseAll() error {
	var errs []error
	closeAndClear(&sqliteConns, &errs)
	closeAndClear(&postgresConns, &errs)
	return errors.Join(errs...)
}

func closeAndClear(pool *sync.Map, errs *[]error) {
	pool.Range(func(key, value any) bool {
		if db, ok := value.(*sql.DB); ok {
			if err := db.Close(); err != nil {
				*errs = append(*errs, err)
			}
		}
		pool.Delete(key)
		return true
	})
}
