package store

import "strings"

// SQLite driver names.
const (
	// DriverSQLiteCGO is the mattn/go-sqlite3 driver.
	DriverSQLiteCGO = "sqlite3"
	// DriverSQLitePure is the modernc.org/sqlite driver, usable without cgo.
	DriverSQLitePure = "sqlite"
)

// Opts holds configuration options for the stores.
type Opts struct {
	DSN          string // database connection string or SQLite file path
	SQLiteDriver string // sqlite3 (default) or sqlite
}

// Option defines a configuration option for the stores.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDriver selects the database/sql driver used for SQLite.
func WithSQLiteDriver(driver string) Option {
	return func(o *Opts) { o.SQLiteDriver = driver }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	// libpq key=value form, e.g. "host=localhost user=postgres dbname=deck"
	for _, key := range []string{"host=", "dbname=", "user="} {
		if strings.Contains(dsn, key) && !strings.Contains(dsn, "?") {
			return "postgres"
		}
	}
	return "sqlite"
}
