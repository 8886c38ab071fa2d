package memory

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// CurrentSchemaVersion is the version of the memory schema.
const CurrentSchemaVersion = 1

// Dialect adapts SQL text to one database driver.
type Dialect struct {
	Name       string
	driverName string
}

var (
	SQLite   = Dialect{Name: "sqlite", driverName: "sqlite"}
	Postgres = Dialect{Name: "postgres", driverName: "pgx"}
)

// DialectFor maps a config driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite", "":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported memory driver: %s", driver)
	}
}

// Rebind rewrites ? placeholders to the dialect's style.
func (d Dialect) Rebind(query string) string {
	if d.Name != Postgres.Name {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// openDB opens the database behind dsn and applies the schema. For sqlite the
// dsn is a file path.
func openDB(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	source := dsn
	if d.Name == SQLite.Name {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		source = dsn + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open(d.driverName, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d.Name == SQLite.Name {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(ctx, db, d); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	schema, err := schemaFS.ReadFile("schema/" + d.Name + ".sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(string(schema), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	var version int
	err = tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("database schema v%d is newer than supported v%d", version, CurrentSchemaVersion)
	}
	if version < CurrentSchemaVersion {
		_, err := tx.ExecContext(ctx,
			d.Rebind("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)"),
			CurrentSchemaVersion, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	return tx.Commit()
}
