// Package catalog discovers the databases of a PostgreSQL server.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const ListDatabasesQuery = "SELECT datname FROM pg_database WHERE datistemplate = false ORDER BY datname;"

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("fail to open database, error: %w", err)
	}

	return db, nil
}

type Querier struct {
	db *sql.DB
}

func NewQuerier(db *sql.DB) *Querier {
	return &Querier{db: db}
}

// ListDatabases returns every non-template database, sorted by name.
func (q *Querier) ListDatabases(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, ListDatabasesQuery)
	if err != nil {
		return nil, fmt.Errorf("fail to run query %s, error: %w", ListDatabasesQuery, err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("fail to close database rows", slog.Any("error", err), slog.Any("query", ListDatabasesQuery))
		}
	}()

	databases := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("fail to scan database rows, query: %s, error: %w", ListDatabasesQuery, err)
		}

		databases = append(databases, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fail to iterate database rows, error: %w", err)
	}

	return databases, nil
}
