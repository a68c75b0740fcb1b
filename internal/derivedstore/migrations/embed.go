package migrations

import (
	_ "embed"

	"github.com/goran-ethernal/ChainIndexor/internal/db"
)

//go:embed 001_initial_sqlite.sql
var sqliteInitial string

//go:embed 001_initial_postgres.sql
var postgresInitial string

// SQLite is the derived store's sql-migrate migration set for SQLite.
var SQLite = []db.Migration{
	{ID: "001_initial.sql", SQL: sqliteInitial},
}

// Postgres is the derived store's sql-migrate migration set for Postgres.
var Postgres = []db.Migration{
	{ID: "001_initial.sql", SQL: postgresInitial},
}
