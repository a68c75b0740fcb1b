package eventstore

import "fmt"

// dialect captures the handful of SQL differences between the SQLite and
// Postgres backends (placeholder style, sql-migrate dialect name). Both
// backends otherwise share every query and every meddler row mapping.
type dialect struct {
	name          string // sql-migrate dialect name: "sqlite3" | "postgres"
	driverName    string // database/sql driver name
	placeholder   func(argIndex int) string
	upsertNothing string // not set by either dialect; queries write "ON CONFLICT (...) DO NOTHING" inline, same syntax on both
}

func sqliteDialect() dialect {
	return dialect{
		name:       "sqlite3",
		driverName: "sqlite3",
		placeholder: func(int) string {
			return "?"
		},
	}
}

func postgresDialect() dialect {
	return dialect{
		name:       "postgres",
		driverName: "pgx",
		placeholder: func(argIndex int) string {
			return fmt.Sprintf("$%d", argIndex)
		},
	}
}

// placeholders renders n sequential placeholders starting at 1, e.g. "?, ?, ?"
// or "$1, $2, $3".
func (d dialect) placeholders(n int) string {
	out := ""
	for i := 1; i <= n; i++ {
		if i > 1 {
			out += ", "
		}
		out += d.placeholder(i)
	}
	return out
}
