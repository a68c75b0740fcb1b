package derivedstore

import "fmt"

// dialect mirrors eventstore's dialect: the only SQL differences between the
// two backends are placeholder style and the sql-migrate dialect name.
type dialect struct {
	name        string
	driverName  string
	placeholder func(argIndex int) string
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

// placeholders renders n sequential placeholders starting at 1.
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
