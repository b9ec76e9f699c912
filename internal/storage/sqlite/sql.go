package sqlite

import (
	"fmt"
	"strings"

	"olxwarehouse/internal/storage"
)

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(strings.TrimSpace(id), `"`, `""`) + `"`
}

// sqlTable quotes a table name. SQLite has no schemas, only attached
// databases, so "main.t" style names are quoted part by part.
func sqlTable(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = sqlIdent(parts[i])
	}
	return strings.Join(parts, ".")
}

func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any, error) {
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("sqlite: insert into %s: no columns", table)
	}

	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = sqlIdent(c)
	}
	ph := "(" + strings.TrimRight(strings.Repeat("?, ", len(columns)), ", ") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlTable(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("sqlite: insert into %s: row %d has %d values, want %d", table, i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ph)
		for _, v := range row {
			args = append(args, bindValue(v))
		}
	}
	return b.String(), args, nil
}

func buildSelectSQL(q storage.Query) string {
	cols := make([]string, len(q.Columns))
	for i, c := range q.Columns {
		cols[i] = sqlIdent(c)
	}
	s := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), sqlTable(q.Table))
	if len(q.OrderBy) > 0 {
		order := make([]string, len(q.OrderBy))
		for i, c := range q.OrderBy {
			order[i] = sqlIdent(c)
		}
		s += " ORDER BY " + strings.Join(order, ", ")
	}
	return s
}

func sqliteColumnType(typ string) string {
	switch typ {
	case storage.TypeSmallInt, storage.TypeInt, storage.TypeBigInt:
		return "INTEGER"
	case storage.TypeFloat:
		return "REAL"
	default:
		// text and timestamp (stored as RFC3339Nano)
		return "TEXT"
	}
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	var parts []string
	if t.PrimaryKey != nil {
		// "INTEGER PRIMARY KEY" is special in sqlite: it becomes the rowid and auto-generates values.
		parts = append(parts, fmt.Sprintf(`%s INTEGER PRIMARY KEY AUTOINCREMENT`, sqlIdent(t.PrimaryKey.Name)))
	}

	for _, c := range t.Columns {
		col := fmt.Sprintf("%s %s", sqlIdent(c.Name), sqliteColumnType(c.Type))
		if !c.Nullable {
			col += " NOT NULL"
		}
		if c.References != "" {
			table, ref, err := storage.SplitRef(c.References)
			if err != nil {
				return "", err
			}
			col += fmt.Sprintf(" REFERENCES %s (%s)", sqlTable(table), sqlIdent(ref))
		}
		parts = append(parts, col)
	}

	for _, con := range t.Constraints {
		var cols []string
		for _, c := range con.Columns {
			cols = append(cols, sqlIdent(c))
		}
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", strings.Join(cols, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", sqlTable(t.Name), strings.Join(parts, ",\n  ")), nil
}
