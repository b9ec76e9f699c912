package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"olxwarehouse/internal/storage"
)

// pgIdent quotes a single identifier.
func pgIdent(name string) string {
	return pgx.Identifier{strings.TrimSpace(name)}.Sanitize()
}

// pgTable quotes a possibly schema-qualified relation name.
//
//	"public.dim_market" -> "public"."dim_market"
func pgTable(name string) string {
	parts := strings.Split(strings.TrimSpace(name), ".")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return pgx.Identifier(parts).Sanitize()
}

// splitQualifiedName splits a schema-qualified name into (schema, table).
//
// Examples:
//   - "public.countries" => ("public", "countries")
//   - "countries"        => ("", "countries")
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

// buildInsertSQL constructs a single multi-row INSERT and its args.
//
// It is pure so placeholder numbering can be tested without a database.
// Every row must have len(columns) values.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any, error) {
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("postgres: insert into %s: no columns", table)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgTable(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("postgres: insert into %s: row %d has %d values, want %d", table, i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args, nil
}

func buildSelectSQL(q storage.Query) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, c := range q.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(" FROM ")
	b.WriteString(pgTable(q.Table))
	if len(q.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, c := range q.OrderBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
		}
	}
	return b.String()
}

func buildCountSQL(table string) string {
	return "SELECT COUNT(*) FROM " + pgTable(table)
}

// buildCreateSQL returns the optional CREATE SCHEMA statement and the
// CREATE TABLE IF NOT EXISTS statement for t.
func buildCreateSQL(t storage.TableSpec) (schemaSQL, baseSQL string, err error) {
	if err := t.Validate(); err != nil {
		return "", "", err
	}

	if schema, _ := splitQualifiedName(t.Name); schema != "" {
		schemaSQL = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgIdent(schema))
	}

	defs := make([]string, 0, len(t.Columns)+len(t.Constraints)+1)
	if t.PrimaryKey != nil {
		defs = append(defs, fmt.Sprintf("%s %s PRIMARY KEY", pgIdent(t.PrimaryKey.Name), pgSerialType(t.PrimaryKey.Type)))
	}
	for _, c := range t.Columns {
		def, err := buildColumnDef(c)
		if err != nil {
			return "", "", fmt.Errorf("table %s: %w", t.Name, err)
		}
		defs = append(defs, def)
	}
	for _, con := range t.Constraints {
		cols := make([]string, len(con.Columns))
		for i, c := range con.Columns {
			cols[i] = pgIdent(c)
		}
		defs = append(defs, fmt.Sprintf("UNIQUE (%s)", strings.Join(cols, ", ")))
	}

	baseSQL = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", pgTable(t.Name), strings.Join(defs, ", "))
	return schemaSQL, baseSQL, nil
}

func pgSerialType(typ string) string {
	if strings.EqualFold(strings.TrimSpace(typ), "bigserial") {
		return "BIGSERIAL"
	}
	return "SERIAL"
}

func pgColumnType(c storage.ColumnSpec) string {
	switch c.Type {
	case storage.TypeText:
		if c.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", c.Length)
		}
		return "TEXT"
	case storage.TypeSmallInt:
		return "SMALLINT"
	case storage.TypeInt:
		return "INTEGER"
	case storage.TypeBigInt:
		return "BIGINT"
	case storage.TypeFloat:
		return "DOUBLE PRECISION"
	case storage.TypeTimestamp:
		return "TIMESTAMPTZ"
	default:
		return c.Type
	}
}

// buildColumnDef renders "<col> <type> [NOT NULL] [REFERENCES t (c)]".
func buildColumnDef(c storage.ColumnSpec) (string, error) {
	var b strings.Builder
	b.WriteString(pgIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(pgColumnType(c))
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.References != "" {
		table, col, err := storage.SplitRef(c.References)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " REFERENCES %s (%s)", pgTable(table), pgIdent(col))
	}
	return b.String(), nil
}
