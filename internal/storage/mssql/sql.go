package mssql

import (
	"fmt"
	"strings"

	"olxwarehouse/internal/storage"
)

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(strings.TrimSpace(name), "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified names.
//
// Example:
//
//	"dbo.dim_market" -> [dbo].[dim_market]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(parts[i])
	}
	return strings.Join(parts, ".")
}

// buildInsertSQL builds a single INSERT ... VALUES statement with @pN
// placeholders. Every row must have len(columns) values.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any, error) {
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("mssql: insert into %s: no columns", table)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("mssql: insert into %s: row %d has %d values, want %d", table, i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	b.WriteString(";")
	return b.String(), args, nil
}

func buildSelectSQL(q storage.Query) string {
	cols := make([]string, len(q.Columns))
	for i, c := range q.Columns {
		cols[i] = mssqlIdent(c)
	}
	s := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), mssqlTableIdent(q.Table))
	if len(q.OrderBy) > 0 {
		order := make([]string, len(q.OrderBy))
		for i, c := range q.OrderBy {
			order[i] = mssqlIdent(c)
		}
		s += " ORDER BY " + strings.Join(order, ", ")
	}
	return s
}

func buildCountSQL(table string) string {
	return "SELECT COUNT_BIG(*) FROM " + mssqlTableIdent(table)
}

// buildCreateSQL builds idempotent CREATE TABLE SQL wrapped in an OBJECT_ID guard.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	var parts []string
	if t.PrimaryKey != nil {
		parts = append(parts, mssqlPrimaryKeyDef(*t.PrimaryKey))
	}
	for _, c := range t.Columns {
		def, err := mssqlColumnDef(c)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", t.Name, err)
		}
		parts = append(parts, def)
	}
	for _, con := range t.Constraints {
		cols := make([]string, len(con.Columns))
		for i, c := range con.Columns {
			cols[i] = mssqlIdent(c)
		}
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", strings.Join(cols, ", ")))
	}

	return wrapCreateIfMissing(t.Name, strings.Join(parts, ", ")), nil
}

// wrapCreateIfMissing keeps EnsureTables idempotent without IF NOT EXISTS syntax.
func wrapCreateIfMissing(tableName string, innerDefs string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		strings.ReplaceAll(tableName, "'", "''"),
		mssqlTableIdent(tableName),
		innerDefs,
	)
}

// mssqlPrimaryKeyDef returns an identity primary key column definition.
//   - "bigserial" -> BIGINT IDENTITY(1,1) PRIMARY KEY
//   - anything else -> INT IDENTITY(1,1) PRIMARY KEY
func mssqlPrimaryKeyDef(pk storage.PrimaryKeySpec) string {
	typ := "INT"
	if strings.EqualFold(strings.TrimSpace(pk.Type), "bigserial") {
		typ = "BIGINT"
	}
	return fmt.Sprintf("%s %s IDENTITY(1,1) PRIMARY KEY", mssqlIdent(pk.Name), typ)
}

func mssqlColumnType(c storage.ColumnSpec) string {
	switch c.Type {
	case storage.TypeText:
		// NVARCHAR(MAX) cannot take part in a UNIQUE constraint.
		if c.Length > 0 && c.Length <= 4000 {
			return fmt.Sprintf("NVARCHAR(%d)", c.Length)
		}
		return "NVARCHAR(MAX)"
	case storage.TypeSmallInt:
		return "SMALLINT"
	case storage.TypeInt:
		return "INT"
	case storage.TypeBigInt:
		return "BIGINT"
	case storage.TypeFloat:
		return "FLOAT"
	case storage.TypeTimestamp:
		return "DATETIME2"
	default:
		return c.Type
	}
}

// mssqlColumnDef builds "<col> <type> NULL|NOT NULL [REFERENCES t (c)]".
func mssqlColumnDef(c storage.ColumnSpec) (string, error) {
	var b strings.Builder
	b.WriteString(mssqlIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(mssqlColumnType(c))
	if c.Nullable {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}
	if c.References != "" {
		table, col, err := storage.SplitRef(c.References)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " REFERENCES %s (%s)", mssqlTableIdent(table), mssqlIdent(col))
	}
	return b.String(), nil
}
