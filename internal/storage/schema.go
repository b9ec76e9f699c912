// TableSpec lives here so that both the warehouse and the backend packages can
// import it without cycles.
package storage

import (
	"fmt"
	"strings"
)

// Logical column types. Each backend maps them onto its own DDL types.
const (
	TypeText      = "text"
	TypeSmallInt  = "smallint"
	TypeInt       = "int"
	TypeBigInt    = "bigint"
	TypeFloat     = "float"
	TypeTimestamp = "timestamp"
)

type TableSpec struct {
	Name        string           `json:"name"`
	PrimaryKey  *PrimaryKeySpec  `json:"primary_key,omitempty"`
	Columns     []ColumnSpec     `json:"columns"`
	Constraints []ConstraintSpec `json:"constraints,omitempty"`
}

// PrimaryKeySpec is always a backend-generated integer identity.
type PrimaryKeySpec struct {
	Name string `json:"name"`
	Type string `json:"type"` // serial | bigserial
}

type ColumnSpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
	// Length bounds text columns where the backend needs it (indexable
	// NVARCHAR on SQL Server). Zero means unbounded.
	Length     int    `json:"length,omitempty"`
	References string `json:"references,omitempty"` // "table(column)"
	Nullable   bool   `json:"nullable,omitempty"`
}

type ConstraintSpec struct {
	Kind    string   `json:"kind"` // "unique"
	Columns []string `json:"columns"`
}

// Ref renders a REFERENCES target.
func Ref(table, column string) string {
	return table + "(" + column + ")"
}

// SplitRef splits "table(column)" into its parts.
func SplitRef(ref string) (table, column string, err error) {
	ref = strings.TrimSpace(ref)
	open := strings.IndexByte(ref, '(')
	if open <= 0 || !strings.HasSuffix(ref, ")") {
		return "", "", fmt.Errorf("storage: malformed reference %q (want table(column))", ref)
	}
	return strings.TrimSpace(ref[:open]), strings.TrimSpace(ref[open+1 : len(ref)-1]), nil
}

// Validate checks the parts every backend relies on.
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("storage: table name is empty")
	}
	if t.PrimaryKey != nil && strings.TrimSpace(t.PrimaryKey.Name) == "" {
		return fmt.Errorf("storage: table %s: primary key name is empty", t.Name)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("storage: table %s: no columns", t.Name)
	}
	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("storage: table %s: column name is empty", t.Name)
		}
		switch c.Type {
		case TypeText, TypeSmallInt, TypeInt, TypeBigInt, TypeFloat, TypeTimestamp:
		default:
			return fmt.Errorf("storage: table %s: column %s: unsupported type %q", t.Name, c.Name, c.Type)
		}
		if c.References != "" {
			if _, _, err := SplitRef(c.References); err != nil {
				return fmt.Errorf("storage: table %s: column %s: %w", t.Name, c.Name, err)
			}
		}
	}
	for _, con := range t.Constraints {
		if !strings.EqualFold(con.Kind, "unique") {
			return fmt.Errorf("storage: table %s: unsupported constraint kind %q", t.Name, con.Kind)
		}
		if len(con.Columns) == 0 {
			return fmt.Errorf("storage: table %s: unique constraint has no columns", t.Name)
		}
	}
	return nil
}

// ColumnNames returns the non-key column names in declaration order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}
