// Package all registers every storage backend. Import it for side effects.
package all

import (
	_ "olxwarehouse/internal/storage/mssql"
	_ "olxwarehouse/internal/storage/postgres"
	_ "olxwarehouse/internal/storage/sqlite"
)
