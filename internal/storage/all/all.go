// Package all registers every storage backend shipped with mirnadb.
package all

import (
	_ "mirnadb/internal/storage/mssql"
	_ "mirnadb/internal/storage/postgres"
	_ "mirnadb/internal/storage/sqlite"
)
