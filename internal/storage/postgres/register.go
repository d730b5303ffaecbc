package postgres

import "mirnadb/internal/storage"

func init() {
	storage.Register("postgres", New)
}
