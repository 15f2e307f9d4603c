package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"
)

const postgresResolveQuery = `SELECT username FROM accounts WHERE token = $1`

// PostgresResolver reads credentials from an accounts table, for
// deployments that already keep their account source in postgres.
type PostgresResolver struct {
	db *sql.DB
}

func NewPostgresResolver(db *sql.DB) *PostgresResolver {
	return &PostgresResolver{db: db}
}

func (r *PostgresResolver) Resolve(ctx context.Context, credential string) (string, bool) {
	var username string
	err := r.db.QueryRowContext(ctx, postgresResolveQuery, credential).Scan(&username)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("account lookup failed: %v", err)
		}
		return "", false
	}
	return username, true
}
