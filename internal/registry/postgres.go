// internal/registry/postgres.go
package registry

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgStore implements Store backed by PostgreSQL.
type pgStore struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

// NewPostgresStore constructs a PostgreSQL-backed claim store.
func NewPostgresStore(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Store {
	return &pgStore{dbPool: dbPool, log: log}
}

// EnsureSchema creates the claim table if it does not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subdomain_claims (
  subdomain text PRIMARY KEY,
  owner_id text NOT NULL,
  claimed_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS subdomain_claims_owner_idx ON subdomain_claims(owner_id);
`)
	return err
}

func (s *pgStore) Load(ctx context.Context) ([]Claim, error) {
	rows, err := s.dbPool.Query(ctx, `SELECT subdomain, owner_id, claimed_at FROM subdomain_claims`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Claim
	for rows.Next() {
		var c Claim
		if err := rows.Scan(&c.Subdomain, &c.OwnerID, &c.ClaimedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *pgStore) Insert(ctx context.Context, c Claim) error {
	_, err := s.dbPool.Exec(ctx,
		`INSERT INTO subdomain_claims(subdomain, owner_id, claimed_at) VALUES ($1,$2,$3)`,
		c.Subdomain, c.OwnerID, c.ClaimedAt)
	return err
}

func (s *pgStore) Delete(ctx context.Context, subdomain string) error {
	_, err := s.dbPool.Exec(ctx, `DELETE FROM subdomain_claims WHERE subdomain=$1`, subdomain)
	return err
}
