package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresUserStore fetches users from the platform database. It is the
// backing store behind the per-family TTL cache, so it only ever sees one
// query per user id per cache window.
type PostgresUserStore struct {
	pool *pgxpool.Pool
}

var _ UserFetcher = (*PostgresUserStore)(nil)

func NewPostgresUserStore(ctx context.Context, uri string) (*PostgresUserStore, error) {
	pool, err := pgxpool.New(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres user store: %w", err)
	}
	return &PostgresUserStore{pool: pool}, nil
}

func (s *PostgresUserStore) FetchUserByID(ctx context.Context, id int64) (*User, error) {
	row := s.pool.QueryRow(ctx, "SELECT id, username, is_active FROM users WHERE id = $1", id)

	var user User
	err := row.Scan(&user.ID, &user.Username, &user.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch user %d: %w", id, err)
	}
	return &user, nil
}

func (s *PostgresUserStore) Close() {
	s.pool.Close()
}
