package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) UserIDByBearer(ctx context.Context, tokenHash string) (uint64, error) {
	query := `
		SELECT user_id
		FROM login
		WHERE bearer_token_hash = $1 AND expires_at > now()
	`

	var userID uint64
	err := s.db.QueryRow(ctx, query, tokenHash).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrBearerNotFound
		}
		return 0, fmt.Errorf("failed to get login: %w", err)
	}

	return userID, nil
}
