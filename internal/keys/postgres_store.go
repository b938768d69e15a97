package keys

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) OwnedKeys(ctx context.Context, userID uint64) ([]Key, error) {
	query := `
		SELECT id, user_id, secret_key
		FROM rpc_key
		WHERE user_id = $1
		ORDER BY id
	`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rpc keys: %w", err)
	}
	defer rows.Close()

	var out []Key
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.ID, &k.UserID, &k.Secret); err != nil {
			return nil, fmt.Errorf("failed to scan rpc key: %w", err)
		}
		out = append(out, k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rpc keys: %w", err)
	}

	return out, nil
}

func (s *PostgresStore) DelegatedKeys(ctx context.Context, userID uint64) ([]Delegation, error) {
	query := `
		SELECT su.user_id, su.role::text, k.id, k.user_id, k.secret_key
		FROM secondary_user su
		JOIN rpc_key k ON k.id = su.rpc_secret_key_id
		WHERE su.user_id = $1
		ORDER BY k.id
	`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query secondary users: %w", err)
	}
	defer rows.Close()

	var out []Delegation
	for rows.Next() {
		var d Delegation
		var role string
		if err := rows.Scan(&d.UserID, &role, &d.Key.ID, &d.Key.UserID, &d.Key.Secret); err != nil {
			return nil, fmt.Errorf("failed to scan secondary user: %w", err)
		}
		// Roles this build does not know are kept verbatim; they grant nothing.
		d.Role = Role(role)
		if parsed, ok := ParseRole(role); ok {
			d.Role = parsed
		}
		out = append(out, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating secondary users: %w", err)
	}

	return out, nil
}
