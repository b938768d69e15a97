// Package seeder inserts a demo account for local development: an owner
// with one RPC key and a second user holding an admin delegation on it.
package seeder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/julioAk47/web3-proxy/internal/auth"
	"github.com/julioAk47/web3-proxy/internal/keys"
)

const (
	OwnerBearer    = "test-bearer-owner-12345"
	DelegateBearer = "test-bearer-admin-12345"

	loginTTL = 365 * 24 * time.Hour
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Result identifies what Seed created so it can be printed.
type Result struct {
	OwnerID    uint64
	DelegateID uint64
	Key        keys.Key
}

func Seed(ctx context.Context, db DB, logger zerolog.Logger) (*Result, error) {
	logger = logger.With().Str("component", "seeder").Logger()

	ownerID, err := upsertUser(ctx, db, []byte("demo-owner"))
	if err != nil {
		return nil, err
	}
	delegateID, err := upsertUser(ctx, db, []byte("demo-admin"))
	if err != nil {
		return nil, err
	}

	for userID, bearer := range map[uint64]string{ownerID: OwnerBearer, delegateID: DelegateBearer} {
		_, err := db.Exec(ctx, `
			INSERT INTO login (user_id, bearer_token_hash, expires_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (bearer_token_hash) DO UPDATE SET expires_at = EXCLUDED.expires_at
		`, userID, auth.HashBearer(bearer), time.Now().Add(loginTTL))
		if err != nil {
			return nil, fmt.Errorf("failed to insert login for user %d: %w", userID, err)
		}
	}

	key := keys.Key{UserID: ownerID, Secret: uuid.New()}
	err = db.QueryRow(ctx, `
		INSERT INTO rpc_key (user_id, secret_key, description)
		VALUES ($1, $2, 'seeded demo key')
		RETURNING id
	`, ownerID, key.Secret).Scan(&key.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert rpc key: %w", err)
	}

	_, err = db.Exec(ctx, `
		INSERT INTO secondary_user (user_id, rpc_secret_key_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, rpc_secret_key_id) DO NOTHING
	`, delegateID, key.ID, string(keys.RoleAdmin))
	if err != nil {
		return nil, fmt.Errorf("failed to insert delegation: %w", err)
	}

	logger.Info().
		Uint64("owner_id", ownerID).
		Uint64("delegate_id", delegateID).
		Uint64("rpc_key_id", key.ID).
		Str("rpc_key", key.Display()).
		Msg("seeded demo account")

	return &Result{OwnerID: ownerID, DelegateID: delegateID, Key: key}, nil
}

func upsertUser(ctx context.Context, db DB, address []byte) (uint64, error) {
	var id uint64
	err := db.QueryRow(ctx, `
		INSERT INTO "user" (address) VALUES ($1)
		ON CONFLICT (address) DO UPDATE SET address = EXCLUDED.address
		RETURNING id
	`, address).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert user: %w", err)
	}
	return id, nil
}
