package stats

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/julioAk47/web3-proxy/internal/keys"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type stubKeyStore struct {
	owned     []keys.Key
	delegated []keys.Delegation
}

func (s *stubKeyStore) OwnedKeys(ctx context.Context, userID uint64) ([]keys.Key, error) {
	return s.owned, nil
}

func (s *stubKeyStore) DelegatedKeys(ctx context.Context, userID uint64) ([]keys.Delegation, error) {
	return s.delegated, nil
}
