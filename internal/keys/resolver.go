package keys

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Resolver struct {
	store  Store
	logger zerolog.Logger
}

func NewResolver(store Store, logger zerolog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger.With().Str("component", "keys").Logger(),
	}
}

// Resolve computes the keys visible to userID: every key the user owns plus
// every key delegated to them with an owner or admin role. userID 0 is the
// anonymous caller and resolves to an unrestricted scope.
func (r *Resolver) Resolve(ctx context.Context, userID uint64) (Scope, error) {
	if userID == 0 {
		return Unrestricted(), nil
	}

	var owned []Key
	var delegated []Delegation

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		owned, err = r.store.OwnedKeys(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed loading user's keys: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		delegated, err = r.store.DelegatedKeys(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed loading delegated keys: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Scope{}, err
	}

	scope := newScope()
	for _, k := range owned {
		scope.add(k)
	}
	skipped := 0
	for _, d := range delegated {
		if !d.Role.CanViewUsage() {
			if _, known := ParseRole(string(d.Role)); !known {
				r.logger.Warn().
					Uint64("user_id", userID).
					Uint64("rpc_key_id", d.Key.ID).
					Str("role", string(d.Role)).
					Msg("ignoring delegation with unknown role")
			}
			skipped++
			continue
		}
		scope.add(d.Key)
	}

	r.logger.Debug().
		Uint64("user_id", userID).
		Int("owned", len(owned)).
		Int("delegated", len(delegated)-skipped).
		Int("skipped_delegations", skipped).
		Msg("resolved key scope")

	if scope.IsUnrestricted() {
		return Scope{}, ErrNoVisibleKeys
	}
	return scope, nil
}
