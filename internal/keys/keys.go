// Package keys resolves which RPC keys a caller may read usage for.
package keys

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var ErrNoVisibleKeys = errors.New("no visible keys")

// Role is a delegate's role on a key owned by another user.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ParseRole converts a case-insensitive string to a Role.
func ParseRole(value string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "owner":
		return RoleOwner, true
	case "admin":
		return RoleAdmin, true
	case "member":
		return RoleMember, true
	default:
		return "", false
	}
}

// CanViewUsage reports whether a delegation with this role grants read
// access to the key's usage. Only owners and admins can.
func (r Role) CanViewUsage() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Key is an RPC key row: its numeric id and the 128-bit secret.
type Key struct {
	ID     uint64
	UserID uint64
	Secret uuid.UUID
}

// Display renders the secret the way callers see it.
func (k Key) Display() string {
	return ulid.ULID(k.Secret).String()
}

// Delegation grants a secondary user a role on someone else's key.
type Delegation struct {
	UserID uint64
	Role   Role
	Key    Key
}

type Store interface {
	OwnedKeys(ctx context.Context, userID uint64) ([]Key, error)
	DelegatedKeys(ctx context.Context, userID uint64) ([]Delegation, error)
}

// Scope is the request-local set of keys a caller may see, with their display
// values. An unrestricted scope (anonymous caller) has no keys at all.
type Scope struct {
	display map[uint64]string
}

// Unrestricted is the scope of an anonymous caller: no key filter.
func Unrestricted() Scope {
	return Scope{}
}

func newScope() Scope {
	return Scope{display: make(map[uint64]string)}
}

func (s Scope) add(k Key) {
	s.display[k.ID] = k.Display()
}

// IsUnrestricted is true when no key filter applies.
func (s Scope) IsUnrestricted() bool {
	return len(s.display) == 0
}

// KeyIDs returns the visible key ids in ascending order.
func (s Scope) KeyIDs() []uint64 {
	ids := make([]uint64, 0, len(s.display))
	for id := range s.display {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s Scope) Contains(id uint64) bool {
	_, ok := s.display[id]
	return ok
}

// Display returns the caller-facing secret for a visible key id.
func (s Scope) Display(id uint64) (string, bool) {
	v, ok := s.display[id]
	return v, ok
}

// Restrict narrows the scope to a single visible key.
func (s Scope) Restrict(id uint64) (Scope, bool) {
	v, ok := s.display[id]
	if !ok {
		return Scope{}, false
	}
	return Scope{display: map[uint64]string{id: v}}, true
}
