package auth

import (
	"context"
	"errors"

	"github.com/dukerupert/eventdesk/internal/model"
)

var (
	ErrUnauthenticated = errors.New("no identity in context")
	ErrIdentityChanged = errors.New("identity changed while request was in flight")
	ErrIdentityRevoked = errors.New("identity revoked while request was in flight")
)

type contextKey struct{}

// Identity is the signed-in user a request runs on behalf of. Epoch
// distinguishes successive sign-ins so state tagged with an older epoch can be
// dropped.
type Identity struct {
	UserID int64
	Role   model.Role
	Token  string
	Epoch  uint64
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// Require returns the identity in ctx or ErrUnauthenticated.
func Require(ctx context.Context) (Identity, error) {
	id, ok := FromContext(ctx)
	if !ok || id.Token == "" {
		return Identity{}, ErrUnauthenticated
	}
	return id, nil
}

func UserID(ctx context.Context) int64 {
	id, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return id.UserID
}

func IsAdmin(ctx context.Context) bool {
	id, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return id.Role == model.RoleAdmin
}

// CheckCurrent reports whether ctx was cancelled because the identity it was
// started under is no longer current. Results fetched under such a context
// must be discarded.
func CheckCurrent(ctx context.Context) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrIdentityChanged) || errors.Is(cause, ErrIdentityRevoked) {
		return cause
	}
	return nil
}
