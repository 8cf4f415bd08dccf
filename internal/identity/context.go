// Package identity carries the authenticated caller through
// context.Context. Authentication itself happens upstream; the HTTP
// layer only translates trusted gateway headers into an Actor.
package identity

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Role is the coarse-grained role attached to a caller.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
	RoleSystem  Role = "system"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleAdmin, RoleManager, RoleUser, RoleSystem:
		return Role(raw), true
	default:
		return "", false
	}
}

// Privileged reports whether the role may act on another user's behalf.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleManager || r == RoleSystem
}

type Actor struct {
	UserID snowflake.ID
	Role   Role
}

type contextKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(Actor)
	if !ok || actor.UserID == 0 {
		return Actor{}, false
	}
	return actor, true
}

type requestIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}
