package internal

import (
	"context"
	"time"
)

// Actor is the identity the gateway attaches to a request. The engine
// trusts it as-is and never authenticates it itself.
type Actor struct {
	ID   int64
	Role string
}

const (
	RoleStudent = "student"
	RoleParent  = "parent"
	RoleTutor   = "tutor"
	RoleAdmin   = "admin"
)

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) IsGuardian() bool {
	return a.Role == RoleParent
}

type ctxKey string

const ContextActorKey ctxKey = "actor"

func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(ContextActorKey).(Actor)
	return actor, ok
}

func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ContextActorKey, actor)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
