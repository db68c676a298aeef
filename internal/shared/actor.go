package shared

import "context"

// Role identifies what an actor may do in the visit workflow.
type Role string

const (
	// RoleAdmin bypasses the approval gate and may override any record.
	RoleAdmin Role = "admin"
	// RoleCommercial registers visits and sales in the field.
	RoleCommercial Role = "commercial"
	// RoleDelivery only consumes delivery lists; it cannot start visits.
	RoleDelivery Role = "delivery"
)

// Actor is the explicit identity passed into every core operation. It
// replaces ambient session lookups so the admin/commercial branching is
// visible at every call site.
type Actor struct {
	ID   int64
	Role Role
}

// IsAdmin reports whether approval gating is bypassed for this actor.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

type actorKey struct{}

// ContextWithActor stores the resolved actor for the request.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor resolved by the identity middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
