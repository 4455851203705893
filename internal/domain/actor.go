package domain

import "context"

type actorKey struct{}

// WithActor tags ctx with the principal that issued an operator call.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// Actor returns the principal recorded by WithActor, or "".
func Actor(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}
