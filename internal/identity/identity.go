// Package identity exposes the current anonymous actor.
package identity

import "context"

// Actor is the acting user.
type Actor struct {
	ID          string
	DisplayName string
}

// Provider returns the current actor. Implementations are read-only.
type Provider interface {
	Current(ctx context.Context) (Actor, error)
}

// Static always returns the same actor.
type Static Actor

func (s Static) Current(context.Context) (Actor, error) {
	return Actor(s), nil
}
