package core

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrTokenContextBusy = errors.New("core: token context already has an active scope")
	ErrNoActiveToken    = errors.New("core: no bearer token in scope")
)

type bearerTokenContextKey struct{}

// ContextWithBearerToken attaches token to ctx for outbound AuthClient calls.
func ContextWithBearerToken(ctx context.Context, token *BearerToken) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, bearerTokenContextKey{}, cloneBearerToken(token))
}

func BearerTokenFromContext(ctx context.Context) (*BearerToken, bool) {
	if ctx == nil {
		return nil, false
	}
	token, ok := ctx.Value(bearerTokenContextKey{}).(*BearerToken)
	if !ok || token.Empty() {
		return nil, false
	}
	return cloneBearerToken(token), true
}

// TokenContext scopes one bearer token to one outbound call. Create one per
// authorisation step; instances must not be shared between steps.
type TokenContext struct {
	mu     sync.Mutex
	active *BearerToken
	inUse  bool
}

func NewTokenContext() *TokenContext {
	return &TokenContext{}
}

// Run sets token as the active token, runs fn and clears the token again,
// whether fn fails or not. A nil token runs fn unauthenticated.
func (c *TokenContext) Run(ctx context.Context, token *BearerToken, fn func(ctx context.Context) error) error {
	if c == nil {
		return errors.New("core: token context is nil")
	}
	if fn == nil {
		return errors.New("core: token scoped function is required")
	}

	c.mu.Lock()
	if c.inUse {
		c.mu.Unlock()
		return ErrTokenContextBusy
	}
	c.inUse = true
	c.active = cloneBearerToken(token)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.active = nil
		c.inUse = false
		c.mu.Unlock()
	}()

	return fn(ContextWithBearerToken(ctx, token))
}

// Active returns the token of the running scope, if any.
func (c *TokenContext) Active() (*BearerToken, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil, false
	}
	return cloneBearerToken(c.active), true
}
