package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type Signer interface {
	Sign(ctx context.Context, req *http.Request, token BearerToken) error
}

type BearerTokenSigner struct{}

func (BearerTokenSigner) Sign(_ context.Context, req *http.Request, token BearerToken) error {
	if req == nil {
		return fmt.Errorf("core: http request is required")
	}
	access := strings.TrimSpace(token.AccessToken)
	if access == "" {
		return fmt.Errorf("core: access token is required for bearer signing")
	}
	req.Header.Set("Authorization", "Bearer "+access)
	return nil
}

// SignFromContext signs req with the token scoped by TokenContext. Requests
// outside a scope, or inside an unauthenticated one, are left untouched.
func SignFromContext(ctx context.Context, signer Signer, req *http.Request) error {
	token, ok := BearerTokenFromContext(ctx)
	if !ok {
		return nil
	}
	if signer == nil {
		signer = BearerTokenSigner{}
	}
	return signer.Sign(ctx, req, *token)
}
