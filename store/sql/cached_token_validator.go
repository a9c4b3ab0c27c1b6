package sqlstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/goliatone/go-psd2-sca/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const tokenValidationCacheKeyPrefix = "psd2-sca::token_validation::v1"

type tokenValidation struct {
	Replacement *core.BearerToken
}

// CachedTokenValidator remembers successful validations so repeated method
// listings within the cache TTL do not hit the remote side. Rejections are
// never cached.
type CachedTokenValidator struct {
	base  core.TokenValidator
	cache repositorycache.CacheService
}

func NewCachedTokenValidator(base core.TokenValidator, cacheService repositorycache.CacheService) (*CachedTokenValidator, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base token validator is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: token cache service is required")
	}
	return &CachedTokenValidator{base: base, cache: cacheService}, nil
}

// TokenValidationCacheKey hashes the access token; the raw token never
// becomes part of a cache key.
func TokenValidationCacheKey(token core.BearerToken) (string, error) {
	accessToken := strings.TrimSpace(token.AccessToken)
	if accessToken == "" {
		return "", fmt.Errorf("sqlstore: access token is required")
	}
	sum := sha256.Sum256([]byte(accessToken))
	return tokenValidationCacheKeyPrefix + "::" + hex.EncodeToString(sum[:]), nil
}

func (v *CachedTokenValidator) Validate(ctx context.Context, token core.BearerToken) (*core.BearerToken, error) {
	if v == nil || v.base == nil || v.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached token validator is not configured")
	}
	cacheKey, err := TokenValidationCacheKey(token)
	if err != nil {
		return nil, err
	}
	result, err := repositorycache.GetOrFetch(ctx, v.cache, cacheKey, func(ctx context.Context) (tokenValidation, error) {
		replacement, validateErr := v.base.Validate(ctx, token)
		if validateErr != nil {
			return tokenValidation{}, validateErr
		}
		return tokenValidation{Replacement: cloneToken(replacement)}, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneToken(result.Replacement), nil
}

func cloneToken(token *core.BearerToken) *core.BearerToken {
	if token == nil {
		return nil
	}
	cloned := *token
	return &cloned
}

var _ core.TokenValidator = (*CachedTokenValidator)(nil)
