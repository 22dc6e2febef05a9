// internal/service/introspect/introspect.go
package introspect

import (
	"context"

	"tokenguard-service/internal/pkg/token"
	"tokenguard-service/internal/service/revocation"

	"go.uber.org/zap"
)

// Result is all a resource server learns about a token. Introspection never
// leaks why a token is invalid, only that it is.
type Result struct {
	Active bool          `json:"active"`
	Claims *token.Claims `json:"claims,omitempty"`
}

// Introspector combines the revocation list and the access-token codec for
// resource-server checks.
type Introspector struct {
	codec       *token.Codec
	revocations *revocation.List
	logger      *zap.Logger
}

func NewIntrospector(codec *token.Codec, revocations *revocation.List, logger *zap.Logger) *Introspector {
	return &Introspector{
		codec:       codec,
		revocations: revocations,
		logger:      logger,
	}
}

// Introspect reports whether an access token is live. A structurally valid
// but revoked token is inactive; codec failures map to inactive without
// propagating the specific error.
func (i *Introspector) Introspect(ctx context.Context, accessToken string) Result {
	if i.revocations.IsRevoked(ctx, accessToken) {
		return Result{Active: false}
	}

	claims, err := i.codec.Verify(accessToken)
	if err != nil {
		i.logger.Debug("token introspection failed verification", zap.Error(err))
		return Result{Active: false}
	}

	return Result{Active: true, Claims: claims}
}
