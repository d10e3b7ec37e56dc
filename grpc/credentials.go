// Package grpc gives gRPC clients the same session semantics as the HTTP
// gateway: bearer injection on every call and a single refresh-and-retry
// after an Unauthenticated response.
package grpc

import (
	"context"

	sk "github.com/panyam/sessionkeeper"
)

// TokenCredentials implements google.golang.org/grpc/credentials.PerRPCCredentials
// on top of a session manager. Each call reads the current token, refreshing
// first when it is inside the proactive window, so a retry after a reactive
// refresh automatically picks up the rotated token.
type TokenCredentials struct {
	Manager *sk.Manager

	// AllowInsecure permits use over non-TLS connections (local development).
	AllowInsecure bool
}

// GetRequestMetadata implements credentials.PerRPCCredentials.
func (c *TokenCredentials) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	token, err := c.Manager.FreshAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, sk.ErrNoSession
	}
	return map[string]string{"authorization": "Bearer " + token}, nil
}

// RequireTransportSecurity implements credentials.PerRPCCredentials.
func (c *TokenCredentials) RequireTransportSecurity() bool {
	return !c.AllowInsecure
}
