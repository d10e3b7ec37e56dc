package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	sk "github.com/panyam/sessionkeeper"
)

// UnaryRefreshInterceptor returns a client interceptor mirroring the HTTP
// gateway's recovery contract: when the server reports Unauthenticated, run
// one reactive refresh and reissue the call exactly once. Any other status
// passes through untouched, and a terminated session short-circuits without
// touching the network.
func UnaryRefreshInterceptor(mgr *sk.Manager) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if mgr.Terminated() {
			return sk.ErrSessionExpired
		}

		err := invoker(ctx, method, req, reply, cc, opts...)
		if status.Code(err) != codes.Unauthenticated {
			return err
		}

		if _, refreshErr := mgr.Refresh(ctx, sk.RefreshReactive); refreshErr != nil {
			return fmt.Errorf("%w: %v", sk.ErrSessionExpired, refreshErr)
		}

		// Credentials are re-read per call, so the retry carries the new token.
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
