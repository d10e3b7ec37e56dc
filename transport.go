package sessionkeeper

import (
	"fmt"
	"io"
	"net/http"
)

// sessionTransport is the request gateway: an http.RoundTripper that
// authenticates every outbound request with the session's bearer token and
// transparently recovers from credential expiry. A 401 triggers one
// reactive refresh followed by exactly one retry. Transport-level errors
// are propagated unchanged and never treated as an authorization failure.
type sessionTransport struct {
	Base http.RoundTripper
	mgr  *Manager
}

// RoundTrip implements http.RoundTripper.
func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// A terminated session short-circuits: no request, no refresh attempt.
	if t.mgr.terminated.Load() {
		return nil, ErrSessionExpired
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	token := t.mgr.currentAccessToken()

	outReq := req
	// Callers may intentionally override the bearer value with their own
	// Authorization header, but its presence cannot be suppressed.
	if token != "" && req.Header.Get("Authorization") == "" {
		outReq = req.Clone(req.Context())
		outReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := base.RoundTrip(outReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// A request body without GetBody cannot be replayed; the caller gets
	// the 401 as-is.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	newToken, refreshErr := t.mgr.Refresh(req.Context(), RefreshReactive)
	if refreshErr != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %v", ErrSessionExpired, refreshErr)
	}

	// Drain fully for connection reuse before retrying.
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+newToken)

	// The result of this single retry is final, whatever it is.
	return base.RoundTrip(retry)
}

// currentAccessToken is a transient read of the store; never cached.
func (m *Manager) currentAccessToken() string {
	cred, err := m.store.Load()
	if err != nil || cred == nil {
		return ""
	}
	return cred.AccessToken
}
