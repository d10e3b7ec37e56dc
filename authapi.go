package sessionkeeper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Default auth endpoint paths, matching the server contract.
const (
	DefaultRefreshPath  = "/auth/refresh"
	DefaultLogoutPath   = "/auth/logout"
	DefaultValidatePath = "/auth/validate"
)

// RefreshResponse is the refresh endpoint's success payload. The server may
// rotate the refresh token; when it does, the rotated value is persisted.
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// tokenRequest is the body for both the refresh and logout endpoints.
type tokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AuthAPI is the client for the external auth endpoints. It always uses the
// bare base transport so the refresh exchange never recurses through the
// authenticated gateway.
type AuthAPI struct {
	baseURL      string
	httpClient   *http.Client
	refreshPath  string
	logoutPath   string
	validatePath string
}

// Refresh exchanges the refresh token for a new access token.
//
// A network failure returns a *TransportError (recoverable). Any non-2xx
// status means the server invalidated the refresh token and returns
// ErrRefreshRejected (terminal).
func (a *AuthAPI) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	body, status, err := a.post(ctx, a.refreshPath, refreshToken)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrRefreshRejected, status)
	}

	var resp RefreshResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("invalid refresh response: %w", err)}
	}
	if resp.AccessToken == "" {
		return nil, &TransportError{Err: fmt.Errorf("refresh response missing access token")}
	}

	return &resp, nil
}

// Logout asks the server to invalidate the refresh token. Best effort: the
// caller clears local state regardless of the outcome.
func (a *AuthAPI) Logout(ctx context.Context, refreshToken string) error {
	_, status, err := a.post(ctx, a.logoutPath, refreshToken)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("logout failed: HTTP %d", status)
	}
	return nil
}

func (a *AuthAPI) post(ctx context.Context, path, refreshToken string) ([]byte, int, error) {
	jsonBody, err := json.Marshal(tokenRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	return body, resp.StatusCode, nil
}
