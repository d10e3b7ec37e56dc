package sessionkeeper

import (
	"context"

	"golang.org/x/oauth2"
)

// TokenSource adapts the managed session to an oauth2.TokenSource so it can
// be plugged into any library that consumes one (API client generators,
// transport wrappers, etc.). Tokens returned are fresh: the source refreshes
// through the same single-flight coordinator as every other trigger.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &managerTokenSource{mgr: m, ctx: ctx}
}

type managerTokenSource struct {
	mgr *Manager
	ctx context.Context
}

func (s *managerTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.mgr.FreshAccessToken(s.ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNoSession
	}

	tok := &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}
	if exp := DecodeExpiry(token); exp.Known() {
		tok.Expiry = exp.ExpiresAt
	}
	return tok, nil
}
