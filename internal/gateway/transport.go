package gateway

import (
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// tokenSource is an oauth2.TokenSource whose token can be swapped at runtime.
type tokenSource struct {
	mu    sync.RWMutex
	token string
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &oauth2.Token{AccessToken: s.token, TokenType: "Bearer"}, nil
}

func (s *tokenSource) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *tokenSource) present() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// authTransport attaches the bearer credential only while one is configured.
type authTransport struct {
	tokens *tokenSource
	base   http.RoundTripper
	authed http.RoundTripper
}

func newAuthTransport(tokens *tokenSource, base http.RoundTripper) *authTransport {
	return &authTransport{
		tokens: tokens,
		base:   base,
		// oauth2.Transport asks the source on every request, so Set takes effect immediately.
		authed: &oauth2.Transport{Source: tokens, Base: base},
	}
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.tokens.present() {
		return t.authed.RoundTrip(req)
	}
	return t.base.RoundTrip(req)
}
