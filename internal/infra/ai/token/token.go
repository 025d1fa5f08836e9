// Package token performs the OAuth client-credentials exchange used by the
// managed inference gateway.
package token

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bryanwahyu/st22-gateway/internal/domain/ai"
)

// Source hands out bearer tokens. By default every call performs a fresh
// exchange; with Reuse set, a token is kept until shortly before it expires.
type Source struct {
	cfg     clientcredentials.Config
	timeout time.Duration
	client  *http.Client
	reuse   bool

	mu     sync.Mutex
	cached oauth2.TokenSource
}

// Options configures a Source.
type Options struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	Reuse        bool
	// HTTPClient overrides the transport; its Timeout is replaced by Timeout.
	HTTPClient *http.Client
}

func New(o Options) *Source {
	client := &http.Client{}
	if o.HTTPClient != nil {
		c := *o.HTTPClient
		client = &c
	}
	client.Timeout = o.Timeout
	client.Transport = &rawBasicAuth{
		clientID:     o.ClientID,
		clientSecret: o.ClientSecret,
		next:         client.Transport,
	}

	return &Source{
		cfg: clientcredentials.Config{
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			TokenURL:     o.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		timeout: o.Timeout,
		client:  client,
		reuse:   o.Reuse,
	}
}

// AccessToken returns a bearer token or an error wrapping ai.ErrAuthentication.
func (s *Source) AccessToken(ctx context.Context) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)

	var (
		tok *oauth2.Token
		err error
	)
	if s.reuse {
		tok, err = s.reusable().Token()
	} else {
		tok, err = s.cfg.Token(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ai.ErrAuthentication, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access_token", ai.ErrAuthentication)
	}
	return tok.AccessToken, nil
}

// reusable lazily builds the caching token source. It is bound to a
// background context so a cancelled request does not poison later refreshes.
func (s *Source) reusable() oauth2.TokenSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, s.client)
		s.cached = oauth2.ReuseTokenSource(nil, s.cfg.TokenSource(ctx))
	}
	return s.cached
}

// rawBasicAuth sends the id and secret unescaped in the Basic header;
// x/oauth2 form-encodes them (AI Core ids carry '!' and '|').
type rawBasicAuth struct {
	clientID     string
	clientSecret string
	next         http.RoundTripper
}

func (t *rawBasicAuth) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	r := req.Clone(req.Context())
	r.SetBasicAuth(t.clientID, t.clientSecret)
	return next.RoundTrip(r)
}
