// Package auth supplies bearer tokens for console invocations.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const logPrefix = "auth:provider"

// Provider kinds accepted by NewProvider.
const (
	KindNone   = "none"
	KindStatic = "static"
	KindAuth0  = "auth0"
)

// Provider yields the current bearer token. An empty token means "send no
// Authorization header".
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// None never supplies a token.
type None struct{}

func (None) Token(context.Context) (string, error) { return "", nil }

// Static always supplies the same token.
type Static struct {
	Value string
}

func (s Static) Token(context.Context) (string, error) { return strings.TrimSpace(s.Value), nil }

// ClientCredentials fetches a token with the OAuth2 client credentials grant.
// Every call performs a fresh exchange; tokens are never cached.
type ClientCredentials struct {
	config *clientcredentials.Config
	client *http.Client
}

// NewClientCredentialsParams holds parameters for NewClientCredentials.
type NewClientCredentialsParams struct {
	// Domain is the identity provider host, e.g. "tenant.eu.auth0.com".
	// The token endpoint is https://<Domain>/oauth/token.
	Domain       string
	ClientID     string
	ClientSecret string
	Audience     string
	// TokenURL overrides the endpoint derived from Domain.
	TokenURL string
	// HTTPClient is used for the token exchange; http.DefaultClient when nil.
	HTTPClient *http.Client
}

// NewClientCredentials builds a client-credentials provider.
func NewClientCredentials(params NewClientCredentialsParams) (*ClientCredentials, error) {
	tokenURL := params.TokenURL
	if tokenURL == "" {
		if params.Domain == "" {
			return nil, fmt.Errorf("%s - client credentials: domain or token URL is required", logPrefix)
		}
		tokenURL = tokenEndpoint(params.Domain)
	}
	if params.ClientID == "" || params.ClientSecret == "" {
		return nil, fmt.Errorf("%s - client credentials: client id and secret are required", logPrefix)
	}

	cfg := &clientcredentials.Config{
		ClientID:     params.ClientID,
		ClientSecret: params.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if params.Audience != "" {
		cfg.EndpointParams = url.Values{"audience": {params.Audience}}
	}
	return &ClientCredentials{config: cfg, client: params.HTTPClient}, nil
}

// Token performs one client-credentials exchange.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	if c.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)
	}
	tok, err := c.config.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%s - token exchange with %s failed: %w", logPrefix, c.config.TokenURL, err)
	}
	return tok.AccessToken, nil
}

// TokenURL is the endpoint the provider exchanges credentials with.
func (c *ClientCredentials) TokenURL() string { return c.config.TokenURL }

func tokenEndpoint(domain string) string {
	domain = strings.TrimRight(strings.TrimSpace(domain), "/")
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	return domain + "/oauth/token"
}

// NewProviderParams holds parameters for NewProvider.
type NewProviderParams struct {
	Kind        string
	StaticToken string
	Credentials NewClientCredentialsParams
}

// NewProvider builds a provider from configuration. An empty kind means none.
func NewProvider(params NewProviderParams) (Provider, error) {
	switch strings.ToLower(params.Kind) {
	case "", KindNone:
		return None{}, nil
	case KindStatic:
		if strings.TrimSpace(params.StaticToken) == "" {
			return nil, fmt.Errorf("%s - static auth requires a token", logPrefix)
		}
		return Static{Value: params.StaticToken}, nil
	case KindAuth0:
		return NewClientCredentials(params.Credentials)
	default:
		return nil, fmt.Errorf("%s - unknown auth type %q", logPrefix, params.Kind)
	}
}

// Acquire asks p for a token. Failures are logged and yield no token, so the
// invocation proceeds unauthenticated and the target decides.
func Acquire(ctx context.Context, p Provider) string {
	if p == nil {
		return ""
	}
	token, err := p.Token(ctx)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - proceeding without token: %v", logPrefix, err))
		return ""
	}
	return token
}
