package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const providerTestPrefix = "auth:provider_test"

// tokenServer issues numbered tokens and records the last form it received.
func tokenServer(t *testing.T) (*httptest.Server, *atomic.Int32, *atomic.Value) {
	t.Helper()
	var calls atomic.Int32
	var lastForm atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		lastForm.Store(r.PostForm)
		if r.PostForm.Get("client_secret") != "s3cret" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"access_denied"}`))
			return
		}
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "token-" + string(rune('0'+n)),
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &lastForm
}

func TestClientCredentials_FetchesFreshTokenEachCall(t *testing.T) {
	srv, calls, lastForm := tokenServer(t)

	p, err := NewClientCredentials(NewClientCredentialsParams{
		Domain:       srv.URL,
		ClientID:     "console",
		ClientSecret: "s3cret",
		Audience:     "https://api.platform.local",
		HTTPClient:   srv.Client(),
	})
	if err != nil {
		t.Fatalf("%s - NewClientCredentials: %v", providerTestPrefix, err)
	}
	if p.TokenURL() != srv.URL+"/oauth/token" {
		t.Errorf("%s - TokenURL = %q", providerTestPrefix, p.TokenURL())
	}

	first, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("%s - first Token: %v", providerTestPrefix, err)
	}
	second, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("%s - second Token: %v", providerTestPrefix, err)
	}
	if first != "token-1" || second != "token-2" || calls.Load() != 2 {
		t.Errorf("%s - tokens %q, %q after %d calls", providerTestPrefix, first, second, calls.Load())
	}

	form := lastForm.Load().(url.Values)
	if form.Get("audience") != "https://api.platform.local" || form.Get("grant_type") != "client_credentials" {
		t.Errorf("%s - form = %v", providerTestPrefix, form)
	}
}

func TestAcquire_FailureYieldsNoToken(t *testing.T) {
	srv, _, _ := tokenServer(t)

	p, err := NewClientCredentials(NewClientCredentialsParams{
		TokenURL:     srv.URL + "/oauth/token",
		ClientID:     "console",
		ClientSecret: "wrong",
		HTTPClient:   srv.Client(),
	})
	if err != nil {
		t.Fatalf("%s - NewClientCredentials: %v", providerTestPrefix, err)
	}
	if _, err := p.Token(context.Background()); err == nil {
		t.Errorf("%s - expected exchange error", providerTestPrefix)
	}
	if got := Acquire(context.Background(), p); got != "" {
		t.Errorf("%s - Acquire = %q, want empty", providerTestPrefix, got)
	}
	if got := Acquire(context.Background(), nil); got != "" {
		t.Errorf("%s - Acquire(nil) = %q", providerTestPrefix, got)
	}
	if got := Acquire(context.Background(), Static{Value: " abc "}); got != "abc" {
		t.Errorf("%s - Acquire(static) = %q", providerTestPrefix, got)
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		params  NewProviderParams
		wantErr bool
	}{
		{"default none", NewProviderParams{}, false},
		{"none", NewProviderParams{Kind: "NONE"}, false},
		{"static", NewProviderParams{Kind: "static", StaticToken: "t"}, false},
		{"static without token", NewProviderParams{Kind: "static"}, true},
		{"auth0", NewProviderParams{Kind: "auth0", Credentials: NewClientCredentialsParams{Domain: "tenant.auth0.com", ClientID: "a", ClientSecret: "b"}}, false},
		{"auth0 without domain", NewProviderParams{Kind: "auth0", Credentials: NewClientCredentialsParams{ClientID: "a", ClientSecret: "b"}}, true},
		{"auth0 without secret", NewProviderParams{Kind: "auth0", Credentials: NewClientCredentialsParams{Domain: "x"}}, true},
		{"unknown", NewProviderParams{Kind: "kerberos"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(tt.params)
			if (err != nil) != tt.wantErr {
				t.Errorf("%s - err = %v, wantErr %v", providerTestPrefix, err, tt.wantErr)
			}
		})
	}
}

func TestTokenEndpoint(t *testing.T) {
	if got := tokenEndpoint("tenant.eu.auth0.com/"); got != "https://tenant.eu.auth0.com/oauth/token" {
		t.Errorf("%s - tokenEndpoint = %q", providerTestPrefix, got)
	}
	if got := tokenEndpoint("http://127.0.0.1:9999"); got != "http://127.0.0.1:9999/oauth/token" {
		t.Errorf("%s - tokenEndpoint = %q", providerTestPrefix, got)
	}
}

func TestInspect(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "svc-console@clients",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("%s - sign: %v", providerTestPrefix, err)
	}

	info := Inspect(signed)
	if !info.Attached || !info.JWT || info.Subject != "svc-console@clients" {
		t.Errorf("%s - info = %+v", providerTestPrefix, info)
	}
	if info.ExpiresAt == nil || !info.ExpiresAt.Equal(exp) || info.Expired {
		t.Errorf("%s - expiry = %v expired=%v", providerTestPrefix, info.ExpiresAt, info.Expired)
	}

	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("test-key"))
	if !Inspect(expired).Expired {
		t.Errorf("%s - expected expired token", providerTestPrefix)
	}

	opaque := Inspect("not-a-jwt")
	if !opaque.Attached || opaque.JWT || opaque.Subject != "" {
		t.Errorf("%s - opaque = %+v", providerTestPrefix, opaque)
	}
	if Inspect("").Attached {
		t.Errorf("%s - empty token should not be attached", providerTestPrefix)
	}
}
