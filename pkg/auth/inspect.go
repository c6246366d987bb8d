package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo describes a token for display. Claims are read without
// verifying the signature and must not be used for authorization.
type TokenInfo struct {
	Attached  bool       `json:"attached"`
	JWT       bool       `json:"jwt"`
	Subject   string     `json:"subject,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Expired   bool       `json:"expired,omitempty"`
}

// Inspect reports what can be learned about token. Opaque tokens are
// reported as attached with no claims.
func Inspect(token string) TokenInfo {
	if token == "" {
		return TokenInfo{}
	}
	info := TokenInfo{Attached: true}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return info
	}
	info.JWT = true

	if sub, err := parsed.Claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time.UTC()
		info.ExpiresAt = &t
		info.Expired = time.Now().After(t)
	}
	return info
}
