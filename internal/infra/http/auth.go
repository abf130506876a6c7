package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const webhookAudience = "payments"

// WebhookAuth verifies HS256 bearer tokens presented by payment providers.
type WebhookAuth struct {
	secret []byte
	now    func() time.Time
}

func NewWebhookAuth(secret string) *WebhookAuth {
	return &WebhookAuth{secret: []byte(secret), now: time.Now}
}

type ProviderClaims struct {
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

// Mint issues a token for provider, valid for ttl. Used to provision providers.
func (a *WebhookAuth) Mint(provider string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := ProviderClaims{
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   provider,
			Audience:  jwt.ClaimStrings{webhookAudience},
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *WebhookAuth) ParseFromRequest(r *http.Request) (*ProviderClaims, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, errors.New("missing token")
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *WebhookAuth) parse(tok string) (*ProviderClaims, error) {
	claims := &ProviderClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(webhookAudience),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Middleware rejects requests without a valid provider token.
func (a *WebhookAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := a.ParseFromRequest(r); err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
