package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
)

var ErrInvalidToken = fmt.Errorf("invalid or expired token: %w", domainErr.ErrUnauthorized)

// Authenticator signs and verifies HS256 merchant tokens. The subject
// claim is the merchant id every request is scoped to.
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret, issuer string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

func (a *Authenticator) Issue(merchantID string) (string, error) {
	if merchantID == "" {
		return "", errors.New("merchant id is required")
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    a.issuer,
		Subject:   merchantID,
		ID:        ulid.Make().String(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify returns the merchant id carried by the token.
func (a *Authenticator) Verify(tokenStr string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := new(jwt.RegisteredClaims)
	token, err := jwt.NewParser(opts...).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

type merchantKey struct{}

func withMerchant(ctx context.Context, merchantID string) context.Context {
	return context.WithValue(ctx, merchantKey{}, merchantID)
}

// MerchantFrom returns the authenticated merchant, or "".
func MerchantFrom(ctx context.Context) string {
	m, _ := ctx.Value(merchantKey{}).(string)
	return m
}

// extractToken accepts a bearer header, or a token query parameter for
// websocket clients that cannot set headers.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := extractToken(r)
		if tok == "" {
			writeError(w, r, fmt.Errorf("no token provided: %w", domainErr.ErrUnauthorized))
			return
		}
		merchantID, err := a.Verify(tok)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withMerchant(r.Context(), merchantID)))
	})
}
