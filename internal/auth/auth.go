// Package auth verifies HS256 bearer tokens and turns them into identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"bankchat/pkg/interfaces"
	"bankchat/pkg/types"
)

var (
	ErrMissingToken = errors.New("missing authentication token")
	ErrInvalidToken = errors.New("invalid authentication token")
)

// Claims is the token payload issued by the banking backend
type Claims struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	IsAdmin     bool   `json:"isAdmin"`
	AccountType string `json:"accountType"`
	jwt.RegisteredClaims
}

// Identity converts verified claims to the identity carried by connections
func (c *Claims) Identity() *types.Identity {
	return &types.Identity{
		ID:          c.ID,
		Email:       c.Email,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		IsAdmin:     c.IsAdmin,
		AccountType: c.AccountType,
	}
}

// Provider authenticates requests using a shared HMAC secret.
// Tokens are read from the cookie, then the Authorization header, then the token query parameter.
type Provider struct {
	secret     []byte
	cookieName string
	ttl        time.Duration
	now        func() time.Time
}

var _ interfaces.IdentityProvider = (*Provider)(nil)

func NewProvider(secret, cookieName string, ttl time.Duration) *Provider {
	if cookieName == "" {
		cookieName = "token"
	}
	return &Provider{
		secret:     []byte(secret),
		cookieName: cookieName,
		ttl:        ttl,
		now:        time.Now,
	}
}

// IssueToken signs a token for identity valid for the provider's TTL
func (p *Provider) IssueToken(identity *types.Identity) (string, error) {
	if identity == nil {
		return "", fmt.Errorf("issue token: nil identity")
	}
	now := p.now()
	claims := Claims{
		ID:          identity.ID,
		Email:       identity.Email,
		FirstName:   identity.FirstName,
		LastName:    identity.LastName,
		IsAdmin:     identity.IsAdmin,
		AccountType: identity.AccountType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

// ParseToken verifies signature and expiry and returns the claims
func (p *Provider) ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID <= 0 {
		return nil, fmt.Errorf("%w: missing subject id", ErrInvalidToken)
	}
	return claims, nil
}

// Authenticate implements interfaces.IdentityProvider
func (p *Provider) Authenticate(r *http.Request) (*types.Identity, error) {
	raw := p.tokenFromRequest(r)
	if raw == "" {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrUnauthorized, ErrMissingToken)
	}
	claims, err := p.ParseToken(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrUnauthorized, err)
	}
	return claims.Identity(), nil
}

func (p *Provider) tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(p.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying identity
func WithIdentity(ctx context.Context, identity *types.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// IdentityFromContext returns the identity stored by Middleware, if any
func IdentityFromContext(ctx context.Context) (*types.Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(*types.Identity)
	return identity, ok && identity != nil
}

// Middleware rejects unauthenticated requests with 401 and stores the identity in the request context.
// onReject writes the rejection response; nil falls back to http.Error.
func Middleware(provider interfaces.IdentityProvider, onReject func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	if onReject == nil {
		onReject = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := provider.Authenticate(r)
			if err != nil {
				onReject(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}
