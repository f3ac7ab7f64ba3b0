package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey int

const emailKey contextKey = iota

// EmailFromContext returns the authenticated user email, or "" for requests
// that came in over the bearer-token fallback.
func EmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(emailKey).(string)
	return email
}

// WithEmail is used by tests and the bearer path to stamp an identity.
func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailKey, email)
}

// Claims are the CF Access JWT claims this service cares about.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Validator checks Cloudflare Access JWTs against the team's JWKS, caching
// keys for a few minutes to keep validation off the network.
type Validator struct {
	audience string
	certsURL string

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	keyTTL    time.Duration

	httpGet func(url string) (*http.Response, error) // swapped in tests
}

func NewValidator(teamDomain, audience string) *Validator {
	return &Validator{
		audience: audience,
		certsURL: fmt.Sprintf("https://%s/cdn-cgi/access/certs", teamDomain),
		keys:     map[string]*rsa.PublicKey{},
		keyTTL:   5 * time.Minute,
		httpGet:  http.Get,
	}
}

// Validate parses and verifies a CF Access JWT, returning its claims.
func (v *Validator) Validate(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, v.keyfunc,
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{"RS256"}),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *Validator) keyfunc(token *jwt.Token) (interface{}, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("token has no kid header")
	}

	v.mu.RLock()
	key, ok := v.keys[kid]
	fresh := time.Since(v.fetchedAt) < v.keyTTL
	v.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	if err := v.refreshKeys(); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	key, ok = v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("kid %q not in team JWKS", kid)
	}
	return key, nil
}

func (v *Validator) refreshKeys() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if time.Since(v.fetchedAt) < v.keyTTL && len(v.keys) > 0 {
		return nil
	}

	resp, err := v.httpGet(v.certsURL)
	if err != nil {
		return fmt.Errorf("fetch JWKS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned %d", resp.StatusCode)
	}

	var doc struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			continue
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}
	}

	v.keys = keys
	v.fetchedAt = time.Now()
	return nil
}

// Middleware validates the Cf-Access-Jwt-Assertion header and stamps the
// authenticated email into the request context. Requests without the header
// (CLI, service callers) fall through to the bearer-token auth behind it.
func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Cf-Access-Jwt-Assertion")
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := v.Validate(token)
		if err != nil {
			http.Error(w, "invalid cf access token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithEmail(r.Context(), claims.Email)))
	})
}
