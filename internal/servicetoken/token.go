package servicetoken

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTokenTTL is the default lifetime for internal service tokens.
	DefaultTokenTTL = 60 * time.Second
	// DefaultLeeway is the clock skew tolerance for token validation.
	DefaultLeeway = 15 * time.Second

	minSecretLen = 32
)

// Signer issues short-lived HS256 JWTs for service-to-service calls.
// Both sides share one secret; with a single internal hop there is no
// key distribution to manage.
type Signer struct {
	issuer string
	secret []byte
	ttl    time.Duration
}

// NewSigner creates a signer for the given issuer name and shared secret.
func NewSigner(issuer, secret string, ttl time.Duration) (*Signer, error) {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("service token issuer is required")
	}
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("service token secret must be at least %d bytes", minSecretLen)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Signer{issuer: issuer, secret: []byte(secret), ttl: ttl}, nil
}

// Sign issues a token for the given audience.
func (s *Signer) Sign(audience string) (string, error) {
	audience = strings.TrimSpace(audience)
	if audience == "" {
		return "", errors.New("service token audience is required")
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   s.issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        randomHexID(12),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verifier validates internal service JWTs against an audience and an
// issuer allowlist.
type Verifier struct {
	audience       string
	allowedIssuers map[string]struct{}
	secret         []byte
	leeway         time.Duration
}

// NewVerifier creates a verifier for the given audience. At least one
// allowed issuer is required.
func NewVerifier(audience, secret string, allowedIssuers []string, leeway time.Duration) (*Verifier, error) {
	audience = strings.TrimSpace(audience)
	if audience == "" {
		return nil, errors.New("service token audience is required")
	}
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("service token secret must be at least %d bytes", minSecretLen)
	}
	issuers := make(map[string]struct{})
	for _, issuer := range allowedIssuers {
		issuer = strings.TrimSpace(issuer)
		if issuer != "" {
			issuers[issuer] = struct{}{}
		}
	}
	if len(issuers) == 0 {
		return nil, errors.New("at least one allowed issuer is required")
	}
	if leeway <= 0 {
		leeway = DefaultLeeway
	}
	return &Verifier{
		audience:       audience,
		allowedIssuers: issuers,
		secret:         []byte(secret),
		leeway:         leeway,
	}, nil
}

// Verify validates signature, expiry, audience and issuer.
func (v *Verifier) Verify(token string) (jwt.RegisteredClaims, error) {
	claims := jwt.RegisteredClaims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, errors.New("token required")
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unsupported signing method")
		}
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return claims, err
	}
	if _, ok := v.allowedIssuers[claims.Issuer]; !ok {
		return claims, errors.New("issuer not allowed")
	}
	if claims.ID == "" {
		return claims, errors.New("jti required")
	}
	return claims, nil
}

// BearerToken extracts a bearer token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func randomHexID(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x", buf)
}
