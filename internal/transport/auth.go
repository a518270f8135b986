package transport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bit-project/bit/pkg/errclass"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "bit"

type uidKey struct{}

// IssueToken mints an HS256 bearer token whose subject is uid.
func IssueToken(secret, uid string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:  uid,
		Issuer:   issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates token and returns its subject.
func ParseToken(secret, token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return "", errclass.ErrUnauthorized.WithMessagef("invalid token: %v", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", errclass.ErrUnauthorized.WithMessage("token carries no subject")
	}
	return claims.Subject, nil
}

// UIDFrom returns the authenticated uid of a request, "" without auth.
func UIDFrom(ctx context.Context) string {
	uid, _ := ctx.Value(uidKey{}).(string)
	return uid
}

// requireToken rejects requests without a valid bearer token signed with secret.
func requireToken(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				writeError(w, http.StatusUnauthorized, errclass.ErrUnauthorized.WithMessage("missing bearer token"))
				return
			}
			uid, err := ParseToken(secret, raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), uidKey{}, uid)))
		})
	}
}
