package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/akmatori/article73/internal/api"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer is the iss claim of every token this service signs
const TokenIssuer = "article73"

// DefaultSkipPaths are reachable without a token. Grafana authenticates
// webhooks with its own shared secret.
var DefaultSkipPaths = []string{"/health", "/webhook/*", "/auth/login"}

// ErrInvalidToken is returned for tokens that fail signature, issuer or expiry checks
var ErrInvalidToken = errors.New("invalid or expired token")

// OperatorClaims identifies the compliance operator a token was issued to.
// The operator name is carried in the subject claim.
type OperatorClaims struct {
	jwt.RegisteredClaims
}

// Operator returns the authenticated operator name
func (c *OperatorClaims) Operator() string {
	return c.Subject
}

// AuthConfig configures operator authentication
type AuthConfig struct {
	AdminUsername     string
	AdminPasswordHash string
	Secret            string
	TokenTTL          time.Duration
	// SkipPaths are served without a token; a trailing * matches a prefix
	SkipPaths []string
	// Now defaults to time.Now
	Now func() time.Time
}

// Authenticator issues operator tokens and guards the API with them
type Authenticator struct {
	username     string
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	exact        map[string]struct{}
	prefixes     []string
	now          func() time.Time
}

type operatorKey struct{}

// NewAuthenticator creates an authenticator. A non-positive TTL defaults to 24h.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	a := &Authenticator{
		username:     cfg.AdminUsername,
		passwordHash: []byte(cfg.AdminPasswordHash),
		secret:       []byte(cfg.Secret),
		ttl:          cfg.TokenTTL,
		exact:        make(map[string]struct{}),
		now:          cfg.Now,
	}
	if a.ttl <= 0 {
		a.ttl = 24 * time.Hour
	}
	if a.now == nil {
		a.now = time.Now
	}
	for _, p := range cfg.SkipPaths {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			a.prefixes = append(a.prefixes, prefix)
			continue
		}
		a.exact[p] = struct{}{}
	}
	return a
}

// TokenTTL returns how long issued tokens stay valid
func (a *Authenticator) TokenTTL() time.Duration {
	return a.ttl
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckCredentials reports whether username and password belong to the admin operator
func (a *Authenticator) CheckCredentials(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	// always pay for the hash comparison so timing does not reveal the username
	passOK := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
	return userOK && passOK
}

// IssueToken signs a token for operator and returns it with its expiry
func (a *Authenticator) IssueToken(operator string) (string, time.Time, error) {
	now := a.now().UTC()
	expiresAt := now.Add(a.ttl)
	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   operator,
			Issuer:    TokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Authenticate verifies a signed token and returns its claims
func (a *Authenticator) Authenticate(token string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Wrap rejects requests without a valid token, except on skip paths
func (a *Authenticator) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skips(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" {
			unauthorized(w, "Missing authentication token")
			return
		}

		claims, err := a.Authenticate(token)
		if err != nil {
			log.Printf("Auth: Rejected token from %s for %s", r.RemoteAddr, r.URL.Path)
			unauthorized(w, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), claims.Operator())))
	})
}

func (a *Authenticator) skips(path string) bool {
	if _, ok := a.exact[path]; ok {
		return true
	}
	for _, prefix := range a.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// websocket upgrades, so those may pass ?token= instead.
func bearerToken(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="article73"`)
	api.RespondError(w, http.StatusUnauthorized, message)
}

// OperatorFromContext returns the operator set by Wrap, or "" when unauthenticated
func OperatorFromContext(ctx context.Context) string {
	operator, _ := ctx.Value(operatorKey{}).(string)
	return operator
}

// WithOperator returns a context carrying operator, as Wrap does
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey{}, operator)
}
