package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maruel/ksid"

	"github.com/maruel/jsondb/internal/activity"
	dberrors "github.com/maruel/jsondb/internal/errors"
	"github.com/maruel/jsondb/internal/models"
)

var (
	errUnauthorized   = errors.New("unauthorized")
	errInvalidAuthHdr = errors.New("invalid authorization header")
	errInvalidToken   = errors.New("invalid token")
	errInvalidClaims  = errors.New("invalid claims")
)

// IssueToken returns an HS256 API token for name with the given role.
func IssueToken(secret []byte, name string, role models.Role, ttl time.Duration) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", role)
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  name,
		"jti":  ksid.NewID().String(),
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// validateJWT extracts and validates the bearer token of the request.
func validateJWT(r *http.Request, secret []byte) (*models.Principal, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, errUnauthorized
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errInvalidAuthHdr
	}
	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errInvalidClaims
	}
	name, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if name == "" || !models.Role(role).Valid() {
		return nil, errInvalidClaims
	}
	jti, _ := claims["jti"].(string)
	return &models.Principal{Name: name, ID: jti, Role: models.Role(role)}, nil
}

// AuthMiddleware validates JWT tokens and adds the caller to the context.
// /api/health is always reachable.
func AuthMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/health" || !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}
			p, err := validateJWT(r, secret)
			if err != nil {
				slog.WarnContext(r.Context(), "Rejected request", "path", r.URL.Path, "ip", clientIP(r), "err", err)
				writeError(w, dberrors.Unauthorized().Wrap(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(models.WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole ensures the authenticated caller has at least the required role.
func RequireRole(required models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := models.GetPrincipal(r.Context())
			if !ok {
				writeError(w, dberrors.Unauthorized())
				return
			}
			if !p.Role.Allows(required) {
				writeErrorResponseWithCode(w, http.StatusForbidden, dberrors.ErrUnauthorizedCode, "Forbidden: insufficient permissions", map[string]any{"required": required})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LogActivity reports the request through l once it was handled. The command
// is the route pattern; path wildcards and query values become arguments.
func LogActivity(l *activity.Logger, command string, wildcards ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			inv := &activity.Invocation{
				Source:   r.Host,
				SourceID: clientIP(r),
				Command:  command,
			}
			if p, ok := models.GetPrincipal(r.Context()); ok {
				inv.User = p.Name
				inv.UserID = p.ID
			}
			args := map[string]any{}
			for _, name := range wildcards {
				if v := r.PathValue(name); v != "" {
					args[name] = v
				}
			}
			for k, v := range r.URL.Query() {
				args[k] = strings.Join(v, ",")
			}
			if len(args) != 0 {
				inv.Args = args
			}
			// Failures are logged by the activity logger; they never fail the request.
			_ = l.Log(r.Context(), inv)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
