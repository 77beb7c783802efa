package auth

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// TokenValidator is satisfied by *JWTService.
type TokenValidator interface {
	ValidateToken(token string) (*Claims, error)
}

// Policy maps full method names (or HTTP route patterns) to the minimum role
// they require. Methods in Skip need no token; unlisted methods require
// Default.
type Policy struct {
	MinRole map[string]string
	Default string
	Skip    []string
}

func (p Policy) skips(method string) bool {
	for _, m := range p.Skip {
		if m == method {
			return true
		}
	}
	return false
}

func (p Policy) required(method string) string {
	if r, ok := p.MinRole[method]; ok {
		return r
	}
	if p.Default != "" {
		return p.Default
	}
	return RoleViewer
}

// ContextWithClaims returns a new context with the given Claims attached.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext extracts Claims from the context.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok
}

func bearer(header string) string {
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// UnaryAuthInterceptor authenticates the bearer token in the "authorization"
// metadata and enforces policy.
func UnaryAuthInterceptor(v TokenValidator, policy Policy) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if policy.skips(info.FullMethod) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		authHeader := md.Get("authorization")
		if len(authHeader) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization header")
		}

		claims, err := v.ValidateToken(bearer(authHeader[0]))
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
		}

		if need := policy.required(info.FullMethod); !claims.HasAtLeast(need) {
			return nil, status.Errorf(codes.PermissionDenied, "%s requires role %s", info.FullMethod, need)
		}
		return handler(ContextWithClaims(ctx, claims), req)
	}
}

// HTTPMiddleware authenticates the Authorization header of HTTP requests and
// enforces policy keyed by r.Pattern.
func HTTPMiddleware(v TokenValidator, policy Policy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Pattern
		if route == "" {
			route = r.Method + " " + r.URL.Path
		}
		if policy.skips(route) {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}
		claims, err := v.ValidateToken(bearer(header))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if need := policy.required(route); !claims.HasAtLeast(need) {
			http.Error(w, "requires role "+need, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}
