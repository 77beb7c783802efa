package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func newTestJWTService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService(JWTConfig{
		Secret:     "test-secret-key-for-unit-tests",
		Issuer:     "peacemap-test",
		Expiration: 15 * time.Minute,
	})
	require.NoError(t, err)
	return svc
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := newTestJWTService(t)

	token, err := svc.GenerateToken("analyst-7", []string{RoleAnalyst})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "analyst-7", claims.Subject)
	assert.Equal(t, "peacemap-test", claims.Issuer)
	assert.Equal(t, []string{RoleAnalyst}, claims.Roles)
}

func TestValidateToken_Rejections(t *testing.T) {
	svc := newTestJWTService(t)

	defaulted, err := NewJWTService(JWTConfig{Secret: "test-secret-key-for-unit-tests", Issuer: "peacemap-test", Expiration: -time.Minute})
	require.NoError(t, err)

	other, err := NewJWTService(JWTConfig{Secret: "another-secret", Issuer: "peacemap-test"})
	require.NoError(t, err)

	wrongIssuer, err := NewJWTService(JWTConfig{Secret: "test-secret-key-for-unit-tests", Issuer: "elsewhere"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		issuer *JWTService
	}{
		{"wrong signature", other},
		{"wrong issuer", wrongIssuer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := tt.issuer.GenerateToken("x", []string{RoleViewer})
			require.NoError(t, err)
			_, err = svc.ValidateToken(token)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("not-a-jwt")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	// A non-positive expiration falls back to the default lifetime.
	token, err := defaulted.GenerateToken("x", nil)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.NoError(t, err)
}

func TestRSAKeys(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)

	issuer, err := NewJWTService(JWTConfig{PrivateKeyPEM: string(priv), Issuer: "peacemap"})
	require.NoError(t, err)
	verifier, err := NewJWTService(JWTConfig{PublicKeyPEM: string(pub), Issuer: "peacemap"})
	require.NoError(t, err)

	token, err := issuer.GenerateToken("svc", []string{RoleAdmin})
	require.NoError(t, err)

	claims, err := verifier.ValidateToken(token)
	require.NoError(t, err)
	assert.True(t, claims.HasRole(RoleAdmin))

	_, err = verifier.GenerateToken("svc", nil)
	assert.Error(t, err)

	_, err = NewJWTService(JWTConfig{})
	assert.Error(t, err)
}

func TestClaims_HasAtLeast(t *testing.T) {
	tests := []struct {
		roles []string
		min   string
		want  bool
	}{
		{[]string{RoleAdmin}, RoleAnalyst, true},
		{[]string{RoleAnalyst}, RoleAnalyst, true},
		{[]string{RoleViewer}, RoleAnalyst, false},
		{[]string{"billing"}, RoleViewer, false},
		{nil, RoleViewer, false},
		{[]string{"custom"}, "custom", true},
	}
	for _, tt := range tests {
		c := Claims{Roles: tt.roles}
		assert.Equal(t, tt.want, c.HasAtLeast(tt.min), "%v >= %s", tt.roles, tt.min)
	}
}

func TestUnaryAuthInterceptor(t *testing.T) {
	svc := newTestJWTService(t)
	policy := Policy{
		Skip:    []string{"/svc/Health"},
		MinRole: map[string]string{"/svc/Train": RoleAdmin},
	}
	interceptor := UnaryAuthInterceptor(svc, policy)

	token := func(roles ...string) string {
		tok, err := svc.GenerateToken("caller", roles)
		require.NoError(t, err)
		return "Bearer " + tok
	}

	handler := func(ctx context.Context, _ any) (any, error) {
		claims, ok := ClaimsFromContext(ctx)
		if !ok {
			return "anonymous", nil
		}
		return claims.Subject, nil
	}

	tests := []struct {
		name   string
		method string
		auth   string
		code   codes.Code
		want   any
	}{
		{"skipped method", "/svc/Health", "", codes.OK, "anonymous"},
		{"missing header", "/svc/Score", "", codes.Unauthenticated, nil},
		{"bad token", "/svc/Score", "Bearer nope", codes.Unauthenticated, nil},
		{"viewer default", "/svc/Score", token(RoleViewer), codes.OK, "caller"},
		{"analyst cannot train", "/svc/Train", token(RoleAnalyst), codes.PermissionDenied, nil},
		{"admin trains", "/svc/Train", token(RoleAdmin), codes.OK, "caller"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.auth != "" {
				ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("authorization", tt.auth))
			} else {
				ctx = metadata.NewIncomingContext(ctx, metadata.MD{})
			}

			got, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: tt.method}, handler)
			assert.Equal(t, tt.code, status.Code(err))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPMiddleware(t *testing.T) {
	svc := newTestJWTService(t)
	policy := Policy{
		Skip:    []string{"GET /healthz"},
		MinRole: map[string]string{"POST /v1/train": RoleAdmin},
	}

	mux := http.NewServeMux()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	for _, pattern := range []string{"GET /healthz", "POST /v1/train", "GET /v1/alerts"} {
		mux.Handle(pattern, HTTPMiddleware(svc, policy, ok))
	}

	analyst, err := svc.GenerateToken("a", []string{RoleAnalyst})
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		code   int
	}{
		{"public", http.MethodGet, "/healthz", "", http.StatusNoContent},
		{"no token", http.MethodGet, "/v1/alerts", "", http.StatusUnauthorized},
		{"invalid token", http.MethodGet, "/v1/alerts", "junk", http.StatusUnauthorized},
		{"analyst reads", http.MethodGet, "/v1/alerts", analyst, http.StatusNoContent},
		{"analyst cannot train", http.MethodPost, "/v1/train", analyst, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}
