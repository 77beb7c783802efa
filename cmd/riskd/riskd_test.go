package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/peacemap/riskengine/pkg/auth"
	"github.com/peacemap/riskengine/pkg/testutil"
	"github.com/peacemap/riskengine/pkg/tlsutil"
)

const scoreRequestJSON = `{
  "region": "Middle East",
  "bounds": {"north": 31, "south": 30, "east": 36, "west": 35},
  "events": [
    {"id": "e1", "title": "clash", "published_at": "2026-03-01T10:00:00Z", "severity": "high", "confidence": 0.8},
    {"id": "e2", "title": "protest", "published_at": "2026-02-28T10:00:00Z", "severity": "medium", "confidence": 0.6}
  ]
}`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestScoreCommand_AllFromStdin(t *testing.T) {
	out, err := execute(t, scoreRequestJSON, "score")
	require.NoError(t, err)

	var results map[string]scoreResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Contains(t, results, "composite")
	assert.Contains(t, results, "regional")
	assert.Contains(t, results, "anomaly")
	assert.NotContains(t, results, "supplier")
	assert.Equal(t, "Middle East", results["regional"].Score.Region)
}

func TestScoreCommand_SingleCalculatorYAML(t *testing.T) {
	input := writeFile(t, "request.json", scoreRequestJSON)

	out, err := execute(t, "", "score", "-i", input, "--calculator", "regional", "-o", "yaml")
	require.NoError(t, err)

	var results map[string]scoreResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Len(t, results["regional"].Score.Factors, 6)
}

func TestScoreCommand_YAMLInput(t *testing.T) {
	input := writeFile(t, "supplier.yaml", `
supplier:
  id: s-1
  name: Acme
  country: Germany
  supply_chain_tier: tier_1
`)

	out, err := execute(t, "", "score", "-i", input, "--calculator", "supplier")
	require.NoError(t, err)
	assert.Contains(t, out, `"calculator": "supplier"`)
}

func TestScoreCommand_Errors(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{"bad output", scoreRequestJSON, []string{"score", "-o", "xml"}, "unsupported output"},
		{"bad calculator", scoreRequestJSON, []string{"score", "--calculator", "magic"}, "invalid calculator kind"},
		{"malformed input", "{", []string{"score"}, "failed to decode"},
		{"invalid request", `{"window_days": -1}`, []string{"score"}, "invalid request"},
		{"regional without region", `{}`, []string{"score", "--calculator", "regional"}, "needs a region"},
		{"supplier without supplier", `{}`, []string{"score", "--calculator", "supplier"}, "needs a supplier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.stdin, tt.args...)
			testutil.AssertErrorContains(t, err, tt.want)
		})
	}
}

func TestTokenCommand(t *testing.T) {
	cfgPath := writeFile(t, "riskd.yaml", "auth:\n  jwt_secret: cli-secret\n  issuer: peacemap\n")

	out, err := execute(t, "", "token", "-c", cfgPath, "--role", auth.RoleAnalyst)
	require.NoError(t, err)

	svc, err := auth.NewJWTService(auth.JWTConfig{Secret: "cli-secret", Issuer: "peacemap"})
	require.NoError(t, err)
	claims, err := svc.ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.True(t, claims.HasRole(auth.RoleAnalyst))

	_, err = execute(t, "", "token", "-c", cfgPath, "--role", "root")
	require.Error(t, err)
}

func TestGenKeysAndRSAToken(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "", "gen-keys", "--out", dir)
	require.NoError(t, err)

	out, err := execute(t, "", "token", "--private-key", filepath.Join(dir, "jwt-private.pem"), "--role", auth.RoleAdmin)
	require.NoError(t, err)

	pub, err := auth.LoadKeyFromFile(filepath.Join(dir, "jwt-public.pem"))
	require.NoError(t, err)
	svc, err := auth.NewJWTService(auth.JWTConfig{PublicKeyPEM: string(pub), Issuer: "peacemap"})
	require.NoError(t, err)
	_, err = svc.ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
}

func TestGenCertsCommand(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "", "gen-certs", "--out", dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, tlsutil.ServerFile))
	assert.FileExists(t, filepath.Join(dir, tlsutil.ServerKeyFile))
}

func TestMigrateRequiresDatabase(t *testing.T) {
	t.Setenv("RISKENGINE_DATABASE_URL", "")
	_, err := execute(t, "", "migrate")
	testutil.AssertErrorContains(t, err, "database.url")
}
