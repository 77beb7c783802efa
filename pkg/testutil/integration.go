package testutil

import (
	"os"
	"testing"
)

// IntegrationEnv enables container-backed tests when set to a non-empty value.
const IntegrationEnv = "RISKENGINE_INTEGRATION"

// SkipUnlessIntegration skips t under -short or when IntegrationEnv is unset.
func SkipUnlessIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv(IntegrationEnv) == "" {
		t.Skipf("skipping integration test; set %s=1 to run", IntegrationEnv)
	}
}
