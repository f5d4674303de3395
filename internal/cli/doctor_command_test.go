package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielgraviet/daytona-demo/internal/daytona"
)

func TestHarnessInitThenDoctor(t *testing.T) {
	ts := fakeFleetAPI(nil, nil)
	defer ts.Close()

	t.Setenv(daytona.EnvAPIURL, ts.URL)
	t.Setenv(daytona.EnvAPIKey, "test-key")

	tmp := t.TempDir()
	runsDir := filepath.Join(tmp, "runs")
	cfgPath := filepath.Join(tmp, "config", "settings.json")

	if err := Run([]string{"init", "--runs-dir", runsDir, "--config", cfgPath}); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := Run([]string{"doctor", "--runs-dir", runsDir, "--config", cfgPath}); err != nil {
		t.Fatalf("doctor failed on a healthy workspace: %v", err)
	}
	if err := Run([]string{"doctor", "--runs-dir", runsDir, "--config", cfgPath, "--json"}); err != nil {
		t.Fatalf("doctor --json failed: %v", err)
	}
}

func TestHarnessDoctorWithoutCredential(t *testing.T) {
	t.Setenv(daytona.EnvAPIKey, "")
	t.Setenv(daytona.EnvAPIURL, "")

	tmp := t.TempDir()
	err := Run([]string{
		"doctor",
		"--runs-dir", filepath.Join(tmp, "runs"),
		"--config", filepath.Join(tmp, "settings.json"),
	})
	if err == nil {
		t.Fatal("doctor without a credential should fail")
	}
	if !strings.Contains(err.Error(), "doctor found problems") {
		t.Fatalf("doctor error = %q", err)
	}
}
