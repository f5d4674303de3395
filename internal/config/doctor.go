package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielgraviet/daytona-demo/internal/daytona"
	"github.com/danielgraviet/daytona-demo/internal/runstore"
)

type DoctorOptions struct {
	RunsDir      string
	SettingsPath string

	// Client overrides the env-built one, used by tests. Nil means build
	// from the environment when the key is present.
	Client *daytona.Client
}

type DoctorResult struct {
	OK     bool          `json:"ok"`
	Checks []DoctorCheck `json:"checks"`
}

type DoctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type InitWorkspaceOptions struct {
	RunsDir      string
	SettingsPath string
}

type InitWorkspaceResult struct {
	RunsDir         string       `json:"runs_dir"`
	SettingsPath    string       `json:"settings_path"`
	CreatedRunsDir  bool         `json:"created_runs_dir"`
	CreatedSettings bool         `json:"created_settings"`
	DoctorResult    DoctorResult `json:"doctor"`
}

// Doctor answers "can a run start from here": credential present, API
// reachable, and both local directories writable.
func Doctor(ctx context.Context, opts DoctorOptions) (DoctorResult, error) {
	runsDir := strings.TrimSpace(opts.RunsDir)
	if runsDir == "" {
		runsDir = DefaultRunsDir
	}
	settingsPath := normalizeSettingsPath(opts.SettingsPath)

	checks := make([]DoctorCheck, 0, 4)

	keyPresent := strings.TrimSpace(os.Getenv(daytona.EnvAPIKey)) != ""
	checks = append(checks, DoctorCheck{
		Name:    "credential:api-key",
		OK:      keyPresent,
		Message: credentialMessage(keyPresent),
	})

	checks = append(checks, healthCheck(ctx, opts.Client, keyPresent))

	runsDirOK, runsDirMessage := ensureWritableDir(runsDir)
	checks = append(checks, DoctorCheck{
		Name:    "directory:runs",
		OK:      runsDirOK,
		Message: runsDirMessage,
	})

	cfgDir := filepath.Dir(settingsPath)
	cfgOK, cfgMessage := ensureWritableDir(cfgDir)
	checks = append(checks, DoctorCheck{
		Name:    "directory:config",
		OK:      cfgOK,
		Message: cfgMessage,
	})

	ok := true
	for _, c := range checks {
		if !c.OK {
			ok = false
			break
		}
	}

	return DoctorResult{OK: ok, Checks: checks}, nil
}

// InitWorkspace makes a fresh checkout runnable: runs directory, settings
// file with defaults, then a doctor pass over the result.
func InitWorkspace(ctx context.Context, opts InitWorkspaceOptions) (InitWorkspaceResult, error) {
	runsDir := strings.TrimSpace(opts.RunsDir)
	if runsDir == "" {
		runsDir = DefaultRunsDir
	}
	settingsPath := normalizeSettingsPath(opts.SettingsPath)

	createdRunsDir := false
	if _, err := os.Stat(runsDir); os.IsNotExist(err) {
		createdRunsDir = true
	}
	if err := runstore.Mkdir(runsDir); err != nil {
		return InitWorkspaceResult{}, err
	}

	_, createdSettings, err := EnsureSettings(settingsPath)
	if err != nil {
		return InitWorkspaceResult{}, err
	}

	doc, err := Doctor(ctx, DoctorOptions{RunsDir: runsDir, SettingsPath: settingsPath})
	if err != nil {
		return InitWorkspaceResult{}, err
	}

	return InitWorkspaceResult{
		RunsDir:         runsDir,
		SettingsPath:    settingsPath,
		CreatedRunsDir:  createdRunsDir,
		CreatedSettings: createdSettings,
		DoctorResult:    doc,
	}, nil
}

func credentialMessage(present bool) string {
	if present {
		return daytona.EnvAPIKey + " is set"
	}
	return daytona.EnvAPIKey + " is not set"
}

func healthCheck(ctx context.Context, client *daytona.Client, keyPresent bool) DoctorCheck {
	check := DoctorCheck{Name: "api:health"}
	if client == nil {
		if !keyPresent {
			check.Message = "skipped, no api key"
			return check
		}
		c, err := daytona.NewClientFromEnv()
		if err != nil {
			check.Message = err.Error()
			return check
		}
		client = c
	}

	if err := client.Health(ctx); err != nil {
		check.Message = err.Error()
		return check
	}
	check.OK = true
	check.Message = "api reachable at " + client.APIURL()
	return check
}

func ensureWritableDir(path string) (bool, string) {
	if strings.TrimSpace(path) == "" {
		return false, "empty path"
	}
	if err := runstore.Mkdir(path); err != nil {
		return false, err.Error()
	}
	f, err := os.CreateTemp(path, "daytona-demo-check-*.tmp")
	if err != nil {
		return false, err.Error()
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true, "writable"
}
