package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danielgraviet/daytona-demo/internal/runstore"
)

// Settings is the persisted configuration file. Zero values mean "use the
// default", so a hand-edited file only needs the keys it changes.
type Settings struct {
	SchemaVersion     int       `json:"schema_version,omitempty"`
	UpdatedAt         string    `json:"updated_at,omitempty"`
	Units             int       `json:"units,omitempty"`
	Episodes          int       `json:"episodes,omitempty"`
	WorkerCap         int       `json:"worker_cap,omitempty"`
	Params            []float64 `json:"params,omitempty"`
	Rows              int       `json:"rows,omitempty"`
	RefreshMillis     int       `json:"refresh_ms,omitempty"`
	RunsDir           string    `json:"runs_dir,omitempty"`
	RemotePath        string    `json:"remote_path,omitempty"`
	Language          string    `json:"language,omitempty"`
	AutoStopMinutes   int       `json:"auto_stop_minutes,omitempty"`
	AutoDeleteMinutes int       `json:"auto_delete_minutes,omitempty"`
}

type UpdateSettingsOptions struct {
	SettingsPath string
	Settings     Settings
}

type UpdateSettingsResult struct {
	SettingsPath string   `json:"settings_path"`
	Settings     Settings `json:"settings"`
}

func defaultSettings() Settings {
	return Settings{
		SchemaVersion:     settingsSchemaVersion,
		Units:             DefaultUnits,
		Episodes:          DefaultEpisodes,
		WorkerCap:         DefaultWorkerCap,
		Params:            DefaultParams(),
		Rows:              DefaultRows,
		RefreshMillis:     DefaultRefreshMillis,
		RunsDir:           DefaultRunsDir,
		RemotePath:        DefaultRemotePath,
		Language:          DefaultLanguage,
		AutoStopMinutes:   DefaultAutoStopMinutes,
		AutoDeleteMinutes: DefaultAutoDeleteMinutes,
	}
}

func normalizeSettings(raw Settings) Settings {
	norm := raw
	norm.SchemaVersion = settingsSchemaVersion
	if norm.Units <= 0 {
		norm.Units = DefaultUnits
	}
	if norm.Episodes <= 0 {
		norm.Episodes = DefaultEpisodes
	}
	if norm.WorkerCap <= 0 {
		norm.WorkerCap = DefaultWorkerCap
	}
	norm.Params = normalizeParams(norm.Params)
	if norm.Rows <= 0 {
		norm.Rows = DefaultRows
	}
	if norm.RefreshMillis <= 0 {
		norm.RefreshMillis = DefaultRefreshMillis
	}
	norm.RunsDir = strings.TrimSpace(norm.RunsDir)
	if norm.RunsDir == "" {
		norm.RunsDir = DefaultRunsDir
	}
	norm.RemotePath = strings.TrimSpace(norm.RemotePath)
	if norm.RemotePath == "" {
		norm.RemotePath = DefaultRemotePath
	}
	norm.Language = strings.TrimSpace(norm.Language)
	if norm.Language == "" {
		norm.Language = DefaultLanguage
	}
	if norm.AutoStopMinutes <= 0 {
		norm.AutoStopMinutes = DefaultAutoStopMinutes
	}
	if norm.AutoDeleteMinutes <= 0 {
		norm.AutoDeleteMinutes = DefaultAutoDeleteMinutes
	}
	return norm
}

// normalizeParams drops non-positive entries and falls back to the default
// pool when nothing valid remains. Duplicates are kept, a pool may weight a
// value on purpose.
func normalizeParams(raw []float64) []float64 {
	out := make([]float64, 0, len(raw))
	for _, p := range raw {
		if p > 0 {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return DefaultParams()
	}
	return out
}

func normalizeSettingsPath(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return DefaultSettingsPath
	}
	return p
}

// ReadSettings loads the settings file, treating a missing file as pure
// defaults. It never writes.
func ReadSettings(settingsPath string) (Settings, error) {
	path := normalizeSettingsPath(settingsPath)
	s, err := loadSettings(path)
	if err == nil {
		return s, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return defaultSettings(), nil
	}
	return Settings{}, err
}

// EnsureSettings loads the settings file, creating it with defaults when it
// does not exist yet. The second return reports whether it was created.
func EnsureSettings(settingsPath string) (Settings, bool, error) {
	path := normalizeSettingsPath(settingsPath)
	s, err := loadSettings(path)
	if err == nil {
		return s, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return Settings{}, false, err
	}

	s = defaultSettings()
	s.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := saveSettings(path, s); err != nil {
		return Settings{}, false, err
	}
	return s, true, nil
}

func UpdateSettings(opts UpdateSettingsOptions) (UpdateSettingsResult, error) {
	path := normalizeSettingsPath(opts.SettingsPath)
	if _, _, err := EnsureSettings(path); err != nil {
		return UpdateSettingsResult{}, err
	}

	s := normalizeSettings(opts.Settings)
	s.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := saveSettings(path, s); err != nil {
		return UpdateSettingsResult{}, err
	}
	return UpdateSettingsResult{
		SettingsPath: path,
		Settings:     s,
	}, nil
}

func loadSettings(path string) (Settings, error) {
	var s Settings
	if err := runstore.ReadJSON(path, &s); err != nil {
		return Settings{}, err
	}
	return normalizeSettings(s), nil
}

func saveSettings(path string, s Settings) error {
	if err := runstore.Mkdir(filepath.Dir(path)); err != nil {
		return err
	}
	return runstore.WriteJSON(path, s)
}

// Runtime is the fully resolved plan for one run, every knob filled in.
type Runtime struct {
	Units             int
	Episodes          int
	Workers           int
	Params            []float64
	Rows              int
	Refresh           time.Duration
	RunsDir           string
	RemotePath        string
	Language          string
	AutoStopMinutes   int
	AutoDeleteMinutes int
}

// Overrides carries the command-line flags. Zero or empty means "not set";
// flags beat the settings file, the settings file beats defaults.
type Overrides struct {
	Units         int
	Episodes      int
	Workers       int
	Params        []float64
	Rows          int
	RefreshMillis int
	RunsDir       string
}

func ResolveRuntime(s Settings, o Overrides) (Runtime, error) {
	if o.Units < 0 {
		return Runtime{}, fmt.Errorf("units must be >= 1")
	}
	if o.Episodes < 0 {
		return Runtime{}, fmt.Errorf("episodes must be >= 1")
	}
	if o.Workers < 0 {
		return Runtime{}, fmt.Errorf("workers must be >= 1")
	}
	for _, p := range o.Params {
		if p <= 0 {
			return Runtime{}, fmt.Errorf("param must be > 0, got %g", p)
		}
	}

	norm := normalizeSettings(s)
	units := firstPositive(o.Units, norm.Units, DefaultUnits)
	episodes := firstPositive(o.Episodes, norm.Episodes, DefaultEpisodes)

	// Workers never exceed the unit count, one sandbox per unit is the most
	// that can be in flight.
	workers := firstPositive(o.Workers, norm.WorkerCap, DefaultWorkerCap)
	if workers > units {
		workers = units
	}

	params := o.Params
	if len(params) == 0 {
		params = norm.Params
	}

	return Runtime{
		Units:             units,
		Episodes:          episodes,
		Workers:           workers,
		Params:            params,
		Rows:              firstPositive(o.Rows, norm.Rows, DefaultRows),
		Refresh:           time.Duration(firstPositive(o.RefreshMillis, norm.RefreshMillis, DefaultRefreshMillis)) * time.Millisecond,
		RunsDir:           firstNonEmpty(o.RunsDir, norm.RunsDir, DefaultRunsDir),
		RemotePath:        norm.RemotePath,
		Language:          norm.Language,
		AutoStopMinutes:   norm.AutoStopMinutes,
		AutoDeleteMinutes: norm.AutoDeleteMinutes,
	}, nil
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
