package config

const (
	DefaultSettingsPath = "config/settings.json"

	DefaultUnits             = 25
	DefaultEpisodes          = 300
	DefaultWorkerCap         = 200
	DefaultRows              = 20
	DefaultRefreshMillis     = 250
	DefaultRunsDir           = "runs"
	DefaultRemotePath        = "/home/daytona/trainer.py"
	DefaultLanguage          = "python"
	DefaultAutoStopMinutes   = 10
	DefaultAutoDeleteMinutes = 30

	settingsSchemaVersion = 1
)

// DefaultParams is the exploration-rate pool units draw from when no list
// is configured.
func DefaultParams() []float64 {
	return []float64{0.001, 0.005, 0.01, 0.02, 0.05}
}
