package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/danielgraviet/daytona-demo/internal/config"
)

func runSettings(args []string) error {
	if len(args) == 0 {
		printSettingsUsage()
		return nil
	}
	switch args[0] {
	case "show":
		return runSettingsShow(args[1:])
	case "set":
		return runSettingsSet(args[1:])
	case "help", "-h", "--help":
		printSettingsUsage()
		return nil
	default:
		printSettingsUsage()
		return fmt.Errorf("unknown settings subcommand %q", args[0])
	}
}

func runSettingsShow(args []string) error {
	fs := flag.NewFlagSet("settings show", flag.ContinueOnError)
	settingsPath := fs.String("config", config.DefaultSettingsPath, "settings file path")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := strings.TrimSpace(*settingsPath)
	settings, err := config.ReadSettings(path)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"settings_path": path,
			"settings":      settings,
		})
	}

	fmt.Printf("config: %s\n", path)
	fmt.Printf("units: %d\n", settings.Units)
	fmt.Printf("episodes: %d\n", settings.Episodes)
	fmt.Printf("worker_cap: %d\n", settings.WorkerCap)
	fmt.Printf("params: %s\n", formatParamList(settings.Params))
	fmt.Printf("rows: %d\n", settings.Rows)
	fmt.Printf("refresh_ms: %d\n", settings.RefreshMillis)
	fmt.Printf("runs_dir: %s\n", settings.RunsDir)
	fmt.Printf("remote_path: %s\n", settings.RemotePath)
	fmt.Printf("language: %s\n", settings.Language)
	fmt.Printf("auto_stop_minutes: %d\n", settings.AutoStopMinutes)
	fmt.Printf("auto_delete_minutes: %d\n", settings.AutoDeleteMinutes)
	return nil
}

func runSettingsSet(args []string) error {
	fs := flag.NewFlagSet("settings set", flag.ContinueOnError)
	settingsPath := fs.String("config", config.DefaultSettingsPath, "settings file path")
	units := fs.Int("units", -1, "default unit count (>=1, -1 keeps current)")
	episodes := fs.Int("episodes", -1, "default episodes per unit (>=1, -1 keeps current)")
	workerCap := fs.Int("worker-cap", -1, "max units in flight (>=1, -1 keeps current)")
	params := fs.String("params", "", "comma-separated parameter pool (empty keeps current)")
	rows := fs.Int("rows", -1, "dashboard row cap (>=1, -1 keeps current)")
	refreshMillis := fs.Int("refresh-ms", -1, "dashboard refresh interval in ms (>=1, -1 keeps current)")
	runsDir := fs.String("runs-dir", "", "runs directory (empty keeps current)")
	remotePath := fs.String("remote-path", "", "trainer upload path in the sandbox (empty keeps current)")
	autoStop := fs.Int("auto-stop", -1, "sandbox auto-stop minutes (>=1, -1 keeps current)")
	autoDelete := fs.Int("auto-delete", -1, "sandbox auto-delete minutes (>=1, -1 keeps current)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := strings.TrimSpace(*settingsPath)
	settings, err := config.ReadSettings(path)
	if err != nil {
		return err
	}

	if *units != -1 {
		if *units <= 0 {
			return errors.New("--units must be >= 1")
		}
		settings.Units = *units
	}
	if *episodes != -1 {
		if *episodes <= 0 {
			return errors.New("--episodes must be >= 1")
		}
		settings.Episodes = *episodes
	}
	if *workerCap != -1 {
		if *workerCap <= 0 {
			return errors.New("--worker-cap must be >= 1")
		}
		settings.WorkerCap = *workerCap
	}
	if strings.TrimSpace(*params) != "" {
		pool, err := parseParamList(*params)
		if err != nil {
			return err
		}
		for _, p := range pool {
			if p <= 0 {
				return fmt.Errorf("param must be > 0, got %g", p)
			}
		}
		settings.Params = pool
	}
	if *rows != -1 {
		if *rows <= 0 {
			return errors.New("--rows must be >= 1")
		}
		settings.Rows = *rows
	}
	if *refreshMillis != -1 {
		if *refreshMillis <= 0 {
			return errors.New("--refresh-ms must be >= 1")
		}
		settings.RefreshMillis = *refreshMillis
	}
	if strings.TrimSpace(*runsDir) != "" {
		settings.RunsDir = strings.TrimSpace(*runsDir)
	}
	if strings.TrimSpace(*remotePath) != "" {
		settings.RemotePath = strings.TrimSpace(*remotePath)
	}
	if *autoStop != -1 {
		if *autoStop <= 0 {
			return errors.New("--auto-stop must be >= 1")
		}
		settings.AutoStopMinutes = *autoStop
	}
	if *autoDelete != -1 {
		if *autoDelete <= 0 {
			return errors.New("--auto-delete must be >= 1")
		}
		settings.AutoDeleteMinutes = *autoDelete
	}

	res, err := config.UpdateSettings(config.UpdateSettingsOptions{
		SettingsPath: path,
		Settings:     settings,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(res)
	}

	fmt.Printf("updated settings in %s\n", res.SettingsPath)
	fmt.Printf("units: %d\n", res.Settings.Units)
	fmt.Printf("episodes: %d\n", res.Settings.Episodes)
	fmt.Printf("worker_cap: %d\n", res.Settings.WorkerCap)
	fmt.Printf("params: %s\n", formatParamList(res.Settings.Params))
	return nil
}

func printSettingsUsage() {
	fmt.Println("settings commands:")
	fmt.Println("  settings show")
	fmt.Println("  settings set [--units N] [--episodes N] [--worker-cap N] [--params 0.001,0.01]")
	fmt.Println("               [--rows N] [--refresh-ms N] [--runs-dir DIR] [--remote-path PATH]")
	fmt.Println("               [--auto-stop N] [--auto-delete N]")
}
