package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/joho/godotenv"

	"github.com/danielgraviet/daytona-demo/internal/config"
	"github.com/danielgraviet/daytona-demo/internal/fleet"
)

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	runsDir := fs.String("runs-dir", config.DefaultRunsDir, "runs directory")
	settingsPath := fs.String("config", config.DefaultSettingsPath, "settings file path")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	_ = godotenv.Load()
	result, err := config.Doctor(context.Background(), config.DoctorOptions{
		RunsDir:      strings.TrimSpace(*runsDir),
		SettingsPath: strings.TrimSpace(*settingsPath),
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(result)
	}
	printDoctorResult(result)
	if !result.OK {
		return fmt.Errorf("doctor found problems")
	}
	return nil
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	runsDir := fs.String("runs-dir", config.DefaultRunsDir, "runs directory")
	settingsPath := fs.String("config", config.DefaultSettingsPath, "settings file path")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	_ = godotenv.Load()
	result, err := config.InitWorkspace(context.Background(), config.InitWorkspaceOptions{
		RunsDir:      strings.TrimSpace(*runsDir),
		SettingsPath: strings.TrimSpace(*settingsPath),
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(result)
	}

	fmt.Printf("runs_dir: %s (created: %v)\n", result.RunsDir, result.CreatedRunsDir)
	fmt.Printf("settings: %s (created: %v)\n", result.SettingsPath, result.CreatedSettings)
	fmt.Println()
	printDoctorResult(result.DoctorResult)

	// An init without a credential is still a successful init; doctor output
	// above already points at what is missing.
	fmt.Println()
	if result.DoctorResult.OK {
		fmt.Println(okColor.Sprint("workspace ready"))
		fmt.Println("next: daytona-demo run")
	} else {
		fmt.Println("workspace created, fix the checks above before running")
	}
	return nil
}

func printDoctorResult(result config.DoctorResult) {
	for _, check := range result.Checks {
		mark := okColor.Sprint("ok")
		if !check.OK {
			mark = badColor.Sprint("FAIL")
		}
		fmt.Printf("[%s] %-20s %s\n", mark, check.Name, check.Message)
	}
	fmt.Println(dimColor.Sprintf("embedded trainer: %d bytes", len(fleet.TrainerScript())))
}
