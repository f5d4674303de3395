package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielgraviet/daytona-demo/internal/fleet"
	"github.com/danielgraviet/daytona-demo/internal/model"
	"github.com/danielgraviet/daytona-demo/internal/runstore"
)

type statusReport struct {
	RunDir     string           `json:"run_dir"`
	InProgress bool             `json:"in_progress"`
	Meta       runstore.RunMeta `json:"meta"`
	Summary    *fleet.Summary   `json:"summary,omitempty"`
	Units      []model.Unit     `json:"units,omitempty"`
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id under the runs directory")
	runsDir := fs.String("runs-dir", "runs", "runs directory")
	latest := fs.Bool("latest", false, "use the newest run")
	showUnits := fs.Bool("units", false, "include the per-unit table")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	runDir, err := resolveRunDir(strings.TrimSpace(*runsDir), strings.TrimSpace(*runID), *latest)
	if err != nil {
		return err
	}

	report, err := loadStatusReport(runDir)
	if err != nil {
		return err
	}

	if *jsonOut {
		if !*showUnits {
			report.Units = nil
		}
		return printJSON(report)
	}

	printStatusReport(report, *showUnits)
	return nil
}

func resolveRunDir(runsDir, runID string, latest bool) (string, error) {
	if runID != "" {
		return filepath.Join(runsDir, runID), nil
	}
	if latest {
		return runstore.LatestRunDir(runsDir)
	}
	return "", errors.New("status target required: set --run-id or --latest")
}

func loadStatusReport(runDir string) (statusReport, error) {
	meta, err := runstore.LoadRunMeta(runDir)
	if err != nil {
		return statusReport{}, err
	}

	report := statusReport{
		RunDir:     runDir,
		InProgress: meta.FinishedAt == "" && runstore.IsLocked(runDir),
		Meta:       meta,
	}

	var summary fleet.Summary
	if err := runstore.ReadJSON(runstore.SummaryPath(runDir), &summary); err == nil {
		report.Summary = &summary
	} else if !errors.Is(err, os.ErrNotExist) {
		return statusReport{}, err
	}

	var units []model.Unit
	if err := runstore.ReadJSON(runstore.UnitsPath(runDir), &units); err == nil {
		report.Units = units
	} else if !errors.Is(err, os.ErrNotExist) {
		return statusReport{}, err
	}

	return report, nil
}

func printStatusReport(report statusReport, showUnits bool) {
	meta := report.Meta
	fmt.Printf("run_id: %s\n", meta.RunID)
	fmt.Printf("run_dir: %s\n", report.RunDir)
	fmt.Printf("created_at: %s\n", meta.CreatedAt)
	if report.InProgress {
		fmt.Println("state: in progress")
	} else if meta.FinishedAt == "" {
		fmt.Println("state: incomplete (no finish record)")
	} else {
		fmt.Printf("state: finished at %s\n", meta.FinishedAt)
	}
	fmt.Printf("plan: %d units x %d episodes, %d workers, params [%s]\n",
		meta.Units, meta.Episodes, meta.Workers, formatParamList(meta.Params))

	if report.Summary == nil {
		fmt.Println("summary: not written yet")
		return
	}
	fmt.Println()
	printSummary(report.RunDir, *report.Summary)

	if !showUnits || len(report.Units) == 0 {
		return
	}
	fmt.Println()
	fmt.Printf("%5s  %-12s  %-10s  %8s  %9s  %-9s  %8s\n",
		"#", "unit", "status", "episode", "avg(100)", "solved", "param")
	for _, u := range report.Units {
		solved := "-"
		if u.Solved {
			solved = "+"
			if u.SolvedAt != nil {
				solved = fmt.Sprintf("+ ep%d", *u.SolvedAt)
			}
		}
		fmt.Printf("%5d  %-12s  %-10s  %8d  %9.1f  %-9s  %8s\n",
			u.Index, u.ID, u.Status, u.Episode, u.AvgScore, solved, formatFloat(u.Param))
	}
}
