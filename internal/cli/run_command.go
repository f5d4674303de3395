package cli

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/danielgraviet/daytona-demo/internal/config"
	"github.com/danielgraviet/daytona-demo/internal/daytona"
	"github.com/danielgraviet/daytona-demo/internal/fleet"
	"github.com/danielgraviet/daytona-demo/internal/model"
	"github.com/danielgraviet/daytona-demo/internal/runstore"
)

func runFleet(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	units := fs.Int("units", 0, "number of units to dispatch (0 = settings/default)")
	episodes := fs.Int("episodes", 0, "training episodes per unit (0 = settings/default)")
	workers := fs.Int("workers", 0, "max units in flight (0 = settings/default, capped at unit count)")
	params := fs.String("params", "", "comma-separated parameter pool, e.g. 0.001,0.01 (empty = settings/default)")
	rows := fs.Int("rows", 0, "max table rows on screen (0 = settings/default)")
	interval := fs.Int("interval", 0, "dashboard refresh interval in ms (0 = settings/default)")
	runsDir := fs.String("runs-dir", "", "runs directory (empty = settings/default)")
	runID := fs.String("run-id", "", "run id override (default: generated)")
	configPath := fs.String("config", config.DefaultSettingsPath, "settings file path")
	plain := fs.Bool("plain", false, "plain dashboard instead of the interactive live view")
	jsonOut := fs.Bool("json", false, "suppress dashboards, print the final summary as JSON")

	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	paramPool, err := parseParamList(*params)
	if err != nil {
		return err
	}

	settings, err := config.ReadSettings(*configPath)
	if err != nil {
		return err
	}
	rt, err := config.ResolveRuntime(settings, config.Overrides{
		Units:         *units,
		Episodes:      *episodes,
		Workers:       *workers,
		Params:        paramPool,
		Rows:          *rows,
		RefreshMillis: *interval,
		RunsDir:       *runsDir,
	})
	if err != nil {
		return err
	}

	// Credentials may live in a .env next to the binary; absence of the
	// file itself is fine.
	_ = godotenv.Load()
	client, err := daytona.NewClientFromEnv()
	if err != nil {
		return err
	}

	id := strings.TrimSpace(*runID)
	if id == "" {
		id = newRunID()
	}
	runDir := filepath.Join(rt.RunsDir, id)
	if err := runstore.Mkdir(runDir); err != nil {
		return err
	}
	lock, err := runstore.AcquireRunLock(runDir)
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release()
	}()

	// stdout belongs to the dashboard, so the logger writes into the run
	// directory instead.
	logFile, err := os.OpenFile(runstore.OrchestratorLogPath(runDir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open orchestrator log: %w", err)
	}
	defer func() {
		_ = logFile.Close()
	}()
	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug})))

	specs := planUnits(rt.Units, rt.Params)
	meta := runstore.RunMeta{
		RunID:     id,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Units:     rt.Units,
		Episodes:  rt.Episodes,
		Workers:   rt.Workers,
		Params:    rt.Params,
		APIURL:    client.APIURL(),
	}
	if err := runstore.SaveRunMeta(runDir, meta); err != nil {
		return err
	}

	tracker := fleet.NewTracker()
	opts := fleet.Options{
		Workers:           rt.Workers,
		Episodes:          rt.Episodes,
		RemotePath:        rt.RemotePath,
		Artifact:          fleet.TrainerScript(),
		Language:          rt.Language,
		AutoStopMinutes:   rt.AutoStopMinutes,
		AutoDeleteMinutes: rt.AutoDeleteMinutes,
	}

	slog.Info("run starting", "run_id", id, "units", rt.Units, "workers", rt.Workers, "api_url", client.APIURL())
	runErr := dispatchWithView(client, tracker, specs, opts, rt, *plain, *jsonOut)

	snap := tracker.Snapshot()
	summary := fleet.Summarize(id, snap)
	if err := persistRunArtifacts(runDir, meta, snap, summary); err != nil {
		slog.Warn("persisting run artifacts failed", "error", err)
	}
	if runErr != nil {
		return runErr
	}

	if *jsonOut {
		if err := printJSON(summary); err != nil {
			return err
		}
	} else {
		printSummary(runDir, summary)
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d units failed: %w", summary.Failed, summary.Total, fleet.ErrUnitsFailed)
	}
	return nil
}

// dispatchWithView runs the fleet under the chosen renderer. JSON mode gets
// no renderer at all, a TTY gets the interactive view, everything else the
// plain ticker dashboard.
func dispatchWithView(client *daytona.Client, tracker *fleet.Tracker, specs []model.UnitSpec, opts fleet.Options, rt config.Runtime, plain, jsonOut bool) error {
	ctx := context.Background()
	provider := fleet.NewProvider(client)

	switch {
	case jsonOut:
		return fleet.Run(ctx, provider, tracker, specs, opts)
	case !plain && stdoutIsTTY():
		return runLiveView(ctx, provider, tracker, specs, opts, rt)
	default:
		dash := fleet.NewDashboard(tracker, rt.Rows, rt.Episodes, rt.Refresh)
		dash.Start()
		defer dash.Stop()
		return fleet.Run(ctx, provider, tracker, specs, opts)
	}
}

// planUnits fixes every unit's identity and parameter before dispatch.
// Parameters are drawn at random from the pool, which is how a sweep covers
// the pool without coordinating units.
func planUnits(n int, pool []float64) []model.UnitSpec {
	specs := make([]model.UnitSpec, 0, n)
	for i := 1; i <= n; i++ {
		specs = append(specs, model.UnitSpec{
			ID:    fmt.Sprintf("unit-%05d", i),
			Index: i,
			Param: pool[rand.IntN(len(pool))],
		})
	}
	return specs
}

func newRunID() string {
	stamp := time.Now().UTC().Format("20060102-150405")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return stamp + "-" + suffix
}

func persistRunArtifacts(runDir string, meta runstore.RunMeta, snap model.Snapshot, summary fleet.Summary) error {
	if err := runstore.WriteJSON(runstore.SummaryPath(runDir), summary); err != nil {
		return err
	}
	if err := runstore.WriteJSON(runstore.UnitsPath(runDir), snap.Units); err != nil {
		return err
	}
	if len(summary.Errors) > 0 {
		if err := runstore.WriteBytes(runstore.ErrorLogPath(runDir), []byte(fleet.FormatErrorLog(summary.Errors))); err != nil {
			return err
		}
	}

	meta.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	if summary.Failed > 0 {
		meta.ExitCode = 1
	}
	return runstore.SaveRunMeta(runDir, meta)
}
