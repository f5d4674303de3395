package cli

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/danielgraviet/daytona-demo/internal/fleet"
	"github.com/danielgraviet/daytona-demo/internal/runstore"
)

var (
	okColor   = color.New(color.FgGreen)
	badColor  = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
	headColor = color.New(color.Bold)
)

func printSummary(runDir string, sum fleet.Summary) {
	fmt.Println(headColor.Sprint("run summary"))
	fmt.Printf("run_id: %s\n", sum.RunID)
	fmt.Printf("run_dir: %s\n", runDir)
	fmt.Printf("total: %d\n", sum.Total)

	doneLine := fmt.Sprintf("done: %d", sum.Done)
	if sum.Done == sum.Total && sum.Total > 0 {
		doneLine = okColor.Sprint(doneLine)
	}
	fmt.Println(doneLine)

	failedLine := fmt.Sprintf("failed: %d", sum.Failed)
	if sum.Failed > 0 {
		failedLine = badColor.Sprint(failedLine)
	}
	fmt.Println(failedLine)

	fmt.Printf("solved: %d (%.1f%%)\n", sum.Solved, sum.SolvedPct)
	fmt.Printf("avg_final_score: %.1f\n", sum.AvgFinalScore)
	if sum.Solved > 0 {
		fmt.Printf("solved_at: min %d / mean %.1f / max %d\n", sum.SolvedAtMin, sum.SolvedAtMean, sum.SolvedAtMax)
	}
	fmt.Printf("elapsed: %.1fs\n", sum.ElapsedSeconds)

	if len(sum.Errors) == 0 {
		return
	}
	fmt.Println(badColor.Sprint("errors:"))
	for _, e := range sum.Errors {
		fmt.Printf("  [unit %d] %s (%s): %s\n", e.Index, e.UnitID, e.Reason, firstLine(e.Message))
	}
	fmt.Println(dimColor.Sprintf("full messages: %s", runstore.ErrorLogPath(runDir)))
}

// firstLine keeps multi-line remote tracebacks to one terminal row; the
// full text lives in errors.log.
func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			return s[:i] + " ..."
		}
	}
	return s
}
