package fleet

import (
	"fmt"
	"math"
	"strings"

	"github.com/danielgraviet/daytona-demo/internal/model"
)

type Summary struct {
	RunID          string      `json:"run_id"`
	Total          int         `json:"total"`
	Done           int         `json:"done"`
	Failed         int         `json:"failed"`
	Solved         int         `json:"solved"`
	SolvedPct      float64     `json:"solved_pct"`
	AvgFinalScore  float64     `json:"avg_final_score"`
	SolvedAtMin    int         `json:"solved_at_min,omitempty"`
	SolvedAtMean   float64     `json:"solved_at_mean,omitempty"`
	SolvedAtMax    int         `json:"solved_at_max,omitempty"`
	ElapsedSeconds float64     `json:"elapsed_seconds"`
	Errors         []UnitError `json:"errors,omitempty"`
}

type UnitError struct {
	Index     int    `json:"index"`
	UnitID    string `json:"unit_id"`
	SandboxID string `json:"sandbox_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message"`
}

// Summarize reduces a final snapshot to the run's closing numbers. The
// error list keeps unit index order, same as the snapshot.
func Summarize(runID string, snap model.Snapshot) Summary {
	s := Summary{
		RunID:          runID,
		Total:          snap.Total,
		Done:           snap.Done,
		Failed:         snap.Failed,
		Solved:         snap.Solved,
		SolvedPct:      round1(float64(snap.Solved) / math.Max(float64(snap.Done), 1) * 100),
		AvgFinalScore:  round1(snap.AvgFinal),
		ElapsedSeconds: round1(snap.Elapsed().Seconds()),
	}

	solvedAts := make([]int, 0, snap.Solved)
	for _, u := range snap.Units {
		if u.SolvedAt != nil {
			solvedAts = append(solvedAts, *u.SolvedAt)
		}
		if u.Status == model.StatusError {
			s.Errors = append(s.Errors, UnitError{
				Index:     u.Index,
				UnitID:    u.ID,
				SandboxID: u.SandboxID,
				Reason:    u.Reason,
				Message:   u.LastError,
			})
		}
	}
	if len(solvedAts) > 0 {
		minAt := solvedAts[0]
		maxAt := solvedAts[0]
		sum := 0
		for _, v := range solvedAts {
			if v < minAt {
				minAt = v
			}
			if v > maxAt {
				maxAt = v
			}
			sum += v
		}
		s.SolvedAtMin = minAt
		s.SolvedAtMax = maxAt
		s.SolvedAtMean = round1(float64(sum) / float64(len(solvedAts)))
	}
	return s
}

// FormatErrorLog renders the errors.log body: one block per failed unit.
func FormatErrorLog(errs []UnitError) string {
	var b strings.Builder
	for _, e := range errs {
		fmt.Fprintf(&b, "[unit %d] id=%s sandbox=%s reason=%s\n%s\n\n",
			e.Index, e.UnitID, orDash(e.SandboxID), e.Reason, e.Message)
	}
	return b.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
