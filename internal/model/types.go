package model

import "time"

// UnitSpec is the dispatch plan for one unit, fixed before any worker runs.
type UnitSpec struct {
	ID    string  `json:"id"`
	Index int     `json:"index"`
	Param float64 `json:"param"`
}

// Unit is the live record for one unit. Progress fields hold whatever the
// latest parsed line reported; SolvedAt is written at most once.
type Unit struct {
	ID         string  `json:"id"`
	Index      int     `json:"index"`
	SandboxID  string  `json:"sandbox_id,omitempty"`
	Param      float64 `json:"param"`
	Status     string  `json:"status"`
	Episode    int     `json:"episode"`
	AvgScore   float64 `json:"avg_score"`
	BestScore  float64 `json:"best_score"`
	Solved     bool    `json:"solved"`
	SolvedAt   *int    `json:"solved_at,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	LastError  string  `json:"last_error,omitempty"`
	StartedAt  string  `json:"started_at,omitempty"`
	FinishedAt string  `json:"finished_at,omitempty"`
}

// Snapshot is a consistent point-in-time copy of the whole fleet. Units are
// value copies sorted by index; counts are derived from the same copies.
type Snapshot struct {
	Units     []Unit
	Total     int
	Pending   int
	Running   int
	Done      int
	Failed    int
	Solved    int
	AvgFinal  float64
	StartedAt time.Time
	TakenAt   time.Time
}

func (s Snapshot) Elapsed() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return s.TakenAt.Sub(s.StartedAt)
}

func (s Snapshot) Finished() bool {
	return s.Total > 0 && s.Done+s.Failed == s.Total
}
