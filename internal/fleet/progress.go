package fleet

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one parsed progress line from the control program. SolvedAt is
// nil until the trainer first crosses the solve threshold.
type Record struct {
	Episode   int
	AvgScore  float64
	BestScore float64
	Solved    bool
	SolvedAt  *int
	Param     float64
}

// Every progress line carries the full shape; extra keys (unit, reward) are
// tolerated and ignored.
type wireRecord struct {
	Episode   *int     `json:"episode"`
	AvgScore  *float64 `json:"avg_score"`
	BestScore *float64 `json:"best_score"`
	Solved    *bool    `json:"solved"`
	SolvedAt  *int     `json:"solved_at"`
	Param     *float64 `json:"param"`
}

// ParseLine decodes one line of remote stdout. A non-nil error means the
// line is not a progress record and should be skipped; it never means the
// unit failed. Pip chatter, tracebacks and truncated JSON all land here.
func ParseLine(line string) (Record, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return Record{}, fmt.Errorf("not a JSON object")
	}

	var w wireRecord
	if err := json.Unmarshal([]byte(trimmed), &w); err != nil {
		return Record{}, fmt.Errorf("decode progress line: %w", err)
	}
	if w.Episode == nil {
		return Record{}, fmt.Errorf("missing field %q", "episode")
	}
	if w.AvgScore == nil {
		return Record{}, fmt.Errorf("missing field %q", "avg_score")
	}
	if w.BestScore == nil {
		return Record{}, fmt.Errorf("missing field %q", "best_score")
	}
	if w.Solved == nil {
		return Record{}, fmt.Errorf("missing field %q", "solved")
	}
	if w.Param == nil {
		return Record{}, fmt.Errorf("missing field %q", "param")
	}

	rec := Record{
		Episode:   *w.Episode,
		AvgScore:  *w.AvgScore,
		BestScore: *w.BestScore,
		Solved:    *w.Solved,
		Param:     *w.Param,
	}
	if w.SolvedAt != nil {
		v := *w.SolvedAt
		rec.SolvedAt = &v
	}
	return rec, nil
}

// splitByNewlineOrCR splits on \n and \r so carriage-return rewrites from
// the remote terminal still come through as separate tokens.
func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
