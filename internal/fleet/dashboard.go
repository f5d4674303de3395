package fleet

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/danielgraviet/daytona-demo/internal/model"
)

// Dashboard is the plain-terminal renderer: full-screen redraw on a ticker,
// fed purely by tracker snapshots. Used when stdout is not an interactive
// terminal or the live view was turned off.
type Dashboard struct {
	tracker  *Tracker
	rows     int
	episodes int
	interval time.Duration

	stop chan struct{}
}

func NewDashboard(tracker *Tracker, rows, episodes int, interval time.Duration) *Dashboard {
	if rows <= 0 {
		rows = 20
	}
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Dashboard{
		tracker:  tracker,
		rows:     rows,
		episodes: episodes,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (d *Dashboard) Start() {
	go func() {
		t := time.NewTicker(d.interval)
		defer t.Stop()
		for {
			select {
			case <-d.stop:
				return
			case <-t.C:
				d.render()
			}
		}
	}()
}

// Stop ends the ticker and renders once more so the screen settles on the
// final state.
func (d *Dashboard) Stop() {
	close(d.stop)
	d.render()
}

func (d *Dashboard) render() {
	fmt.Print(RenderSnapshot(d.tracker.Snapshot(), d.rows, d.episodes))
}

// DisplayRows picks which units fit on screen: failures first so they stay
// visible on big fleets, then live work, then the queue, then finished
// units; index breaks ties. Counters always come from the full set, only
// the table is capped.
func DisplayRows(units []model.Unit, max int) []model.Unit {
	rows := slices.Clone(units)
	slices.SortFunc(rows, func(a, b model.Unit) int {
		if ra, rb := statusRank(a.Status), statusRank(b.Status); ra != rb {
			return ra - rb
		}
		return a.Index - b.Index
	})
	if max > 0 && len(rows) > max {
		rows = rows[:max]
	}
	return rows
}

func statusRank(status string) int {
	switch status {
	case model.StatusError:
		return 0
	case model.StatusRunning:
		return 1
	case model.StatusPending:
		return 2
	case model.StatusDone:
		return 3
	default:
		return 4
	}
}

func RenderSnapshot(snap model.Snapshot, rows, episodes int) string {
	var b strings.Builder
	b.WriteString("\033[H\033[2J")

	solvedPct := float64(snap.Solved) / math.Max(float64(snap.Done), 1) * 100
	etaPart := ""
	if eta := estimateRemaining(snap); eta != "" {
		etaPart = fmt.Sprintf(" | eta ~ %s", eta)
	}
	b.WriteString(fmt.Sprintf("daytona-demo live | elapsed %.1fs | running %d | done %d/%d | err %d | solved %d (%.1f%%) | avg score %.1f%s\n",
		snap.Elapsed().Seconds(), snap.Running, snap.Done, snap.Total, snap.Failed, snap.Solved, solvedPct, snap.AvgFinal, etaPart))
	b.WriteString(strings.Repeat("-", 100) + "\n")

	b.WriteString(fmt.Sprintf("%5s  %-15s  %-10s  %8s  %9s  %8s  %-9s  %8s\n",
		"#", "sandbox", "status", "episode", "avg(100)", "best", "solved", "param"))
	shown := DisplayRows(snap.Units, rows)
	for _, u := range shown {
		b.WriteString(renderUnitRow(u))
	}
	if snap.Total > len(shown) {
		b.WriteString(fmt.Sprintf("  ... (+%d more)\n", snap.Total-len(shown)))
	}

	b.WriteString(strings.Repeat("-", 100) + "\n")
	b.WriteString(fmt.Sprintf("%d units | %d episodes each\n", snap.Total, episodes))
	return b.String()
}

func renderUnitRow(u model.Unit) string {
	return fmt.Sprintf("%5d  %-15s  %-10s  %8s  %9s  %8s  %-9s  %8s\n",
		u.Index,
		truncateID(u.SandboxID, 12),
		statusLabel(u.Status),
		orDashInt(u.Episode),
		orDashFloat(u.AvgScore),
		orDashFloat(u.BestScore),
		solvedCell(u),
		formatParam(u.Param),
	)
}

func statusLabel(status string) string {
	switch status {
	case model.StatusPending:
		return "..."
	case model.StatusRunning:
		return "> running"
	case model.StatusDone:
		return "+ done"
	case model.StatusError:
		return "x error"
	default:
		return status
	}
}

func truncateID(id string, max int) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "-"
	}
	if len(id) <= max {
		return id
	}
	return id[:max] + "..."
}

func orDashInt(v int) string {
	if v == 0 {
		return "-"
	}
	return strconv.Itoa(v)
}

func orDashFloat(v float64) string {
	if v == 0 {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func solvedCell(u model.Unit) string {
	if !u.Solved {
		return "-"
	}
	if u.SolvedAt != nil {
		return fmt.Sprintf("+ ep%d", *u.SolvedAt)
	}
	return "+"
}

func formatParam(v float64) string {
	if v == 0 {
		return "-"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// estimateRemaining projects wall time left from the terminal-unit rate so
// far. Rough on purpose.
func estimateRemaining(snap model.Snapshot) string {
	terminal := snap.Done + snap.Failed
	if terminal == 0 || terminal >= snap.Total {
		return ""
	}
	elapsed := snap.Elapsed().Seconds()
	if elapsed <= 0 {
		return ""
	}
	perUnit := elapsed / float64(terminal)
	return formatETASeconds(perUnit * float64(snap.Total-terminal))
}

func formatETASeconds(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	secs := int64(math.Round(seconds))
	if secs < 60 {
		return "<1m"
	}
	minutes := secs / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	remMinutes := minutes % 60
	if hours < 24 {
		if remMinutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh %dm", hours, remMinutes)
	}
	days := hours / 24
	remHours := hours % 24
	if remHours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd %dh", days, remHours)
}
