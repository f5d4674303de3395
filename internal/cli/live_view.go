package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/danielgraviet/daytona-demo/internal/config"
	"github.com/danielgraviet/daytona-demo/internal/fleet"
	"github.com/danielgraviet/daytona-demo/internal/model"
)

var (
	liveTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	liveMutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	liveErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	liveDoneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	liveRunningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	liveSolvedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

type liveTickMsg time.Time

type runDoneMsg struct {
	err error
}

type liveModel struct {
	tracker  *fleet.Tracker
	rows     int
	episodes int
	refresh  time.Duration
	done     <-chan error

	spin     spinner.Model
	bar      progress.Model
	snap     model.Snapshot
	width    int
	finished bool
	detached bool
	runErr   error
}

func newLiveModel(tracker *fleet.Tracker, rt config.Runtime, done <-chan error) liveModel {
	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(liveRunningStyle),
	)
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40
	return liveModel{
		tracker:  tracker,
		rows:     rt.Rows,
		episodes: rt.Episodes,
		refresh:  rt.Refresh,
		done:     done,
		spin:     sp,
		bar:      bar,
	}
}

// runLiveView drives the fleet under the interactive renderer. Closing the
// view does not stop the fleet: the key handler flags a detach, and the
// caller keeps waiting for the workers.
func runLiveView(ctx context.Context, provider fleet.Provider, tracker *fleet.Tracker, specs []model.UnitSpec, opts fleet.Options, rt config.Runtime) error {
	done := make(chan error, 1)
	go func() {
		done <- fleet.Run(ctx, provider, tracker, specs, opts)
	}()

	p := tea.NewProgram(newLiveModel(tracker, rt, done), tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		// The terminal went away; the run keeps its own pace.
		return <-done
	}

	fm, ok := finalModel.(liveModel)
	if !ok {
		return <-done
	}
	if fm.detached {
		fmt.Println("live view closed, waiting for the fleet to finish...")
		return <-done
	}
	return fm.runErr
}

func (m liveModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.tickCmd(), m.waitCmd())
}

func (m liveModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return liveTickMsg(t)
	})
}

func (m liveModel) waitCmd() tea.Cmd {
	done := m.done
	return func() tea.Msg {
		return runDoneMsg{err: <-done}
	}
}

func (m liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		w := msg.Width - 24
		if w < 10 {
			w = 10
		}
		if w > 60 {
			w = 60
		}
		m.bar.Width = w
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.finished {
				m.detached = true
			}
			return m, tea.Quit
		}
		return m, nil
	case liveTickMsg:
		m.snap = m.tracker.Snapshot()
		if m.finished {
			return m, nil
		}
		return m, m.tickCmd()
	case runDoneMsg:
		m.finished = true
		m.runErr = msg.err
		m.snap = m.tracker.Snapshot()
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m liveModel) View() string {
	if m.snap.Total == 0 {
		return m.spin.View() + " provisioning fleet...\n"
	}
	snap := m.snap

	var b strings.Builder
	head := fmt.Sprintf("daytona-demo | %d units x %d episodes | elapsed %.0fs",
		snap.Total, m.episodes, snap.Elapsed().Seconds())
	b.WriteString(liveTitleStyle.Render(head))
	b.WriteString("\n\n")

	terminal := snap.Done + snap.Failed
	pct := float64(terminal) / float64(snap.Total)
	lead := m.spin.View()
	if snap.Finished() {
		lead = liveDoneStyle.Render("+")
	}
	b.WriteString(lead + " " + m.bar.ViewAs(pct))
	b.WriteString(fmt.Sprintf("  %d/%d finished\n\n", terminal, snap.Total))

	counts := fmt.Sprintf("running %d   done %s   failed %s   solved %s   avg %.1f",
		snap.Running,
		liveDoneStyle.Render(strconv.Itoa(snap.Done)),
		renderFailedCount(snap.Failed),
		liveSolvedStyle.Render(strconv.Itoa(snap.Solved)),
		snap.AvgFinal)
	b.WriteString(counts)
	b.WriteString("\n\n")

	b.WriteString(liveMutedStyle.Render(fmt.Sprintf("%5s  %-15s  %-10s  %8s  %9s  %8s  %-9s  %8s",
		"#", "sandbox", "status", "episode", "avg(100)", "best", "solved", "param")))
	b.WriteString("\n")

	shown := fleet.DisplayRows(snap.Units, m.rows)
	for _, u := range shown {
		b.WriteString(renderLiveRow(u))
		b.WriteString("\n")
	}
	if snap.Total > len(shown) {
		b.WriteString(liveMutedStyle.Render(fmt.Sprintf("  ... (+%d more)", snap.Total-len(shown))))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(liveMutedStyle.Render("q: close view (the run keeps going)"))
	b.WriteString("\n")
	return b.String()
}

func renderLiveRow(u model.Unit) string {
	row := fmt.Sprintf("%5d  %-15s  %-10s  %8s  %9s  %8s  %-9s  %8s",
		u.Index,
		liveSandboxCell(u.SandboxID),
		liveStatusText(u.Status),
		liveIntCell(u.Episode),
		liveFloatCell(u.AvgScore),
		liveFloatCell(u.BestScore),
		liveSolvedText(u),
		liveParamCell(u.Param),
	)
	switch u.Status {
	case model.StatusError:
		return liveErrorStyle.Render(row)
	case model.StatusDone:
		return liveDoneStyle.Render(row)
	case model.StatusPending:
		return liveMutedStyle.Render(row)
	default:
		return row
	}
}

func renderFailedCount(n int) string {
	s := strconv.Itoa(n)
	if n > 0 {
		return liveErrorStyle.Render(s)
	}
	return s
}

func liveStatusText(status string) string {
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

func liveSandboxCell(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "-"
	}
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func liveIntCell(v int) string {
	if v == 0 {
		return "-"
	}
	return strconv.Itoa(v)
}

func liveFloatCell(v float64) string {
	if v == 0 {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func liveSolvedText(u model.Unit) string {
	if !u.Solved {
		return "-"
	}
	if u.SolvedAt != nil {
		return fmt.Sprintf("+ ep%d", *u.SolvedAt)
	}
	return "+"
}

func liveParamCell(v float64) string {
	if v == 0 {
		return "-"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
