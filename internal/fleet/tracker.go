package fleet

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/danielgraviet/daytona-demo/internal/model"
)

// Tracker holds the live state of every unit in a run. All mutation goes
// through methods that enforce the status transition rules, so a unit that
// reached done or error can never move again.
type Tracker struct {
	mu        sync.Mutex
	units     map[string]*model.Unit
	startedAt time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		units:     make(map[string]*model.Unit),
		startedAt: time.Now(),
	}
}

// Register installs every planned unit as pending. It runs once, before any
// worker starts; progress for an ID that was never registered is rejected
// rather than inserted.
func (t *Tracker) Register(specs []model.UnitSpec) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, spec := range specs {
		id := strings.TrimSpace(spec.ID)
		if id == "" {
			return fmt.Errorf("unit id is required")
		}
		if _, exists := t.units[id]; exists {
			return fmt.Errorf("unit %s registered twice", id)
		}
		t.units[id] = &model.Unit{
			ID:     id,
			Index:  spec.Index,
			Param:  spec.Param,
			Status: model.StatusPending,
		}
	}
	return nil
}

func (t *Tracker) MarkRunning(id, sandboxID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	unit, err := t.lookup(id)
	if err != nil {
		return err
	}
	if err := model.TransitionUnitStatus(unit, model.StatusRunning, ""); err != nil {
		return err
	}
	unit.SandboxID = sandboxID
	unit.StartedAt = time.Now().UTC().Format(time.RFC3339)
	return nil
}

// Update merges a parsed progress record into a running unit. Episode,
// scores and the solved flag are last-write-wins; SolvedAt sticks once set.
// The parameter on the wire is an echo and is ignored here, the registered
// value stays authoritative.
func (t *Tracker) Update(id string, rec Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	unit, err := t.lookup(id)
	if err != nil {
		return err
	}
	if unit.Status != model.StatusRunning {
		return fmt.Errorf("unit %s is %s, progress update rejected", id, unit.Status)
	}

	unit.Episode = rec.Episode
	unit.AvgScore = rec.AvgScore
	unit.BestScore = rec.BestScore
	unit.Solved = rec.Solved
	if unit.SolvedAt == nil && rec.SolvedAt != nil {
		v := *rec.SolvedAt
		unit.SolvedAt = &v
	}
	return nil
}

func (t *Tracker) MarkDone(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	unit, err := t.lookup(id)
	if err != nil {
		return err
	}
	if err := model.TransitionUnitStatus(unit, model.StatusDone, ""); err != nil {
		return err
	}
	unit.LastError = ""
	unit.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	return nil
}

func (t *Tracker) MarkError(id, reason string, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	unit, err := t.lookup(id)
	if err != nil {
		return err
	}
	if err := model.TransitionUnitStatus(unit, model.StatusError, reason); err != nil {
		return err
	}
	if cause != nil {
		unit.LastError = truncate(cause.Error(), 1200)
	}
	unit.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	return nil
}

// Snapshot returns a consistent copy of the whole fleet: value copies of
// every unit sorted by index, with counts derived from those same copies.
// Readers never see a half-applied update.
func (t *Tracker) Snapshot() model.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := model.Snapshot{
		Units:     make([]model.Unit, 0, len(t.units)),
		StartedAt: t.startedAt,
		TakenAt:   time.Now(),
	}
	for _, u := range t.units {
		cp := *u
		if u.SolvedAt != nil {
			v := *u.SolvedAt
			cp.SolvedAt = &v
		}
		snap.Units = append(snap.Units, cp)
	}
	slices.SortFunc(snap.Units, func(a, b model.Unit) int {
		return a.Index - b.Index
	})

	var finalSum float64
	for _, u := range snap.Units {
		switch u.Status {
		case model.StatusPending:
			snap.Pending++
		case model.StatusRunning:
			snap.Running++
		case model.StatusDone:
			snap.Done++
			finalSum += u.AvgScore
		case model.StatusError:
			snap.Failed++
		}
		if u.Solved {
			snap.Solved++
		}
	}
	snap.Total = len(snap.Units)
	if snap.Done > 0 {
		snap.AvgFinal = finalSum / float64(snap.Done)
	}
	return snap
}

func (t *Tracker) lookup(id string) (*model.Unit, error) {
	unit, ok := t.units[id]
	if !ok {
		return nil, fmt.Errorf("unknown unit %q", id)
	}
	return unit, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
