package fleet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielgraviet/daytona-demo/internal/daytona"
	"github.com/danielgraviet/daytona-demo/internal/model"
)

// unitPlan scripts how the fake provider treats one unit. The zero value is
// a sandbox that provisions, uploads, emits nothing and exits 0.
type unitPlan struct {
	createErr error
	uploadErr error
	execErr   error
	deleteErr error
	output    string
	streamErr error
	result    daytona.ExecResult
	resultErr error
}

type fakeProvider struct {
	mu       sync.Mutex
	plans    map[string]unitPlan
	created  map[string]string // sandbox id -> unit id
	uploads  map[string]string // sandbox id -> remote path
	payloads map[string][]byte
	commands map[string]string
	streams  map[string]*fakeStream
	deleted  map[string]bool
}

func newFakeProvider(plans map[string]unitPlan) *fakeProvider {
	return &fakeProvider{
		plans:    plans,
		created:  make(map[string]string),
		uploads:  make(map[string]string),
		payloads: make(map[string][]byte),
		commands: make(map[string]string),
		streams:  make(map[string]*fakeStream),
		deleted:  make(map[string]bool),
	}
}

func (p *fakeProvider) Create(ctx context.Context, opts daytona.CreateOptions) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	unit := opts.Labels["unit"]
	if err := p.plans[unit].createErr; err != nil {
		return "", err
	}
	id := "sb-" + strings.TrimPrefix(unit, "unit-")
	p.created[id] = unit
	return id, nil
}

func (p *fakeProvider) Upload(ctx context.Context, sandboxID, remotePath string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	unit := p.created[sandboxID]
	if err := p.plans[unit].uploadErr; err != nil {
		return err
	}
	p.uploads[sandboxID] = remotePath
	p.payloads[sandboxID] = append([]byte(nil), data...)
	return nil
}

func (p *fakeProvider) Exec(ctx context.Context, sandboxID, command string) (ExecStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	unit := p.created[sandboxID]
	plan := p.plans[unit]
	p.commands[sandboxID] = command
	if plan.execErr != nil {
		return nil, plan.execErr
	}
	var r io.Reader = strings.NewReader(plan.output)
	if plan.streamErr != nil {
		r = io.MultiReader(r, errReader{err: plan.streamErr})
	}
	s := &fakeStream{r: r, result: plan.result, resultErr: plan.resultErr}
	p.streams[sandboxID] = s
	return s, nil
}

func (p *fakeProvider) Delete(ctx context.Context, sandboxID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.deleted[sandboxID] = true
	unit := p.created[sandboxID]
	return p.plans[unit].deleteErr
}

type fakeStream struct {
	r         io.Reader
	result    daytona.ExecResult
	resultErr error
	closed    bool
}

func (s *fakeStream) Read(b []byte) (int, error) { return s.r.Read(b) }

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func (s *fakeStream) Result() (daytona.ExecResult, error) {
	if s.resultErr != nil {
		return daytona.ExecResult{}, s.resultErr
	}
	return s.result, nil
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func unitByID(t *testing.T, snap model.Snapshot, id string) model.Unit {
	t.Helper()
	for _, u := range snap.Units {
		if u.ID == id {
			return u
		}
	}
	t.Fatalf("unit %s not in snapshot", id)
	return model.Unit{}
}

func TestRun_FleetScenario(t *testing.T) {
	provider := newFakeProvider(map[string]unitPlan{
		"unit-00001": {
			output: `{"episode": 50, "avg_score": 50.0, "best_score": 171.0, "solved": false, "param": 0.1}` + "\n" +
				`{"episode": 100, "avg_score": 210.0, "best_score": 500.0, "solved": true, "solved_at": 100, "param": 0.1}` + "\n",
		},
		"unit-00002": {createErr: errors.New("quota exceeded")},
		"unit-00003": {output: ""},
	})

	specs := []model.UnitSpec{
		{ID: "unit-00001", Index: 1, Param: 0.1},
		{ID: "unit-00002", Index: 2, Param: 0.2},
		{ID: "unit-00003", Index: 3, Param: 0.3},
	}
	tracker := NewTracker()
	err := Run(context.Background(), provider, tracker, specs, Options{
		Workers:    2,
		Episodes:   300,
		RemotePath: "/home/daytona/trainer.py",
		Artifact:   []byte("print('train')"),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	snap := tracker.Snapshot()
	if snap.Total != 3 || snap.Done != 2 || snap.Failed != 1 || snap.Solved != 1 {
		t.Fatalf("unexpected counters: total=%d done=%d failed=%d solved=%d",
			snap.Total, snap.Done, snap.Failed, snap.Solved)
	}

	a := unitByID(t, snap, "unit-00001")
	if a.Status != model.StatusDone {
		t.Fatalf("unit A status = %q, want done", a.Status)
	}
	if a.Episode != 100 || a.AvgScore != 210.0 || a.BestScore != 500.0 {
		t.Fatalf("unit A progress = ep %d avg %.1f best %.1f", a.Episode, a.AvgScore, a.BestScore)
	}
	if !a.Solved || a.SolvedAt == nil || *a.SolvedAt != 100 {
		t.Fatalf("unit A solved = %v solved_at = %v, want true at 100", a.Solved, a.SolvedAt)
	}
	if a.SandboxID != "sb-00001" || a.StartedAt == "" || a.FinishedAt == "" {
		t.Fatalf("unit A bookkeeping incomplete: %+v", a)
	}

	b := unitByID(t, snap, "unit-00002")
	if b.Status != model.StatusError || b.Reason != "provision_failed" {
		t.Fatalf("unit B status = %q reason = %q", b.Status, b.Reason)
	}
	// The provider's refusal comes through word for word.
	if b.LastError != "quota exceeded" {
		t.Fatalf("unit B error = %q, want %q", b.LastError, "quota exceeded")
	}
	if b.SandboxID != "" {
		t.Fatalf("unit B never got a sandbox, has %q", b.SandboxID)
	}

	c := unitByID(t, snap, "unit-00003")
	if c.Status != model.StatusDone || c.Episode != 0 || c.Solved {
		t.Fatalf("unit C = status %q ep %d solved %v, want done at episode 0", c.Status, c.Episode, c.Solved)
	}

	// Both provisioned sandboxes were torn down; B had nothing to tear down.
	if len(provider.deleted) != 2 || !provider.deleted["sb-00001"] || !provider.deleted["sb-00003"] {
		t.Fatalf("unexpected deletes: %v", provider.deleted)
	}
	if got := provider.commands["sb-00001"]; got != "python3 /home/daytona/trainer.py unit-00001 300 0.1" {
		t.Fatalf("unexpected train command: %q", got)
	}
	if s := provider.streams["sb-00001"]; s == nil || !s.closed {
		t.Fatal("execution stream was not closed")
	}
	if string(provider.payloads["sb-00003"]) != "print('train')" {
		t.Fatalf("artifact not uploaded verbatim: %q", provider.payloads["sb-00003"])
	}

	sum := Summarize("run-test", snap)
	if sum.Total != 3 || sum.Done != 2 || sum.Failed != 1 || sum.Solved != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if len(sum.Errors) != 1 || sum.Errors[0].UnitID != "unit-00002" || sum.Errors[0].Message != "quota exceeded" {
		t.Fatalf("unexpected summary errors: %+v", sum.Errors)
	}
}

func TestRun_CleansUpAfterFailures(t *testing.T) {
	provider := newFakeProvider(map[string]unitPlan{
		"unit-00001": {uploadErr: errors.New("disk full")},
		"unit-00002": {execErr: errors.New("exec api down")},
		"unit-00003": {result: daytona.ExecResult{ExitCode: 2, Error: "ModuleNotFoundError: no module named gym"}},
		"unit-00004": {result: daytona.ExecResult{ExitCode: 137}},
		"unit-00005": {
			output:    `{"episode": 50, "avg_score": 40.0, "best_score": 80.0, "solved": false, "param": 0.01}` + "\n",
			streamErr: errors.New("connection reset by peer"),
		},
		"unit-00006": {resultErr: errors.New("execution finished without reporting exit status")},
	})

	tracker := NewTracker()
	err := Run(context.Background(), provider, tracker, testSpecs(6), Options{
		Workers:    3,
		Episodes:   300,
		RemotePath: "/home/daytona/trainer.py",
		Artifact:   []byte("x"),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	snap := tracker.Snapshot()
	if snap.Failed != 6 || snap.Done != 0 {
		t.Fatalf("expected every unit to fail, got done=%d failed=%d", snap.Done, snap.Failed)
	}

	wantReasons := map[string]string{
		"unit-00001": "upload_failed",
		"unit-00002": "execution_failed",
		"unit-00003": "execution_failed",
		"unit-00004": "execution_failed",
		"unit-00005": "stream_failed",
		"unit-00006": "execution_failed",
	}
	for id, want := range wantReasons {
		u := unitByID(t, snap, id)
		if u.Reason != want {
			t.Fatalf("unit %s reason = %q, want %q", id, u.Reason, want)
		}
	}

	if got := unitByID(t, snap, "unit-00003").LastError; got != "ModuleNotFoundError: no module named gym" {
		t.Fatalf("remote stderr not surfaced: %q", got)
	}
	if got := unitByID(t, snap, "unit-00004").LastError; got != "training exited with code 137" {
		t.Fatalf("bare exit code message = %q", got)
	}
	if u := unitByID(t, snap, "unit-00005"); u.Episode != 50 {
		t.Fatalf("progress before the stream broke was lost: episode = %d", u.Episode)
	}

	// Every sandbox that came into existence was deleted, whatever happened
	// after.
	if len(provider.deleted) != 6 {
		t.Fatalf("expected 6 deletes, got %v", provider.deleted)
	}
}

func TestRun_SkipsChatterLines(t *testing.T) {
	provider := newFakeProvider(map[string]unitPlan{
		"unit-00001": {
			output: "Collecting numpy\n" +
				"  Downloading numpy-1.26.4.tar.gz (15 MB)\n" +
				`{"episode": 50, "avg_score": 33.1, "best_score": 90.0, "solved": false, "param": 0.01}` + "\n" +
				"{\"episode\": 100, \"avg_sc\n" +
				"WARNING: pip is being invoked by an old script wrapper\n",
		},
	})

	tracker := NewTracker()
	err := Run(context.Background(), provider, tracker, testSpecs(1), Options{
		Workers:    1,
		Episodes:   100,
		RemotePath: "/tmp/trainer.py",
		Artifact:   []byte("x"),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	u := tracker.Snapshot().Units[0]
	if u.Status != model.StatusDone || u.Episode != 50 || u.AvgScore != 33.1 {
		t.Fatalf("chatter broke the unit: status=%q ep=%d avg=%.1f", u.Status, u.Episode, u.AvgScore)
	}
}

func TestRun_DeleteFailureKeepsOutcome(t *testing.T) {
	provider := newFakeProvider(map[string]unitPlan{
		"unit-00001": {deleteErr: errors.New("sandbox is busy")},
	})

	tracker := NewTracker()
	err := Run(context.Background(), provider, tracker, testSpecs(1), Options{
		Workers:    1,
		Episodes:   100,
		RemotePath: "/tmp/trainer.py",
		Artifact:   []byte("x"),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if u := tracker.Snapshot().Units[0]; u.Status != model.StatusDone {
		t.Fatalf("failed cleanup changed the outcome: %q", u.Status)
	}
}

func TestRun_ValidatesInput(t *testing.T) {
	tracker := NewTracker()
	provider := newFakeProvider(nil)
	base := Options{Workers: 1, Episodes: 10, RemotePath: "/tmp/t.py", Artifact: []byte("x")}

	if err := Run(context.Background(), provider, tracker, nil, base); err == nil {
		t.Fatal("expected empty spec list to fail")
	}

	noPath := base
	noPath.RemotePath = "  "
	if err := Run(context.Background(), provider, NewTracker(), testSpecs(1), noPath); err == nil {
		t.Fatal("expected blank remote path to fail")
	}

	noArtifact := base
	noArtifact.Artifact = nil
	if err := Run(context.Background(), provider, NewTracker(), testSpecs(1), noArtifact); err == nil {
		t.Fatal("expected missing artifact to fail")
	}

	dupes := testSpecs(2)
	dupes[1].ID = dupes[0].ID
	if err := Run(context.Background(), provider, NewTracker(), dupes, base); err == nil {
		t.Fatal("expected duplicate unit ids to fail")
	}
}

type gatedProvider struct {
	*fakeProvider
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (p *gatedProvider) Create(ctx context.Context, opts daytona.CreateOptions) (string, error) {
	cur := p.active.Add(1)
	for {
		m := p.maxSeen.Load()
		if cur <= m || p.maxSeen.CompareAndSwap(m, cur) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	p.active.Add(-1)
	return p.fakeProvider.Create(ctx, opts)
}

func TestRun_HonorsWorkerBound(t *testing.T) {
	provider := &gatedProvider{fakeProvider: newFakeProvider(nil)}

	tracker := NewTracker()
	err := Run(context.Background(), provider, tracker, testSpecs(9), Options{
		Workers:    3,
		Episodes:   10,
		RemotePath: "/tmp/t.py",
		Artifact:   []byte("x"),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := provider.maxSeen.Load(); got > 3 {
		t.Fatalf("saw %d units in flight, bound is 3", got)
	}
	// Nine units at 20ms each across three workers must overlap.
	if got := provider.maxSeen.Load(); got < 2 {
		t.Fatalf("fan-out never ran units in parallel, max in flight = %d", got)
	}
	if snap := tracker.Snapshot(); snap.Done != 9 {
		t.Fatalf("done = %d, want 9", snap.Done)
	}
}
