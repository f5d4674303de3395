package fleet

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/danielgraviet/daytona-demo/internal/daytona"
	"github.com/danielgraviet/daytona-demo/internal/model"
)

const (
	reasonProvisionFailed = "provision_failed"
	reasonUploadFailed    = "upload_failed"
	reasonExecutionFailed = "execution_failed"
	reasonStreamFailed    = "stream_failed"
)

// ErrUnitsFailed marks a run that completed with at least one failed unit.
// Run itself never returns it; callers wrap it when deciding exit status.
var ErrUnitsFailed = errors.New("one or more units failed")

// Provider is the slice of the sandbox service the dispatcher needs. Tests
// drive Run with fakes; production wires *daytona.Client through NewProvider.
type Provider interface {
	Create(ctx context.Context, opts daytona.CreateOptions) (string, error)
	Upload(ctx context.Context, sandboxID, remotePath string, data []byte) error
	Exec(ctx context.Context, sandboxID, command string) (ExecStream, error)
	Delete(ctx context.Context, sandboxID string) error
}

// ExecStream is the remote program's stdout plus its eventual exit status.
// Result is only meaningful after the stream hit EOF.
type ExecStream interface {
	io.ReadCloser
	Result() (daytona.ExecResult, error)
}

type clientProvider struct {
	client *daytona.Client
}

func NewProvider(client *daytona.Client) Provider {
	return clientProvider{client: client}
}

func (p clientProvider) Create(ctx context.Context, opts daytona.CreateOptions) (string, error) {
	return p.client.Create(ctx, opts)
}

func (p clientProvider) Upload(ctx context.Context, sandboxID, remotePath string, data []byte) error {
	return p.client.Upload(ctx, sandboxID, remotePath, data)
}

func (p clientProvider) Exec(ctx context.Context, sandboxID, command string) (ExecStream, error) {
	return p.client.Exec(ctx, sandboxID, command)
}

func (p clientProvider) Delete(ctx context.Context, sandboxID string) error {
	return p.client.Delete(ctx, sandboxID)
}

type Options struct {
	Workers           int
	Episodes          int
	RemotePath        string
	Artifact          []byte
	Language          string
	AutoStopMinutes   int
	AutoDeleteMinutes int
}

// Run registers every spec as pending, then fans the units out over a
// bounded worker pool. Unit failures are absorbed into the tracker and never
// abort the run; only a broken state invariant does.
func Run(ctx context.Context, provider Provider, tracker *Tracker, specs []model.UnitSpec, opts Options) error {
	if len(specs) == 0 {
		return fmt.Errorf("no units to dispatch")
	}
	if strings.TrimSpace(opts.RemotePath) == "" {
		return fmt.Errorf("remote path is required")
	}
	if len(opts.Artifact) == 0 {
		return fmt.Errorf("artifact is required")
	}
	if err := tracker.Register(specs); err != nil {
		return err
	}

	workers := opts.Workers
	if workers <= 0 || workers > len(specs) {
		workers = len(specs)
	}
	slog.Info("dispatching fleet", "units", len(specs), "workers", workers, "episodes", opts.Episodes)

	jobCh := make(chan model.UnitSpec)

	var stopAll atomic.Bool
	var wg sync.WaitGroup
	var fatalErr atomic.Value
	setFatal := func(err error) {
		if err == nil {
			return
		}
		if fatalErr.Load() == nil {
			fatalErr.Store(err.Error())
		}
		stopAll.Store(true)
	}

	workerFn := func(workerID int) {
		defer wg.Done()
		for spec := range jobCh {
			if stopAll.Load() {
				continue
			}
			slog.Debug("unit dispatched", "worker", workerID, "unit", spec.ID)
			if err := runUnit(ctx, provider, tracker, spec, opts); err != nil {
				setFatal(err)
			}
		}
	}

	for w := 1; w <= workers; w++ {
		wg.Add(1)
		go workerFn(w)
	}

	for _, spec := range specs {
		if stopAll.Load() {
			break
		}
		jobCh <- spec
	}
	close(jobCh)
	wg.Wait()

	if msg := fatalErr.Load(); msg != nil {
		return fmt.Errorf("%s", msg.(string))
	}
	slog.Info("fleet finished", "units", len(specs))
	return nil
}

// runUnit walks one unit through provision, upload, execute, stream and
// cleanup. Its error return is reserved for state invariant violations; a
// failing unit ends as status error and returns nil.
func runUnit(ctx context.Context, provider Provider, tracker *Tracker, spec model.UnitSpec, opts Options) error {
	sandboxID, err := provider.Create(ctx, daytona.CreateOptions{
		Language:          opts.Language,
		AutoStopMinutes:   opts.AutoStopMinutes,
		AutoDeleteMinutes: opts.AutoDeleteMinutes,
		Labels:            map[string]string{"unit": spec.ID},
	})
	if err != nil {
		slog.Warn("sandbox provisioning failed", "unit", spec.ID, "error", err)
		return tracker.MarkError(spec.ID, reasonProvisionFailed, err)
	}

	// From here the sandbox exists: delete it on every way out, success,
	// failure or panic, detached from ctx so cancellation cannot leak it.
	// A failed delete never changes the unit's outcome.
	defer func() {
		if err := provider.Delete(context.WithoutCancel(ctx), sandboxID); err != nil {
			slog.Debug("sandbox delete failed", "unit", spec.ID, "sandbox", sandboxID, "error", err)
		}
	}()

	if err := tracker.MarkRunning(spec.ID, sandboxID); err != nil {
		return err
	}

	if err := provider.Upload(ctx, sandboxID, opts.RemotePath, opts.Artifact); err != nil {
		slog.Warn("artifact upload failed", "unit", spec.ID, "sandbox", sandboxID, "error", err)
		return tracker.MarkError(spec.ID, reasonUploadFailed, err)
	}

	stream, err := provider.Exec(ctx, sandboxID, TrainCommand(opts.RemotePath, spec, opts.Episodes))
	if err != nil {
		slog.Warn("execution start failed", "unit", spec.ID, "sandbox", sandboxID, "error", err)
		return tracker.MarkError(spec.ID, reasonExecutionFailed, err)
	}
	defer func() {
		_ = stream.Close()
	}()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(splitByNewlineOrCR)
	for scanner.Scan() {
		rec, err := ParseLine(scanner.Text())
		if err != nil {
			slog.Debug("skipping unparseable output line", "unit", spec.ID, "error", err)
			continue
		}
		if err := tracker.Update(spec.ID, rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("progress stream broke", "unit", spec.ID, "sandbox", sandboxID, "error", err)
		return tracker.MarkError(spec.ID, reasonStreamFailed, err)
	}

	res, err := stream.Result()
	if err != nil {
		slog.Warn("execution ended without exit status", "unit", spec.ID, "sandbox", sandboxID, "error", err)
		return tracker.MarkError(spec.ID, reasonExecutionFailed, err)
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Error)
		if msg == "" {
			msg = fmt.Sprintf("training exited with code %d", res.ExitCode)
		}
		slog.Warn("execution failed", "unit", spec.ID, "sandbox", sandboxID, "exit_code", res.ExitCode)
		return tracker.MarkError(spec.ID, reasonExecutionFailed, errors.New(msg))
	}
	return tracker.MarkDone(spec.ID)
}
