package runstore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunMetaRoundTrip(t *testing.T) {
	runDir := t.TempDir()

	meta := RunMeta{
		RunID:     "20260314-120000-1a2b3c4d",
		CreatedAt: "2026-03-14T12:00:00Z",
		Units:     25,
		Episodes:  300,
		Workers:   25,
		Params:    []float64{0.001, 0.01},
		APIURL:    "https://app.daytona.io/api",
	}
	if err := SaveRunMeta(runDir, meta); err != nil {
		t.Fatalf("save run meta: %v", err)
	}

	got, err := LoadRunMeta(runDir)
	if err != nil {
		t.Fatalf("load run meta: %v", err)
	}
	if got.RunID != meta.RunID || got.Units != 25 || len(got.Params) != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.FinishedAt != "" {
		t.Fatalf("fresh run must have no finished_at, got %q", got.FinishedAt)
	}
}

func TestLatestRunDir(t *testing.T) {
	runsDir := t.TempDir()
	if _, err := LatestRunDir(runsDir); err == nil {
		t.Fatal("expected error with no run directories")
	}

	for _, name := range []string{"20260314-120000-aaaa", "20260315-090000-bbbb", "20260314-180000-cccc"} {
		if err := Mkdir(filepath.Join(runsDir, name)); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	// A stray file must not count as a run.
	if err := os.WriteFile(filepath.Join(runsDir, "zzz.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	latest, err := LatestRunDir(runsDir)
	if err != nil {
		t.Fatalf("latest run dir: %v", err)
	}
	if filepath.Base(latest) != "20260315-090000-bbbb" {
		t.Fatalf("latest = %q", latest)
	}

	dirs, err := ListRunDirs(runsDir)
	if err != nil {
		t.Fatalf("list run dirs: %v", err)
	}
	if len(dirs) != 3 {
		t.Fatalf("expected 3 run dirs, got %d", len(dirs))
	}
}

func TestWriteBytesOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.txt")

	if err := WriteBytes(path, []byte("first")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteBytes(path, []byte("second")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "second" {
		t.Fatalf("content = %q", data)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the target file, found %d entries", len(entries))
	}
}
