package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRelevant(t *testing.T) {
	dir, cfg := writeProject(t)
	idx := NewIndexer(cfg, dir)
	loader, err := NewLoader(cfg, dir)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(dir, "dump", "hr.sql"), true},
		{filepath.Join(dir, "dump", "other.sql"), false},
		{filepath.Join(dir, "packages", "pkg_a.pkb"), true},
		{filepath.Join(dir, "packages", "README.md"), false},
	}
	for _, tt := range tests {
		if got := idx.relevant(loader, tt.path); got != tt.want {
			t.Errorf("relevant(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWatchReindexesOnChange(t *testing.T) {
	dir, cfg := writeProject(t)
	cfg.Render.Enabled = new(bool)
	idx := NewIndexer(cfg, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := make(chan *Result, 4)
	done := make(chan error, 1)
	go func() {
		done <- idx.Watch(ctx, 50*time.Millisecond, func(res *Result, err error) {
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				t.Errorf("re-index failed: %v", err)
				return
			}
			select {
			case runs <- res:
			default:
			}
		})
	}()

	select {
	case res := <-runs:
		if res.RoutineCount != 3 {
			t.Fatalf("expected 3 routines on the initial run, got %d", res.RoutineCount)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for the initial run")
	}

	pkgC := "CREATE OR REPLACE PACKAGE BODY PKG_C AS\n  PROCEDURE qux IS\n  BEGIN\n    PKG_A.foo();\n  END qux;\nEND PKG_C;\n"
	path := filepath.Join(dir, "packages", "pkg_c.pkb")

	// Keep touching the file until a run picks it up.
	deadline := time.After(10 * time.Second)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case res := <-runs:
			if res.RoutineCount != 4 {
				continue
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("watch returned error: %v", err)
			}
			return
		case <-ticker.C:
			if err := os.WriteFile(path, []byte(pkgC), 0644); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("timed out waiting for re-index")
		}
	}
}
