package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abramin/sqlbridge/internal/config"
	"github.com/abramin/sqlbridge/internal/render"
	"github.com/abramin/sqlbridge/internal/store"
)

func TestRun(t *testing.T) {
	dir, cfg := writeProject(t)

	res, err := NewIndexer(cfg, dir).Run(context.Background())
	if err != nil {
		t.Fatalf("indexing failed: %v", err)
	}

	if res.RunID == "" {
		t.Error("expected a run id")
	}
	if res.TableCount != 2 || res.ViewCount != 1 {
		t.Errorf("expected 2 tables and 1 view, got %d and %d", res.TableCount, res.ViewCount)
	}
	if res.PackageCount != 2 || res.RoutineCount != 3 {
		t.Errorf("expected 2 packages and 3 routines, got %d and %d", res.PackageCount, res.RoutineCount)
	}
	if res.CallEdgeCount != 2 {
		t.Errorf("expected 2 resolved call edges, got %d", res.CallEdgeCount)
	}
	if res.InputBytes == 0 || res.InputSize() == "" {
		t.Error("expected input size to be reported")
	}
	if len(res.BlockErrors) != 0 {
		t.Errorf("unexpected block errors: %v", res.BlockErrors)
	}

	// ORDERS carries a column type without a Go mapping.
	if len(res.RenderErrors) != 1 || !errors.Is(res.Err(), render.ErrUnknownType) {
		t.Errorf("expected one unknown type render error, got %v", res.RenderErrors)
	}
	if res.Generated.Files != 5 {
		t.Errorf("expected 5 generated files, got %d", res.Generated.Files)
	}
	for _, rel := range []string{
		"out/entities/HR/tables/EMPLOYEE.go",
		"out/entities/HR/views/EMP_V.go",
		"out/code/HR/PKG_A/foo.go",
		"out/code/HR/PKG_B/baz.go",
	} {
		if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
			t.Errorf("expected %s to be generated: %v", rel, err)
		}
	}
}

func TestRunPersistsCallGraph(t *testing.T) {
	dir, cfg := writeProject(t)
	cfg.Render.Enabled = new(bool)

	res, err := NewIndexer(cfg, dir).Run(context.Background())
	if err != nil {
		t.Fatalf("indexing failed: %v", err)
	}
	if res.Generated.Files != 0 {
		t.Errorf("expected rendering to be skipped, got %d files", res.Generated.Files)
	}
	if _, err := os.Stat(filepath.Join(dir, "out")); !os.IsNotExist(err) {
		t.Error("expected no output directory")
	}

	st, err := store.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	foo, err := st.GetRoutine("PKG_A", "foo")
	if err != nil {
		t.Fatalf("failed to get routine: %v", err)
	}
	if strings.Join(foo.Calls, ",") != "bar,pkg_b.baz,count" {
		t.Errorf("unexpected raw calls: %v", foo.Calls)
	}
	if len(foo.InternalCalls) != 1 || foo.InternalCalls[0] != "bar" {
		t.Errorf("unexpected internal calls: %v", foo.InternalCalls)
	}
	if len(foo.ExternalCalls) != 1 || foo.ExternalCalls[0] != "HR.PKG_B.baz" {
		t.Errorf("unexpected external calls: %v", foo.ExternalCalls)
	}

	callers, err := st.GetCallers("PKG_B", "baz")
	if err != nil {
		t.Fatal(err)
	}
	if len(callers) != 1 || callers[0].Name != "foo" {
		t.Errorf("expected foo to call baz, got %+v", callers)
	}

	usage, err := st.GetTableUsage("ORDERS")
	if err != nil {
		t.Fatal(err)
	}
	if len(usage) != 2 {
		t.Errorf("expected ORDERS to be used twice, got %+v", usage)
	}

	runID, err := st.GetMetadata(store.MetaRunID)
	if err != nil || runID != res.RunID {
		t.Errorf("expected run id %s in metadata, got %q (%v)", res.RunID, runID, err)
	}

	table, err := st.GetTable("EMPLOYEE")
	if err != nil {
		t.Fatal(err)
	}
	if table.Columns[0].Comment != "Identificacion" {
		t.Errorf("expected folded comment, got %q", table.Columns[0].Comment)
	}
	if len(table.Indexes) != 1 {
		t.Errorf("expected 1 index, got %d", len(table.Indexes))
	}
}

func TestRunIsRepeatable(t *testing.T) {
	dir, cfg := writeProject(t)
	idx := NewIndexer(cfg, dir)

	first, err := idx.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := idx.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if first.RunID == second.RunID {
		t.Error("expected a new run id per run")
	}
	if first.RoutineCount != second.RoutineCount || first.CallEdgeCount != second.CallEdgeCount {
		t.Errorf("expected identical counts, got %+v and %+v", first, second)
	}
}

func TestRunPackagesOnly(t *testing.T) {
	dir, cfg := writeProject(t)
	cfg.EntitiesFile = ""

	res, err := NewIndexer(cfg, dir).Run(context.Background())
	if err != nil {
		t.Fatalf("indexing failed: %v", err)
	}
	if res.TableCount != 0 || res.RoutineCount != 3 {
		t.Errorf("expected routines only, got %+v", res)
	}
}

func TestRunCollectsBlockErrors(t *testing.T) {
	dir, cfg := writeProject(t)
	view := rule + "--  DDL for View"
	broken := strings.Replace(hrDump, view, section("Table", "BROKEN", `  CREATE TABLE "HR"."BROKEN" TABLESPACE "USERS" ;`)+view, 1)
	if err := os.WriteFile(filepath.Join(dir, "dump", "hr.sql"), []byte(broken), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := NewIndexer(cfg, dir).Run(context.Background())
	if err != nil {
		t.Fatalf("indexing failed: %v", err)
	}
	if len(res.BlockErrors) != 1 {
		t.Fatalf("expected 1 block error, got %v", res.BlockErrors)
	}
	if res.TableCount != 2 {
		t.Errorf("expected the other tables to be kept, got %d", res.TableCount)
	}

	st, err := store.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	errs, err := st.ListBlockErrors()
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 1 || errs[0].BlockType != "table" || errs[0].Name != "BROKEN" {
		t.Errorf("unexpected persisted errors: %+v", errs)
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(dir string, cfg *config.Config) error
	}{
		{"missing schema name", func(_ string, cfg *config.Config) error {
			cfg.SchemaName = ""
			return nil
		}},
		{"missing dump", func(dir string, _ *config.Config) error {
			return os.Remove(filepath.Join(dir, "dump", "hr.sql"))
		}},
		{"dump without table markers", func(dir string, _ *config.Config) error {
			return os.WriteFile(filepath.Join(dir, "dump", "hr.sql"), []byte("SELECT 1 FROM DUAL;"), 0644)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, cfg := writeProject(t)
			if err := tt.setup(dir, cfg); err != nil {
				t.Fatal(err)
			}
			if _, err := NewIndexer(cfg, dir).Run(context.Background()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRunCancelled(t *testing.T) {
	dir, cfg := writeProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewIndexer(cfg, dir).Run(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}
