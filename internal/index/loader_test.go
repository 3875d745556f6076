package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abramin/sqlbridge/internal/config"
)

const rule = "--------------------------------------------------------\n"

func section(blockType, name, body string) string {
	return rule + "--  DDL for " + blockType + " " + name + "\n" + rule + "\n" + body + "\n"
}

var hrDump = section("Table", "EMPLOYEE", `  CREATE TABLE "HR"."EMPLOYEE"
   (	"ID" NUMBER(10),
	"NAME" VARCHAR2(50 BYTE),
	"HIRED" DATE
   ) ;

   COMMENT ON COLUMN "HR"."EMPLOYEE"."ID" IS 'Identificación';`) +
	section("Table", "ORDERS", `  CREATE TABLE "HR"."ORDERS"
   (	"ID" NUMBER,
	"SHAPE" SDO_GEOMETRY
   ) ;`) +
	section("View", "EMP_V", `  CREATE OR REPLACE FORCE VIEW "HR"."EMP_V" ("ID") AS
  SELECT ID FROM EMPLOYEE;`) +
	section("Index", "EMP_PK", `  CREATE UNIQUE INDEX "HR"."EMP_PK" ON "HR"."EMPLOYEE" ("ID") ;`)

const pkgA = `CREATE OR REPLACE PACKAGE BODY PKG_A AS
  /* entry point */
  PROCEDURE foo IS
  BEGIN
    bar();
    PKG_B.baz(1);
    SELECT COUNT(*) INTO n FROM HR.ORDERS;
  END foo;

  PROCEDURE bar IS
  BEGIN
    NULL;
  END bar;
END PKG_A;
`

const pkgB = `CREATE OR REPLACE PACKAGE BODY PKG_B AS
  FUNCTION baz(p NUMBER) RETURN NUMBER IS
  BEGIN
    DELETE FROM HR.ORDERS WHERE ID = p; -- purge
    RETURN p;
  END baz;
END PKG_B;
`

// writeProject lays out a dump and package sources under a temp directory.
func writeProject(t *testing.T) (string, *config.Config) {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"dump/hr.sql":                hrDump,
		"packages/pkg_a.pkb":         pkgA,
		"packages/billing/pkg_b.pkb": pkgB,
		"packages/test/fixture.sql":  "PROCEDURE x IS BEGIN NULL; END;",
		"packages/README.md":         "not a package",
	}
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.Default()
	cfg.SchemaName = "HR"
	cfg.EntitiesFile = "dump/hr.sql"
	cfg.PackagesDir = "packages"
	return dir, cfg
}

func TestPackageFiles(t *testing.T) {
	dir, cfg := writeProject(t)

	loader, err := NewLoader(cfg, dir)
	if err != nil {
		t.Fatal(err)
	}

	files, err := loader.PackageFiles(context.Background())
	if err != nil {
		t.Fatalf("failed to list package files: %v", err)
	}

	want := []string{
		filepath.Join(dir, "packages", "billing", "pkg_b.pkb"),
		filepath.Join(dir, "packages", "pkg_a.pkb"),
	}
	if len(files) != len(want) {
		t.Fatalf("expected %v, got %v", want, files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("file %d: expected %s, got %s", i, want[i], files[i])
		}
	}
}

func TestPackageFilesWithoutDir(t *testing.T) {
	cfg := config.Default()
	loader, err := NewLoader(cfg, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	files, err := loader.PackageFiles(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %v", files)
	}
}

func TestPackageFilesCancelled(t *testing.T) {
	dir, cfg := writeProject(t)
	loader, err := NewLoader(cfg, dir)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := loader.PackageFiles(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestLoadDump(t *testing.T) {
	dir, cfg := writeProject(t)
	loader, err := NewLoader(cfg, dir)
	if err != nil {
		t.Fatal(err)
	}

	src, err := loader.LoadDump()
	if err != nil {
		t.Fatalf("failed to load dump: %v", err)
	}
	if src.Size != int64(len(hrDump)) {
		t.Errorf("expected size %d, got %d", len(hrDump), src.Size)
	}
	if !strings.Contains(src.Text, "'Identificacion'") {
		t.Error("expected accents to be folded")
	}
}

func TestLoadDumpMissing(t *testing.T) {
	cfg := config.Default()
	cfg.EntitiesFile = "missing.sql"
	loader, err := NewLoader(cfg, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := loader.LoadDump(); err == nil {
		t.Error("expected error for missing dump")
	}
}

func TestLoadPackage(t *testing.T) {
	dir, cfg := writeProject(t)
	loader, err := NewLoader(cfg, dir)
	if err != nil {
		t.Fatal(err)
	}

	src, err := loader.LoadPackage(filepath.Join(dir, "packages", "billing", "pkg_b.pkb"))
	if err != nil {
		t.Fatalf("failed to load package: %v", err)
	}
	if src.Rel != "billing/pkg_b.pkb" {
		t.Errorf("expected relative path billing/pkg_b.pkb, got %s", src.Rel)
	}
	if strings.Contains(src.Text, "purge") {
		t.Error("expected line comments to be removed")
	}
}

func TestMatches(t *testing.T) {
	dir, cfg := writeProject(t)
	loader, err := NewLoader(cfg, dir)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(dir, "packages", "pkg_a.pkb"), true},
		{filepath.Join(dir, "packages", "new", "pkg_c.sql"), true},
		{filepath.Join(dir, "packages", "test", "fixture.sql"), false},
		{filepath.Join(dir, "packages", "README.md"), false},
		{filepath.Join(dir, "dump", "hr.sql"), false},
	}
	for _, tt := range tests {
		if got := loader.Matches(tt.path); got != tt.want {
			t.Errorf("Matches(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
