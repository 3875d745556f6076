package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/abramin/sqlbridge/internal/model"
)

// Metadata keys written by the indexer.
const (
	MetaIndexedAt  = "indexed_at"
	MetaSchemaName = "schema_name"
	MetaRunID      = "run_id"
	MetaSourceDir  = "source_dir"
)

// Store handles persistence of extracted data to SQLite.
type Store struct {
	db      *sql.DB
	dbPath  string
	baseDir string
}

// Open creates or opens an SQLBridge index database.
// It is stored at .sqlbridge/index.db relative to the given directory.
func Open(dir string) (*Store, error) {
	dataDir := filepath.Join(dir, ".sqlbridge")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating .sqlbridge directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "index.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{
		db:      db,
		dbPath:  dbPath,
		baseDir: dir,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DBPath returns the path to the database file.
func (s *Store) DBPath() string {
	return s.dbPath
}

// Clear removes all data from the database (for re-indexing).
func (s *Store) Clear() error {
	tables := []string{
		"table_refs", "call_edges", "routines", "packages",
		"table_blocks", "columns", "db_tables", "views",
		"block_errors", "metadata",
	}
	for _, table := range tables {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clearing table %s: %w", table, err)
		}
	}
	return nil
}

// SetMetadata stores a key-value pair in the metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO metadata (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// GetMetadata retrieves a value from the metadata table.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	return value, err
}

// SaveSchema persists tables, views and per-block errors in one transaction.
func (s *Store) SaveSchema(ctx context.Context, sc *model.Schema, errs []BlockError) error {
	batch, err := s.BeginBatch(ctx)
	if err != nil {
		return fmt.Errorf("beginning batch: %w", err)
	}
	defer batch.Rollback()

	for _, t := range sc.Tables {
		if err := batch.InsertTable(t); err != nil {
			return fmt.Errorf("inserting table %s: %w", t.Name, err)
		}
	}
	for name, body := range sc.Views {
		if err := batch.InsertView(name, body); err != nil {
			return fmt.Errorf("inserting view %s: %w", name, err)
		}
	}
	for _, e := range errs {
		if err := batch.InsertBlockError(e); err != nil {
			return fmt.Errorf("inserting block error: %w", err)
		}
	}
	return batch.Commit()
}

// SavePackages persists resolved package files in one transaction.
func (s *Store) SavePackages(ctx context.Context, schemaName string, files []model.PackageFile) error {
	batch, err := s.BeginBatch(ctx)
	if err != nil {
		return fmt.Errorf("beginning batch: %w", err)
	}
	defer batch.Rollback()

	for _, f := range files {
		if err := batch.InsertPackageFile(schemaName, f); err != nil {
			return fmt.Errorf("inserting package %s: %w", f.Name, err)
		}
	}
	return batch.Commit()
}

// Stats holds statistics about the indexed data.
type Stats struct {
	SchemaName    string    `json:"schema_name"`
	RunID         string    `json:"run_id,omitempty"`
	TableCount    int       `json:"table_count"`
	ColumnCount   int       `json:"column_count"`
	ViewCount     int       `json:"view_count"`
	PackageCount  int       `json:"package_count"`
	RoutineCount  int       `json:"routine_count"`
	CallEdgeCount int       `json:"call_edge_count"`
	TableRefCount int       `json:"table_ref_count"`
	ErrorCount    int       `json:"error_count"`
	IndexedAt     time.Time `json:"indexed_at"`
}

// GetStats returns statistics about the indexed data.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}

	rows := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM db_tables", &stats.TableCount},
		{"SELECT COUNT(*) FROM columns", &stats.ColumnCount},
		{"SELECT COUNT(*) FROM views", &stats.ViewCount},
		{"SELECT COUNT(*) FROM packages", &stats.PackageCount},
		{"SELECT COUNT(*) FROM routines", &stats.RoutineCount},
		{"SELECT COUNT(*) FROM call_edges WHERE call_kind != 'raw'", &stats.CallEdgeCount},
		{"SELECT COUNT(*) FROM table_refs", &stats.TableRefCount},
		{"SELECT COUNT(*) FROM block_errors", &stats.ErrorCount},
	}

	for _, r := range rows {
		if err := s.db.QueryRow(r.query).Scan(r.dest); err != nil {
			return nil, fmt.Errorf("counting (%s): %w", r.query, err)
		}
	}

	if ts, err := s.GetMetadata(MetaIndexedAt); err == nil {
		stats.IndexedAt, _ = time.Parse(time.RFC3339, ts)
	}
	stats.SchemaName, _ = s.GetMetadata(MetaSchemaName)
	stats.RunID, _ = s.GetMetadata(MetaRunID)

	return stats, nil
}

// IndexMetadata holds metadata written to index.json next to the database.
type IndexMetadata struct {
	Version      string    `json:"version"`
	SchemaName   string    `json:"schema_name"`
	RunID        string    `json:"run_id,omitempty"`
	SourceDir    string    `json:"source_dir"`
	IndexedAt    time.Time `json:"indexed_at"`
	TableCount   int       `json:"table_count"`
	ViewCount    int       `json:"view_count"`
	RoutineCount int       `json:"routine_count"`
	ErrorCount   int       `json:"error_count"`
	Packages     []string  `json:"packages"`
}

// WriteIndexJSON writes index.json next to the database.
func (s *Store) WriteIndexJSON() error {
	stats, err := s.GetStats()
	if err != nil {
		return fmt.Errorf("getting stats: %w", err)
	}

	rows, err := s.db.Query("SELECT name FROM packages ORDER BY name")
	if err != nil {
		return fmt.Errorf("querying packages: %w", err)
	}
	defer rows.Close()

	packages := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scanning package: %w", err)
		}
		packages = append(packages, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating packages: %w", err)
	}

	sourceDir, _ := s.GetMetadata(MetaSourceDir)
	if sourceDir == "" {
		sourceDir = s.baseDir
	}

	meta := &IndexMetadata{
		Version:      "1",
		SchemaName:   stats.SchemaName,
		RunID:        stats.RunID,
		SourceDir:    sourceDir,
		IndexedAt:    stats.IndexedAt,
		TableCount:   stats.TableCount,
		ViewCount:    stats.ViewCount,
		RoutineCount: stats.RoutineCount,
		ErrorCount:   stats.ErrorCount,
		Packages:     packages,
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling index.json: %w", err)
	}

	indexPath := filepath.Join(filepath.Dir(s.dbPath), "index.json")
	if err := os.WriteFile(indexPath, data, 0644); err != nil {
		return fmt.Errorf("writing index.json: %w", err)
	}

	return nil
}

// BeginBatch starts a transaction for batch inserts.
// Call Commit() when done, or Rollback() on error.
func (s *Store) BeginBatch(ctx context.Context) (*BatchTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &BatchTx{tx: tx}, nil
}

// BatchTx wraps a transaction for batch operations.
type BatchTx struct {
	tx *sql.Tx
}

// Commit commits the batch transaction.
func (b *BatchTx) Commit() error {
	return b.tx.Commit()
}

// Rollback rolls back the batch transaction. It is a no-op after Commit.
func (b *BatchTx) Rollback() error {
	return b.tx.Rollback()
}

// InsertTable inserts a table with its columns, indexes and triggers.
func (b *BatchTx) InsertTable(t model.TableEntity) error {
	if _, err := b.tx.Exec(`
		INSERT INTO db_tables (name, script)
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET script = excluded.script
	`, t.Name, t.Script); err != nil {
		return err
	}

	for i, col := range t.Properties {
		var length sql.NullFloat64
		if col.Length != nil {
			length = sql.NullFloat64{Float64: *col.Length, Valid: true}
		}
		if _, err := b.tx.Exec(`
			INSERT INTO columns (table_name, position, name, type, length, comment)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(table_name, name) DO UPDATE SET
				position = excluded.position,
				type = excluded.type,
				length = excluded.length,
				comment = excluded.comment
		`, t.Name, i, col.Name, col.Type, length, col.Comment); err != nil {
			return fmt.Errorf("column %s: %w", col.Name, err)
		}
	}

	blocks := []struct {
		blockType model.BlockType
		bodies    []string
	}{
		{model.BlockIndex, t.Indexes},
		{model.BlockTrigger, t.Triggers},
	}
	for _, bl := range blocks {
		for i, body := range bl.bodies {
			if _, err := b.tx.Exec(`
				INSERT INTO table_blocks (table_name, block_type, position, body)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(table_name, block_type, position) DO UPDATE SET body = excluded.body
			`, t.Name, string(bl.blockType), i, body); err != nil {
				return fmt.Errorf("%s block %d: %w", bl.blockType, i, err)
			}
		}
	}
	return nil
}

// InsertView inserts or updates a view.
func (b *BatchTx) InsertView(name, body string) error {
	_, err := b.tx.Exec(`
		INSERT INTO views (name, body)
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body
	`, name, body)
	return err
}

// InsertBlockError records a block that failed to parse.
func (b *BatchTx) InsertBlockError(e BlockError) error {
	_, err := b.tx.Exec(`
		INSERT INTO block_errors (block_type, name, message)
		VALUES (?, ?, ?)
	`, e.BlockType, e.Name, e.Message)
	return err
}

// InsertPackageFile inserts a package with its routines, call edges and
// table references. External call targets are parsed against schemaName
// so callers can be looked up by package and routine name.
func (b *BatchTx) InsertPackageFile(schemaName string, f model.PackageFile) error {
	if _, err := b.tx.Exec(`
		INSERT INTO packages (name, path)
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET path = excluded.path
	`, f.Name, f.Path); err != nil {
		return err
	}

	for pos, u := range f.Units {
		id, err := b.insertRoutine(f.Name, pos, u)
		if err != nil {
			return fmt.Errorf("routine %s: %w", u.Name, err)
		}

		for i, raw := range u.Calls {
			if err := b.insertCall(id, CallKindRaw, i, raw, "", ""); err != nil {
				return err
			}
		}
		for i, name := range u.InternalCalls {
			if err := b.insertCall(id, CallKindInternal, i, name, f.Name, name); err != nil {
				return err
			}
		}
		for i, target := range u.ExternalCalls {
			ident := model.ParseIdent(target, schemaName)
			if err := b.insertCall(id, CallKindExternal, i, target, ident.Package, ident.Name); err != nil {
				return err
			}
		}

		for _, kind := range model.StatementKinds {
			for _, table := range u.Tables.ByKind(kind) {
				if _, err := b.tx.Exec(`
					INSERT OR IGNORE INTO table_refs (routine_id, table_name, statement)
					VALUES (?, ?, ?)
				`, id, table, string(kind)); err != nil {
					return fmt.Errorf("table ref %s: %w", table, err)
				}
			}
		}
	}
	return nil
}

func (b *BatchTx) insertRoutine(pkg string, pos int, u model.PackageUnit) (RoutineID, error) {
	// Re-indexing a package replaces its routines and their edges.
	if _, err := b.tx.Exec(`
		DELETE FROM call_edges WHERE routine_id IN (SELECT id FROM routines WHERE package = ? AND name = ?)
	`, pkg, u.Name); err != nil {
		return 0, err
	}
	if _, err := b.tx.Exec(`
		DELETE FROM table_refs WHERE routine_id IN (SELECT id FROM routines WHERE package = ? AND name = ?)
	`, pkg, u.Name); err != nil {
		return 0, err
	}
	if _, err := b.tx.Exec(`DELETE FROM routines WHERE package = ? AND name = ?`, pkg, u.Name); err != nil {
		return 0, err
	}

	result, err := b.tx.Exec(`
		INSERT INTO routines (package, name, kind, position, body)
		VALUES (?, ?, ?, ?, ?)
	`, pkg, u.Name, string(u.Kind), pos, u.Body)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	return RoutineID(id), nil
}

func (b *BatchTx) insertCall(id RoutineID, kind CallKind, pos int, target, targetPkg, targetName string) error {
	_, err := b.tx.Exec(`
		INSERT INTO call_edges (routine_id, call_kind, position, target, target_package, target_name)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, string(kind), pos, target, targetPkg, targetName)
	if err != nil {
		return fmt.Errorf("%s call %s: %w", kind, target, err)
	}
	return nil
}

// Tx returns the underlying database for advanced queries.
// Use with caution - prefer adding methods to Store instead.
func (s *Store) Tx() *sql.DB {
	return s.db
}
