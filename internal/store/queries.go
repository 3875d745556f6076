package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/abramin/sqlbridge/internal/model"
)

// ErrNotFound is returned when a looked-up entity does not exist.
var ErrNotFound = errors.New("not found")

// ListTables returns every table with its column count, ordered by name.
func (s *Store) ListTables() ([]Table, error) {
	rows, err := s.db.Query(`
		SELECT t.name, COUNT(c.name)
		FROM db_tables t
		LEFT JOIN columns c ON c.table_name = t.name
		GROUP BY t.name
		ORDER BY t.name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying tables: %w", err)
	}
	defer rows.Close()

	tables := []Table{}
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.Name, &t.ColumnCount); err != nil {
			return nil, fmt.Errorf("scanning table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// GetTable returns a table with its columns, indexes and triggers.
func (s *Store) GetTable(name string) (*TableDetail, error) {
	t := &TableDetail{Name: strings.ToUpper(name), Columns: []model.TableProperty{}, Indexes: []string{}, Triggers: []string{}}

	err := s.db.QueryRow("SELECT script FROM db_tables WHERE name = ?", t.Name).Scan(&t.Script)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("table %s: %w", t.Name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying table %s: %w", t.Name, err)
	}

	rows, err := s.db.Query(`
		SELECT name, type, length, COALESCE(comment, '')
		FROM columns WHERE table_name = ?
		ORDER BY position
	`, t.Name)
	if err != nil {
		return nil, fmt.Errorf("querying columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var col model.TableProperty
		var length sql.NullFloat64
		if err := rows.Scan(&col.Name, &col.Type, &length, &col.Comment); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		if length.Valid {
			v := length.Float64
			col.Length = &v
		}
		t.Columns = append(t.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	blocks, err := s.db.Query(`
		SELECT block_type, body FROM table_blocks
		WHERE table_name = ?
		ORDER BY block_type, position
	`, t.Name)
	if err != nil {
		return nil, fmt.Errorf("querying blocks: %w", err)
	}
	defer blocks.Close()

	for blocks.Next() {
		var blockType, body string
		if err := blocks.Scan(&blockType, &body); err != nil {
			return nil, fmt.Errorf("scanning block: %w", err)
		}
		switch model.BlockType(blockType) {
		case model.BlockIndex:
			t.Indexes = append(t.Indexes, body)
		case model.BlockTrigger:
			t.Triggers = append(t.Triggers, body)
		}
	}
	return t, blocks.Err()
}

// GetView returns the text of a view.
func (s *Store) GetView(name string) (string, error) {
	var body string
	err := s.db.QueryRow("SELECT body FROM views WHERE name = ?", strings.ToUpper(name)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("view %s: %w", name, ErrNotFound)
	}
	return body, err
}

// ListViews returns every view name, ordered.
func (s *Store) ListViews() ([]string, error) {
	return s.queryStrings("SELECT name FROM views ORDER BY name")
}

// ListPackages returns every package with its routine count.
func (s *Store) ListPackages() ([]Package, error) {
	rows, err := s.db.Query(`
		SELECT p.name, COALESCE(p.path, ''), COUNT(r.id)
		FROM packages p
		LEFT JOIN routines r ON r.package = p.name
		GROUP BY p.name
		ORDER BY p.name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying packages: %w", err)
	}
	defer rows.Close()

	packages := []Package{}
	for rows.Next() {
		var p Package
		if err := rows.Scan(&p.Name, &p.Path, &p.RoutineCount); err != nil {
			return nil, fmt.Errorf("scanning package: %w", err)
		}
		packages = append(packages, p)
	}
	return packages, rows.Err()
}

// ListRoutines returns the routines of a package in source order.
func (s *Store) ListRoutines(pkg string) ([]Routine, error) {
	return s.routines(`
		SELECT id, package, name, kind FROM routines
		WHERE package = ?
		ORDER BY position
	`, strings.ToUpper(pkg))
}

// GetRoutine returns a routine with its calls and table references.
// Routine names are matched case-insensitively.
func (s *Store) GetRoutine(pkg, name string) (*RoutineDetail, error) {
	d := &RoutineDetail{
		Calls:         []string{},
		InternalCalls: []string{},
		ExternalCalls: []string{},
		Tables: model.TableRefs{
			Selects: []string{}, Inserts: []string{}, Updates: []string{}, Deletes: []string{},
		},
	}

	var kind string
	err := s.db.QueryRow(`
		SELECT id, package, name, kind, body FROM routines
		WHERE package = ? AND LOWER(name) = LOWER(?)
	`, strings.ToUpper(pkg), name).Scan(&d.ID, &d.Package, &d.Name, &kind, &d.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("routine %s.%s: %w", pkg, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying routine: %w", err)
	}
	d.Kind = model.RoutineKind(kind)

	rows, err := s.db.Query(`
		SELECT call_kind, target FROM call_edges
		WHERE routine_id = ?
		ORDER BY call_kind, position
	`, d.ID)
	if err != nil {
		return nil, fmt.Errorf("querying calls: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var callKind, target string
		if err := rows.Scan(&callKind, &target); err != nil {
			return nil, fmt.Errorf("scanning call: %w", err)
		}
		switch CallKind(callKind) {
		case CallKindRaw:
			d.Calls = append(d.Calls, target)
		case CallKindInternal:
			d.InternalCalls = append(d.InternalCalls, target)
		case CallKindExternal:
			d.ExternalCalls = append(d.ExternalCalls, target)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	refs, err := s.db.Query(`
		SELECT statement, table_name FROM table_refs
		WHERE routine_id = ?
		ORDER BY statement, rowid
	`, d.ID)
	if err != nil {
		return nil, fmt.Errorf("querying table refs: %w", err)
	}
	defer refs.Close()

	for refs.Next() {
		var stmt, table string
		if err := refs.Scan(&stmt, &table); err != nil {
			return nil, fmt.Errorf("scanning table ref: %w", err)
		}
		switch model.StatementKind(stmt) {
		case model.StatementSelect:
			d.Tables.Selects = append(d.Tables.Selects, table)
		case model.StatementInsert:
			d.Tables.Inserts = append(d.Tables.Inserts, table)
		case model.StatementUpdate:
			d.Tables.Updates = append(d.Tables.Updates, table)
		case model.StatementDelete:
			d.Tables.Deletes = append(d.Tables.Deletes, table)
		}
	}
	return d, refs.Err()
}

// GetCallers returns the routines with a resolved call to pkg.name.
func (s *Store) GetCallers(pkg, name string) ([]Routine, error) {
	return s.routines(`
		SELECT r.id, r.package, r.name, r.kind
		FROM call_edges e
		JOIN routines r ON r.id = e.routine_id
		WHERE e.call_kind != 'raw'
		  AND UPPER(e.target_package) = UPPER(?)
		  AND LOWER(e.target_name) = LOWER(?)
		GROUP BY r.id
		ORDER BY r.package, r.position
	`, pkg, name)
}

// GetTableUsage returns the routines touching a table, per statement kind.
func (s *Store) GetTableUsage(table string) ([]TableUsage, error) {
	rows, err := s.db.Query(`
		SELECT r.id, r.package, r.name, r.kind, t.statement
		FROM table_refs t
		JOIN routines r ON r.id = t.routine_id
		WHERE t.table_name = ?
		ORDER BY r.package, r.position, t.statement
	`, strings.ToUpper(table))
	if err != nil {
		return nil, fmt.Errorf("querying table usage: %w", err)
	}
	defer rows.Close()

	usage := []TableUsage{}
	for rows.Next() {
		var u TableUsage
		var kind, stmt string
		if err := rows.Scan(&u.ID, &u.Package, &u.Name, &kind, &stmt); err != nil {
			return nil, fmt.Errorf("scanning table usage: %w", err)
		}
		u.Kind = model.RoutineKind(kind)
		u.Statement = model.StatementKind(stmt)
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

// Search finds tables, views and routines whose name contains query.
func (s *Store) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + strings.ToLower(query) + "%"

	rows, err := s.db.Query(`
		SELECT 'table', name, '' FROM db_tables WHERE LOWER(name) LIKE ?
		UNION ALL
		SELECT 'view', name, '' FROM views WHERE LOWER(name) LIKE ?
		UNION ALL
		SELECT 'routine', name, package FROM routines WHERE LOWER(name) LIKE ?
		ORDER BY 1, 3, 2
		LIMIT ?
	`, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Kind, &r.Name, &r.Package); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListBlockErrors returns the persisted extraction failures.
func (s *Store) ListBlockErrors() ([]BlockError, error) {
	rows, err := s.db.Query(`
		SELECT COALESCE(block_type, ''), COALESCE(name, ''), message
		FROM block_errors ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying block errors: %w", err)
	}
	defer rows.Close()

	errs := []BlockError{}
	for rows.Next() {
		var e BlockError
		if err := rows.Scan(&e.BlockType, &e.Name, &e.Message); err != nil {
			return nil, fmt.Errorf("scanning block error: %w", err)
		}
		errs = append(errs, e)
	}
	return errs, rows.Err()
}

func (s *Store) routines(query string, args ...any) ([]Routine, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying routines: %w", err)
	}
	defer rows.Close()

	routines := []Routine{}
	for rows.Next() {
		var r Routine
		var kind string
		if err := rows.Scan(&r.ID, &r.Package, &r.Name, &kind); err != nil {
			return nil, fmt.Errorf("scanning routine: %w", err)
		}
		r.Kind = model.RoutineKind(kind)
		routines = append(routines, r)
	}
	return routines, rows.Err()
}

func (s *Store) queryStrings(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
