// Package index runs the extraction pipeline: it loads the schema dump and
// package sources, extracts tables and routines, resolves the call graph,
// persists everything to the store and optionally renders Go sources.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/abramin/sqlbridge/internal/callgraph"
	"github.com/abramin/sqlbridge/internal/config"
	"github.com/abramin/sqlbridge/internal/model"
	"github.com/abramin/sqlbridge/internal/render"
	"github.com/abramin/sqlbridge/internal/routine"
	"github.com/abramin/sqlbridge/internal/schema"
	"github.com/abramin/sqlbridge/internal/store"
)

// Indexer coordinates the indexing pipeline.
type Indexer struct {
	cfg     *config.Config
	baseDir string
}

// NewIndexer creates an indexer resolving relative config paths against baseDir.
func NewIndexer(cfg *config.Config, baseDir string) *Indexer {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		absPath = baseDir
	}
	return &Indexer{
		cfg:     cfg,
		baseDir: absPath,
	}
}

// Result holds the results of an indexing run.
type Result struct {
	RunID         string
	SchemaName    string
	TableCount    int
	ViewCount     int
	PackageCount  int
	RoutineCount  int
	CallEdgeCount int
	InputBytes    int64
	BlockErrors   []error // per-block extraction failures
	RenderErrors  []error // tables or routines that could not be rendered
	Generated     render.Result
	Duration      time.Duration
	DBPath        string
}

// Err joins every non-fatal failure of the run.
func (r *Result) Err() error {
	return errors.Join(append(append([]error{}, r.BlockErrors...), r.RenderErrors...)...)
}

// InputSize returns the input size in human-readable form.
func (r *Result) InputSize() string {
	return humanize.Bytes(uint64(r.InputBytes))
}

// Run executes the indexing pipeline.
func (idx *Indexer) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	if err := idx.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	res := &Result{RunID: uuid.NewString(), SchemaName: idx.cfg.SchemaName}
	slog.Info("pipeline.start", "run", res.RunID, "schema", res.SchemaName, "dir", idx.baseDir)

	loader, err := NewLoader(idx.cfg, idx.baseDir)
	if err != nil {
		return nil, err
	}

	var (
		sc    *model.Schema
		files []model.PackageFile
	)

	// The schema and package pipelines share nothing until persistence.
	var dumpBytes, pkgBytes int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sc, dumpBytes, err = idx.parseSchema(loader)
		return err
	})
	g.Go(func() error {
		var err error
		files, pkgBytes, err = idx.parsePackages(gctx, loader)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	res.InputBytes = dumpBytes + pkgBytes

	files, err = idx.resolveExternal(ctx, files)
	if err != nil {
		return nil, err
	}

	for _, e := range sc.Errors {
		slog.Warn("block.failed", "err", e)
	}
	res.BlockErrors = sc.Errors

	if err := idx.persist(ctx, sc, files, res); err != nil {
		return nil, err
	}

	if idx.cfg.RenderEnabled() {
		idx.render(sc, files, res)
	}

	res.Duration = time.Since(start)
	slog.Info("pipeline.done",
		"tables", res.TableCount,
		"routines", res.RoutineCount,
		"edges", res.CallEdgeCount,
		"errors", len(res.BlockErrors)+len(res.RenderErrors),
		"input", res.InputSize(),
		"elapsed", res.Duration,
	)
	return res, nil
}

// parseSchema reads the dump and extracts tables and views. A run without
// an entities file yields an empty schema.
func (idx *Indexer) parseSchema(loader *Loader) (*model.Schema, int64, error) {
	sc := &model.Schema{Name: idx.cfg.SchemaName, Views: map[string]string{}}
	if loader.EntitiesPath() == "" {
		return sc, 0, nil
	}

	t := time.Now()
	src, err := loader.LoadDump()
	if err != nil {
		return nil, 0, err
	}
	sc, err = schema.Parse(src.Text, idx.cfg.SchemaName)
	if err != nil {
		return nil, src.Size, err
	}
	slog.Info("schema.parsed",
		"tables", len(sc.Tables),
		"views", len(sc.Views),
		"errors", len(sc.Errors),
		"size", humanize.Bytes(uint64(src.Size)),
		"elapsed", time.Since(t),
	)
	return sc, src.Size, nil
}

// parsePackages extracts every package file with a bounded worker group.
// Each worker also runs the internal pass, which needs only its own file.
func (idx *Indexer) parsePackages(ctx context.Context, loader *Loader) ([]model.PackageFile, int64, error) {
	t := time.Now()
	paths, err := loader.PackageFiles(ctx)
	if err != nil {
		return nil, 0, err
	}

	extractor := routine.NewExtractor(idx.cfg.SchemaName, idx.cfg.Calls.LocalPrefixes)
	opts := idx.options()
	files := make([]model.PackageFile, len(paths))
	sizes := make([]int64, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.cfg.Workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			src, err := loader.LoadPackage(path)
			if err != nil {
				return err
			}
			file := extractor.File(src.Rel, src.Text)
			files[i] = callgraph.ResolveInternal(idx.cfg.SchemaName, file, opts)
			sizes[i] = src.Size
			slog.Debug("package.extracted", "package", file.Name, "units", len(file.Units))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var total int64
	units := 0
	for i := range files {
		total += sizes[i]
		units += len(files[i].Units)
	}
	slog.Info("packages.parsed",
		"files", len(files),
		"units", units,
		"size", humanize.Bytes(uint64(total)),
		"elapsed", time.Since(t),
	)
	return files, total, nil
}

// resolveExternal runs the external pass once every file is extracted.
func (idx *Indexer) resolveExternal(ctx context.Context, files []model.PackageFile) ([]model.PackageFile, error) {
	t := time.Now()
	reg := callgraph.NewRegistry(idx.cfg.SchemaName, files)
	opts := idx.options()
	out := make([]model.PackageFile, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.cfg.Workers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = reg.ResolveExternal(f, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Info("callgraph.resolved", "registry", reg.Len(), "elapsed", time.Since(t))
	return out, nil
}

func (idx *Indexer) options() callgraph.Options {
	return callgraph.Options{LegacyShortCircuit: idx.cfg.Calls.LegacyShortCircuit}
}

// persist replaces the store contents with the results of this run.
func (idx *Indexer) persist(ctx context.Context, sc *model.Schema, files []model.PackageFile, res *Result) error {
	st, err := store.Open(idx.dbDir())
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	if err := st.Clear(); err != nil {
		return fmt.Errorf("clearing store: %w", err)
	}
	if err := st.SaveSchema(ctx, sc, blockErrors(sc.Errors)); err != nil {
		return fmt.Errorf("saving schema: %w", err)
	}
	if err := st.SavePackages(ctx, sc.Name, files); err != nil {
		return fmt.Errorf("saving packages: %w", err)
	}

	meta := map[string]string{
		store.MetaIndexedAt:  time.Now().Format(time.RFC3339),
		store.MetaSchemaName: sc.Name,
		store.MetaRunID:      res.RunID,
		store.MetaSourceDir:  idx.baseDir,
	}
	for k, v := range meta {
		if err := st.SetMetadata(k, v); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
	}

	stats, err := st.GetStats()
	if err != nil {
		return fmt.Errorf("getting stats: %w", err)
	}
	if err := st.WriteIndexJSON(); err != nil {
		return fmt.Errorf("writing index.json: %w", err)
	}

	res.TableCount = stats.TableCount
	res.ViewCount = stats.ViewCount
	res.PackageCount = stats.PackageCount
	res.RoutineCount = stats.RoutineCount
	res.CallEdgeCount = stats.CallEdgeCount
	res.DBPath = st.DBPath()
	return nil
}

// render writes Go sources. Render failures are reported, not fatal.
func (idx *Indexer) render(sc *model.Schema, files []model.PackageFile, res *Result) {
	r := render.New(idx.outputDir(), idx.cfg.Render.TypeOverrides)

	entities, err := r.WriteSchema(sc)
	if err != nil {
		slog.Warn("render.schema", "err", err)
		res.RenderErrors = append(res.RenderErrors, err)
	}
	code, err := r.WritePackages(sc.Name, files)
	if err != nil {
		slog.Warn("render.packages", "err", err)
		res.RenderErrors = append(res.RenderErrors, err)
	}

	res.Generated = render.Result{
		Files: entities.Files + code.Files,
		Bytes: entities.Bytes + code.Bytes,
	}
	slog.Info("render.done", "files", res.Generated.Files, "size", humanize.Bytes(uint64(res.Generated.Bytes)))
}

func (idx *Indexer) dbDir() string {
	if filepath.IsAbs(idx.cfg.DBDir) {
		return idx.cfg.DBDir
	}
	return filepath.Join(idx.baseDir, idx.cfg.DBDir)
}

func (idx *Indexer) outputDir() string {
	if filepath.IsAbs(idx.cfg.OutputDir) {
		return idx.cfg.OutputDir
	}
	return filepath.Join(idx.baseDir, idx.cfg.OutputDir)
}

// blockErrors converts extraction failures into their persisted form.
func blockErrors(errs []error) []store.BlockError {
	out := make([]store.BlockError, 0, len(errs))
	for _, err := range errs {
		var be *schema.BlockError
		if errors.As(err, &be) {
			out = append(out, store.BlockError{BlockType: string(be.Type), Name: be.Name, Message: be.Err.Error()})
			continue
		}
		out = append(out, store.BlockError{Message: err.Error()})
	}
	return out
}
