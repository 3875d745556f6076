package index

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/abramin/sqlbridge/internal/config"
	"github.com/abramin/sqlbridge/internal/dump"
)

// Source is a normalized input file.
type Source struct {
	Path string // absolute path
	Rel  string // slash-separated path relative to its root
	Size int64  // raw size in bytes
	Text string // normalized text
}

// Loader reads and normalizes the schema dump and package sources.
type Loader struct {
	cfg     *config.Config
	baseDir string
	matcher *config.Matcher
}

// NewLoader creates a loader resolving relative config paths against baseDir.
func NewLoader(cfg *config.Config, baseDir string) (*Loader, error) {
	m, err := cfg.PackageMatcher()
	if err != nil {
		return nil, err
	}
	return &Loader{cfg: cfg, baseDir: baseDir, matcher: m}, nil
}

// Resolve makes a configured path absolute.
func (l *Loader) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(l.baseDir, p)
}

// EntitiesPath returns the absolute path of the schema dump, or "" when none is configured.
func (l *Loader) EntitiesPath() string {
	return l.Resolve(l.cfg.EntitiesFile)
}

// PackagesDir returns the absolute packages directory, or "" when none is configured.
func (l *Loader) PackagesDir() string {
	return l.Resolve(l.cfg.PackagesDir)
}

// LoadDump reads and normalizes the schema dump.
func (l *Loader) LoadDump() (Source, error) {
	path := l.EntitiesPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("reading dump: %w", err)
	}
	text, err := dump.Normalize(data, l.cfg.Encoding)
	if err != nil {
		return Source{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return Source{Path: path, Rel: filepath.Base(path), Size: int64(len(data)), Text: text}, nil
}

// PackageFiles lists the package sources selected by the include and
// exclude patterns, in path order.
func (l *Loader) PackageFiles(ctx context.Context) ([]string, error) {
	root := l.PackagesDir()
	if root == "" {
		return nil, nil
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if l.matcher.IsIncluded(rel) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

// Matches reports whether an absolute path is a package source selected by the patterns.
func (l *Loader) Matches(path string) bool {
	root := l.PackagesDir()
	if root == "" {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	return l.matcher.IsIncluded(rel)
}

// LoadPackage reads and normalizes one package source.
func (l *Loader) LoadPackage(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("reading package: %w", err)
	}
	text, err := dump.NormalizePackage(data, l.cfg.Encoding)
	if err != nil {
		return Source{}, fmt.Errorf("decoding %s: %w", path, err)
	}

	rel := filepath.Base(path)
	if r, err := filepath.Rel(l.PackagesDir(), path); err == nil {
		rel = filepath.ToSlash(r)
	}
	return Source{Path: path, Rel: rel, Size: int64(len(data)), Text: text}, nil
}
