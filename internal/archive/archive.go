// Package archive snapshots the local database before a destructive schema
// rebuild. Snapshots are written with VACUUM INTO, either to a local
// directory or to an S3-compatible bucket.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/common"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/config"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/filex"
)

// Archiver stores a snapshot of db and returns where it went.
type Archiver interface {
	Archive(ctx context.Context, db *sql.DB, label string) (string, error)
}

// Nop discards archive requests.
type Nop struct{}

func (Nop) Archive(context.Context, *sql.DB, string) (string, error) { return "", nil }

// New builds the archiver selected by cfg.Type.
func New(ctx context.Context, cfg config.ArchiveConfig, clock common.Clock) (Archiver, error) {
	if clock == nil {
		clock = common.RealClock{}
	}
	switch cfg.Type {
	case "", "none":
		return Nop{}, nil
	case "file":
		dir, err := filex.EnsureDir(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("archive dir: %w", err)
		}
		return &FileArchiver{dir: dir, clock: clock}, nil
	case "s3":
		return NewS3Archiver(ctx, cfg, clock)
	case "http":
		return NewHTTPArchiver(cfg.UploadURL, nil, clock)
	}
	return nil, fmt.Errorf("unknown archive type %q", cfg.Type)
}

func snapshotName(label string, clock common.Clock) string {
	label = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, label)
	return fmt.Sprintf("%s-%s.db", label, clock.Now().UTC().Format("20060102T150405Z"))
}

// vacuumInto writes a consistent copy of db to path. It must not run inside
// a transaction.
func vacuumInto(ctx context.Context, db *sql.DB, path string) error {
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("vacuum into %s: %w", path, err)
	}
	return nil
}

// FileArchiver keeps snapshots in a local directory.
type FileArchiver struct {
	dir   string
	clock common.Clock
}

// NewFileArchiver creates the directory if needed.
func NewFileArchiver(dir string, clock common.Clock) (*FileArchiver, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	return &FileArchiver{dir: abs, clock: clock}, nil
}

func (a *FileArchiver) Archive(ctx context.Context, db *sql.DB, label string) (string, error) {
	path := filepath.Join(a.dir, snapshotName(label, a.clock))
	if err := vacuumInto(ctx, db, path); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}
