package zipfile

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Options configures an extraction.
type Options struct {
	// Workers sets the number of concurrent payload writers. Values <= 1
	// extract serially in directory order.
	Workers int

	// Logger receives per-entry debug events. Nil discards them.
	Logger *slog.Logger
}

// Extract materializes every entry of archive under destDir.
//
// Directory-marker entries and all parent directories are created before any
// file content is written. Existing files are overwritten; each file is
// written to a temp file in its destination directory and renamed into
// place, so a re-run converges on identical contents and a crashed run never
// leaves a partially written file at a final path.
//
// The first failing entry aborts the extraction. In serial mode no entry
// after the failing one is written. In parallel mode no new entry is started
// after a failure, but entries already in flight still complete.
func Extract(archive []byte, destDir string, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	entries, err := ParseDirectory(archive)
	if err != nil {
		return err
	}
	log.Debug("parsed central directory", "entries", len(entries))

	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return fmt.Errorf("create destination %s: %w", destDir, err)
	}

	// Directories first, so concurrent file writes never race a marker.
	files := make([]Entry, 0, len(entries))
	for _, e := range entries {
		target, err := securePath(destDir, e.Name)
		if err != nil {
			return err
		}
		if e.IsDir() {
			if err := os.MkdirAll(target, 0o750); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
			continue
		}
		files = append(files, e)
	}

	pool := &inflaterPool{}

	if opts.Workers > 1 {
		g, ctx := errgroup.WithContext(context.Background())
		g.SetLimit(opts.Workers)
		for _, e := range files {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return materialize(pool, log, archive, destDir, e)
			})
		}
		return g.Wait()
	}

	for _, e := range files {
		if err := materialize(pool, log, archive, destDir, e); err != nil {
			return err
		}
	}
	return nil
}

// materialize decodes one file entry and writes it under destDir.
func materialize(pool *inflaterPool, log *slog.Logger, archive []byte, destDir string, e Entry) error {
	target, err := securePath(destDir, e.Name)
	if err != nil {
		return err
	}

	compressed, err := payload(archive, e)
	if err != nil {
		return err
	}
	content, err := decode(pool, e, compressed)
	if err != nil {
		return err
	}

	if err := writeFile(target, content); err != nil {
		return fmt.Errorf("entry %q: %w", e.Name, err)
	}
	log.Debug("extracted entry", "name", e.Name, "method", e.Method, "size", len(content))
	return nil
}

// securePath resolves an entry name under destDir, rejecting names that
// would escape it.
func securePath(destDir, name string) (string, error) {
	trimmed := strings.TrimSuffix(name, "/")
	if trimmed == "" || !fs.ValidPath(trimmed) {
		return "", fmt.Errorf("entry %q: %w", name, ErrInsecurePath)
	}
	return filepath.Join(destDir, filepath.FromSlash(trimmed)), nil
}

// writeFile writes content to target via a temp file in the same directory
// and an atomic rename, overwriting any existing file.
func writeFile(target string, content []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".crx-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename to %s: %w", target, err)
	}
	return nil
}
