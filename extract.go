package crx

import (
	"log/slog"

	"github.com/Maksandre/crx-fetch/internal/zipfile"
)

// Entry describes one archive entry as recorded in the central directory.
type Entry = zipfile.Entry

// Compression methods that Extract can decode.
const (
	MethodStored  = zipfile.MethodStored
	MethodDeflate = zipfile.MethodDeflate
)

// ExtractOption configures an Extract or Unpack operation.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	workers int
	logger  *slog.Logger
}

// ExtractWithWorkers sets the number of concurrent payload writers.
// Values <= 1 extract serially in directory order (the default).
//
// Parallel extraction gives no ordering guarantee between independent file
// writes; directories are still created before any file content is written.
// On failure no new entry is started, but entries already in flight still
// complete, so unlike serial mode some entries after the failing one may
// exist in the destination. The returned error is the first failure either way.
func ExtractWithWorkers(n int) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.workers = n
	}
}

// ExtractWithLogger sets a logger for per-entry debug events.
// If nil, events are discarded (default behavior).
func ExtractWithLogger(logger *slog.Logger) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.logger = logger
	}
}

// Extract materializes every entry of a bare ZIP archive under destDir,
// creating it if needed.
//
// Entry names ending in a slash become directories; every other entry
// becomes a file whose parent directories are created as needed and whose
// previous content, if any, is overwritten. The first failing entry aborts
// the whole extraction.
//
// The archive buffer is read-only for the duration of the call. Concurrent
// extraction into the same destination from multiple callers must be
// serialized by the caller.
func Extract(archive []byte, destDir string, opts ...ExtractOption) error {
	cfg := extractConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return zipfile.Extract(archive, destDir, zipfile.Options{
		Workers: cfg.workers,
		Logger:  cfg.logger,
	})
}

// Unpack strips the CRX container header from buf and extracts the embedded
// archive under destDir. See [StripHeader] and [Extract].
func Unpack(buf []byte, destDir string, opts ...ExtractOption) error {
	archive, err := StripHeader(buf)
	if err != nil {
		return err
	}
	return Extract(archive, destDir, opts...)
}

// List parses the archive's central directory and returns its entries in
// directory order without touching any payload.
func List(archive []byte) ([]Entry, error) {
	return zipfile.ParseDirectory(archive)
}
