package crx

import (
	"errors"

	"github.com/Maksandre/crx-fetch/internal/zipfile"
)

// Sentinel errors for the container header stage.
var (
	// ErrInvalidMagic is returned when the buffer does not start with "Cr24".
	ErrInvalidMagic = errors.New("crx: invalid magic")

	// ErrUnsupportedVersion is returned for container versions other than 2, 3, or 4.
	ErrUnsupportedVersion = errors.New("crx: unsupported version")

	// ErrMalformedHeader is returned when the header claims to consume the
	// entire file or more, or is too short to hold its declared fields.
	ErrMalformedHeader = errors.New("crx: malformed header")
)

// Sentinel errors re-exported from internal/zipfile for the archive stage.
var (
	// ErrDirectoryNotFound is returned when no end-of-central-directory
	// record exists within the archive's trailing search window.
	ErrDirectoryNotFound = zipfile.ErrDirectoryNotFound

	// ErrDirectoryOutOfRange is returned when the central directory, an
	// entry, or a payload claims a byte range beyond the end of the archive.
	ErrDirectoryOutOfRange = zipfile.ErrDirectoryOutOfRange

	// ErrDirectorySignature is returned when a central directory entry does
	// not start with the expected signature.
	ErrDirectorySignature = zipfile.ErrDirectorySignature

	// ErrLocalHeaderSignature is returned when an entry's local header does
	// not start with the expected signature.
	ErrLocalHeaderSignature = zipfile.ErrLocalHeaderSignature

	// ErrUnsupportedCompression is returned for compression methods other
	// than stored and deflate.
	ErrUnsupportedCompression = zipfile.ErrUnsupportedCompression

	// ErrDecompression is returned when inflating a deflate payload fails or
	// yields the wrong number of bytes.
	ErrDecompression = zipfile.ErrDecompression

	// ErrInsecurePath is returned when an entry name would escape the
	// destination directory.
	ErrInsecurePath = zipfile.ErrInsecurePath
)
