// Package zipfile implements central-directory-first decoding of the ZIP
// archive embedded in a CRX container.
//
// The archive is always decoded in two passes: the trailing
// end-of-central-directory record is located and the full central directory
// parsed into entry descriptors, and only then are per-entry payloads read.
// Size and offset fields from the central directory are authoritative; the
// duplicated fields in local headers are never trusted, which keeps archives
// that use streaming data descriptors (zero sizes in the local header, real
// sizes only in a trailing record) decodable without ambiguity.
package zipfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for archive decoding.
var (
	// ErrDirectoryNotFound is returned when no end-of-central-directory
	// record signature exists within the trailing search window.
	ErrDirectoryNotFound = errors.New("crx: central directory record not found")

	// ErrDirectoryOutOfRange is returned when a directory, entry, or payload
	// range extends past the end of the archive.
	ErrDirectoryOutOfRange = errors.New("crx: central directory out of range")

	// ErrDirectorySignature is returned on a central directory entry
	// signature mismatch.
	ErrDirectorySignature = errors.New("crx: central directory signature mismatch")

	// ErrLocalHeaderSignature is returned on a local header signature mismatch.
	ErrLocalHeaderSignature = errors.New("crx: local header signature mismatch")

	// ErrUnsupportedCompression is returned for methods other than stored
	// and deflate.
	ErrUnsupportedCompression = errors.New("crx: unsupported compression method")

	// ErrDecompression is returned when a deflate payload cannot be inflated
	// to its declared uncompressed size.
	ErrDecompression = errors.New("crx: decompression failed")

	// ErrInsecurePath is returned when an entry name would resolve outside
	// the destination directory.
	ErrInsecurePath = errors.New("crx: insecure entry path")
)

// ZIP structure signatures, little-endian on the wire.
const (
	sigDirectoryRecord = 0x06054b50 // end of central directory
	sigDirectoryEntry  = 0x02014b50 // central directory file header
	sigLocalHeader     = 0x04034b50 // local file header
)

const (
	// directoryRecordLen is the fixed size of the end-of-central-directory
	// record, excluding the trailing comment.
	directoryRecordLen = 22

	// maxCommentLen bounds the record's trailing comment field, and with it
	// the backward search window for the record signature.
	maxCommentLen = 0xFFFF

	// directoryEntryLen is the fixed size of a central directory file
	// header, including its signature.
	directoryEntryLen = 46

	// localHeaderLen is the fixed size of a local file header, including its
	// signature.
	localHeaderLen = 30
)

// Compression methods handled by this package.
const (
	MethodStored  = 0
	MethodDeflate = 8
)

// Entry describes one file or directory recorded in the central directory.
//
// All fields come from the central directory, not from the entry's local
// header. Entries appear in directory order.
type Entry struct {
	// Name is the entry path as recorded in the archive, forward-slash
	// separated. A trailing slash marks a directory entry.
	Name string

	// Method is the compression method (MethodStored or MethodDeflate for
	// extractable entries).
	Method uint16

	// Flags is the general-purpose bit flag word.
	Flags uint16

	// CRC32 is the recorded checksum of the uncompressed content. It is
	// carried for callers but not verified during extraction.
	CRC32 uint32

	// CompressedSize is the exact byte length of the payload following the
	// entry's local header.
	CompressedSize uint32

	// UncompressedSize is the declared size of the decoded content.
	UncompressedSize uint32

	// LocalOffset is the byte offset of the entry's local header within the
	// archive.
	LocalOffset uint32
}

// IsDir reports whether the entry is a directory marker.
func (e Entry) IsDir() bool {
	return strings.HasSuffix(e.Name, "/")
}

// findDirectoryRecord scans backward for the end-of-central-directory
// signature and returns its offset.
//
// The scan starts at the last position that leaves room for the 22-byte
// fixed record and moves toward the front, stopping no earlier than
// maxCommentLen bytes before that. The first signature met going backward
// wins; equivalently, of all candidate positions the one nearest the end of
// the archive is chosen. The rule is deterministic even when comment bytes
// happen to contain the signature pattern.
func findDirectoryRecord(archive []byte) (int, error) {
	if len(archive) < directoryRecordLen {
		return 0, fmt.Errorf("archive is %d bytes, below the %d-byte record minimum: %w",
			len(archive), directoryRecordLen, ErrDirectoryNotFound)
	}
	floor := 0
	if len(archive) > directoryRecordLen+maxCommentLen {
		floor = len(archive) - directoryRecordLen - maxCommentLen
	}
	for off := len(archive) - directoryRecordLen; off >= floor; off-- {
		if binary.LittleEndian.Uint32(archive[off:]) == sigDirectoryRecord {
			return off, nil
		}
	}
	return 0, fmt.Errorf("no record signature in trailing %d bytes: %w",
		len(archive)-floor, ErrDirectoryNotFound)
}

// ParseDirectory locates the end-of-central-directory record and decodes the
// full central directory into entry descriptors, in directory order.
func ParseDirectory(archive []byte) ([]Entry, error) {
	recOff, err := findDirectoryRecord(archive)
	if err != nil {
		return nil, err
	}

	total := int(binary.LittleEndian.Uint16(archive[recOff+10:]))
	dirSize := binary.LittleEndian.Uint32(archive[recOff+12:])
	dirOff := binary.LittleEndian.Uint32(archive[recOff+16:])

	if uint64(dirOff)+uint64(dirSize) > uint64(len(archive)) {
		return nil, fmt.Errorf("directory claims [%d, %d) in a %d-byte archive: %w",
			dirOff, uint64(dirOff)+uint64(dirSize), len(archive), ErrDirectoryOutOfRange)
	}

	entries := make([]Entry, 0, total)
	off := int(dirOff)
	for i := 0; i < total; i++ {
		if off+directoryEntryLen > len(archive) {
			return nil, fmt.Errorf("directory entry %d at offset %d is truncated: %w",
				i, off, ErrDirectoryOutOfRange)
		}
		if got := binary.LittleEndian.Uint32(archive[off:]); got != sigDirectoryEntry {
			return nil, fmt.Errorf("directory entry %d at offset %d has signature %#08x: %w",
				i, off, got, ErrDirectorySignature)
		}

		e := Entry{
			Flags:            binary.LittleEndian.Uint16(archive[off+8:]),
			Method:           binary.LittleEndian.Uint16(archive[off+10:]),
			CRC32:            binary.LittleEndian.Uint32(archive[off+16:]),
			CompressedSize:   binary.LittleEndian.Uint32(archive[off+20:]),
			UncompressedSize: binary.LittleEndian.Uint32(archive[off+24:]),
			LocalOffset:      binary.LittleEndian.Uint32(archive[off+42:]),
		}
		nameLen := int(binary.LittleEndian.Uint16(archive[off+28:]))
		extraLen := int(binary.LittleEndian.Uint16(archive[off+30:]))
		commentLen := int(binary.LittleEndian.Uint16(archive[off+32:]))

		next := off + directoryEntryLen + nameLen + extraLen + commentLen
		if next > len(archive) {
			return nil, fmt.Errorf("directory entry %d at offset %d extends past end of archive: %w",
				i, off, ErrDirectoryOutOfRange)
		}
		e.Name = string(archive[off+directoryEntryLen : off+directoryEntryLen+nameLen])

		entries = append(entries, e)
		off = next
	}
	return entries, nil
}

// payload returns the entry's compressed bytes, located via the entry's
// local header. The payload length is the central directory's compressed
// size; the local header contributes only its own name and extra-field
// lengths, which may differ from the directory's.
func payload(archive []byte, e Entry) ([]byte, error) {
	off := int(e.LocalOffset)
	if off+localHeaderLen > len(archive) {
		return nil, fmt.Errorf("entry %q: local header at offset %d is truncated: %w",
			e.Name, off, ErrDirectoryOutOfRange)
	}
	if got := binary.LittleEndian.Uint32(archive[off:]); got != sigLocalHeader {
		return nil, fmt.Errorf("entry %q: local header at offset %d has signature %#08x: %w",
			e.Name, off, got, ErrLocalHeaderSignature)
	}

	nameLen := int(binary.LittleEndian.Uint16(archive[off+26:]))
	extraLen := int(binary.LittleEndian.Uint16(archive[off+28:]))

	start := uint64(off) + localHeaderLen + uint64(nameLen) + uint64(extraLen)
	end := start + uint64(e.CompressedSize)
	if end > uint64(len(archive)) {
		return nil, fmt.Errorf("entry %q: payload [%d, %d) extends past end of archive: %w",
			e.Name, start, end, ErrDirectoryOutOfRange)
	}
	return archive[start:end], nil
}
