// Package testutil builds CRX and ZIP fixtures for tests.
//
// The ZIP builder writes archive structures by hand so tests can control
// exactly what ends up on the wire: stored and deflate payloads, directory
// markers, streaming data descriptors, and trailing comments.
package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/require"
)

// ZipEntry describes one entry to place in a built archive.
type ZipEntry struct {
	// Name is the entry path. A trailing slash produces a directory marker
	// with no payload.
	Name string

	// Data is the uncompressed content.
	Data []byte

	// Deflate compresses the payload with raw deflate (method 8) instead of
	// storing it verbatim (method 0).
	Deflate bool

	// Streamed writes the local header with zero size and CRC fields, sets
	// the data-descriptor flag, and appends a data descriptor after the
	// payload. The real sizes appear only in the central directory, the way
	// streaming ZIP writers produce entries.
	Streamed bool
}

// ZipOption adjusts a built archive.
type ZipOption func(*zipConfig)

type zipConfig struct {
	comment []byte
}

// ZipWithComment appends a trailing comment to the end-of-central-directory
// record.
func ZipWithComment(comment []byte) ZipOption {
	return func(cfg *zipConfig) {
		cfg.comment = comment
	}
}

// BuildZip assembles a ZIP archive from entries, in order.
func BuildZip(tb testing.TB, entries []ZipEntry, opts ...ZipOption) []byte {
	tb.Helper()

	cfg := zipConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	require.LessOrEqual(tb, len(cfg.comment), 0xFFFF, "comment exceeds ZIP limit")

	var buf bytes.Buffer
	offsets := make([]uint32, len(entries))

	for i, e := range entries {
		offsets[i] = uint32(buf.Len())
		writeLocal(tb, &buf, e)
	}

	dirOff := uint32(buf.Len())
	for i, e := range entries {
		writeDirectoryEntry(tb, &buf, e, offsets[i])
	}
	dirSize := uint32(buf.Len()) - dirOff

	writeDirectoryRecord(&buf, uint16(len(entries)), dirSize, dirOff, cfg.comment)
	return buf.Bytes()
}

// Signatures used by the builder.
const (
	sigLocal          = 0x04034b50
	sigDirectory      = 0x02014b50
	sigRecord         = 0x06054b50
	sigDataDescriptor = 0x08074b50
)

const flagDataDescriptor = 0x0008

func writeLocal(tb testing.TB, buf *bytes.Buffer, e ZipEntry) {
	tb.Helper()

	compressed, method := encode(tb, e)
	sum := crc32.ChecksumIEEE(e.Data)

	flags := uint16(0)
	headerCRC, headerCSize, headerUSize := sum, uint32(len(compressed)), uint32(len(e.Data))
	if e.Streamed {
		flags |= flagDataDescriptor
		headerCRC, headerCSize, headerUSize = 0, 0, 0
	}

	w32(buf, sigLocal)
	w16(buf, 20) // version needed
	w16(buf, flags)
	w16(buf, method)
	w16(buf, 0) // mod time
	w16(buf, 0) // mod date
	w32(buf, headerCRC)
	w32(buf, headerCSize)
	w32(buf, headerUSize)
	w16(buf, uint16(len(e.Name)))
	w16(buf, 0) // extra length
	buf.WriteString(e.Name)
	buf.Write(compressed)

	if e.Streamed {
		w32(buf, sigDataDescriptor)
		w32(buf, sum)
		w32(buf, uint32(len(compressed)))
		w32(buf, uint32(len(e.Data)))
	}
}

func writeDirectoryEntry(tb testing.TB, buf *bytes.Buffer, e ZipEntry, localOff uint32) {
	tb.Helper()

	compressed, method := encode(tb, e)
	flags := uint16(0)
	if e.Streamed {
		flags |= flagDataDescriptor
	}

	w32(buf, sigDirectory)
	w16(buf, 20) // version made by
	w16(buf, 20) // version needed
	w16(buf, flags)
	w16(buf, method)
	w16(buf, 0) // mod time
	w16(buf, 0) // mod date
	w32(buf, crc32.ChecksumIEEE(e.Data))
	w32(buf, uint32(len(compressed)))
	w32(buf, uint32(len(e.Data)))
	w16(buf, uint16(len(e.Name)))
	w16(buf, 0) // extra length
	w16(buf, 0) // comment length
	w16(buf, 0) // disk number
	w16(buf, 0) // internal attributes
	w32(buf, 0) // external attributes
	w32(buf, localOff)
	buf.WriteString(e.Name)
}

func writeDirectoryRecord(buf *bytes.Buffer, total uint16, dirSize, dirOff uint32, comment []byte) {
	w32(buf, sigRecord)
	w16(buf, 0) // disk number
	w16(buf, 0) // directory start disk
	w16(buf, total)
	w16(buf, total)
	w32(buf, dirSize)
	w32(buf, dirOff)
	w16(buf, uint16(len(comment)))
	buf.Write(comment)
}

// encode returns the on-wire payload and compression method for an entry.
func encode(tb testing.TB, e ZipEntry) ([]byte, uint16) {
	tb.Helper()

	if !e.Deflate {
		return e.Data, 0
	}

	var out bytes.Buffer
	fw, err := flate.NewWriter(&out, flate.DefaultCompression)
	require.NoError(tb, err, "create deflate writer")
	_, err = fw.Write(e.Data)
	require.NoError(tb, err, "compress entry data")
	require.NoError(tb, fw.Close(), "close deflate writer")
	return out.Bytes(), 8
}

func w16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func w32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
