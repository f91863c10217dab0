package testutil

import (
	"bytes"
	"testing"
)

// BuildCRX2 wraps archive in a version 2 container carrying the given public
// key and signature blocks.
func BuildCRX2(tb testing.TB, publicKey, signature, archive []byte) []byte {
	tb.Helper()

	var buf bytes.Buffer
	buf.WriteString("Cr24")
	w32(&buf, 2)
	w32(&buf, uint32(len(publicKey)))
	w32(&buf, uint32(len(signature)))
	buf.Write(publicKey)
	buf.Write(signature)
	buf.Write(archive)
	return buf.Bytes()
}

// BuildCRX3 wraps archive in a version 3 container with the given header
// block. Pass version 4 to build the newer layout, which is identical.
func BuildCRX3(tb testing.TB, version uint32, header, archive []byte) []byte {
	tb.Helper()

	var buf bytes.Buffer
	buf.WriteString("Cr24")
	w32(&buf, version)
	w32(&buf, uint32(len(header)))
	buf.Write(header)
	buf.Write(archive)
	return buf.Bytes()
}
