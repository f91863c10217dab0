package zipfile

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// inflaterPool reuses raw-deflate readers across entries to reduce
// allocation overhead. Readers are reset onto each entry's payload rather
// than constructed fresh.
type inflaterPool struct {
	pool sync.Pool
}

// get returns a reader positioned at the start of r.
// The caller must call the returned release function when done.
func (p *inflaterPool) get(r io.Reader) (io.Reader, func()) {
	value := p.pool.Get()
	if value == nil {
		fr := flate.NewReader(r)
		return fr, func() { p.pool.Put(fr) }
	}

	fr, ok := value.(io.ReadCloser)
	if !ok {
		fr = flate.NewReader(r)
		return fr, func() { p.pool.Put(fr) }
	}
	// Readers from flate.NewReader always implement Resetter.
	if err := fr.(flate.Resetter).Reset(r, nil); err != nil {
		fr = flate.NewReader(r)
	}
	return fr, func() { p.pool.Put(fr) }
}

// inflate decodes a raw-deflate payload (no zlib or gzip framing) and checks
// the result against the declared uncompressed size.
func (p *inflaterPool) inflate(name string, compressed []byte, uncompressedSize uint32) ([]byte, error) {
	fr, release := p.get(bytes.NewReader(compressed))
	defer release()

	out, err := io.ReadAll(fr)
	if err != nil {
		return nil, fmt.Errorf("entry %q: inflate: %v: %w", name, err, ErrDecompression)
	}
	if uint64(len(out)) != uint64(uncompressedSize) {
		return nil, fmt.Errorf("entry %q: inflated to %d bytes, directory declares %d: %w",
			name, len(out), uncompressedSize, ErrDecompression)
	}
	return out, nil
}

// decode turns an entry's payload into its file content according to the
// entry's compression method.
func decode(p *inflaterPool, e Entry, compressed []byte) ([]byte, error) {
	switch e.Method {
	case MethodStored:
		return compressed, nil
	case MethodDeflate:
		return p.inflate(e.Name, compressed, e.UncompressedSize)
	default:
		return nil, fmt.Errorf("entry %q: method %d: %w", e.Name, e.Method, ErrUnsupportedCompression)
	}
}
