package crx

import (
	"encoding/binary"
	"fmt"
)

// Magic is the four-byte prefix of every CRX container.
const Magic = "Cr24"

// Container versions understood by this package.
const (
	// Version2 headers carry an inline public key and signature.
	Version2 = 2
	// Version3 headers carry a single length-prefixed protobuf block.
	Version3 = 3
	// Version4 headers use the same layout as version 3.
	Version4 = 4
)

// Header describes a parsed CRX container prefix.
//
// PublicKeyLen and SignatureLen are populated for version 2 headers;
// HeaderLen for versions 3 and 4. ArchiveOffset is the byte offset at which
// the embedded ZIP archive begins.
type Header struct {
	Version       uint32
	PublicKeyLen  uint32
	SignatureLen  uint32
	HeaderLen     uint32
	ArchiveOffset int
}

// ParseHeader validates the container prefix of buf and computes the offset
// of the embedded archive.
//
// Version 2 headers are laid out as magic, version, public-key length, and
// signature length (four bytes each, little-endian), followed by the key and
// signature themselves: the archive starts at 16 + pkLen + sigLen. Versions 3
// and 4 replace the two lengths with a single header-size field: the archive
// starts at 12 + headerLen. The header is skipped, not verified.
//
// ParseHeader is a pure function of buf and performs no allocation.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < len(Magic) || string(buf[:len(Magic)]) != Magic {
		return Header{}, fmt.Errorf("buffer does not start with %q: %w", Magic, ErrInvalidMagic)
	}
	if len(buf) < 8 {
		return Header{}, fmt.Errorf("buffer truncated before version field: %w", ErrMalformedHeader)
	}

	h := Header{Version: binary.LittleEndian.Uint32(buf[4:])}

	var archiveStart uint64
	switch h.Version {
	case Version2:
		if len(buf) < 16 {
			return Header{}, fmt.Errorf("buffer truncated before version 2 length fields: %w", ErrMalformedHeader)
		}
		h.PublicKeyLen = binary.LittleEndian.Uint32(buf[8:])
		h.SignatureLen = binary.LittleEndian.Uint32(buf[12:])
		archiveStart = 16 + uint64(h.PublicKeyLen) + uint64(h.SignatureLen)
	case Version3, Version4:
		if len(buf) < 12 {
			return Header{}, fmt.Errorf("buffer truncated before header size field: %w", ErrMalformedHeader)
		}
		h.HeaderLen = binary.LittleEndian.Uint32(buf[8:])
		archiveStart = 12 + uint64(h.HeaderLen)
	default:
		return Header{}, fmt.Errorf("version %d: %w", h.Version, ErrUnsupportedVersion)
	}

	if archiveStart >= uint64(len(buf)) {
		return Header{}, fmt.Errorf("header consumes %d of %d bytes: %w", archiveStart, len(buf), ErrMalformedHeader)
	}
	h.ArchiveOffset = int(archiveStart)
	return h, nil
}

// StripHeader returns the embedded archive as a sub-slice of buf.
//
// The returned slice aliases buf; callers must not modify buf while the
// archive view is in use.
func StripHeader(buf []byte) ([]byte, error) {
	h, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}
	return buf[h.ArchiveOffset:], nil
}
