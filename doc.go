// Package crx decodes CRX browser-extension packages: a versioned container
// header wrapping a ZIP archive.
//
// The package operates on in-memory buffers. [ParseHeader] and [StripHeader]
// validate the container prefix and locate the embedded archive; [Extract]
// parses the archive's central directory and materializes every entry under a
// destination directory. [Unpack] combines the two steps.
//
// Extraction is directory-first: all entry metadata (names, sizes,
// compression methods, payload offsets) is read from the central directory
// before any payload is touched. Size fields in per-entry local headers are
// never consulted, so archives written with streaming data descriptors
// extract correctly.
//
// # Quick Start
//
// Unpack a downloaded package:
//
//	buf, err := fetch.Fetch(ctx, fetch.StoreURL(id))
//	if err != nil {
//	    return err
//	}
//	err = crx.Unpack(buf, "./unpacked")
//
// Inspect without extracting:
//
//	archive, err := crx.StripHeader(buf)
//	if err != nil {
//	    return err
//	}
//	entries, err := crx.List(archive)
//
// Retrieval of the container bytes is out of scope here; see the fetch
// subpackage.
package crx
