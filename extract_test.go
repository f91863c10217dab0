package crx

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Maksandre/crx-fetch/internal/testutil"
)

// roundTripEntries is a representative mix: stored and deflate payloads, a
// directory marker, a nested path, and a zero-length file.
func roundTripEntries() []testutil.ZipEntry {
	return []testutil.ZipEntry{
		{Name: "manifest.json", Data: []byte(`{"name":"example","version":"1.0"}`)},
		{Name: "background.js", Data: bytes.Repeat([]byte("chrome.runtime.onInstalled.addListener();\n"), 64), Deflate: true},
		{Name: "icons/", Data: nil},
		{Name: "icons/128.png", Data: []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}},
		{Name: "_locales/en/messages.json", Data: []byte(`{"appName":{"message":"Example"}}`), Deflate: true},
		{Name: "empty.txt", Data: nil},
	}
}

// requireTree asserts that every file entry exists under destDir with its
// exact content and every directory marker exists as a directory.
func requireTree(t *testing.T, destDir string, entries []testutil.ZipEntry) {
	t.Helper()
	for _, e := range entries {
		target := filepath.Join(destDir, filepath.FromSlash(e.Name))
		info, err := os.Stat(target)
		require.NoError(t, err, "entry %q missing", e.Name)
		if e.Name[len(e.Name)-1] == '/' {
			assert.True(t, info.IsDir(), "entry %q should be a directory", e.Name)
			continue
		}
		content, err := os.ReadFile(target)
		require.NoError(t, err)
		if e.Data == nil {
			assert.Empty(t, content, "entry %q should be empty", e.Name)
		} else {
			assert.Equal(t, e.Data, content, "entry %q content mismatch", e.Name)
		}
	}
}

func TestExtractRoundTrip(t *testing.T) {
	t.Parallel()

	entries := roundTripEntries()
	archive := testutil.BuildZip(t, entries)

	t.Run("serial", func(t *testing.T) {
		t.Parallel()
		dest := t.TempDir()
		require.NoError(t, Extract(archive, dest))
		requireTree(t, dest, entries)
	})

	t.Run("parallel", func(t *testing.T) {
		t.Parallel()
		dest := t.TempDir()
		require.NoError(t, Extract(archive, dest, ExtractWithWorkers(4)))
		requireTree(t, dest, entries)
	})

	t.Run("empty archive", func(t *testing.T) {
		t.Parallel()
		dest := t.TempDir()
		require.NoError(t, Extract(testutil.BuildZip(t, nil), dest))
		listing, err := os.ReadDir(dest)
		require.NoError(t, err)
		assert.Empty(t, listing)
	})
}

func TestExtractIdempotent(t *testing.T) {
	t.Parallel()

	entries := roundTripEntries()
	archive := testutil.BuildZip(t, entries)
	dest := t.TempDir()

	require.NoError(t, Extract(archive, dest))

	// Scribble over one output, then re-extract: contents must converge and
	// no temp or duplicate files may remain.
	require.NoError(t, os.WriteFile(filepath.Join(dest, "manifest.json"), []byte("stale"), 0o644))
	require.NoError(t, Extract(archive, dest))
	requireTree(t, dest, entries)

	var names []string
	require.NoError(t, filepath.WalkDir(dest, func(path string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if !d.IsDir() {
			rel, relErr := filepath.Rel(dest, path)
			require.NoError(t, relErr)
			names = append(names, filepath.ToSlash(rel))
		}
		return nil
	}))
	assert.ElementsMatch(t, names, []string{
		"manifest.json", "background.js", "icons/128.png",
		"_locales/en/messages.json", "empty.txt",
	})
}

func TestExtractUnsupportedMethodAborts(t *testing.T) {
	t.Parallel()

	archive := testutil.BuildZip(t, []testutil.ZipEntry{
		{Name: "before.txt", Data: []byte("extracted")},
		{Name: "exotic.bin", Data: []byte("bzip2 maybe")},
		{Name: "after.txt", Data: []byte("never extracted")},
	})
	// Patch the central directory's method field for exotic.bin to 99. The
	// directory entry is signature + 10 bytes before the method field.
	dirSig := []byte{0x50, 0x4b, 0x01, 0x02}
	idx := bytes.Index(archive, dirSig)
	require.GreaterOrEqual(t, idx, 0)
	second := bytes.Index(archive[idx+4:], dirSig)
	require.GreaterOrEqual(t, second, 0)
	methodOff := idx + 4 + second + 10
	archive[methodOff] = 99
	archive[methodOff+1] = 0

	dest := t.TempDir()
	err := Extract(archive, dest)
	require.ErrorIs(t, err, ErrUnsupportedCompression)
	assert.Contains(t, err.Error(), "exotic.bin")

	_, err = os.Stat(filepath.Join(dest, "before.txt"))
	assert.NoError(t, err, "entries before the failure stay extracted")
	_, err = os.Stat(filepath.Join(dest, "after.txt"))
	assert.True(t, os.IsNotExist(err), "no entry after the failure may be written")

	// Parallel mode still surfaces the failure as the returned error, though
	// in-flight entries may land in the destination.
	err = Extract(archive, t.TempDir(), ExtractWithWorkers(4))
	require.ErrorIs(t, err, ErrUnsupportedCompression)
	assert.Contains(t, err.Error(), "exotic.bin")
}

func TestUnpackEndToEnd(t *testing.T) {
	t.Parallel()

	// The canonical minimal package: Cr24, version 3, zero-length header
	// block, one stored manifest.json.
	content := []byte(`{"a":1}`)
	archive := testutil.BuildZip(t, []testutil.ZipEntry{{Name: "manifest.json", Data: content}})
	buf := testutil.BuildCRX3(t, 3, nil, archive)

	dest := t.TempDir()
	require.NoError(t, Unpack(buf, dest))

	got, err := os.ReadFile(filepath.Join(dest, "manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, content, got)

	listing, err := os.ReadDir(dest)
	require.NoError(t, err)
	require.Len(t, listing, 1, "no file other than manifest.json may exist")
	assert.Equal(t, "manifest.json", listing[0].Name())
}

func TestUnpackHeaderFailuresDoNotTouchDest(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "never-created")
	err := Unpack([]byte("not a crx at all"), dest)
	require.ErrorIs(t, err, ErrInvalidMagic)
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestList(t *testing.T) {
	t.Parallel()

	entries := roundTripEntries()
	archive := testutil.BuildZip(t, entries)

	got, err := List(archive)
	require.NoError(t, err)
	require.Len(t, got, len(entries))
	for i, e := range entries {
		assert.Equal(t, e.Name, got[i].Name, "directory order must be preserved")
		assert.Equal(t, uint32(len(e.Data)), got[i].UncompressedSize)
	}
	assert.True(t, got[2].IsDir())
}

func TestExtractRejectsEscapingNames(t *testing.T) {
	t.Parallel()

	archive := testutil.BuildZip(t, []testutil.ZipEntry{
		{Name: "../escape.txt", Data: []byte("outside")},
	})
	err := Extract(archive, t.TempDir())
	assert.ErrorIs(t, err, ErrInsecurePath)
}
