// Copyright 2025 The parzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parzip

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	valid := []string{
		"file.txt",
		"dir/file.txt",
		"a/b/c/d/e.bin",
		"no extension",
		"unicode/файл.txt",
		"..leading-dots.txt",
		"dir/...three",
	}
	for _, name := range valid {
		assert.NoError(t, validateName(name), "name %q", name)
	}

	invalid := []string{
		"",
		"/rooted.txt",
		"dir//double.txt",
		"dir/",
		"back\\slash.txt",
		".",
		"..",
		"dir/../escape.txt",
		"./relative.txt",
		"dir/.",
	}
	for _, name := range invalid {
		assert.ErrorIs(t, validateName(name), ErrInvalidName, "name %q", name)
	}
}

func TestArchive_InvalidNameRejected(t *testing.T) {
	a := New()
	err := a.AddBytes([]byte("x"), "/rooted.txt")
	require.ErrorIs(t, err, ErrInvalidName)
	assert.Zero(t, a.Len())
}

func TestArchive_DuplicateName(t *testing.T) {
	a := New()
	require.NoError(t, a.AddBytes([]byte("first"), "a.txt"))

	err := a.AddBytes([]byte("second"), "a.txt")
	require.ErrorIs(t, err, ErrDuplicateEntry)

	// The failed registration must not disturb the registry.
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, []string{"a.txt"}, a.Names())
}

func TestArchive_CaseSensitiveNames(t *testing.T) {
	a := New()
	require.NoError(t, a.AddBytes([]byte("lower"), "readme.md"))
	require.NoError(t, a.AddBytes([]byte("upper"), "README.md"))
	assert.Equal(t, 2, a.Len())
}

func TestArchive_FileDirectoryCollision(t *testing.T) {
	a := New()
	require.NoError(t, a.Mkdir("logs"))
	assert.ErrorIs(t, a.AddBytes([]byte("x"), "logs"), ErrDuplicateEntry)
	assert.ErrorIs(t, a.Mkdir("logs/"), ErrDuplicateEntry)

	require.NoError(t, a.AddBytes([]byte("y"), "data"))
	assert.ErrorIs(t, a.Mkdir("data"), ErrDuplicateEntry)

	// A file inside the directory is not a collision.
	require.NoError(t, a.AddBytes([]byte("z"), "logs/app.log"))
	assert.Equal(t, 3, a.Len())
}

func TestArchive_InsertionIndexesAreDense(t *testing.T) {
	a := New()
	names := []string{"one.txt", "two.txt", "three.txt", "four.txt"}
	for _, name := range names {
		require.NoError(t, a.AddString(name, name))
	}

	// An invalid registration in between must not consume an index.
	require.Error(t, a.AddString("x", "one.txt"))
	require.NoError(t, a.AddString("x", "five.txt"))

	assert.Equal(t, append(names, "five.txt"), a.Names())
	for i, e := range a.entries {
		assert.Equal(t, i, e.Index())
	}
}

func TestArchive_FrozenAfterWrite(t *testing.T) {
	a := New()
	require.NoError(t, a.AddBytes([]byte("data"), "a.txt"))

	_, err := a.WriteTo(io.Discard)
	require.NoError(t, err)

	assert.ErrorIs(t, a.AddBytes([]byte("late"), "b.txt"), ErrFrozen)
	assert.ErrorIs(t, a.Mkdir("dir"), ErrFrozen)
	assert.Equal(t, 1, a.Len())
}

func TestArchive_NilSources(t *testing.T) {
	a := New()
	assert.ErrorIs(t, a.AddReader(nil, "a.txt", SizeUnknown), ErrNilSource)
	assert.ErrorIs(t, a.AddLazy("b.txt", nil), ErrNilSource)
}

func TestArchive_AddReaderNegativeSize(t *testing.T) {
	a := New()
	err := a.AddReader(strings.NewReader("x"), "a.txt", -5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size cannot be negative")

	// SizeUnknown is the one allowed negative value.
	assert.NoError(t, a.AddReader(strings.NewReader("x"), "b.txt", SizeUnknown))
}

func TestArchive_UnknownMethodRejectedAtRegistration(t *testing.T) {
	const custom = CompressionMethod(93)

	a := New()
	err := a.AddBytes([]byte("x"), "a.txt", WithMethod(custom))
	require.ErrorIs(t, err, ErrAlgorithm)

	// Registering a factory makes the method acceptable.
	a.RegisterCompressor(custom, func(level int) Compressor {
		return new(StoredCompressor)
	})
	assert.NoError(t, a.AddBytes([]byte("x"), "a.txt", WithMethod(custom)))
}

func TestArchive_RegisterCompressorIgnoredAfterFreeze(t *testing.T) {
	a := New()
	require.NoError(t, a.AddBytes([]byte("data"), "a.txt"))

	_, err := a.WriteTo(io.Discard)
	require.NoError(t, err)

	// The factory set is fixed alongside the entry set once a build
	// starts; late registrations must not touch it.
	a.RegisterCompressor(CompressionMethod(93), func(level int) Compressor {
		return new(StoredCompressor)
	})
	_, ok := a.factories[CompressionMethod(93)]
	assert.False(t, ok)
}

func TestArchive_SetConfig(t *testing.T) {
	a := New()

	err := a.SetConfig(Config{Comment: strings.Repeat("c", 70000)})
	assert.ErrorIs(t, err, ErrCommentTooLong)

	require.NoError(t, a.SetConfig(Config{
		CompressionMethod: Store,
		Workers:           2,
	}))

	require.NoError(t, a.AddBytes([]byte("x"), "a.txt"))
	assert.Equal(t, Store, a.entries[0].Method())
}

func TestArchive_EntryCommentTooLong(t *testing.T) {
	a := New()
	err := a.AddBytes([]byte("x"), "a.txt", WithComment(strings.Repeat("c", 70000)))
	assert.ErrorIs(t, err, ErrCommentTooLong)
}

func TestArchive_AddFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "source.txt")
	require.NoError(t, os.WriteFile(path, []byte("file contents"), 0644))

	a := New()
	require.NoError(t, a.AddFile(path, "docs/source.txt"))
	require.Equal(t, 1, a.Len())

	e := a.entries[0]
	assert.Equal(t, "docs/source.txt", e.Name())
	assert.Equal(t, int64(len("file contents")), e.sizeHint)
	assert.False(t, e.ModTime().IsZero())

	// Metadata only: a missing file fails at registration, not later.
	err := a.AddFile(filepath.Join(dir, "missing.txt"), "missing.txt")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestArchive_MkdirNormalizesTrailingSlash(t *testing.T) {
	a := New()
	require.NoError(t, a.Mkdir("assets/"))

	e := a.entries[0]
	assert.Equal(t, "assets", e.Name())
	assert.True(t, e.IsDir())
	assert.Equal(t, "assets/", e.headerName())
	assert.Equal(t, Store, e.Method())
}

func TestArchive_OptionsIgnoredForDirectories(t *testing.T) {
	a := New()
	require.NoError(t, a.Mkdir("dir", WithMethod(Deflate), WithLevel(DeflateMaximum)))

	e := a.entries[0]
	assert.Equal(t, Store, e.Method())
	assert.Zero(t, e.level)
}

func TestEntry_SetExtraField(t *testing.T) {
	e := newEntryFromBytes(nil, "a.bin")

	big := make([]byte, 60000)
	require.NoError(t, e.SetExtraField(0x0001, big))

	// A second large field would push the total past the format limit.
	assert.ErrorIs(t, e.SetExtraField(0x0002, big), ErrExtraFieldTooLong)

	// Replacing the existing field under the same tag is fine.
	assert.NoError(t, e.SetExtraField(0x0001, make([]byte, 65000)))
	assert.Equal(t, 65000, e.extraFieldLength())
}
