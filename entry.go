// Copyright 2025 The parzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parzip

import (
	"bytes"
	"io"
	"io/fs"
	"math"
	"os"
	"strings"
	"time"
)

// SizeUnknown is a sentinel value used when the uncompressed size of an
// entry cannot be determined before compression (e.g., streaming from io.Reader).
const SizeUnknown int64 = -1

// Entry represents one file-to-be-archived. Each Entry corresponds to one
// local file header and one central directory record in the produced
// archive. Entries are created through the Archive registration calls and
// are immutable once compression begins.
type Entry struct {
	name  string      // Path within the archive (forward slashes, no leading slash)
	isDir bool        // True if this entry represents a directory
	mode  fs.FileMode // Unix-style file permissions and type bits
	index int         // Insertion index; fixes this entry's position in the output

	openFunc func() (io.ReadCloser, error) // Factory function for reading the raw content

	sizeHint int64 // Expected uncompressed size, SizeUnknown if not known up front

	method  CompressionMethod // Compression method chosen at registration
	level   int               // Deflate level, 0 means default
	comment string            // Per-entry comment written to the central directory

	modTime    time.Time         // Entry modification time
	extraField map[uint16][]byte // ZIP extra fields keyed by tag ID
}

// newEntryFromBytes creates an Entry backed by an in-memory buffer.
func newEntryFromBytes(data []byte, name string) *Entry {
	return &Entry{
		name:       name,
		mode:       0644,
		sizeHint:   int64(len(data)),
		modTime:    time.Now(),
		extraField: make(map[uint16][]byte),
		openFunc: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// newEntryFromReader creates an Entry backed by an arbitrary io.Reader.
// The reader is consumed exactly once, during the compression phase.
func newEntryFromReader(src io.Reader, name string, size int64) *Entry {
	return &Entry{
		name:       name,
		mode:       0644,
		sizeHint:   size,
		modTime:    time.Now(),
		extraField: make(map[uint16][]byte),
		openFunc: func() (io.ReadCloser, error) {
			return io.NopCloser(src), nil
		},
	}
}

// newEntryFromPath creates an Entry backed by a deferred file read.
// Metadata is captured now; the file itself is opened during the
// compression phase, and open or read failures surface there.
func newEntryFromPath(filePath, name string) (*Entry, error) {
	info, err := os.Lstat(filePath)
	if err != nil {
		return nil, err
	}

	var sizeHint int64
	var isSymlink = info.Mode()&fs.ModeSymlink != 0
	var linkTarget string

	if isSymlink {
		linkTarget, err = os.Readlink(filePath)
		if err != nil {
			return nil, err
		}
		sizeHint = int64(len(linkTarget))
	} else {
		sizeHint = info.Size()
	}

	e := &Entry{
		name:       name,
		mode:       info.Mode(),
		sizeHint:   sizeHint,
		modTime:    info.ModTime(),
		extraField: make(map[uint16][]byte),
	}

	if isSymlink {
		e.openFunc = func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(linkTarget)), nil
		}
	} else {
		e.openFunc = func() (io.ReadCloser, error) {
			return os.Open(filePath)
		}
	}

	return e, nil
}

// newEntryFromFunc creates an Entry whose content comes from openFunc,
// called exactly once during the compression phase.
func newEntryFromFunc(name string, openFunc func() (io.ReadCloser, error)) *Entry {
	return &Entry{
		name:       name,
		mode:       0644,
		sizeHint:   SizeUnknown,
		modTime:    time.Now(),
		extraField: make(map[uint16][]byte),
		openFunc:   openFunc,
	}
}

// newDirectoryEntry creates an Entry representing a directory. Directory
// entries carry no data and are always stored.
func newDirectoryEntry(name string) *Entry {
	return &Entry{
		name:       name,
		isDir:      true,
		mode:       0755 | fs.ModeDir,
		modTime:    time.Now(),
		extraField: make(map[uint16][]byte),
	}
}

// Name returns the entry's path within the archive.
func (e *Entry) Name() string { return e.name }

// IsDir returns true if the entry represents a directory.
func (e *Entry) IsDir() bool { return e.isDir }

// Mode returns the entry's file mode bits.
func (e *Entry) Mode() fs.FileMode { return e.mode }

// Method returns the entry's compression method.
func (e *Entry) Method() CompressionMethod { return e.method }

// Index returns the entry's insertion index. Indexes form a dense 0..N
// sequence in registration order and are never reassigned.
func (e *Entry) Index() int { return e.index }

// ModTime returns the entry's modification timestamp.
func (e *Entry) ModTime() time.Time { return e.modTime }

// Comment returns the entry's central directory comment.
func (e *Entry) Comment() string { return e.comment }

// SetExtraField adds or replaces an extra field block for this entry.
// The data must be a complete block including its tag and size prefix.
// Returns an error if adding the field would exceed the maximum extra
// field length.
func (e *Entry) SetExtraField(tag uint16, data []byte) error {
	currentLen := e.extraFieldLength()

	// If replacing, subtract the size of the old field
	if oldData, ok := e.extraField[tag]; ok {
		currentLen -= len(oldData)
	}

	if currentLen+len(data) > math.MaxUint16 {
		return ErrExtraFieldTooLong
	}
	e.extraField[tag] = data
	return nil
}

// extraFieldLength calculates the total size of all extra field blocks.
func (e *Entry) extraFieldLength() int {
	var size int
	for _, entry := range e.extraField {
		size += len(entry)
	}
	return size
}

// headerName returns the entry name as it appears in ZIP headers.
// Directories carry a trailing slash.
func (e *Entry) headerName() string {
	if e.isDir {
		return e.name + "/"
	}
	return e.name
}

// open returns the entry's raw content. Directories have no content and
// yield an empty reader.
func (e *Entry) open() (io.ReadCloser, error) {
	if e.openFunc == nil {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return e.openFunc()
}
