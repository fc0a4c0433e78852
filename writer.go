// Copyright 2025 The parzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parzip

import (
	"bytes"
	"fmt"
	"io"

	"github.com/parzip/parzip/internal"
)

// zipWriter handles the low-level writing of the ZIP archive structure.
// It is strictly sequential: entries are written in ascending insertion
// index with their local headers and data, the central directory is
// accumulated in memory, and the end record is emitted last. All sizes
// and checksums are known before the first byte is written, so no field
// is ever patched after the fact.
type zipWriter struct {
	dest             io.Writer     // Target stream for writing archive data
	comment          string        // Archive-level comment for the end record
	entriesNum       int           // Number of entries written to the archive
	sizeOfCentralDir int64         // Cumulative size of central directory entries
	headerOffset     int64         // Current write position within the archive
	centralDir       *bytes.Buffer // Accumulates central directory records until the final write
}

func newZipWriter(dest io.Writer, comment string) *zipWriter {
	return &zipWriter{
		dest:       dest,
		comment:    comment,
		centralDir: new(bytes.Buffer),
	}
}

// WriteArchive serializes the complete archive. It requires the
// compression phase to be fully complete: every entry must have a result
// in its slot.
func (zw *zipWriter) WriteArchive(entries []*Entry, results []compressionResult) error {
	if len(results) != len(entries) {
		return ErrIncompleteCompression
	}

	for i, e := range entries {
		if err := zw.writeEntry(e, results[i]); err != nil {
			return fmt.Errorf("zip: write entry %s: %w", e.name, err)
		}
	}

	return zw.writeCentralDirAndEndRecord()
}

// writeEntry emits one local file header followed by the entry's
// compressed bytes, records the header offset, and appends the matching
// central directory record to the buffer.
func (zw *zipWriter) writeEntry(e *Entry, res compressionResult) error {
	addTimestampExtraField(e)

	offset := zw.headerOffset
	headers := newEntryHeaders(e, res, offset)

	if n, err := zw.dest.Write(headers.LocalHeader().Encode()); err != nil {
		return fmt.Errorf("write local header: %w", err)
	} else {
		zw.headerOffset += int64(n)
	}

	if len(res.data) > 0 {
		if n, err := zw.dest.Write(res.data); err != nil {
			return fmt.Errorf("write data: %w", err)
		} else {
			zw.headerOffset += int64(n)
		}
	}

	if n, err := zw.centralDir.Write(headers.CentralDirEntry().Encode()); err != nil {
		return fmt.Errorf("buffer central directory entry: %w", err)
	} else {
		zw.sizeOfCentralDir += int64(n)
		zw.entriesNum++
	}

	return nil
}

// writeCentralDirAndEndRecord writes the buffered central directory and
// the end of central directory record, completing the archive.
func (zw *zipWriter) writeCentralDirAndEndRecord() error {
	if _, err := zw.dest.Write(zw.centralDir.Bytes()); err != nil {
		return fmt.Errorf("zip: write central directory: %w", err)
	}

	endOfCentralDir := internal.EncodeEndOfCentralDirRecord(
		zw.entriesNum,
		uint64(zw.sizeOfCentralDir),
		uint64(zw.headerOffset),
		zw.comment,
	)
	if _, err := zw.dest.Write(endOfCentralDir); err != nil {
		return fmt.Errorf("zip: write end of central directory: %w", err)
	}

	return nil
}
