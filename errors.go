// Copyright 2025 The parzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parzip

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidName is returned when an entry name violates archive path rules.
	ErrInvalidName = errors.New("zip: invalid entry name")

	// ErrDuplicateEntry is returned when attempting to add an entry with a name that already exists.
	ErrDuplicateEntry = errors.New("zip: duplicate entry name")

	// ErrFrozen is returned when registering entries after a build has started.
	ErrFrozen = errors.New("zip: archive is frozen, no further entries may be added")

	// ErrIncompleteCompression is returned when serialization is requested
	// before every entry has a compression result.
	ErrIncompleteCompression = errors.New("zip: compression phase incomplete")

	// ErrAlgorithm is returned when a compression method is not supported.
	ErrAlgorithm = errors.New("zip: unsupported compression algorithm")

	// ErrFilenameTooLong is returned when an entry name exceeds 65535 bytes.
	ErrFilenameTooLong = errors.New("zip: entry name too long")

	// ErrCommentTooLong is returned when a comment exceeds 65535 bytes.
	ErrCommentTooLong = errors.New("zip: comment too long")

	// ErrExtraFieldTooLong is returned when the total size of extra fields exceeds 65535 bytes.
	ErrExtraFieldTooLong = errors.New("zip: extra field too long")

	// ErrNilSource is returned when a nil reader or open function is passed to registration.
	ErrNilSource = errors.New("zip: entry data source cannot be nil")
)

// EntryError reports that a single entry's data source could not be read
// or compressed. It identifies the offending entry; sibling entries are
// unaffected unless fail-fast mode is enabled.
type EntryError struct {
	Name  string // entry name within the archive
	Index int    // insertion index of the entry
	Err   error  // underlying read or compression error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("zip: entry %q: %v", e.Name, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }
