// Copyright 2025 The parzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parzip

import (
	"encoding/binary"
	"io/fs"
	"math"

	"github.com/parzip/parzip/internal"
)

// Constants defining ZIP format structure and special tag values
const (
	// LatestZipVersion represents the maximum ZIP specification version
	// supported by this implementation. Version 63 corresponds to ZIP 6.3.
	LatestZipVersion uint16 = 63

	// ExtendedTimestampTag identifies the extra field that stores the
	// entry modification time with one-second Unix resolution.
	ExtendedTimestampTag uint16 = 0x5455
)

// Unix file type bits used in external attributes.
const (
	s_IFDIR = 0x4000
	s_IFREG = 0x8000
	s_IFLNK = 0xA000
)

// hostSystemUnix is the version-made-by host system code for Unix.
// Attributes are always encoded Unix-style; callers supply them through
// fs.FileMode and the core passes them through untouched.
const hostSystemUnix uint16 = 3

// entryHeaders generates ZIP format headers for one compressed entry.
type entryHeaders struct {
	entry  *Entry
	result compressionResult
	offset int64
}

func newEntryHeaders(e *Entry, res compressionResult, offset int64) *entryHeaders {
	return &entryHeaders{entry: e, result: res, offset: offset}
}

// LocalHeader generates the local file header that precedes the entry data.
func (eh *entryHeaders) LocalHeader() internal.LocalFileHeader {
	dosDate, dosTime := timeToMsDos(eh.entry.modTime)
	filename := eh.entry.headerName()
	localExtra := eh.buildExtraData()

	return internal.LocalFileHeader{
		VersionNeededToExtract: eh.versionNeededToExtract(),
		GeneralPurposeBitFlag:  eh.bitFlag(),
		CompressionMethod:      uint16(eh.entry.method),
		LastModFileTime:        dosTime,
		LastModFileDate:        dosDate,
		CRC32:                  eh.result.crc32,
		CompressedSize:         uint32(min(math.MaxUint32, eh.result.compressedSize)),
		UncompressedSize:       uint32(min(math.MaxUint32, eh.result.uncompressedSize)),
		FilenameLength:         uint16(len(filename)),
		ExtraFieldLength:       uint16(len(localExtra)),
		Filename:               filename,
		ExtraField:             localExtra,
	}
}

// CentralDirEntry generates the central directory entry, referencing the
// local header offset recorded during the serialization pass.
func (eh *entryHeaders) CentralDirEntry() internal.CentralDirectory {
	dosDate, dosTime := timeToMsDos(eh.entry.modTime)
	filename := eh.entry.headerName()

	return internal.CentralDirectory{
		VersionMadeBy:          hostSystemUnix<<8 | LatestZipVersion,
		VersionNeededToExtract: eh.versionNeededToExtract(),
		GeneralPurposeBitFlag:  eh.bitFlag(),
		CompressionMethod:      uint16(eh.entry.method),
		LastModFileTime:        dosTime,
		LastModFileDate:        dosDate,
		CRC32:                  eh.result.crc32,
		CompressedSize:         uint32(min(math.MaxUint32, eh.result.compressedSize)),
		UncompressedSize:       uint32(min(math.MaxUint32, eh.result.uncompressedSize)),
		FilenameLength:         uint16(len(filename)),
		ExtraFieldLength:       uint16(eh.entry.extraFieldLength()),
		FileCommentLength:      uint16(len(eh.entry.comment)),
		DiskNumberStart:        0,
		InternalFileAttributes: 0,
		ExternalFileAttributes: eh.externalFileAttributes(),
		LocalHeaderOffset:      uint32(min(math.MaxUint32, eh.offset)),
		Filename:               filename,
		ExtraField:             eh.entry.extraField,
		Comment:                eh.entry.comment,
	}
}

func (eh *entryHeaders) versionNeededToExtract() uint16 {
	if eh.entry.method == Deflate {
		return 20
	}
	if eh.entry.isDir || hasDirSeparator(eh.entry.name) {
		return 20
	}
	return 10
}

func (eh *entryHeaders) bitFlag() uint16 {
	var flag uint16

	if eh.entry.method == Deflate {
		flag |= eh.compressionLevelBits()
	}

	// Always set Bit 11 (Language encoding flag / EFS). Go strings are
	// UTF-8, so the filename and comment encoding is always correct.
	flag |= 0x800

	return flag
}

// externalFileAttributes encodes Unix mode bits in the upper half of the
// field, with the DOS directory bit set for directories.
func (eh *entryHeaders) externalFileAttributes() uint32 {
	mode := uint32(eh.entry.mode & fs.ModePerm)
	switch {
	case eh.entry.isDir:
		mode |= s_IFDIR
	case eh.entry.mode&fs.ModeSymlink != 0:
		mode |= s_IFLNK
	default:
		mode |= s_IFREG
	}

	attrs := mode << 16
	if eh.entry.isDir {
		attrs |= 0x10 // DOS directory bit
	}
	return attrs
}

func (eh *entryHeaders) compressionLevelBits() uint16 {
	level := eh.entry.level
	if level == 0 {
		level = DeflateNormal
	}
	switch level {
	case DeflateSuperFast:
		return 0x0006
	case DeflateFast:
		return 0x0004
	case DeflateMaximum:
		return 0x0002
	default:
		return 0x0000
	}
}

// buildExtraData assembles the local header extra field bytes in
// deterministic tag order.
func (eh *entryHeaders) buildExtraData() []byte {
	var buf []byte
	for _, field := range internal.SortedExtraFields(eh.entry.extraField) {
		buf = append(buf, field...)
	}
	return buf
}

// addTimestampExtraField attaches the extended timestamp field (0x5455)
// carrying the entry's modification time. Skipped for zero times, and
// skipped when the entry's extra fields are already at the format size
// cap; the fixed DOS fields still carry the time at two-second
// resolution in that case.
func addTimestampExtraField(e *Entry) {
	if e.modTime.IsZero() {
		return
	}

	// Tag(2) + Size(2) + Flags(1) + ModTime(4)
	data := make([]byte, 9)
	binary.LittleEndian.PutUint16(data[0:2], ExtendedTimestampTag)
	binary.LittleEndian.PutUint16(data[2:4], 5)
	data[4] = 0x01 // modification time present
	binary.LittleEndian.PutUint32(data[5:9], uint32(min(math.MaxUint32, max(0, e.modTime.Unix()))))

	// On overflow the entry keeps its DOS timestamp only.
	_ = e.SetExtraField(ExtendedTimestampTag, data)
}

func hasDirSeparator(name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			return true
		}
	}
	return false
}
