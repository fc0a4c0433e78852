// Copyright 2025 The parzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parzip

import (
	stdflate "compress/flate"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// CompressionMethod represents the compression algorithm used for an entry,
// using the method codes assigned by the ZIP specification.
type CompressionMethod uint16

const (
	Store   CompressionMethod = 0 // No compression - data stored as-is
	Deflate CompressionMethod = 8 // DEFLATE compression
)

// Compression levels for the DEFLATE algorithm.
const (
	DeflateNormal    = 6 // Default compression level (good balance between speed and ratio)
	DeflateMaximum   = 9 // Maximum compression (best ratio, slowest speed)
	DeflateFast      = 3 // Fast compression (lower ratio, faster speed)
	DeflateSuperFast = 1 // Super fast compression (lowest ratio, fastest speed)
)

// CompressorFactory creates a Compressor instance for a specific compression level.
// Implementations should normalize invalid levels to defaults.
type CompressorFactory func(level int) Compressor

// Compressor transforms raw data into compressed data. Implementations
// must be safe for concurrent use; the scheduler invokes a single
// Compressor from multiple workers.
type Compressor interface {
	// Compress reads from src and writes compressed data to dest.
	// Returns the number of uncompressed bytes read.
	Compress(src io.Reader, dest io.Writer) (int64, error)
}

type compressorKey struct {
	method CompressionMethod
	level  int
}

type factoriesMap map[CompressionMethod]CompressorFactory
type compressorsMap map[compressorKey]Compressor

// StoredCompressor implements no compression (STORE method).
type StoredCompressor struct{}

func (sc *StoredCompressor) Compress(src io.Reader, dest io.Writer) (int64, error) {
	return io.Copy(dest, src)
}

// DeflateCompressor implements DEFLATE compression with memory pooling.
// It uses the klauspost/compress encoder, which produces streams any
// standard DEFLATE decoder accepts.
type DeflateCompressor struct {
	pool sync.Pool
}

// NewDeflateCompressor creates a reusable compressor for a specific level.
func NewDeflateCompressor(level int) *DeflateCompressor {
	if level < 1 || level > 9 {
		level = DeflateNormal
	}
	return &DeflateCompressor{
		pool: sync.Pool{
			New: func() interface{} {
				w, _ := flate.NewWriter(io.Discard, level)
				return w
			},
		},
	}
}

func (d *DeflateCompressor) Compress(src io.Reader, dest io.Writer) (int64, error) {
	w := d.pool.Get().(*flate.Writer)
	defer d.pool.Put(w)

	w.Reset(dest)

	n, err := io.Copy(w, src)
	if err != nil {
		return n, err
	}

	if err := w.Close(); err != nil {
		return n, err
	}

	return n, nil
}

// StdDeflateCompressor implements DEFLATE compression with the standard
// library encoder. Both deflate backends emit standard-conforming
// streams; which one is in use never changes how the archive is read.
type StdDeflateCompressor struct {
	pool sync.Pool
}

// NewStdDeflateCompressor creates a reusable standard library compressor
// for a specific level.
func NewStdDeflateCompressor(level int) *StdDeflateCompressor {
	if level < 1 || level > 9 {
		level = DeflateNormal
	}
	return &StdDeflateCompressor{
		pool: sync.Pool{
			New: func() interface{} {
				w, _ := stdflate.NewWriter(io.Discard, level)
				return w
			},
		},
	}
}

func (d *StdDeflateCompressor) Compress(src io.Reader, dest io.Writer) (int64, error) {
	w := d.pool.Get().(*stdflate.Writer)
	defer d.pool.Put(w)

	w.Reset(dest)

	n, err := io.Copy(w, src)
	if err != nil {
		return n, err
	}

	if err := w.Close(); err != nil {
		return n, err
	}

	return n, nil
}
