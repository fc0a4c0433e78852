// Copyright 2025 The parzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parzip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// compressionResult is produced exactly once per entry by the scheduler.
// It is written to the slot matching the entry's insertion index and
// never mutated afterwards.
type compressionResult struct {
	data             []byte // Compressed entry content
	uncompressedSize int64  // Bytes actually read from the entry's source
	compressedSize   int64  // len(data)
	crc32            uint32 // CRC-32 of the uncompressed content
}

// scheduler runs the parallel compression phase: every entry's job is
// independent, so entries are fanned out across a bounded worker pool and
// each worker writes one result to its entry's slot. Slots are disjoint,
// so the only synchronization is the completion barrier before the
// results are handed to the serializer.
type scheduler struct {
	mu          sync.RWMutex
	factories   factoriesMap   // Registered compressor factories (Method -> Factory)
	compressors compressorsMap // Cache of resolved compressors keyed by method and level
	workers     int            // Worker pool size, 0 means host parallelism
	failFast    bool           // Stop dispatching on the first entry failure
	logger      *slog.Logger
}

func newScheduler(config Config, factories factoriesMap) *scheduler {
	if factories == nil {
		factories = make(factoriesMap)
	}
	return &scheduler{
		factories:   factories,
		compressors: make(compressorsMap),
		workers:     config.Workers,
		failFast:    config.FailFast,
		logger:      config.Logger,
	}
}

// log returns the logger, falling back to a discard logger if nil.
func (s *scheduler) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.logger
}

// compressAll compresses every entry and returns the results indexed by
// insertion index. In the default fail-slow mode every entry attempts to
// complete and the aggregate error reports all failures; in fail-fast
// mode the first failure cancels dispatch and is returned alone.
// Completion order never influences slot placement.
func (s *scheduler) compressAll(ctx context.Context, entries []*Entry) ([]compressionResult, error) {
	results := make([]compressionResult, len(entries))
	errSlots := make([]error, len(entries))

	workers := s.workerCount(len(entries))
	s.log().Debug("compression phase", "entries", len(entries), "workers", workers, "failFast", s.failFast)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for _, e := range entries {
		// Stop dispatching once the group context is cancelled, either by
		// the caller or by a fail-fast failure.
		if gctx.Err() != nil {
			break
		}

		e := e
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res, err := s.compressEntry(gctx, e)
			if err != nil {
				entryErr := &EntryError{Name: e.name, Index: e.index, Err: err}
				if s.failFast {
					return entryErr
				}
				errSlots[e.index] = entryErr
				return nil
			}

			results[e.index] = res
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := errors.Join(errSlots...); err != nil {
		return nil, err
	}

	s.log().Debug("compression phase complete", "entries", len(entries))
	return results, nil
}

// compressEntry reads one entry's data source, computes its checksum and
// compresses it. Directories carry no data and yield an empty result.
func (s *scheduler) compressEntry(ctx context.Context, e *Entry) (compressionResult, error) {
	if e.isDir {
		return compressionResult{}, nil
	}

	comp, err := s.resolveCompressor(e.method, e.level)
	if err != nil {
		return compressionResult{}, err
	}

	src, err := e.open()
	if err != nil {
		return compressionResult{}, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	var buf bytes.Buffer
	if e.sizeHint > 0 && e.sizeHint < math.MaxInt32 {
		buf.Grow(int(e.sizeHint))
	}

	hasher := crc32.NewIEEE()
	reader := io.TeeReader(&contextReader{ctx: ctx, r: src}, hasher)

	uncompressed, err := comp.Compress(reader, &buf)
	if err != nil {
		return compressionResult{}, fmt.Errorf("compress: %w", err)
	}

	return compressionResult{
		data:             buf.Bytes(),
		uncompressedSize: uncompressed,
		compressedSize:   int64(buf.Len()),
		crc32:            hasher.Sum32(),
	}, nil
}

// resolveCompressor determines the correct compressor for an entry.
// Looks up registered factories first, falls back to the built-in
// Deflate/Store methods. Resolved compressors are cached per method and
// level so pooled encoder state is shared across workers.
func (s *scheduler) resolveCompressor(method CompressionMethod, level int) (Compressor, error) {
	key := compressorKey{method: method, level: level}

	s.mu.RLock()
	val, ok := s.compressors[key]
	s.mu.RUnlock()
	if ok {
		return val, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double check if the key was just inserted
	if val, ok := s.compressors[key]; ok {
		return val, nil
	}

	if factory, ok := s.factories[method]; ok {
		s.compressors[key] = factory(level)
		return s.compressors[key], nil
	}

	switch method {
	case Store:
		s.compressors[key] = new(StoredCompressor)
	case Deflate:
		s.compressors[key] = NewDeflateCompressor(level)
	default:
		return nil, fmt.Errorf("%w: %d", ErrAlgorithm, method)
	}
	return s.compressors[key], nil
}

// workerCount bounds the pool size to the entry count, defaulting to
// host parallelism.
func (s *scheduler) workerCount(entries int) int {
	workers := s.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > entries {
		workers = entries
	}
	return max(1, workers)
}
