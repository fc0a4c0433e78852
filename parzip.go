// Copyright 2025 The parzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package parzip builds ZIP archives whose entry compression runs
// concurrently across a bounded worker pool while the produced byte
// stream stays deterministic and readable by any standard ZIP reader.
//
// The build is two-phase. Entries are first registered, which is pure
// bookkeeping: each entry gets a permanent insertion index and all I/O
// is deferred. A write call then compresses every entry in parallel -
// per-entry jobs are independent, so workers never synchronize beyond
// the final completion barrier - and serializes the results
// sequentially in registration order, so thread scheduling can never
// leak into the output bytes.
//
// # Basic Usage
//
//	archive := parzip.New()
//	archive.AddBytes([]byte("hello"), "hello.txt")
//	archive.AddFile("/var/log/app.log", "logs/app.log", parzip.WithMethod(parzip.Deflate))
//
//	f, _ := os.Create("output.zip")
//	archive.WriteTo(f)
//
// Error policy during compression is fail-slow by default: a failing
// entry does not abort its siblings, and the aggregate error reports
// every failed entry. Set Config.FailFast to surface the first failure
// immediately instead. Either way, a failed build writes nothing: the
// package never emits a truncated archive.
package parzip

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
)

// Config defines archive-wide build parameters. Per-entry settings can
// be overridden at registration time with AddOptions.
type Config struct {
	// CompressionMethod is the default method for new entries.
	CompressionMethod CompressionMethod

	// CompressionLevel controls the deflate speed vs size trade-off (1-9).
	CompressionLevel int

	// Workers is the compression worker pool size.
	// Zero means host parallelism.
	Workers int

	// FailFast stops dispatching compression jobs on the first entry
	// failure and returns that error alone. The default (false) lets
	// every entry attempt to complete and reports all failures.
	FailFast bool

	// Comment is the archive-level comment (max 65535 bytes).
	Comment string

	// Logger receives debug records about the build phases.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// AddOption is a functional option for configuring entries during registration.
type AddOption func(e *Entry)

// WithMethod sets the compression method for a regular entry.
// Ignored for directories.
func WithMethod(m CompressionMethod) AddOption {
	return func(e *Entry) {
		if !e.isDir {
			e.method = m
		}
	}
}

// WithLevel sets the deflate compression level for a regular entry.
// Ignored for directories.
func WithLevel(level int) AddOption {
	return func(e *Entry) {
		if !e.isDir {
			e.level = level
		}
	}
}

// WithMode sets the Unix-style permission bits carried in the entry's
// external attributes.
func WithMode(mode fs.FileMode) AddOption {
	return func(e *Entry) {
		e.mode = mode
	}
}

// WithModTime sets the entry's modification time.
func WithModTime(t time.Time) AddOption {
	return func(e *Entry) {
		e.modTime = t
	}
}

// WithComment sets the entry's central directory comment.
func WithComment(comment string) AddOption {
	return func(e *Entry) {
		e.comment = comment
	}
}

// Archive is one write-once build session. Entries are registered in
// order, then a single write call compresses and serializes them. The
// entry set freezes when the write starts; an Archive cannot be reused
// or mutated afterwards.
type Archive struct {
	mu        sync.Mutex // Guards entries, names, config, factories, and frozen
	config    Config
	entries   []*Entry
	names     map[string]struct{} // Header-form names for duplicate checks
	factories factoriesMap
	frozen    bool // Set once a build starts; registration is rejected afterwards
}

// New creates an empty Archive with deflate as the default method.
func New() *Archive {
	return &Archive{
		config: Config{
			CompressionMethod: Deflate,
			CompressionLevel:  DeflateNormal,
		},
		factories: make(factoriesMap),
		names:     make(map[string]struct{}),
	}
}

// SetConfig replaces the archive configuration. It has no effect on
// entries that are already registered.
func (a *Archive) SetConfig(c Config) error {
	if len(c.Comment) > math.MaxUint16 {
		return fmt.Errorf("%w (%d bytes)", ErrCommentTooLong, len(c.Comment))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.config = c
	return nil
}

// RegisterCompressor registers a factory for a compression method,
// replacing the built-in backend for that method. The scheduler and
// serializer depend only on the Compressor interface, so backends swap
// without touching either. Registration is ignored once a build has
// started; the factory set is fixed alongside the entry set.
func (a *Archive) RegisterCompressor(method CompressionMethod, factory CompressorFactory) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen {
		return
	}
	a.factories[method] = factory
}

// AddBytes registers an entry backed by a byte slice.
func (a *Archive) AddBytes(data []byte, name string, options ...AddOption) error {
	return a.register(newEntryFromBytes(data, name), options)
}

// AddString registers an entry backed by a string.
func (a *Archive) AddString(content string, name string, options ...AddOption) error {
	return a.AddBytes([]byte(content), name, options...)
}

// AddReader registers an entry streamed from an io.Reader. The reader is
// consumed exactly once, during the compression phase. Use SizeUnknown
// for size if the length is not known ahead of time.
func (a *Archive) AddReader(r io.Reader, name string, size int64, options ...AddOption) error {
	if r == nil {
		return ErrNilSource
	}
	if size < 0 && size != SizeUnknown {
		return fmt.Errorf("zip: entry %q: size cannot be negative", name)
	}
	return a.register(newEntryFromReader(r, name, size), options)
}

// AddFile registers an entry backed by a file on the local filesystem
// under the archive path name. Metadata is captured now; the file is
// opened and read during the compression phase, and read failures
// surface there as entry errors. Symlinks are stored as links.
func (a *Archive) AddFile(path string, name string, options ...AddOption) error {
	e, err := newEntryFromPath(path, name)
	if err != nil {
		return err
	}
	return a.register(e, options)
}

// AddLazy registers an entry whose content comes from openFunc, called
// exactly once during the compression phase.
func (a *Archive) AddLazy(name string, openFunc func() (io.ReadCloser, error), options ...AddOption) error {
	if openFunc == nil {
		return ErrNilSource
	}
	return a.register(newEntryFromFunc(name, openFunc), options)
}

// Mkdir registers an explicit directory entry. Directories carry no data
// and are always stored.
func (a *Archive) Mkdir(name string, options ...AddOption) error {
	return a.register(newDirectoryEntry(strings.TrimSuffix(name, "/")), options)
}

// Len returns the number of registered entries.
func (a *Archive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Names returns the registered entry names in insertion order.
func (a *Archive) Names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, len(a.entries))
	for i, e := range a.entries {
		names[i] = e.name
	}
	return names
}

// WriteTo compresses all entries and serializes the archive to dest.
// Returns the total number of bytes written. On error nothing usable has
// been written; the caller is responsible for discarding any partially
// written destination.
func (a *Archive) WriteTo(dest io.Writer) (int64, error) {
	return a.WriteToContext(context.Background(), dest)
}

// WriteToContext writes the archive with context support. Cancellation
// is honored between and during compression jobs; serialization itself
// is a single uninterruptible pass.
func (a *Archive) WriteToContext(ctx context.Context, dest io.Writer) (int64, error) {
	a.mu.Lock()
	a.frozen = true
	entries := a.entries
	config := a.config
	factories := a.factories
	a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	results, err := newScheduler(config, factories).compressAll(ctx, entries)
	if err != nil {
		return 0, err
	}

	counter := &byteCountWriter{dest: dest}
	if err := newZipWriter(counter, config.Comment).WriteArchive(entries, results); err != nil {
		return counter.bytesWritten, err
	}

	return counter.bytesWritten, nil
}

// register validates an entry and appends it to the ordered registry,
// assigning the next insertion index. No compression or I/O happens
// here. On error the registry is left untouched.
func (a *Archive) register(e *Entry, options []AddOption) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !e.isDir {
		e.method = a.config.CompressionMethod
		e.level = a.config.CompressionLevel
	}

	for _, opt := range options {
		opt(e)
	}

	if err := validateName(e.name); err != nil {
		return err
	}

	headerName := e.headerName()
	if len(headerName) > math.MaxUint16 {
		return fmt.Errorf("%w (%d bytes)", ErrFilenameTooLong, len(headerName))
	}
	if len(e.comment) > math.MaxUint16 {
		return fmt.Errorf("%w (%d bytes)", ErrCommentTooLong, len(e.comment))
	}
	if !e.isDir && e.method != Store && e.method != Deflate {
		if _, ok := a.factories[e.method]; !ok {
			return fmt.Errorf("%w: %d", ErrAlgorithm, e.method)
		}
	}

	if a.frozen {
		return ErrFrozen
	}

	// A file and a directory with the same path collide either way round.
	if _, ok := a.names[e.name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateEntry, e.name)
	}
	if _, ok := a.names[e.name+"/"]; ok {
		return fmt.Errorf("%w: %q is already a directory", ErrDuplicateEntry, e.name)
	}

	e.index = len(a.entries)
	a.entries = append(a.entries, e)
	a.names[headerName] = struct{}{}
	return nil
}

// validateName enforces the archive path rules: non-empty, forward slash
// separators only, no leading slash, no empty or dot segments. Names are
// rejected rather than normalized, so the bytes readers see are always
// exactly what the caller registered. Comparison is case-sensitive.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if strings.ContainsRune(name, '\\') {
		return fmt.Errorf("%w: %q uses backslash separators", ErrInvalidName, name)
	}
	if strings.HasPrefix(name, "/") {
		return fmt.Errorf("%w: %q has a leading slash", ErrInvalidName, name)
	}

	for _, segment := range strings.Split(name, "/") {
		switch segment {
		case "":
			return fmt.Errorf("%w: %q contains an empty path segment", ErrInvalidName, name)
		case ".", "..":
			return fmt.Errorf("%w: %q contains a relative path segment", ErrInvalidName, name)
		}
	}
	return nil
}
