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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowReader delays every read to let later-registered entries finish first.
type slowReader struct {
	r     io.Reader
	delay time.Duration
}

func (sr *slowReader) Read(p []byte) (int, error) {
	time.Sleep(sr.delay)
	return sr.r.Read(p)
}

func registerAll(t *testing.T, a *Archive, contents map[string]string, names []string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, a.AddBytes([]byte(contents[name]), name))
	}
}

func TestScheduler_ResultsFollowInsertionOrder(t *testing.T) {
	a := New()
	require.NoError(t, a.SetConfig(Config{
		CompressionMethod: Store,
		Workers:           4,
	}))

	// The first entries are deliberately the slowest so completion order
	// inverts registration order.
	contents := []string{"entry zero", "entry one", "entry two", "entry three"}
	for i, content := range contents {
		delay := time.Duration(len(contents)-i) * 20 * time.Millisecond
		src := &slowReader{r: strings.NewReader(content), delay: delay}
		require.NoError(t, a.AddReader(src, fmt.Sprintf("%d.txt", i), int64(len(content))))
	}

	s := newScheduler(a.config, a.factories)
	results, err := s.compressAll(context.Background(), a.entries)
	require.NoError(t, err)
	require.Len(t, results, len(contents))

	for i, content := range contents {
		assert.Equal(t, []byte(content), results[i].data, "slot %d", i)
		assert.Equal(t, int64(len(content)), results[i].uncompressedSize, "slot %d", i)
		assert.Equal(t, crc32.ChecksumIEEE([]byte(content)), results[i].crc32, "slot %d", i)
	}
}

func TestScheduler_FailSlowReportsEveryFailure(t *testing.T) {
	a := New()

	boom := errors.New("disk exploded")
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("%d.txt", i)
		if i == 2 {
			require.NoError(t, a.AddLazy(name, func() (io.ReadCloser, error) {
				return nil, boom
			}))
			continue
		}
		require.NoError(t, a.AddBytes([]byte("fine"), name))
	}

	s := newScheduler(a.config, a.factories)
	_, err := s.compressAll(context.Background(), a.entries)
	require.Error(t, err)

	var entryErr *EntryError
	require.ErrorAs(t, err, &entryErr)
	assert.Equal(t, "2.txt", entryErr.Name)
	assert.Equal(t, 2, entryErr.Index)
	assert.ErrorIs(t, err, boom)

	// Exactly one entry failed; the healthy siblings must not appear.
	for _, name := range []string{"0.txt", "1.txt", "3.txt", "4.txt"} {
		assert.NotContains(t, err.Error(), name)
	}
}

func TestScheduler_FailSlowAggregatesMultipleFailures(t *testing.T) {
	a := New()

	for i := 0; i < 4; i++ {
		name := fmt.Sprintf("%d.txt", i)
		if i%2 == 0 {
			failure := fmt.Errorf("source %d unavailable", i)
			require.NoError(t, a.AddLazy(name, func() (io.ReadCloser, error) {
				return nil, failure
			}))
			continue
		}
		require.NoError(t, a.AddBytes([]byte("fine"), name))
	}

	s := newScheduler(a.config, a.factories)
	_, err := s.compressAll(context.Background(), a.entries)
	require.Error(t, err)

	assert.Contains(t, err.Error(), "0.txt")
	assert.Contains(t, err.Error(), "2.txt")
	assert.NotContains(t, err.Error(), "1.txt")
	assert.NotContains(t, err.Error(), "3.txt")
}

func TestScheduler_FailFastReturnsSingleError(t *testing.T) {
	a := New()
	require.NoError(t, a.SetConfig(Config{
		CompressionMethod: Store,
		FailFast:          true,
		Workers:           1,
	}))

	boom := errors.New("read failure")
	require.NoError(t, a.AddLazy("bad.txt", func() (io.ReadCloser, error) {
		return nil, boom
	}))
	for i := 0; i < 10; i++ {
		require.NoError(t, a.AddBytes([]byte("fine"), fmt.Sprintf("%d.txt", i)))
	}

	s := newScheduler(a.config, a.factories)
	_, err := s.compressAll(context.Background(), a.entries)
	require.Error(t, err)

	var entryErr *EntryError
	require.ErrorAs(t, err, &entryErr)
	assert.Equal(t, "bad.txt", entryErr.Name)
	assert.ErrorIs(t, err, boom)
}

func TestScheduler_ContextCancellation(t *testing.T) {
	a := New()
	require.NoError(t, a.AddReader(
		&slowReader{r: strings.NewReader(strings.Repeat("x", 1024)), delay: 50 * time.Millisecond},
		"slow.txt", SizeUnknown,
	))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	s := newScheduler(a.config, a.factories)
	_, err := s.compressAll(ctx, a.entries)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScheduler_DirectoryEntryYieldsEmptyResult(t *testing.T) {
	a := New()
	require.NoError(t, a.Mkdir("dir"))

	s := newScheduler(a.config, a.factories)
	results, err := s.compressAll(context.Background(), a.entries)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Empty(t, results[0].data)
	assert.Zero(t, results[0].uncompressedSize)
	assert.Zero(t, results[0].compressedSize)
	assert.Zero(t, results[0].crc32)
}

func TestScheduler_RegisteredFactoryWins(t *testing.T) {
	a := New()
	// Override the built-in deflate backend with the stdlib one; the
	// produced stream is still standard deflate.
	a.RegisterCompressor(Deflate, func(level int) Compressor {
		return NewStdDeflateCompressor(level)
	})
	require.NoError(t, a.AddBytes(bytes.Repeat([]byte("abc"), 1000), "a.bin"))

	s := newScheduler(a.config, a.factories)
	results, err := s.compressAll(context.Background(), a.entries)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), results[0].uncompressedSize)
	assert.Less(t, results[0].compressedSize, results[0].uncompressedSize)
}

func TestScheduler_WorkerCount(t *testing.T) {
	s := newScheduler(Config{Workers: 8}, nil)
	assert.Equal(t, 3, s.workerCount(3), "bounded by entry count")
	assert.Equal(t, 8, s.workerCount(100))
	assert.Equal(t, 1, s.workerCount(0), "never below one")

	s = newScheduler(Config{}, nil)
	assert.GreaterOrEqual(t, s.workerCount(100), 1, "defaults to host parallelism")
}
