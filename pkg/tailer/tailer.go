// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

// Package tailer implements PerFileTailer (spec §4.3): reads one
// concrete file from its checkpointed resume point, routes each line
// through a cloned FilterChain, and hands the result to the
// OutputManager. It generalizes the teacher's Tailer/Scanner pair
// (pkg/input/tailer/scanner.go) — which tailed one TCP-bound source
// forever — into a worker that also supports one-shot batch processing
// and copy-only inputs, and adds fsnotify so the follow loop wakes on
// writes instead of relying solely on a fixed poll interval.
package tailer

import (
	"compress/gzip"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/shipperio/logshipper/pkg/checkpoint"
	"github.com/shipperio/logshipper/pkg/config"
	"github.com/shipperio/logshipper/pkg/ddlog"
	"github.com/shipperio/logshipper/pkg/filterchain"
	"github.com/shipperio/logshipper/pkg/identity"
	"github.com/shipperio/logshipper/pkg/message"
	"github.com/shipperio/logshipper/pkg/output"
)

// idleSleep bounds how long the follow loop waits between EOF retries
// absent an fsnotify wakeup (spec: "implementation-defined, ≤ 1s").
const idleSleep = 500 * time.Millisecond

// Tailer is a PerFileTailer. A single Tailer either follows one file
// forever (tail=true), processes a fixed batch of files once in reverse
// order (tail=false), or, when copyFile=true and processFile=false,
// hands each matched file straight to the sinks' copyFile path without
// reading lines.
type Tailer struct {
	input *config.Input
	paths []string

	store *checkpoint.Store
	chain filterchain.Chain
	out   *output.Manager

	closed int32
	done   chan struct{}
	wg     sync.WaitGroup
}

// New returns a Tailer over paths, not yet started. For the tail=false
// batch path, paths is processed in reverse order per spec (most
// recently matched file first).
func New(input *config.Input, paths []string, store *checkpoint.Store, chain filterchain.Chain, out *output.Manager) *Tailer {
	return &Tailer{
		input: input,
		paths: paths,
		store: store,
		chain: chain,
		out:   out,
		done:  make(chan struct{}),
	}
}

// Start launches the tailer's worker goroutine.
func (t *Tailer) Start() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run()
	}()
}

// Close requests termination; the worker observes it at the next
// line/sleep boundary and flushes its final checkpoint before exiting.
func (t *Tailer) Close() {
	if atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		close(t.done)
	}
}

// IsClosed reports whether Close has been requested (not whether the
// worker goroutine has fully exited; use Wait for that).
func (t *Tailer) IsClosed() bool {
	return atomic.LoadInt32(&t.closed) == 1
}

// Wait blocks until the worker goroutine has exited.
func (t *Tailer) Wait() {
	t.wg.Wait()
}

func (t *Tailer) run() {
	switch {
	case t.input.CopyFile && !t.input.ProcessFile:
		t.runCopy()
	case t.input.Tail:
		if len(t.paths) == 0 {
			return
		}
		t.tailFollow(t.paths[0])
	default:
		for i := len(t.paths) - 1; i >= 0; i-- {
			if t.IsClosed() {
				return
			}
			t.processOnce(t.paths[i])
		}
		t.Close()
	}
}

func (t *Tailer) runCopy() {
	for _, path := range t.paths {
		if t.IsClosed() {
			return
		}
		id, err := identity.IdentifyPath(path)
		if err != nil {
			ddlog.Warnf("tailer: copyFile: can't identify %s: %v", path, err)
			continue
		}
		marker := message.NewMarker(t.input.Name, id, 0, 0)
		t.out.CopyFile(t.input, message.File{Path: path, Identity: id}, marker)
	}
	t.Close()
}

// lineReader accumulates bytes across repeated Read calls so a line
// that straddles two reads (the common case while following a growing
// file) is never handed to the caller until it is complete, and a
// partial trailing line is preserved rather than discarded when Read
// returns io.EOF.
type lineReader struct {
	r   io.Reader
	buf []byte
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: r}
}

// next returns the next complete line (including its trailing '\n') if
// one is already buffered or becomes available from a single
// underlying Read; ok is false (with no data lost) if only a partial
// line is available so far.
func (lr *lineReader) next() (line []byte, ok bool, err error) {
	if idx := indexByte(lr.buf, '\n'); idx >= 0 {
		line = append([]byte(nil), lr.buf[:idx+1]...)
		lr.buf = lr.buf[idx+1:]
		return line, true, nil
	}

	chunk := make([]byte, 64*1024)
	n, readErr := lr.r.Read(chunk)
	if n > 0 {
		lr.buf = append(lr.buf, chunk[:n]...)
		if idx := indexByte(lr.buf, '\n'); idx >= 0 {
			line = append([]byte(nil), lr.buf[:idx+1]...)
			lr.buf = lr.buf[idx+1:]
			return line, true, nil
		}
	}
	if readErr != nil {
		return nil, false, readErr
	}
	return nil, false, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// openResume opens path, computes its identity, and resolves the resume
// point from the checkpoint store, handling the rotation case where a
// stored offset exceeds the current file size (spec §4.3 Open sequence).
func openResume(path string, store *checkpoint.Store) (*os.File, *lineReader, identity.FileIdentity, int64, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, identity.FileIdentity{}, 0, 0, err
	}

	id, err := identity.Identify(f)
	if err != nil {
		f.Close()
		return nil, nil, identity.FileIdentity{}, 0, 0, err
	}

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, identity.FileIdentity{}, 0, 0, err
		}
		reader = gz
	}

	offset, lineNumber := store.Resume(id, path)
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, identity.FileIdentity{}, 0, 0, err
	}
	if offset > 0 && offset <= stat.Size() {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, nil, identity.FileIdentity{}, 0, 0, err
		}
	} else {
		offset, lineNumber = 0, 0
	}

	return f, newLineReader(reader), id, offset, lineNumber, nil
}

// processOnce reads path once from its resume point to EOF, without
// following, checkpointing at close — the tail=false one-shot path.
func (t *Tailer) processOnce(path string) {
	f, lr, id, offset, lineNumber, err := openResume(path, t.store)
	if err != nil {
		ddlog.Warnf("tailer: can't open %s: %v", path, err)
		return
	}
	defer f.Close()

	for {
		if t.IsClosed() {
			break
		}
		line, ok, err := lr.next()
		if ok {
			lineNumber++
			offset += int64(len(line))
			t.dispatchLine(id, path, line, lineNumber, offset)
			continue
		}
		if err != nil {
			break
		}
	}
	t.store.CheckIn(id, path, offset, lineNumber, true)
	t.store.LastCheckIn(id)
}

// tailFollow implements the streaming (tail=true) path: read to EOF,
// then wait for more data or a rotation/truncation signal, re-stating
// periodically and waking early on fsnotify events when available.
func (t *Tailer) tailFollow(path string) {
	f, lr, id, offset, lineNumber, err := openResume(path, t.store)
	if err != nil {
		ddlog.Warnf("tailer: can't open %s: %v", path, err)
		return
	}
	defer func() {
		t.store.LastCheckIn(id)
		f.Close()
	}()

	watcher, watchErr := fsnotify.NewWatcher()
	if watchErr != nil {
		watcher = nil
	} else if err := watcher.Add(path); err != nil {
		ddlog.Warnf("tailer: fsnotify watch failed for %s: %v", path, err)
		watcher.Close()
		watcher = nil
	}
	if watcher != nil {
		defer watcher.Close()
	}

	lastCheckpoint := time.Now()
	lastRestat := time.Now()
	restatInterval := time.Duration(t.input.DetachTimeSec) * time.Second / 2
	if restatInterval <= 0 {
		restatInterval = 60 * time.Second
	}

	for {
		select {
		case <-t.done:
			t.store.CheckIn(id, path, offset, lineNumber, true)
			return
		default:
		}

		line, ok, readErr := lr.next()
		if ok {
			lineNumber++
			offset += int64(len(line))
			t.dispatchLine(id, path, line, lineNumber, offset)
			if time.Since(lastCheckpoint) >= time.Duration(t.input.CheckpointIntervalMs)*time.Millisecond {
				t.store.CheckIn(id, path, offset, lineNumber, false)
				lastCheckpoint = time.Now()
			}
			continue
		}

		if readErr != nil && readErr != io.EOF {
			ddlog.Warnf("tailer: read error on %s: %v", path, readErr)
			t.store.CheckIn(id, path, offset, lineNumber, true)
			return
		}

		if time.Since(lastRestat) >= restatInterval {
			lastRestat = time.Now()
			if rotated, truncated := t.checkRotationOrTruncation(f, id, offset); rotated || truncated {
				t.store.CheckIn(id, path, offset, lineNumber, true)
				return
			}
		}

		if t.waitForMore(watcher) {
			t.store.CheckIn(id, path, offset, lineNumber, true)
			return
		}
	}
}

// waitForMore blocks until either the done channel fires (returns
// true, caller should exit), an fsnotify event arrives, or idleSleep
// elapses — whichever is first.
func (t *Tailer) waitForMore(watcher *fsnotify.Watcher) bool {
	timer := time.NewTimer(idleSleep)
	defer timer.Stop()

	if watcher == nil {
		select {
		case <-t.done:
			return true
		case <-timer.C:
			return false
		}
	}
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	case <-watcher.Events:
		return false
	case err := <-watcher.Errors:
		ddlog.Warnf("tailer: fsnotify error: %v", err)
		return false
	}
}

// checkRotationOrTruncation re-stats the open file descriptor's path on
// disk: if the identity changed the file was rotated; if the size
// shrank it was truncated in place. Either ends this tailer so the
// supervisor can respawn against the current path.
func (t *Tailer) checkRotationOrTruncation(f *os.File, id identity.FileIdentity, offset int64) (rotated, truncated bool) {
	onDisk, err := identity.IdentifyPath(f.Name())
	if err != nil {
		return true, false
	}
	if onDisk != id {
		return true, false
	}
	stat, err := f.Stat()
	if err != nil {
		return true, false
	}
	if stat.Size() < offset {
		return false, true
	}
	return false, false
}

func (t *Tailer) dispatchLine(id identity.FileIdentity, path string, rawLine []byte, lineNumber, offset int64) {
	trimmed := strings.TrimRight(string(rawLine), "\n")
	trimmed = strings.TrimRight(trimmed, "\r")
	marker := message.NewMarker(t.input.Name, id, lineNumber, offset)

	record, ok, err := t.chain.Process([]byte(trimmed), marker)
	if err != nil {
		ddlog.Warnf("tailer: filter chain error on %s line %d: %v", path, lineNumber, err)
		return
	}
	if !ok {
		return
	}
	t.out.WriteRecord(t.input, record, marker)
}
