// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

// Package supervisor implements InputSupervisor (spec §4.4): translates
// one InputDescriptor into a live set of PerFileTailers via glob
// expansion, spawning them, age-gating them, and sweeping for files
// that have vanished. It is grounded on the teacher's Scanner
// (pkg/input/tailer/scanner.go), which polled a fixed source list on a
// ticker and restarted a tailer on rotation; this generalizes that
// ticker-driven reconciliation loop to glob-discovered, possibly
// multi-folder, input descriptors, and adds fsnotify so a rename/create/
// remove in the watched directory triggers an early reconcile instead
// of waiting out the full rescan interval.
package supervisor

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/shipperio/logshipper/pkg/checkpoint"
	"github.com/shipperio/logshipper/pkg/config"
	"github.com/shipperio/logshipper/pkg/ddlog"
	"github.com/shipperio/logshipper/pkg/filterchain"
	"github.com/shipperio/logshipper/pkg/output"
	"github.com/shipperio/logshipper/pkg/tailer"
)

// slot is the unit InputSupervisor tracks for spawn/detach bookkeeping:
// the whole input in single-folder mode (slot == ""), or one matched
// folder in multi-folder mode.
type slot struct {
	tailer      *tailer.Tailer
	path        string // the concrete file this slot's streaming tailer follows, "" for a finished batch
	absentSince time.Time
}

// Supervisor is an InputSupervisor.
type Supervisor struct {
	input *config.Input
	chain filterchain.Chain
	store *checkpoint.Store
	out   *output.Manager

	mu       sync.Mutex
	slots    map[string]*slot
	ready    int32
	warnedMu sync.Mutex
	warned   map[string]bool

	closed int32
	done   chan struct{}
	wg     sync.WaitGroup
}

// New returns a Supervisor for input, not yet started. chain is cloned
// once per spawned child so no mutable filter state is shared between
// concurrently running tailers (spec §9 "Clone a supervisor").
func New(input *config.Input, chain filterchain.Chain, store *checkpoint.Store, out *output.Manager) *Supervisor {
	return &Supervisor{
		input:  input,
		chain:  chain,
		store:  store,
		out:    out,
		slots:  make(map[string]*slot),
		warned: make(map[string]bool),
		done:   make(chan struct{}),
	}
}

// IsReady reports whether glob expansion has ever yielded at least one
// existing regular file.
func (s *Supervisor) IsReady() bool {
	return atomic.LoadInt32(&s.ready) == 1
}

func (s *Supervisor) multiFolder() bool {
	return strings.Contains(filepath.Dir(s.input.Path), "*")
}

// expand groups the input's glob matches by folder. In single-folder
// mode there is exactly one key, "".
func (s *Supervisor) expand() (map[string][]string, error) {
	matches, err := filepath.Glob(s.input.Path)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]string)
	multi := s.multiFolder()
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		key := ""
		if multi {
			key = filepath.Dir(m)
		}
		grouped[key] = append(grouped[key], m)
	}
	for k := range grouped {
		sort.Strings(grouped[k])
	}
	return grouped, nil
}

// Start runs one reconciliation pass immediately, then launches the
// path-rescan and detach-sweep background workers.
func (s *Supervisor) Start() {
	s.reconcile()
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.rescanLoop()
	}()
	go func() {
		defer s.wg.Done()
		s.detachLoop()
	}()
}

func (s *Supervisor) rescanLoop() {
	interval := time.Duration(s.input.PathUpdateIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Duration(config.DefaultPathUpdateIntervalSec) * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	watcher, watchErr := fsnotify.NewWatcher()
	if watchErr != nil {
		watcher = nil
	} else {
		if err := watcher.Add(watchDir(s.input.Path)); err != nil {
			ddlog.Warnf("supervisor %s: fsnotify watch failed for %s: %v", s.input.Name, watchDir(s.input.Path), err)
			watcher.Close()
			watcher = nil
		}
	}
	if watcher != nil {
		defer watcher.Close()
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	if watcher != nil {
		events = watcher.Events
		errs = watcher.Errors
	}

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.reconcile()
		case <-events:
			s.reconcile()
		case err := <-errs:
			ddlog.Warnf("supervisor %s: fsnotify error: %v", s.input.Name, err)
		}
	}
}

// watchDir returns the nearest ancestor directory of a glob pattern
// that contains no wildcard itself, the one fsnotify can watch
// directly. "/var/log/app.log" -> "/var/log"; "/var/log/*/app.log" ->
// "/var/log".
func watchDir(pattern string) string {
	dir := filepath.Dir(pattern)
	for strings.Contains(dir, "*") {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return dir
}

func (s *Supervisor) detachLoop() {
	interval := time.Duration(s.input.DetachIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Duration(config.DefaultDetachIntervalSec) * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// reconcile re-expands the glob and spawns children for newly observed
// folders/files, and marks previously-tracked slots absent when their
// file has disappeared (spec §4.4 "Path rescan").
func (s *Supervisor) reconcile() {
	grouped, err := s.expand()
	if err != nil {
		ddlog.Warnf("supervisor %s: glob expand failed: %v", s.input.Name, err)
		return
	}
	if len(grouped) > 0 {
		atomic.StoreInt32(&s.ready, 1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, files := range grouped {
		if len(files) == 0 {
			continue
		}
		existing, tracked := s.slots[key]
		if !tracked {
			s.spawnSlot(key, files)
			continue
		}
		if existing.path != "" && !contains(files, existing.path) {
			if existing.absentSince.IsZero() {
				existing.absentSince = time.Now()
			}
		} else {
			existing.absentSince = time.Time{}
		}
	}

	for key, existing := range s.slots {
		if _, stillMatched := grouped[key]; !stillMatched && existing.absentSince.IsZero() {
			existing.absentSince = time.Now()
		}
	}
}

// spawnSlot applies the age gate and the single-folder spawning rule
// (spec §4.4 Spawning) to files and, if a tailer results, registers it
// under key.
func (s *Supervisor) spawnSlot(key string, files []string) {
	candidates := s.applyAgeGate(files)
	if len(candidates) == 0 {
		return
	}

	if s.input.Tail {
		if len(candidates) > 1 && !s.warnedOnce(key) {
			ddlog.Warnf("supervisor %s: %d files matched %q, following only %s", s.input.Name, len(candidates), s.input.Path, candidates[0])
		}
		path := candidates[0]
		t := tailer.New(s.input.Clone(), []string{path}, s.store, s.chain.Clone(), s.out)
		t.Start()
		s.slots[key] = &slot{tailer: t, path: path}
		return
	}

	t := tailer.New(s.input.Clone(), candidates, s.store, s.chain.Clone(), s.out)
	t.Start()
	s.slots[key] = &slot{tailer: t}
}

func (s *Supervisor) applyAgeGate(files []string) []string {
	if s.input.MaxAgeMin <= 0 {
		return files
	}
	cutoff := time.Now().Add(-time.Duration(s.input.MaxAgeMin) * time.Minute)
	out := make([]string, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			ddlog.Infof("supervisor %s: skipping %s, older than maxAgeMin", s.input.Name, f)
			continue
		}
		out = append(out, f)
	}
	return out
}

func (s *Supervisor) warnedOnce(key string) bool {
	s.warnedMu.Lock()
	defer s.warnedMu.Unlock()
	if s.warned[key] {
		return true
	}
	s.warned[key] = true
	return false
}

// sweep closes and untracks every slot absent for at least
// detachTimeSec (spec §4.4 "Detach sweep").
func (s *Supervisor) sweep() {
	detachTime := time.Duration(s.input.DetachTimeSec) * time.Second
	if detachTime <= 0 {
		detachTime = time.Duration(config.DefaultDetachTimeSec) * time.Second
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, existing := range s.slots {
		if existing.absentSince.IsZero() {
			continue
		}
		if time.Since(existing.absentSince) < detachTime {
			continue
		}
		existing.tailer.Close()
		delete(s.slots, key)
	}
}

// Close shuts the supervisor down: stops the background workers, then
// closes every child tailer and waits for its final checkpoint flush.
func (s *Supervisor) Close() {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return
	}
	close(s.done)
	s.wg.Wait()

	s.mu.Lock()
	children := make([]*tailer.Tailer, 0, len(s.slots))
	for _, existing := range s.slots {
		children = append(children, existing.tailer)
	}
	s.slots = make(map[string]*slot)
	s.mu.Unlock()

	for _, c := range children {
		c.Close()
	}
	for _, c := range children {
		c.Wait()
	}
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}
