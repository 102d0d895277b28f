// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

// Package checkpoint persists, per FileIdentity, the durable resume point a
// PerFileTailer needs to survive a process restart. It generalizes the
// teacher's auditor.go (one combined registry.json, offset-only) into one
// small document per identity, matching the checkpoint sidecar directory
// described in the spec's external interfaces section.
package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shipperio/logshipper/pkg/ddlog"
	"github.com/shipperio/logshipper/pkg/identity"
	"github.com/shipperio/logshipper/pkg/metrics"
)

const checkpointExtension = ".checkpoint.json"

// Record is the durable, on-disk shape of one identity's checkpoint.
type Record struct {
	FilePath      string `json:"file_path"`
	FileKeyBase64 string `json:"file_key_base64"`
	ByteOffset    int64  `json:"byte_offset"`
	LineNumber    int64  `json:"line_number"`
	LastIngestMs  int64  `json:"last_ingest_ms"`
}

// Store persists {FileIdentity -> (byte offset, line number, ingest time)}
// under dir, one file per identity, written atomically (write-temp +
// rename). Each identity is written only by its owning tailer; one
// store-wide mutex guards the in-memory pending map, and the file write
// itself happens outside that lock.
type Store struct {
	dir                  string
	checkpointIntervalMs int64

	mu      sync.Mutex
	pending map[identity.FileIdentity]*pendingEntry
}

type pendingEntry struct {
	rec       Record
	lastFlush time.Time
	dirty     bool
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string, checkpointIntervalMs int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Store{
		dir:                  dir,
		checkpointIntervalMs: checkpointIntervalMs,
		pending:              make(map[identity.FileIdentity]*pendingEntry),
	}, nil
}

func (s *Store) path(id identity.FileIdentity) string {
	return filepath.Join(s.dir, id.Key()+checkpointExtension)
}

// Resume returns the last committed (offset, lineNumber) for id, or (0, 0)
// if none exists or the sidecar file is corrupt (corruption is logged and
// treated as "no checkpoint", never fatal).
func (s *Store) Resume(id identity.FileIdentity, filePath string) (int64, int64) {
	raw, err := os.ReadFile(s.path(id))
	if err != nil {
		return 0, 0
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		ddlog.Warnf("checkpoint: corrupt checkpoint for %s (%s), treating as missing: %v", filePath, id, err)
		metrics.CheckpointErrors.Inc()
		return 0, 0
	}
	return rec.ByteOffset, rec.LineNumber
}

// CheckIn records a new (offset, lineNumber) for id, persisting it only if
// at least checkpointIntervalMs has elapsed since the last persisted write,
// or flush is true. A lower lineNumber than the one already committed is
// rejected (checkpoints only advance monotonically).
func (s *Store) CheckIn(id identity.FileIdentity, filePath string, offset, lineNumber int64, flush bool) {
	s.mu.Lock()
	entry, ok := s.pending[id]
	if !ok {
		entry = &pendingEntry{}
		s.pending[id] = entry
	}
	if lineNumber < entry.rec.LineNumber {
		s.mu.Unlock()
		return
	}
	entry.rec = Record{
		FilePath:      filePath,
		FileKeyBase64: id.Key(),
		ByteOffset:    offset,
		LineNumber:    lineNumber,
		LastIngestMs:  time.Now().UnixMilli(),
	}
	entry.dirty = true
	due := flush || time.Since(entry.lastFlush) >= time.Duration(s.checkpointIntervalMs)*time.Millisecond
	var rec Record
	if due {
		rec = entry.rec
		entry.lastFlush = time.Now()
		entry.dirty = false
	}
	s.mu.Unlock()

	if due {
		s.persist(id, rec)
	}
}

// LastCheckIn flushes any pending, not-yet-persisted checkpoint for id
// regardless of the configured interval, used on tailer close.
func (s *Store) LastCheckIn(id identity.FileIdentity) {
	s.mu.Lock()
	entry, ok := s.pending[id]
	if !ok || !entry.dirty {
		s.mu.Unlock()
		return
	}
	rec := entry.rec
	entry.lastFlush = time.Now()
	entry.dirty = false
	s.mu.Unlock()

	s.persist(id, rec)
}

func (s *Store) persist(id identity.FileIdentity, rec Record) {
	raw, err := json.Marshal(rec)
	if err != nil {
		ddlog.Errorf("checkpoint: marshal failed for %s: %v", rec.FilePath, err)
		metrics.CheckpointErrors.Inc()
		return
	}
	final := s.path(id)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		ddlog.Warnf("checkpoint: write failed for %s: %v", rec.FilePath, err)
		metrics.CheckpointErrors.Inc()
		return
	}
	if err := os.Rename(tmp, final); err != nil {
		ddlog.Warnf("checkpoint: rename failed for %s: %v", rec.FilePath, err)
		metrics.CheckpointErrors.Inc()
		os.Remove(tmp)
	}
}

// List enumerates every checkpoint currently on disk, tolerating corrupt
// or partially-written files by skipping and logging them.
func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			ddlog.Warnf("checkpoint: skipping corrupt file %s: %v", e.Name(), err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
