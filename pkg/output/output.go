// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

// Package output implements the OutputManager: the shared sink-fan-out
// stage every PerFileTailer's FilterChain output passes through. It is
// grounded on the teacher's Sender (pkg/sender/sender.go) for the
// per-destination dispatch-with-logged-errors shape, generalized from
// one hardcoded TCP destination into a configurable sink list per input,
// plus the enrichment pipeline spec.md describes that the teacher itself
// never implemented.
package output

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/google/uuid"

	"github.com/shipperio/logshipper/pkg/config"
	"github.com/shipperio/logshipper/pkg/ddlog"
	"github.com/shipperio/logshipper/pkg/message"
	"github.com/shipperio/logshipper/pkg/metrics"
	"github.com/shipperio/logshipper/pkg/sink"
)

const dedupCacheSize = 4096

// LevelPredicate decides whether a record passes log-level filtering.
// Concrete policy is out of scope; callers inject one (or
// AllowAll/nil to disable filtering).
type LevelPredicate func(record message.Record) bool

// TextLevelPredicate is the unparsed-text counterpart of LevelPredicate.
type TextLevelPredicate func(text string) bool

// AllowAll never filters anything, the default when no predicate is
// configured.
func AllowAll(message.Record) bool { return true }

// AllowAllText is the text-path counterpart of AllowAll.
func AllowAllText(string) bool { return true }

// Manager is the process-wide OutputManager: one instance serves every
// input's FilterChain output. docCounter is the shared seq_num source
// (spec §4.7 item 4, §5 "global sequence counter").
type Manager struct {
	defaults map[string]interface{}

	levelPredicate     LevelPredicate
	textLevelPredicate TextLevelPredicate

	docCounter int64

	dedupMu sync.Mutex
	dedup   map[string]*lru.Cache[string, struct{}]

	sinksMu sync.Mutex
	sinks   map[string]sink.Sink

	drain int32
}

// New returns a Manager with the given default field table (applied to
// records missing those keys) and level predicates. A nil predicate
// disables that stage's filtering.
func New(defaults map[string]interface{}, levelPredicate LevelPredicate, textLevelPredicate TextLevelPredicate) *Manager {
	if levelPredicate == nil {
		levelPredicate = AllowAll
	}
	if textLevelPredicate == nil {
		textLevelPredicate = AllowAllText
	}
	return &Manager{
		defaults:           defaults,
		levelPredicate:     levelPredicate,
		textLevelPredicate: textLevelPredicate,
		dedup:              make(map[string]*lru.Cache[string, struct{}]),
		sinks:              make(map[string]sink.Sink),
	}
}

// RegisterSink makes s reachable by name for WriteRecord/WriteText/
// CopyFile and includes it in Close's shutdown sweep.
func (m *Manager) RegisterSink(name string, s sink.Sink) {
	m.sinksMu.Lock()
	defer m.sinksMu.Unlock()
	m.sinks[name] = s
}

// resolve looks up the sinks named by an input, skipping and logging
// any name with no registered sink.
func (m *Manager) resolve(names []string) []sink.Sink {
	m.sinksMu.Lock()
	defer m.sinksMu.Unlock()

	out := make([]sink.Sink, 0, len(names))
	for _, name := range names {
		s, ok := m.sinks[name]
		if !ok {
			ddlog.Warnf("output: unknown sink %q, skipping", name)
			continue
		}
		out = append(out, s)
	}
	return out
}

// WriteRecord runs the full enrichment pipeline (spec §4.7) over record
// and fans it out to input's configured sinks.
func (m *Manager) WriteRecord(input *config.Input, record message.Record, marker message.InputMarker) {
	m.applyContextFields(input, record)
	m.applyDefaults(record)
	m.applyEventDigest(input, record)

	seqNum := atomic.AddInt64(&m.docCounter, 1)
	record["seq_num"] = seqNum
	metrics.SequenceNumber.Set(float64(seqNum))

	if _, ok := record["event_count"]; !ok {
		record["event_count"] = 1
	}
	if input.Group != "" {
		record["group"] = input.Group
	}
	if lineNumber, ok := marker.Properties["line_number"]; ok {
		if n, ok := lineNumber.(int64); ok && n > 0 {
			record["logfile_line_number"] = n
		}
	}

	m.truncateMessage(record)
	m.applyMessageDigest(record)

	if !m.levelPredicate(record) {
		return
	}
	if !m.dedupAllow(input.Name, dedupKey(record)) {
		return
	}

	for _, s := range m.resolve(input.Sinks) {
		out := record
		if _, ok := out["id"]; !ok {
			id := sinkRecordID(s, record)
			out = record.Clone()
			out["id"] = id
		}
		if err := s.WriteRecord(out, marker); err != nil {
			metrics.SinkErrors.WithLabelValues(s.ShortDescription()).Inc()
			ddlog.Warnf("output: sink %s write failed: %v", s.ShortDescription(), err)
		}
	}
}

// WriteText dispatches an unparsed text block straight to every sink,
// after the text-path level predicate.
func (m *Manager) WriteText(input *config.Input, text string, marker message.InputMarker) {
	if !m.textLevelPredicate(text) {
		return
	}
	for _, s := range m.resolve(input.Sinks) {
		if err := s.WriteText(text, marker); err != nil {
			metrics.SinkErrors.WithLabelValues(s.ShortDescription()).Inc()
			ddlog.Warnf("output: sink %s write failed: %v", s.ShortDescription(), err)
		}
	}
}

// AddMetricsContainers forwards the registry's current containers to
// every sink named, for sinks that tag their own metrics per container
// (spec §6 Sink seam, addMetricsContainers). Callers without a
// container registry (plain file inputs) never call this.
func (m *Manager) AddMetricsContainers(names []string, containers []sink.MetricsContainer) {
	for _, s := range m.resolve(names) {
		s.AddMetricsContainers(containers)
	}
}

// CopyFile hands file to every sink's CopyFile, logging and continuing
// past per-sink errors.
func (m *Manager) CopyFile(input *config.Input, file message.File, marker message.InputMarker) {
	for _, s := range m.resolve(input.Sinks) {
		if err := s.CopyFile(file, marker); err != nil {
			metrics.SinkErrors.WithLabelValues(s.ShortDescription()).Inc()
			ddlog.Warnf("output: sink %s copyFile failed: %v", s.ShortDescription(), err)
		}
	}
}

func (m *Manager) applyContextFields(input *config.Input, record message.Record) {
	for k, v := range input.AddFields {
		current, present := record[k]
		if !present {
			record[k] = v
			continue
		}
		if k == "cluster" {
			if s, ok := current.(string); ok && s == "null" {
				record[k] = v
			}
		}
	}
}

func (m *Manager) applyDefaults(record message.Record) {
	for k, v := range m.defaults {
		if _, ok := record[k]; !ok {
			record[k] = v
		}
	}
	if _, ok := record["level"]; !ok {
		record["level"] = "UNKNOWN"
	}
}

func (m *Manager) applyEventDigest(input *config.Input, record message.Record) {
	if !input.UseEventMd5AsID && !input.GenEventMd5 {
		return
	}
	canonical, err := canonicalize(record)
	if err != nil {
		ddlog.Warnf("output: canonicalize failed for event digest: %v", err)
		return
	}
	digest := fmt.Sprintf("%s%d", logtimePrefix(record), md5Signed64(canonical))
	if input.GenEventMd5 {
		record["event_md5"] = digest
	}
	if input.UseEventMd5AsID {
		record["id"] = digest
	}
}

func logtimePrefix(record message.Record) string {
	lt, ok := record["logtime"]
	if !ok {
		return ""
	}
	switch v := lt.(type) {
	case time.Time:
		return strconv.FormatInt(v.UnixMilli(), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (m *Manager) truncateMessage(record message.Record) {
	raw, ok := record["log_message"]
	if !ok {
		return
	}
	s, ok := raw.(string)
	if !ok {
		return
	}
	if len(s) <= config.MessageTruncationLimit {
		return
	}
	record["log_message"] = s[:config.MessageTruncationLimit]
	record["tags"] = appendTag(record["tags"], "error_message_truncated")
	metrics.TruncatedMessages.Inc()
	if truncationLimiter.Allow(fmt.Sprintf("%v", record["logfile_line_number"])) {
		ddlog.Warnf("output: truncated log_message from %d to %d bytes", len(s), config.MessageTruncationLimit)
	}
}

func appendTag(existing interface{}, tag string) []string {
	switch v := existing.(type) {
	case []string:
		return append(v, tag)
	case []interface{}:
		out := make([]string, 0, len(v)+1)
		for _, e := range v {
			out = append(out, fmt.Sprintf("%v", e))
		}
		return append(out, tag)
	default:
		return []string{tag}
	}
}

func (m *Manager) applyMessageDigest(record message.Record) {
	raw, ok := record["log_message"]
	if !ok {
		return
	}
	s, ok := raw.(string)
	if !ok {
		return
	}
	record["message_md5"] = strconv.FormatInt(md5Signed64([]byte(s)), 10)
}

func canonicalize(record message.Record) ([]byte, error) {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, record[k])
	}
	return json.Marshal(ordered)
}

func md5Signed64(data []byte) int64 {
	sum := md5.Sum(data)
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

func dedupKey(record message.Record) string {
	msg, _ := record["log_message"].(string)
	sum := md5.Sum([]byte(msg))
	return string(sum[:])
}

func (m *Manager) dedupAllow(inputName, key string) bool {
	m.dedupMu.Lock()
	cache, ok := m.dedup[inputName]
	if !ok {
		cache, _ = lru.New[string, struct{}](dedupCacheSize)
		m.dedup[inputName] = cache
	}
	m.dedupMu.Unlock()

	if _, seen := cache.Get(key); seen {
		return false
	}
	cache.Add(key, struct{}{})
	return true
}

func sinkRecordID(s sink.Sink, record message.Record) string {
	var buf bytes.Buffer
	for _, field := range s.IDFields() {
		fmt.Fprintf(&buf, "%v|", record[field])
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, buf.Bytes()).String()
}

// Close drains every registered sink: set setDrain(true), close each,
// then poll up to 30 seconds (1 second between polls) for isClosed(),
// logging any sink that never finishes (spec §4.7 Shutdown).
func (m *Manager) Close() error {
	atomic.StoreInt32(&m.drain, 1)

	m.sinksMu.Lock()
	all := make([]sink.Sink, 0, len(m.sinks))
	for _, s := range m.sinks {
		all = append(all, s)
	}
	m.sinksMu.Unlock()

	for _, s := range all {
		s.SetDrain(true)
		s.Close()
	}

	deadline := time.Now().Add(30 * time.Second)
	var result *multierror.Error
	for time.Now().Before(deadline) {
		allClosed := true
		for _, s := range all {
			if !s.IsClosed() {
				allClosed = false
				break
			}
		}
		if allClosed {
			return nil
		}
		time.Sleep(1 * time.Second)
	}
	for _, s := range all {
		if !s.IsClosed() {
			metrics.PendingAtShutdown.WithLabelValues(s.ShortDescription()).Set(float64(s.PendingCount()))
			result = multierror.Append(result, fmt.Errorf("sink %s did not close, %d pending", s.ShortDescription(), s.PendingCount()))
			ddlog.Warnf("output: sink %s did not close within shutdown window", s.ShortDescription())
		}
	}
	if result != nil {
		return result
	}
	return nil
}

var truncationLimiter = ddlog.NewLimiter(10 * time.Second)
