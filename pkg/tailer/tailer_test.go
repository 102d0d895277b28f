// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

package tailer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipperio/logshipper/pkg/checkpoint"
	"github.com/shipperio/logshipper/pkg/config"
	"github.com/shipperio/logshipper/pkg/filterchain"
	"github.com/shipperio/logshipper/pkg/message"
	"github.com/shipperio/logshipper/pkg/output"
	"github.com/shipperio/logshipper/pkg/sink"
)

func newTestInput(tail bool) *config.Input {
	return &config.Input{
		Name:                 "test",
		Tail:                 tail,
		ProcessFile:          true,
		CheckpointIntervalMs: 10,
		DetachTimeSec:        2,
		AddFields:            map[string]string{},
		Sinks:                []string{"s1"},
	}
}

func newTestManager(s sink.Sink) *output.Manager {
	m := output.New(nil, nil, nil)
	m.RegisterSink("s1", s)
	return m
}

func TestProcessOnceReadsExistingLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0644))

	store, err := checkpoint.New(filepath.Join(dir, "sidecar"), 0)
	require.NoError(t, err)

	var seen []string
	s := &captureSink{NullSink: sink.NewNullSink("s1", nil), onRecord: func(r message.Record) {
		seen = append(seen, r["log_message"].(string))
	}}
	out := newTestManager(s)

	in := newTestInput(false)
	tl := New(in, []string{path}, store, filterchain.New(), out)
	tl.Start()
	tl.Wait()

	assert.Equal(t, []string{"one", "two", "three"}, seen)
}

func TestTailFollowPicksUpAppendedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0644))

	store, err := checkpoint.New(filepath.Join(dir, "sidecar"), 0)
	require.NoError(t, err)

	var seen []string
	s := &captureSink{NullSink: sink.NewNullSink("s1", nil), onRecord: func(r message.Record) {
		seen = append(seen, r["log_message"].(string))
	}}
	out := newTestManager(s)

	in := newTestInput(true)
	tl := New(in, []string{path}, store, filterchain.New(), out)
	tl.Start()

	require.Eventually(t, func() bool { return len(seen) >= 1 }, time.Second, 10*time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("second\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return len(seen) >= 2 }, time.Second, 10*time.Millisecond)

	tl.Close()
	tl.Wait()

	assert.Equal(t, []string{"first", "second"}, seen)
}

func TestProcessOnceResumesFromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\n"), 0644))

	store, err := checkpoint.New(filepath.Join(dir, "sidecar"), 0)
	require.NoError(t, err)

	var seen []string
	capture := func(r message.Record) { seen = append(seen, r["log_message"].(string)) }

	in := newTestInput(false)

	s1 := &captureSink{NullSink: sink.NewNullSink("s1", nil), onRecord: capture}
	tl := New(in, []string{path}, store, filterchain.New(), newTestManager(s1))
	tl.Start()
	tl.Wait()
	assert.Equal(t, []string{"one", "two"}, seen)

	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0644))
	seen = nil
	s2 := &captureSink{NullSink: sink.NewNullSink("s1", nil), onRecord: capture}
	tl2 := New(in, []string{path}, store, filterchain.New(), newTestManager(s2))
	tl2.Start()
	tl2.Wait()
	assert.Equal(t, []string{"three"}, seen)
}

// TestTailFollowDetectsRotationAndSplitsIdentity exercises spec §8
// Scenario 2: tail app.log through lines 1-10, rename it out from
// under the open descriptor, recreate app.log, write two more lines,
// and confirm the old identity's tailer stops at line 10 while a
// fresh tailer against the recreated path starts back at line 1
// instead of resuming the old identity's checkpoint.
func TestTailFollowDetectsRotationAndSplitsIdentity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	var before []string
	for i := 1; i <= 10; i++ {
		before = append(before, fmt.Sprintf("line%d", i))
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(before, "\n")+"\n"), 0644))

	store, err := checkpoint.New(filepath.Join(dir, "sidecar"), 0)
	require.NoError(t, err)

	var seenOld []string
	oldSink := &captureSink{NullSink: sink.NewNullSink("s1", nil), onRecord: func(r message.Record) {
		seenOld = append(seenOld, r["log_message"].(string))
	}}

	in := newTestInput(true)
	in.DetachTimeSec = 1 // shrinks tailFollow's rotation re-stat interval for the test
	tl := New(in, []string{path}, store, filterchain.New(), newTestManager(oldSink))
	tl.Start()

	require.Eventually(t, func() bool { return len(seenOld) >= 10 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Rename(path, filepath.Join(dir, "app.log.1")))
	require.NoError(t, os.WriteFile(path, []byte("eleven\ntwelve\n"), 0644))

	// tailFollow notices the on-disk identity no longer matches its open
	// descriptor's and exits on its own; the supervisor would be the one
	// to respawn against the recreated path in production.
	done := make(chan struct{})
	go func() { tl.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("tailer did not exit after rotation")
	}

	assert.Equal(t, before, seenOld)

	var seenNew []string
	newSink := &captureSink{NullSink: sink.NewNullSink("s1", nil), onRecord: func(r message.Record) {
		seenNew = append(seenNew, r["log_message"].(string))
	}}
	batch := newTestInput(false)
	tl2 := New(batch, []string{path}, store, filterchain.New(), newTestManager(newSink))
	tl2.Start()
	tl2.Wait()

	assert.Equal(t, []string{"eleven", "twelve"}, seenNew)
}

type captureSink struct {
	*sink.NullSink
	onRecord func(message.Record)
}

func (c *captureSink) WriteRecord(record message.Record, marker message.InputMarker) error {
	c.onRecord(record)
	return c.NullSink.WriteRecord(record, marker)
}
