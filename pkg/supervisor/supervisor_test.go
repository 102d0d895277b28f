// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipperio/logshipper/pkg/checkpoint"
	"github.com/shipperio/logshipper/pkg/config"
	"github.com/shipperio/logshipper/pkg/filterchain"
	"github.com/shipperio/logshipper/pkg/message"
	"github.com/shipperio/logshipper/pkg/output"
	"github.com/shipperio/logshipper/pkg/registry/dockerregistry"
	"github.com/shipperio/logshipper/pkg/sink"
)

func newHarness(t *testing.T) (*checkpoint.Store, *output.Manager, *captureSink) {
	t.Helper()
	dir := t.TempDir()
	store, err := checkpoint.New(filepath.Join(dir, "sidecar"), 0)
	require.NoError(t, err)

	s := &captureSink{NullSink: sink.NewNullSink("s1", nil)}
	out := output.New(nil, nil, nil)
	out.RegisterSink("s1", s)
	return store, out, s
}

type captureSink struct {
	*sink.NullSink
	records []message.Record
}

func (c *captureSink) WriteRecord(record message.Record, marker message.InputMarker) error {
	c.records = append(c.records, record)
	return c.NullSink.WriteRecord(record, marker)
}

func TestSingleFolderTailTrueFollowsOnlyFirstMatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.log"), []byte("from-a\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.log"), []byte("from-b\n"), 0644))

	store, out, cap := newHarness(t)
	in := &config.Input{
		Name: "glob", Path: filepath.Join(dir, "*.log"),
		Tail: true, ProcessFile: true, CheckpointIntervalMs: 10, DetachTimeSec: 2,
		PathUpdateIntervalSec: 1, DetachIntervalSec: 1,
		AddFields: map[string]string{}, Sinks: []string{"s1"},
	}
	sup := New(in, filterchain.New(), store, out)
	sup.Start()
	defer sup.Close()

	require.Eventually(t, func() bool { return sup.IsReady() }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(cap.records) >= 1 }, time.Second, 10*time.Millisecond)

	assert.Len(t, sup.slots, 1)
	assert.Equal(t, "from-a", cap.records[0]["log_message"])
}

func TestMultiFolderSpawnsOneTailerPerFolder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "b"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "app.log"), []byte("A\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b", "app.log"), []byte("B\n"), 0644))

	store, out, cap := newHarness(t)
	in := &config.Input{
		Name: "multi", Path: filepath.Join(dir, "*", "app.log"),
		Tail: true, ProcessFile: true, CheckpointIntervalMs: 10, DetachTimeSec: 2,
		PathUpdateIntervalSec: 1, DetachIntervalSec: 1,
		AddFields: map[string]string{}, Sinks: []string{"s1"},
	}
	sup := New(in, filterchain.New(), store, out)
	sup.Start()
	defer sup.Close()

	require.Eventually(t, func() bool { return len(cap.records) >= 2 }, time.Second, 10*time.Millisecond)

	var messages []string
	for _, r := range cap.records {
		messages = append(messages, r["log_message"].(string))
	}
	assert.ElementsMatch(t, []string{"A", "B"}, messages)
}

type fakeRegistry struct {
	snap dockerregistry.Snapshot
}

func (f *fakeRegistry) set(snap dockerregistry.Snapshot) {
	f.snap = snap
}

func (f *fakeRegistry) Snapshot(ctx context.Context) (dockerregistry.Snapshot, error) {
	return f.snap, nil
}

func TestContainerAdapterSpawnsAndRetiresOnDelta(t *testing.T) {
	dir := t.TempDir()
	c1Log := filepath.Join(dir, "c1.log")
	c2Log := filepath.Join(dir, "c2.log")
	require.NoError(t, os.WriteFile(c1Log, []byte("from-c1\n"), 0644))
	require.NoError(t, os.WriteFile(c2Log, []byte("from-c2\n"), 0644))

	store, out, cap := newHarness(t)
	in := &config.Input{
		Name: "containers", DockerEnabled: true, LogType: "web",
		Tail: true, ProcessFile: true, CheckpointIntervalMs: 10, DetachTimeSec: 2,
		PathUpdateIntervalSec: 1, DetachIntervalSec: 1,
		AddFields: map[string]string{}, Sinks: []string{"s1"},
	}

	reg := &fakeRegistry{}
	reg.set(dockerregistry.Snapshot{"web": {"c1": {ContainerID: "c1", LogPath: c1Log}}})

	adapter := NewContainerAdapter(in, filterchain.New(), store, out, reg)
	adapter.Start()
	defer adapter.Close()

	require.Eventually(t, func() bool { return adapter.IsReady() }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(cap.records) >= 1 }, time.Second, 10*time.Millisecond)

	reg.set(dockerregistry.Snapshot{"web": {"c2": {ContainerID: "c2", LogPath: c2Log}}})
	adapter.poll()

	require.Eventually(t, func() bool {
		adapter.mu.Lock()
		defer adapter.mu.Unlock()
		_, hasC1 := adapter.children["c1"]
		_, hasC2 := adapter.children["c2"]
		return !hasC1 && hasC2
	}, time.Second, 10*time.Millisecond)
}
