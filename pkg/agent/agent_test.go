// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipperio/logshipper/pkg/config"
)

func TestNewWiresFileBackedInputsWithoutDocker(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(logPath, []byte("hello\n"), 0644))

	config.Agent.Set("checkpoint_dir", filepath.Join(dir, "checkpoints"))

	in := &config.Input{
		Name: "app", Path: logPath, Tail: true, ProcessFile: true,
		CheckpointIntervalMs: 10, DetachTimeSec: 2, PathUpdateIntervalSec: 1, DetachIntervalSec: 1,
		AddFields: map[string]string{}, Sinks: []string{"primary"},
	}

	a, err := New([]*config.Input{in})
	require.NoError(t, err)
	require.NotNil(t, a)

	for _, r := range a.runners {
		r.Start()
	}
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, a.Close())

	out, err := os.ReadFile(filepath.Join(dir, "checkpoints-sinks", "primary.log"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "hello")
}
