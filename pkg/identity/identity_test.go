// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifyStableAcrossRename(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.log")
	require.NoError(t, os.WriteFile(a, []byte("hello\n"), 0644))

	before, err := IdentifyPath(a)
	require.NoError(t, err)

	b := filepath.Join(dir, "b.log")
	require.NoError(t, os.Rename(a, b))

	after, err := IdentifyPath(b)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.False(t, before.Zero())
}

func TestIdentifyDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.log")
	b := filepath.Join(dir, "b.log")
	require.NoError(t, os.WriteFile(a, []byte("a\n"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("b\n"), 0644))

	idA, err := IdentifyPath(a)
	require.NoError(t, err)
	idB, err := IdentifyPath(b)
	require.NoError(t, err)

	assert.NotEqual(t, idA, idB)
}

func TestKeyIsFilesystemSafe(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.log")
	require.NoError(t, os.WriteFile(a, []byte("a\n"), 0644))

	id, err := IdentifyPath(a)
	require.NoError(t, err)

	key := id.Key()
	assert.NotContains(t, key, "/")
	assert.NotContains(t, key, "=")
}
