// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

package filterchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipperio/logshipper/pkg/message"
)

func TestPassthroughWrapsRawLine(t *testing.T) {
	p := New()
	record, ok, err := p.Process([]byte("hello world"), message.InputMarker{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello world", record["log_message"])
}

func TestDropEmitsNothing(t *testing.T) {
	d := &Drop{}
	record, ok, err := d.Process([]byte("anything"), message.InputMarker{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, record)
}

func TestSetNextFilterDelegatesProcessing(t *testing.T) {
	head := New()
	head.SetNextFilter(&Drop{})
	_, ok, err := head.Process([]byte("ignored"), message.InputMarker{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCloneIsIndependentOfOriginal(t *testing.T) {
	head := New()
	clone := head.Clone().(*Passthrough)
	clone.SetNextFilter(&Drop{})

	_, headOK, err := head.Process([]byte("x"), message.InputMarker{})
	require.NoError(t, err)
	assert.True(t, headOK)

	_, cloneOK, err := clone.Process([]byte("x"), message.InputMarker{})
	require.NoError(t, err)
	assert.False(t, cloneOK)
}
