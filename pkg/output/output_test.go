// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

package output

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipperio/logshipper/pkg/config"
	"github.com/shipperio/logshipper/pkg/message"
	"github.com/shipperio/logshipper/pkg/sink"
)

func testInput(name string, sinks ...string) *config.Input {
	return &config.Input{
		Name:      name,
		AddFields: map[string]string{},
		Sinks:     sinks,
	}
}

func TestWriteRecordAppliesContextFieldsAndDefaults(t *testing.T) {
	m := New(map[string]interface{}{"host": "localhost"}, nil, nil)
	s := sink.NewNullSink("s1", nil)
	m.RegisterSink("s1", s)

	in := testInput("app", "s1")
	in.AddFields["cluster"] = "c1"

	record := message.Record{"cluster": "null", "log_message": "hi"}
	m.WriteRecord(in, record, message.InputMarker{Properties: map[string]interface{}{}})

	assert.Equal(t, "c1", record["cluster"])
	assert.Equal(t, "localhost", record["host"])
	assert.Equal(t, "UNKNOWN", record["level"])
	assert.EqualValues(t, 1, record["event_count"])
	assert.Contains(t, record, "seq_num")
	assert.Contains(t, record, "message_md5")
}

func TestWriteRecordPreservesNonNullClusterOverride(t *testing.T) {
	m := New(nil, nil, nil)
	s := sink.NewNullSink("s1", nil)
	m.RegisterSink("s1", s)

	in := testInput("app", "s1")
	in.AddFields["cluster"] = "c1"

	record := message.Record{"cluster": "c2"}
	m.WriteRecord(in, record, message.InputMarker{Properties: map[string]interface{}{}})

	assert.Equal(t, "c2", record["cluster"])
}

func TestWriteRecordTruncatesOversizedMessage(t *testing.T) {
	m := New(nil, nil, nil)
	s := sink.NewNullSink("s1", nil)
	m.RegisterSink("s1", s)

	in := testInput("app", "s1")
	huge := strings.Repeat("x", 40000)
	record := message.Record{"log_message": huge}

	m.WriteRecord(in, record, message.InputMarker{Properties: map[string]interface{}{}})

	assert.Len(t, record["log_message"].(string), config.MessageTruncationLimit)
	tags, ok := record["tags"].([]string)
	require.True(t, ok)
	assert.Contains(t, tags, "error_message_truncated")
}

func TestWriteRecordAssignsSequentialSeqNum(t *testing.T) {
	m := New(nil, nil, nil)
	s := sink.NewNullSink("s1", nil)
	m.RegisterSink("s1", s)
	in := testInput("app", "s1")

	r1 := message.Record{}
	r2 := message.Record{}
	m.WriteRecord(in, r1, message.InputMarker{Properties: map[string]interface{}{}})
	m.WriteRecord(in, r2, message.InputMarker{Properties: map[string]interface{}{}})

	assert.Less(t, r1["seq_num"].(int64), r2["seq_num"].(int64))
}

func TestWriteRecordDedupsRepeatedLines(t *testing.T) {
	m := New(nil, nil, nil)
	calls := 0
	countingSink := &countingNullSink{NullSink: sink.NewNullSink("s1", nil), calls: &calls}
	m.RegisterSink("s1", countingSink)
	in := testInput("app", "s1")

	m.WriteRecord(in, message.Record{"log_message": "same"}, message.InputMarker{Properties: map[string]interface{}{}})
	m.WriteRecord(in, message.Record{"log_message": "same"}, message.InputMarker{Properties: map[string]interface{}{}})

	assert.Equal(t, 1, calls)
}

func TestCloseDrainsRegisteredSinks(t *testing.T) {
	m := New(nil, nil, nil)
	s := sink.NewNullSink("s1", nil)
	m.RegisterSink("s1", s)

	require.NoError(t, m.Close())
	assert.True(t, s.IsClosed())
}

type countingNullSink struct {
	*sink.NullSink
	calls *int
}

func (c *countingNullSink) WriteRecord(record message.Record, marker message.InputMarker) error {
	*c.calls++
	return c.NullSink.WriteRecord(record, marker)
}
