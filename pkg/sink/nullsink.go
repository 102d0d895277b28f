// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

package sink

import "github.com/shipperio/logshipper/pkg/message"

// NullSink discards everything it receives; useful for benchmarking the
// tailing core without a real destination, and for inputs declared with
// no sinks during development.
type NullSink struct {
	Base
}

// NewNullSink returns a NullSink.
func NewNullSink(name string, idFields []string) *NullSink {
	return &NullSink{Base: NewBase(name, idFields)}
}

func (s *NullSink) Init(props map[string]string) error { return nil }

func (s *NullSink) WriteRecord(record message.Record, marker message.InputMarker) error {
	return nil
}

func (s *NullSink) WriteText(text string, marker message.InputMarker) error { return nil }

func (s *NullSink) CopyFile(file message.File, marker message.InputMarker) error { return nil }

func (s *NullSink) Close()            { s.MarkClosed() }
func (s *NullSink) PendingCount() int { return 0 }
func (s *NullSink) LogStat()          {}
