// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/shipperio/logshipper/pkg/ddlog"
	"github.com/shipperio/logshipper/pkg/message"
)

// FileSink appends each record as one JSON line to a local file, the
// reference implementation used by tests and by deployments with no
// remote intake configured.
type FileSink struct {
	Base

	mu      sync.Mutex
	path    string
	f       *os.File
	pending int
}

// NewFileSink returns a FileSink writing to path, creating it if needed.
func NewFileSink(name, path string, idFields []string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("filesink %s: %w", name, err)
	}
	return &FileSink{Base: NewBase(name, idFields), path: path, f: f}, nil
}

func (s *FileSink) Init(props map[string]string) error { return nil }

func (s *FileSink) WriteRecord(record message.Record, marker message.InputMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending++
	defer func() { s.pending-- }()

	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = s.f.Write(line)
	return err
}

func (s *FileSink) WriteText(text string, marker message.InputMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.f, text+"\n")
	return err
}

func (s *FileSink) CopyFile(file message.File, marker message.InputMarker) error {
	src, err := os.Open(file.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = io.Copy(s.f, src)
	return err
}

func (s *FileSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.f.Close(); err != nil {
		ddlog.Warnf("filesink %s: close failed: %v", s.Name, err)
	}
	s.MarkClosed()
}

func (s *FileSink) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *FileSink) LogStat() {
	ddlog.Infof("filesink %s: %d pending, path=%s, containers=%d", s.Name, s.PendingCount(), s.path, len(s.MetricsContainers()))
}
