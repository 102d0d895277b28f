// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

package config

// Input is the defaulted, in-memory form of the spec's InputDescriptor:
// the immutable configuration for one declared input. Supervisors clone
// the owning Input (value semantics) when spawning children so a child's
// bookkeeping never aliases its parent's.
type Input struct {
	Name string

	// Path is a glob-capable string naming the file(s) to tail. Empty
	// when DockerEnabled is set.
	Path string
	// DockerEnabled routes this input through the ContainerAdapter
	// instead of glob expansion.
	DockerEnabled bool
	// LogType selects which containers the registry snapshot's logType
	// keys this input cares about.
	LogType string

	Tail                  bool
	ProcessFile           bool
	CopyFile              bool
	CheckpointIntervalMs  int64
	DetachIntervalSec     int64
	DetachTimeSec         int64
	PathUpdateIntervalSec int64
	MaxAgeMin             int64

	AddFields        map[string]string
	Group            string
	DefaultLogLevels []string

	UseEventMd5AsID   bool
	GenEventMd5       bool
	InitDefaultFields bool

	// Sinks names the configured sink destinations for this input.
	// Resolving names to sink.Sink instances happens at wiring time in
	// pkg/agent and output.Manager, not here.
	Sinks []string
}

// Clone returns a deep-enough copy for a child tailer: Input is mostly
// value-typed already, but the map fields must not be shared.
func (in *Input) Clone() *Input {
	clone := *in
	clone.AddFields = make(map[string]string, len(in.AddFields))
	for k, v := range in.AddFields {
		clone.AddFields[k] = v
	}
	clone.DefaultLogLevels = append([]string(nil), in.DefaultLogLevels...)
	clone.Sinks = append([]string(nil), in.Sinks...)
	return &clone
}
