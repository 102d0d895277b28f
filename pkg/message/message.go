// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

// Package message carries the shapes that flow between a PerFileTailer,
// its FilterChain, and the OutputManager: InputMarker (provenance) and
// Record (the enrichable, map-shaped payload a FilterChain produces).
package message

import "github.com/shipperio/logshipper/pkg/identity"

// Record is a mutable field->value document. FilterChain implementations
// produce these; OutputManager enriches and dispatches them.
type Record map[string]interface{}

// Clone returns a shallow copy, used where a Record must not be shared
// across concurrent tailers or sinks.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// InputMarker carries the provenance of a line: which input produced it,
// which physical file, and its 1-based line number within that file.
type InputMarker struct {
	InputName  string
	Identity   identity.FileIdentity
	LineNumber int64
	ByteOffset int64
	Properties map[string]interface{}
}

// NewMarker returns an InputMarker for a file-backed line.
func NewMarker(inputName string, id identity.FileIdentity, lineNumber, byteOffset int64) InputMarker {
	return InputMarker{
		InputName:  inputName,
		Identity:   id,
		LineNumber: lineNumber,
		ByteOffset: byteOffset,
		Properties: map[string]interface{}{"line_number": lineNumber},
	}
}

// File is the minimal file handle the copy-file path needs: a path plus
// the identity the checkpoint store and markers key on.
type File struct {
	Path     string
	Identity identity.FileIdentity
}
