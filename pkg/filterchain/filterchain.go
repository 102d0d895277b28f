// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

// Package filterchain defines the FilterChain seam (spec §4.6, §6): an
// ordered, cloneable pipeline that turns a raw line into zero or one
// enriched Record. The concrete parse/grok implementations are out of
// scope; this package provides the seam plus a few minimal nodes: a
// passthrough chain used by tests and by inputs that declare no
// filters, a Drop node, and a regexp-based Redact node.
package filterchain

import (
	"github.com/shipperio/logshipper/pkg/config"
	"github.com/shipperio/logshipper/pkg/message"
)

// Chain is one node in a linked filter pipeline. The core clones a Chain
// once per child tailer so per-line state (buffers, multi-line timers) is
// never shared between concurrently running tailers.
type Chain interface {
	// Clone returns an independent chain with the same configured
	// behavior but no shared mutable state.
	Clone() Chain
	// SetInput associates the chain with the child tailer's input, for
	// descriptor access (addFields, group, ...). Non-owning: the input
	// owns the chain, not the other way around.
	SetInput(input *config.Input)
	SetNextFilter(next Chain)
	NextFilter() Chain
	// Process consumes one raw line and its marker, producing zero or one
	// Record. FilterChain errors are the caller's responsibility to log
	// and skip (spec: a FilterChain error drops the line, the tailer
	// keeps going).
	Process(rawLine []byte, marker message.InputMarker) (message.Record, bool, error)
}

// baseFilter holds the bookkeeping every concrete Chain node needs:
// the owning input back-reference and the next-filter link.
type baseFilter struct {
	input *config.Input
	next  Chain
}

func (b *baseFilter) SetInput(input *config.Input) { b.input = input }
func (b *baseFilter) SetNextFilter(next Chain)      { b.next = next }
func (b *baseFilter) NextFilter() Chain             { return b.next }

// Passthrough is the default chain: with no next filter it wraps the
// raw line as record["log_message"]; with a next filter configured it
// hands the raw line, unwrapped, to that filter instead. It is what an input with no declared filters runs, and
// what tests use to exercise the tailer/output seam without a real
// parser.
type Passthrough struct {
	baseFilter
}

// New returns a Passthrough chain head.
func New() *Passthrough {
	return &Passthrough{}
}

func (p *Passthrough) Clone() Chain {
	clone := &Passthrough{}
	clone.input = p.input
	if p.next != nil {
		clone.next = p.next.Clone()
	}
	return clone
}

func (p *Passthrough) Process(rawLine []byte, marker message.InputMarker) (message.Record, bool, error) {
	if p.next != nil {
		return p.next.Process(rawLine, marker)
	}
	return message.Record{"log_message": string(rawLine)}, true, nil
}

// Drop is a chain node that emits no record for any line, useful for
// exercising the tailer's "FilterChain produced nothing" path.
type Drop struct {
	baseFilter
}

func (d *Drop) Clone() Chain {
	clone := &Drop{}
	clone.input = d.input
	if d.next != nil {
		clone.next = d.next.Clone()
	}
	return clone
}

func (d *Drop) Process(rawLine []byte, marker message.InputMarker) (message.Record, bool, error) {
	return nil, false, nil
}
