// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

// Package sink defines the Sink seam OutputManager dispatches to (spec
// §6): a destination for enriched records, unparsed text, and copied
// files. It generalizes the teacher's Sender (pkg/sender/sender.go),
// which hardcoded one TCP/TLS destination, into an interface with
// several concrete implementations.
package sink

import (
	"github.com/shipperio/logshipper/pkg/message"
)

// Sink is the seam OutputManager fans records, text, and files out to.
// Implementations own their own synchronization; OutputManager treats
// the sink list as read-only during steady state.
type Sink interface {
	Init(props map[string]string) error
	WriteRecord(record message.Record, marker message.InputMarker) error
	WriteText(text string, marker message.InputMarker) error
	CopyFile(file message.File, marker message.InputMarker) error
	Close()
	SetDrain(drain bool)
	IsClosed() bool
	PendingCount() int
	IDFields() []string
	ShortDescription() string
	AddMetricsContainers(containers []MetricsContainer)
	LogStat()
}

// MetricsContainer is the per-container metadata addMetricsContainers
// hands a sink (spec §6): enough for a sink that tags its own metrics
// by container to do so without depending on the registry package.
type MetricsContainer struct {
	ContainerID string
	LogPath     string
	Labels      map[string]string
}

// Base provides the bookkeeping shared by every concrete sink: the
// configured idFields and the drain/closed flags OutputManager polls at
// shutdown. Concrete sinks embed it and only implement the I/O methods.
type Base struct {
	Name       string
	idFields   []string
	drain      bool
	closed     bool
	containers []MetricsContainer
}

func NewBase(name string, idFields []string) Base {
	return Base{Name: name, idFields: idFields}
}

func (b *Base) SetDrain(drain bool) { b.drain = drain }
func (b *Base) Draining() bool      { return b.drain }
func (b *Base) IsClosed() bool      { return b.closed }
func (b *Base) MarkClosed()         { b.closed = true }
func (b *Base) IDFields() []string  { return b.idFields }
func (b *Base) ShortDescription() string {
	return b.Name
}

// AddMetricsContainers records the registry's current containers for
// this sink's input, so LogStat and per-container metrics can report
// against them. Concrete sinks that don't tag metrics by container
// inherit this bookkeeping-only default.
func (b *Base) AddMetricsContainers(containers []MetricsContainer) { b.containers = containers }

// MetricsContainers returns the containers last handed to
// AddMetricsContainers.
func (b *Base) MetricsContainers() []MetricsContainer { return b.containers }
