// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shipperio/logshipper/pkg/checkpoint"
	"github.com/shipperio/logshipper/pkg/config"
	"github.com/shipperio/logshipper/pkg/ddlog"
	"github.com/shipperio/logshipper/pkg/filterchain"
	"github.com/shipperio/logshipper/pkg/output"
	"github.com/shipperio/logshipper/pkg/registry/dockerregistry"
	"github.com/shipperio/logshipper/pkg/sink"
	"github.com/shipperio/logshipper/pkg/tailer"
)

// ContainerAdapter is the registry-driven variant of Supervisor (spec
// §4.5): in place of glob expansion it polls a dockerregistry.Registry
// snapshot keyed by logType, spawning one child tailer per observed
// container and stopping it when the container disappears. It mirrors
// the teacher's ContainerInput.scan diff-against-previous-poll shape
// (pkg/input/container/scanner.go), generalized from one hardcoded
// source-to-image match into the spec's logType-keyed snapshot.
type ContainerAdapter struct {
	input    *config.Input
	chain    filterchain.Chain
	store    *checkpoint.Store
	out      *output.Manager
	registry dockerregistry.Registry

	mu       sync.Mutex
	children map[string]*tailer.Tailer // containerID -> tailer
	ready    int32

	closed int32
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewContainerAdapter returns a ContainerAdapter for input, polling
// registry for containers labeled with input.LogType.
func NewContainerAdapter(input *config.Input, chain filterchain.Chain, store *checkpoint.Store, out *output.Manager, registry dockerregistry.Registry) *ContainerAdapter {
	return &ContainerAdapter{
		input:    input,
		chain:    chain,
		store:    store,
		out:      out,
		registry: registry,
		children: make(map[string]*tailer.Tailer),
		done:     make(chan struct{}),
	}
}

// IsReady reports whether the registry currently has at least one
// container for this adapter's configured logType.
func (a *ContainerAdapter) IsReady() bool {
	return atomic.LoadInt32(&a.ready) == 1
}

// Start runs one poll immediately, then launches the polling worker.
// Polling period equals pathUpdateIntervalSec (spec §4.5).
func (a *ContainerAdapter) Start() {
	a.poll()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.pollLoop()
	}()
}

func (a *ContainerAdapter) pollLoop() {
	interval := time.Duration(a.input.PathUpdateIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Duration(config.DefaultPathUpdateIntervalSec) * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			a.poll()
		}
	}
}

// poll takes one registry snapshot and spawns/stops children for the
// delta against the previous poll (spec §4.5 "On each registry delta").
func (a *ContainerAdapter) poll() {
	snap, err := a.registry.Snapshot(context.Background())
	if err != nil {
		ddlog.Warnf("containeradapter %s: snapshot failed: %v", a.input.Name, err)
		return
	}

	byType := snap[a.input.LogType]
	if len(byType) > 0 {
		atomic.StoreInt32(&a.ready, 1)
	} else {
		atomic.StoreInt32(&a.ready, 0)
	}

	containers := make([]sink.MetricsContainer, 0, len(byType))
	for id, meta := range byType {
		containers = append(containers, sink.MetricsContainer{ContainerID: id, LogPath: meta.LogPath, Labels: meta.Labels})
	}
	a.out.AddMetricsContainers(a.input.Sinks, containers)

	a.mu.Lock()
	defer a.mu.Unlock()

	for containerID, meta := range byType {
		if _, ok := a.children[containerID]; ok {
			continue
		}
		child := a.input.Clone()
		child.Path = meta.LogPath
		childChain := a.chain.Clone()
		childChain.SetInput(child)
		t := tailer.New(child, []string{meta.LogPath}, a.store, childChain, a.out)
		t.Start()
		a.children[containerID] = t
	}

	for containerID, t := range a.children {
		if _, stillPresent := byType[containerID]; !stillPresent {
			t.Close()
			delete(a.children, containerID)
		}
	}
}

// Close stops polling and closes every child tailer.
func (a *ContainerAdapter) Close() {
	if !atomic.CompareAndSwapInt32(&a.closed, 0, 1) {
		return
	}
	close(a.done)
	a.wg.Wait()

	a.mu.Lock()
	children := make([]*tailer.Tailer, 0, len(a.children))
	for _, t := range a.children {
		children = append(children, t)
	}
	a.children = make(map[string]*tailer.Tailer)
	a.mu.Unlock()

	for _, c := range children {
		c.Close()
	}
	for _, c := range children {
		c.Wait()
	}
}
