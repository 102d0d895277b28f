// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

// Package agent wires the tailing core together: one Supervisor or
// ContainerAdapter per configured input, a shared checkpoint store and
// OutputManager, and the sinks each input names. It replaces the
// teacher's pkg/logagent.Start, which wired a single fixed
// ConnectionManager/Auditor/PipelineProvider chain
// (pkg/logagent/logsagent.go); here the wiring is driven by the loaded
// input list instead of being hardcoded.
package agent

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"

	"github.com/shipperio/logshipper/pkg/checkpoint"
	"github.com/shipperio/logshipper/pkg/config"
	"github.com/shipperio/logshipper/pkg/ddlog"
	"github.com/shipperio/logshipper/pkg/filterchain"
	"github.com/shipperio/logshipper/pkg/output"
	"github.com/shipperio/logshipper/pkg/registry/dockerregistry"
	"github.com/shipperio/logshipper/pkg/sink"
	"github.com/shipperio/logshipper/pkg/supervisor"
)

// dockerLogTypeLabel is the container label an Agent's ContainerAdapter
// buckets running containers by.
const dockerLogTypeLabel = "com.logshipper.logtype"

// runner is the common lifecycle every wired input exposes to the
// agent, whether it is backed by glob expansion or a container
// registry.
type runner interface {
	Start()
	Close()
}

// Agent owns every supervisor/adapter, the shared checkpoint store, and
// the shared OutputManager for one process lifetime.
type Agent struct {
	inputs  []*config.Input
	store   *checkpoint.Store
	out     *output.Manager
	runners []runner
	registry *dockerregistry.DockerRegistry
}

// New builds an Agent from a loaded input list: opens the checkpoint
// store, constructs the OutputManager, registers a FileSink per input's
// configured sink names (spec's sink seam is out of scope for concrete
// implementations, so this wires the in-repo reference sinks), and
// constructs one Supervisor or ContainerAdapter per input without
// starting any of them.
func New(inputs []*config.Input) (*Agent, error) {
	store, err := checkpoint.New(config.CheckpointDir(), config.DefaultCheckpointIntervalMs)
	if err != nil {
		return nil, fmt.Errorf("agent: opening checkpoint store: %w", err)
	}

	out := output.New(defaultFields(), nil, nil)
	a := &Agent{inputs: inputs, store: store, out: out}

	if err := a.wireSinks(); err != nil {
		return nil, err
	}

	needsRegistry := false
	for _, in := range inputs {
		if in.DockerEnabled {
			needsRegistry = true
			break
		}
	}
	if needsRegistry {
		reg, err := dockerregistry.New(dockerLogTypeLabel)
		if err != nil {
			return nil, fmt.Errorf("agent: %w", err)
		}
		a.registry = reg
	}

	for _, in := range inputs {
		chain := filterchain.New()
		chain.SetInput(in)

		if in.DockerEnabled {
			a.runners = append(a.runners, supervisor.NewContainerAdapter(in, chain, store, out, a.registry))
			continue
		}
		a.runners = append(a.runners, supervisor.New(in, chain, store, out))
	}

	return a, nil
}

// wireSinks registers one reference sink per distinct sink name across
// all inputs. Every configured name becomes a FileSink writing to
// <name>.log in the folder named after the checkpoint directory with a
// "-sinks" suffix; no other sink kind is wired here.
func (a *Agent) wireSinks() error {
	seen := make(map[string]bool)
	sinkDir := config.CheckpointDir() + "-sinks"
	if err := os.MkdirAll(sinkDir, 0755); err != nil {
		return fmt.Errorf("agent: creating sink directory: %w", err)
	}

	for _, in := range a.inputs {
		for _, name := range in.Sinks {
			if seen[name] {
				continue
			}
			seen[name] = true
			fs, err := sink.NewFileSink(name, sinkDir+"/"+name+".log", []string{"host", "log_message"})
			if err != nil {
				return fmt.Errorf("agent: wiring sink %q: %w", name, err)
			}
			a.out.RegisterSink(name, fs)
		}
	}
	return nil
}

func defaultFields() map[string]interface{} {
	fields := map[string]interface{}{}
	if h := config.Hostname(); h != "" {
		fields["host"] = h
	}
	return fields
}

// Run starts every supervisor/adapter and blocks until SIGINT/SIGTERM,
// then shuts everything down through Close: every supervisor/adapter
// in the order it was started, then the sinks (spec §5 "the process shuts down by signalling them and waiting").
func (a *Agent) Run() {
	for _, r := range a.runners {
		r.Start()
	}
	ddlog.Infof("agent: started %d input(s)", len(a.runners))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ddlog.Infof("agent: shutting down")
	a.Close()
}

// Close stops every supervisor/adapter, drains the OutputManager's
// sinks, and releases the registry client if one was opened.
func (a *Agent) Close() error {
	for _, r := range a.runners {
		r.Close()
	}

	var result *multierror.Error
	if err := a.out.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if a.registry != nil {
		if err := a.registry.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result != nil {
		return result
	}
	return nil
}
