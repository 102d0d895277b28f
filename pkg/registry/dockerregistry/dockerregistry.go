// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

// Package dockerregistry implements the registry seam a ContainerAdapter
// polls for its variant snapshot, generalizing the teacher's
// ContainerInput.listContainers/scan (pkg/input/container/scanner.go) from
// one-shot per-source tailer bookkeeping into a stateless snapshot the
// adapter diffs itself.
package dockerregistry

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"

	"github.com/shipperio/logshipper/pkg/ddlog"
)

// Metadata describes one running container relevant to a logType.
type Metadata struct {
	ContainerID string
	LogPath     string
	Labels      map[string]string
}

// Snapshot maps logType -> containerID -> Metadata, the shape
// ContainerAdapter diffs against its previous poll to find arrivals and
// departures.
type Snapshot map[string]map[string]Metadata

// Registry is the seam ContainerAdapter depends on; it is opaque to the
// adapter in the same way FilterChain is opaque to PerFileTailer.
type Registry interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// DockerRegistry implements Registry against a live docker daemon using
// github.com/docker/docker's client, the modern continuation of the
// teacher's (now-retired) github.com/moby/moby/client import.
type DockerRegistry struct {
	cli *client.Client
	// logTypeLabel is the container label whose value buckets a
	// container under a logType key, e.g. "com.logshipper.logtype".
	logTypeLabel string
}

// New returns a DockerRegistry talking to the daemon referenced by the
// standard DOCKER_HOST/DOCKER_* environment, mirroring the teacher's
// client.NewEnvClient() call.
func New(logTypeLabel string) (*DockerRegistry, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("dockerregistry: %w", err)
	}
	return &DockerRegistry{cli: cli, logTypeLabel: logTypeLabel}, nil
}

// Snapshot lists all running containers and buckets them by logType
// label, skipping containers that carry no logType label at all (they
// are outside any ContainerAdapter's concern).
func (r *DockerRegistry) Snapshot(ctx context.Context) (Snapshot, error) {
	containers, err := r.cli.ContainerList(ctx, types.ContainerListOptions{})
	if err != nil {
		ddlog.Warnf("dockerregistry: list containers failed: %v", err)
		return nil, err
	}

	snap := make(Snapshot)
	for _, c := range containers {
		logType, ok := c.Labels[r.logTypeLabel]
		if !ok {
			continue
		}
		if _, ok := snap[logType]; !ok {
			snap[logType] = make(map[string]Metadata)
		}
		snap[logType][c.ID] = Metadata{
			ContainerID: c.ID,
			LogPath:     containerLogPath(c.ID),
			Labels:      c.Labels,
		}
	}
	return snap, nil
}

// containerLogPath returns the json-file log driver's on-disk path for a
// container, the same layout the docker daemon writes regardless of
// whether callers tail it via the API or the filesystem directly.
func containerLogPath(containerID string) string {
	return fmt.Sprintf("/var/lib/docker/containers/%s/%s-json.log", containerID, containerID)
}

// Close releases the underlying client's idle connections.
func (r *DockerRegistry) Close() error {
	return r.cli.Close()
}
