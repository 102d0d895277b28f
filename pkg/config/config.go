// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

// Package config loads the agent's YAML configuration the way the
// teacher's config.LogsAgent does (github.com/spf13/viper), generalized
// from the teacher's single logs-agent.yaml shape to a list of tailing
// inputs plus their sink wiring.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Agent is the package-level viper instance, mirroring the teacher's
// config.LogsAgent global.
var Agent = viper.New()

// rawInput is the wire shape decoded from YAML. Pointer bools let Load
// distinguish "absent, use the spec default" from "explicitly false".
type rawInput struct {
	Name          string `mapstructure:"name"`
	Path          string `mapstructure:"path"`
	DockerEnabled bool   `mapstructure:"docker_enabled"`
	LogType       string `mapstructure:"log_type"`
	Tail          *bool  `mapstructure:"tail"`
	ProcessFile   *bool  `mapstructure:"process_file"`
	CopyFile      *bool  `mapstructure:"copy_file"`

	CheckpointIntervalMs  int64 `mapstructure:"checkpoint_interval_ms"`
	DetachIntervalSec     int64 `mapstructure:"detach_interval_sec"`
	DetachTimeSec         int64 `mapstructure:"detach_time_sec"`
	PathUpdateIntervalSec int64 `mapstructure:"path_update_interval_sec"`
	MaxAgeMin             int64 `mapstructure:"max_age_min"`

	AddFields        map[string]string `mapstructure:"add_fields"`
	Group            string            `mapstructure:"group"`
	DefaultLogLevels []string          `mapstructure:"default_log_levels"`

	UseEventMd5AsID   bool `mapstructure:"use_event_md5_as_id"`
	GenEventMd5       bool `mapstructure:"gen_event_md5"`
	InitDefaultFields bool `mapstructure:"init_default_fields"`

	Sinks []string `mapstructure:"sinks"`
}

func boolOrDefault(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func int64OrDefault(v, def int64) int64 {
	if v == 0 {
		return def
	}
	return v
}

func (r rawInput) toInput() (*Input, error) {
	if !r.DockerEnabled && r.Path == "" {
		return nil, fmt.Errorf("input %q: path is required unless docker_enabled is set", r.Name)
	}
	in := &Input{
		Name:                  r.Name,
		Path:                  r.Path,
		DockerEnabled:         r.DockerEnabled,
		LogType:               r.LogType,
		Tail:                  boolOrDefault(r.Tail, true),
		ProcessFile:           boolOrDefault(r.ProcessFile, true),
		CopyFile:              boolOrDefault(r.CopyFile, false),
		CheckpointIntervalMs:  int64OrDefault(r.CheckpointIntervalMs, DefaultCheckpointIntervalMs),
		DetachIntervalSec:     int64OrDefault(r.DetachIntervalSec, DefaultDetachIntervalSec),
		DetachTimeSec:         int64OrDefault(r.DetachTimeSec, DefaultDetachTimeSec),
		PathUpdateIntervalSec: int64OrDefault(r.PathUpdateIntervalSec, DefaultPathUpdateIntervalSec),
		MaxAgeMin:             r.MaxAgeMin,
		AddFields:             r.AddFields,
		Group:                 r.Group,
		DefaultLogLevels:      r.DefaultLogLevels,
		UseEventMd5AsID:       r.UseEventMd5AsID,
		GenEventMd5:           r.GenEventMd5,
		InitDefaultFields:     r.InitDefaultFields,
		Sinks:                 r.Sinks,
	}
	if in.AddFields == nil {
		in.AddFields = map[string]string{}
	}
	return in, nil
}

// Load reads configPath into Agent and returns the decoded, defaulted
// inputs. A malformed file, or an input missing both path and
// docker_enabled, is a programmer-contract violation: it is returned as
// an error for the caller to treat as fatal at startup.
func Load(configPath string) ([]*Input, error) {
	Agent.SetConfigFile(configPath)
	Agent.SetDefault("checkpoint_dir", "/var/run/logshipper/checkpoints")
	Agent.SetDefault("hostname", "")

	if err := Agent.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", configPath, err)
	}

	var raw []rawInput
	if err := Agent.UnmarshalKey("inputs", &raw); err != nil {
		return nil, fmt.Errorf("decoding inputs: %w", err)
	}

	inputs := make([]*Input, 0, len(raw))
	for _, r := range raw {
		in, err := r.toInput()
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// CheckpointDir returns the configured checkpoint sidecar directory.
func CheckpointDir() string {
	return Agent.GetString("checkpoint_dir")
}

// Hostname returns the configured hostname used for record enrichment.
func Hostname() string {
	return Agent.GetString("hostname")
}
