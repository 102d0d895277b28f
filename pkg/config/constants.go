// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

package config

// Business constants

const (
	// MessageTruncationLimit is the maximum UTF-8 byte length of
	// record["log_message"] before dispatch; longer messages are
	// truncated and tagged "error_message_truncated".
	MessageTruncationLimit = 32765

	// DefaultCheckpointIntervalMs is how often a tailer persists its
	// checkpoint while actively reading.
	DefaultCheckpointIntervalMs = 5000
	// DefaultDetachIntervalSec is how often a supervisor sweeps for
	// children whose file has been absent long enough to detach.
	DefaultDetachIntervalSec = 18000
	// DefaultDetachTimeSec is how long a file may be absent before its
	// tailer is detached.
	DefaultDetachTimeSec = 120000
	// DefaultPathUpdateIntervalSec is how often a supervisor re-expands
	// its glob (or a ContainerAdapter re-polls the registry).
	DefaultPathUpdateIntervalSec = 300
)
