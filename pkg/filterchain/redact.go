// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

package filterchain

import (
	"regexp"

	"github.com/shipperio/logshipper/pkg/message"
)

// RuleType selects a Redact rule's behavior, adapted from the teacher's
// Processor.applyRedactingRules (pkg/processor/processor.go), which
// applied the same two rule kinds to an outbound payload rather than to
// a FilterChain's raw line.
type RuleType int

const (
	// ExcludeAtMatch drops the line entirely when its pattern matches.
	ExcludeAtMatch RuleType = iota
	// MaskSequences replaces every match with a fixed placeholder.
	MaskSequences
)

// Rule is one configured redaction/exclusion rule.
type Rule struct {
	Type        RuleType
	Pattern     *regexp.Regexp
	Replacement []byte
}

// Redact is a Chain node applying an ordered list of Rules to the raw
// line. With no next filter it wraps the result as
// record["log_message"]; with a next filter configured it hands the
// redacted raw line to that filter instead.
type Redact struct {
	baseFilter
	rules []Rule
}

// NewRedact returns a Redact node with rules.
func NewRedact(rules []Rule) *Redact {
	return &Redact{rules: rules}
}

func (r *Redact) Clone() Chain {
	clone := &Redact{rules: r.rules}
	clone.input = r.input
	if r.next != nil {
		clone.next = r.next.Clone()
	}
	return clone
}

func (r *Redact) Process(rawLine []byte, marker message.InputMarker) (message.Record, bool, error) {
	content := rawLine
	for _, rule := range r.rules {
		switch rule.Type {
		case ExcludeAtMatch:
			if rule.Pattern.Match(content) {
				return nil, false, nil
			}
		case MaskSequences:
			content = rule.Pattern.ReplaceAll(content, rule.Replacement)
		}
	}

	if r.next != nil {
		return r.next.Process(content, marker)
	}
	return message.Record{"log_message": string(content)}, true, nil
}
