// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

// Package identity derives a stable handle for "the same physical file
// across renames", the way the teacher's tailer/scanner.go inode() helper
// does for a single platform, generalized across POSIX and Windows.
package identity

import (
	"encoding/base64"
	"fmt"
	"os"
)

// FileIdentity is a stable value equal across renames of the same physical
// file and unequal across distinct files on the same host. All resume and
// rotation logic in this repository is keyed on FileIdentity, never on path.
type FileIdentity struct {
	device uint64
	index  uint64
}

// Identify returns the FileIdentity of an already-open file. It is
// recomputed on every (re)open; a change across reopens of the same path
// signals rotation.
func Identify(f *os.File) (FileIdentity, error) {
	return identifyFile(f)
}

// IdentifyPath opens path read-only just long enough to derive its
// FileIdentity, used by the tailer's copy-file path and its rotation
// re-stat, where no open descriptor for that path is at hand.
func IdentifyPath(path string) (FileIdentity, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileIdentity{}, err
	}
	defer f.Close()
	return identifyFile(f)
}

// Zero reports whether this is the zero-value identity (never a real file).
func (id FileIdentity) Zero() bool {
	return id == FileIdentity{}
}

// Key returns a filesystem-safe textual encoding of the identity, used as
// the checkpoint file's base64Key.
func (id FileIdentity) Key() string {
	raw := fmt.Sprintf("%d:%d", id.device, id.index)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func (id FileIdentity) String() string {
	return fmt.Sprintf("dev=%d,idx=%d", id.device, id.index)
}
