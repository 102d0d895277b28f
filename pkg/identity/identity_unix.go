// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

//go:build !windows

package identity

import (
	"os"

	"golang.org/x/sys/unix"
)

// identifyFile derives the identity from (device, inode), the POSIX pair
// that stays stable across renames of the same inode.
func identifyFile(f *os.File) (FileIdentity, error) {
	info, err := f.Stat()
	if err != nil {
		return FileIdentity{}, err
	}
	stat, ok := info.Sys().(*unix.Stat_t)
	if !ok {
		// Not backed by a real filesystem; never equal to a real file's identity.
		return FileIdentity{}, nil
	}
	return FileIdentity{device: uint64(stat.Dev), index: stat.Ino}, nil
}
