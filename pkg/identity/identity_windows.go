// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

//go:build windows

package identity

import (
	"os"

	"golang.org/x/sys/windows"
)

// identifyFile derives the identity from the volume serial number and file
// index Windows reports via GetFileInformationByHandle, the equivalent of
// POSIX (device, inode) used by the teacher's ReadDirectoryChanges-based
// tailer to detect renames.
func identifyFile(f *os.File) (FileIdentity, error) {
	var info windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(windows.Handle(f.Fd()), &info); err != nil {
		return FileIdentity{}, err
	}
	index := uint64(info.FileIndexHigh)<<32 | uint64(info.FileIndexLow)
	return FileIdentity{device: uint64(info.VolumeSerialNumber), index: index}, nil
}
