// SPDX-License-Identifier: MPL-2.0

//go:build windows

package watch

import (
	"errors"
	"syscall"
)

// fatalErrnos end the watch loop. ReadDirectoryChangesW has no watch limit,
// but these Win32 codes mean the directory handle is gone for good:
// ERROR_TOO_MANY_OPEN_FILES (4), ERROR_INVALID_HANDLE (6) when the project
// directory was removed, and ERROR_NOT_ENOUGH_MEMORY (8).
var fatalErrnos = []syscall.Errno{4, 6, 8}

func isFatalFsnotifyError(err error) bool {
	for _, errno := range fatalErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
