// SPDX-License-Identifier: MPL-2.0

// Package platform provides cross-platform compatibility utilities.
package platform

import "strings"

// windowsReservedNames are device names Windows reserves regardless of
// file extension.
var windowsReservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"COM5": true, "COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true,
	"LPT5": true, "LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// IsWindowsReservedName reports whether a file name cannot be created on
// Windows. Everything from the first dot on is ignored, so "con.1a2b.py"
// is reserved just like "con".
func IsWindowsReservedName(name string) bool {
	stem, _, _ := strings.Cut(name, ".")
	return windowsReservedNames[strings.ToUpper(stem)]
}
