// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Most helpers lay out throwaway Python projects (WriteTree, MustWriteFile)
// or manage process state that cannot be scoped to a test (MustChdir).
package testutil
