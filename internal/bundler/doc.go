// SPDX-License-Identifier: MPL-2.0

// Package bundler runs a build: it discovers the modules reachable from the
// entry file, orders them, assigns them to chunks, writes the chunk files
// and publishes the manifest. Each phase stores its result on a State.
package bundler
