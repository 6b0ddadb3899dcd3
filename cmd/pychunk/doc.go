// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for pychunk.
//
// The command tree is built by NewRootCommand from an App, which carries the
// configuration provider, the output writers and the logger. Execute wires
// the production App and runs the tree under fang.
package cmd
