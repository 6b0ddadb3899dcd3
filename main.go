// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/pychunk/pychunk/cmd/pychunk"

func main() {
	cmd.Execute()
}
