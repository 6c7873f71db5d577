// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/rmgprov/rmgprov/cmd/rmgprov"

func main() {
	cmd.Execute()
}
