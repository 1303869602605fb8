// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/invowk/layerdeploy/cmd/layerdeploy"

func main() {
	cmd.Execute()
}
