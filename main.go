// The main package for the toolshots executable.
package main

import (
	"github.com/JakeFAU/toolshots/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
