// The main package for the streamtrace executable.
package main

import (
	"github.com/JakeFAU/streamtrace/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
