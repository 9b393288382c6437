// The main package for the overlayd executable.
package main

import (
	"github.com/JakeFAU/progress-overlay/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
