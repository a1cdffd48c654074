// The main package for the sitecrawler executable.
package main

import (
	"github.com/JakeFAU/site-text-crawler/cmd"
)

// main defers all execution to the cobra CLI.
func main() {
	cmd.Execute()
}
